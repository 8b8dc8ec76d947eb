// Package collyfetcher implements ingest.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/w1tte/hltv-scraper-sub000/internal/fetcher"
	"github.com/w1tte/hltv-scraper-sub000/internal/fetcher/challenge"
	"github.com/w1tte/hltv-scraper-sub000/internal/ingest"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	Headers   http.Header
}

// Fetcher implements ingest.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	detector      *challenge.Detector
	now           func() time.Time
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// capture is what the hooks saw for one visit.
type capture struct {
	status  int
	body    []byte
	headers http.Header
	err     error
}

// New builds a Fetcher. Retries revisit the same URL, so revisits are allowed.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(newHTTPTransport())
	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		detector:      challenge.New(0),
		now:           time.Now,
	}
}

// Fetch executes a single HTTP GET and classifies the response.
func (f *Fetcher) Fetch(ctx context.Context, locator string) (ingest.Document, error) {
	var result capture
	collector := f.buildCollector(&result)

	err := f.runCollector(ctx, collector, locator)
	if err != nil && ctx.Err() != nil {
		return ingest.Document{}, err
	}
	if err != nil && result.status == 0 {
		return ingest.Document{}, ingest.NewFetchError(ingest.ErrNetwork, locator, 0, err)
	}

	if kind := fetcher.Classify(result.status, result.body, f.detector); kind != "" {
		fe := ingest.NewFetchError(kind, locator, result.status, result.err)
		if result.headers != nil {
			fe.RetryAfter = fetcher.ParseRetryAfter(result.headers.Get("Retry-After"), f.now())
		}
		return ingest.Document{}, fe
	}
	return ingest.Document{
		Locator:    locator,
		StatusCode: result.status,
		Body:       result.body,
		Headers:    result.headers,
		FetchedAt:  f.now().UTC(),
	}, nil
}

func (f *Fetcher) buildCollector(result *capture) *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = true
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	f.configureCollectorHooks(collector, result)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, result *capture) {
	hooks.OnRequest(func(r *colly.Request) {
		for key, values := range f.cfg.Headers {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		result.status = r.StatusCode
		result.body = append([]byte(nil), r.Body...)
		if r.Headers != nil {
			result.headers = r.Headers.Clone()
		}
	})

	// Non-2xx responses arrive here with their status and body populated.
	hooks.OnError(func(r *colly.Response, err error) {
		result.err = err
		if r == nil {
			return
		}
		result.status = r.StatusCode
		result.body = append([]byte(nil), r.Body...)
		if r.Headers != nil {
			result.headers = r.Headers.Clone()
		}
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
