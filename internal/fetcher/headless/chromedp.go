// Package headless contains a fetcher that renders pages in headless Chrome.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/w1tte/hltv-scraper-sub000/internal/fetcher"
	"github.com/w1tte/hltv-scraper-sub000/internal/fetcher/challenge"
	"github.com/w1tte/hltv-scraper-sub000/internal/ingest"
)

// ReadyFunc reports whether rendered HTML holds the content the caller needs.
type ReadyFunc func(html string) bool

// errNotReady is returned by pollReady when the poll budget runs out.
var errNotReady = errors.New("page never became ready")

// Config controls the behavior of the headless fetcher.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	Headers           http.Header
	// Ready is polled after navigation; nil accepts the first snapshot.
	Ready        ReadyFunc
	PollInterval time.Duration
	PollAttempts int
}

// Fetcher implements ingest.Fetcher using chromedp and headless Chrome.
type Fetcher struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
	detector    *challenge.Detector
}

// NewChromedp creates a headless fetcher backed by chromedp.
func NewChromedp(cfg Config) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = 20
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Fetcher{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		detector:    challenge.New(0),
	}, nil
}

// ReadySelector returns a ReadyFunc that holds once the markup contains marker.
func ReadySelector(marker string) ReadyFunc {
	if marker == "" {
		return nil
	}
	return func(html string) bool { return strings.Contains(html, marker) }
}

// Close cancels the allocator context.
func (f *Fetcher) Close() {
	f.allocCancel()
}

// Fetch navigates with a headless browser and returns the rendered DOM once
// the ready predicate holds. A page that never becomes ready is Blocked.
func (f *Fetcher) Fetch(ctx context.Context, locator string) (ingest.Document, error) {
	if err := f.acquire(ctx); err != nil {
		return ingest.Document{}, err
	}
	defer f.release()

	taskCtx, taskCancel := chromedp.NewContext(f.allocator)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, f.cfg.NavigationTimeout)
	defer cancel()

	meta := newResponseMeta()
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	if err := chromedp.Run(taskCtx, f.networkSetupAction(), chromedp.Navigate(locator)); err != nil {
		return ingest.Document{}, ingest.NewFetchError(ingest.ErrNetwork, locator, 0, fmt.Errorf("chromedp navigate: %w", err))
	}

	status, headers := meta.snapshot()
	if kind := fetcher.ClassifyStatus(status); status != 0 && kind != "" {
		fe := ingest.NewFetchError(kind, locator, status, nil)
		fe.RetryAfter = fetcher.ParseRetryAfter(headers.Get("Retry-After"), time.Now())
		return ingest.Document{}, fe
	}

	html, err := pollReady(taskCtx, f.snapshotHTML, f.cfg.Ready, f.cfg.PollAttempts, f.cfg.PollInterval)
	switch {
	case errors.Is(err, errNotReady):
		return ingest.Document{}, ingest.NewFetchError(ingest.ErrBlocked, locator, status, err)
	case err != nil:
		return ingest.Document{}, ingest.NewFetchError(ingest.ErrNetwork, locator, status, err)
	}

	if status == 0 {
		status = http.StatusOK
	}
	if kind := fetcher.Classify(status, []byte(html), f.detector); kind != "" {
		return ingest.Document{}, ingest.NewFetchError(kind, locator, status, nil)
	}
	return ingest.Document{
		Locator:    locator,
		StatusCode: status,
		Body:       []byte(html),
		Headers:    headers,
		FetchedAt:  time.Now().UTC(),
		Headless:   true,
	}, nil
}

func (f *Fetcher) snapshotHTML(ctx context.Context) (string, error) {
	var html string
	if err := chromedp.Run(ctx,
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return "", fmt.Errorf("chromedp snapshot: %w", err)
	}
	return html, nil
}

// pollReady snapshots the DOM until ready holds or attempts run out.
func pollReady(
	ctx context.Context,
	snapshot func(context.Context) (string, error),
	ready ReadyFunc,
	attempts int,
	interval time.Duration,
) (string, error) {
	for i := 0; i < attempts; i++ {
		html, err := snapshot(ctx)
		if err != nil {
			return "", err
		}
		if ready == nil || ready(html) {
			return html, nil
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", fmt.Errorf("ready poll: %w", ctx.Err())
		case <-timer.C:
		}
	}
	return "", errNotReady
}

func (f *Fetcher) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(f.cfg.Headers) > 0 {
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(f.cfg.Headers)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	select {
	case f.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (f *Fetcher) release() {
	if f.limiter == nil {
		return
	}
	select {
	case <-f.limiter:
	default:
	}
}
