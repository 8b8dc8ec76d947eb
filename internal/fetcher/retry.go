// Package fetcher holds the retry glue shared by every document fetcher.
package fetcher

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/w1tte/hltv-scraper-sub000/internal/ingest"
	"github.com/w1tte/hltv-scraper-sub000/internal/metrics"
	"github.com/w1tte/hltv-scraper-sub000/internal/pacing"
)

// ErrRetryExhausted wraps the last retriable failure once attempts run out.
var ErrRetryExhausted = errors.New("fetch retries exhausted")

// Pacer is the pacing feedback loop a retrier drives.
type Pacer interface {
	Wait(ctx context.Context) (time.Duration, error)
	Backoff()
	Recover()
}

// RetryConfig bounds retries of retriable fetch failures.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryConfig returns conservative defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 4,
		BaseDelay:   2 * time.Second,
		MaxDelay:    time.Minute,
	}
}

// Retrier fetches a document, retrying retriable kinds with exponential jitter
// and feeding every outcome back into the pacer.
type Retrier struct {
	cfg    RetryConfig
	logger *zap.Logger
	sleep  func(context.Context, time.Duration) error
}

// NewRetrier builds a Retrier. A non-positive MaxAttempts means one attempt.
func NewRetrier(cfg RetryConfig, logger *zap.Logger) *Retrier {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrier{cfg: cfg, logger: logger.Named("retrier"), sleep: pacing.Sleep}
}

// WithSleeper replaces the backoff sleeper; used by tests.
func (r *Retrier) WithSleeper(sleep func(context.Context, time.Duration) error) *Retrier {
	r.sleep = sleep
	return r
}

// Fetch runs the attempt loop. Cancellation is observed while pacing and
// backing off; an in-flight fetch is never interrupted.
func (r *Retrier) Fetch(ctx context.Context, f ingest.Fetcher, p Pacer, locator string) (ingest.Document, error) {
	var lastErr error
	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		if _, err := p.Wait(ctx); err != nil {
			return ingest.Document{}, fmt.Errorf("pacing wait: %w", err)
		}
		doc, err := f.Fetch(context.WithoutCancel(ctx), locator)
		if err == nil {
			p.Recover()
			metrics.ObserveFetchAttempt("ok")
			return doc, nil
		}

		kind := ingest.KindOf(err)
		metrics.ObserveFetchAttempt(string(kind))
		if !ingest.Retryable(kind) {
			return ingest.Document{}, err
		}
		lastErr = err
		p.Backoff()
		if attempt == r.cfg.MaxAttempts-1 {
			break
		}

		delay := r.backoff(attempt, retryAfter(err))
		metrics.ObserveRetry(string(kind))
		r.logger.Warn("retriable fetch failure",
			zap.String("locator", locator),
			zap.String("kind", string(kind)),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if err := r.sleep(ctx, delay); err != nil {
			return ingest.Document{}, fmt.Errorf("retry backoff: %w", err)
		}
	}

	metrics.ObserveRetryExhausted(string(ingest.KindOf(lastErr)))
	return ingest.Document{}, fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, r.cfg.MaxAttempts, lastErr)
}

// backoff returns base*2^attempt capped at MaxDelay, jittered over its upper
// half, and never shorter than a server Retry-After hint.
func (r *Retrier) backoff(attempt int, hint time.Duration) time.Duration {
	delay := float64(r.cfg.BaseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(r.cfg.MaxDelay) {
		delay = float64(r.cfg.MaxDelay)
	}
	d := time.Duration(delay/2) + randomJitter(time.Duration(delay)/2)
	if hint > d {
		d = min(hint, r.cfg.MaxDelay)
	}
	return d
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

func retryAfter(err error) time.Duration {
	var fe *ingest.FetchError
	if errors.As(err, &fe) {
		return fe.RetryAfter
	}
	return 0
}

// IsTransient reports whether err is a retriable failure that ran out of attempts.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRetryExhausted)
}
