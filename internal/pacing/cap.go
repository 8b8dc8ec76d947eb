package pacing

import (
	"context"
	"fmt"
	"time"

	"github.com/w1tte/hltv-scraper-sub000/internal/metrics"
	"golang.org/x/time/rate"
)

// Cap is a hard token-bucket ceiling on aggregate requests per second.
// A nil Cap never blocks.
type Cap struct {
	limiter *rate.Limiter
}

// NewCap returns a Cap allowing rps requests per second, or nil when rps <= 0.
func NewCap(rps float64, burst int) *Cap {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &Cap{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until a token is available, respecting the context.
func (c *Cap) Wait(ctx context.Context) error {
	if c == nil {
		return nil
	}
	start := time.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate cap wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObservePacingDelay("cap", waited)
	}
	return nil
}
