// Package pacing spaces outbound requests with an adaptive, jittered delay.
//
// A Governor holds a base delay that grows on failure (Backoff) and shrinks on
// success (Recover), always staying within [Floor, Ceiling]. Wait samples a
// delay from [current, current*1.5] and sleeps only the part of it that has
// not already elapsed since the previous request.
package pacing

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/w1tte/hltv-scraper-sub000/internal/metrics"
)

// Config bounds and shapes a Governor.
type Config struct {
	Floor         time.Duration
	Ceiling       time.Duration
	BackoffFactor float64
	RecoverFactor float64
}

// DefaultConfig returns the per-slot defaults.
func DefaultConfig() Config {
	return Config{
		Floor:         3 * time.Second,
		Ceiling:       2 * time.Minute,
		BackoffFactor: 2,
		RecoverFactor: 0.95,
	}
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	switch {
	case c.Floor <= 0:
		return errors.New("pacing floor must be > 0")
	case c.Ceiling < c.Floor:
		return errors.New("pacing ceiling must be >= floor")
	case c.BackoffFactor < 1:
		return errors.New("pacing backoff factor must be >= 1")
	case c.RecoverFactor <= 0 || c.RecoverFactor >= 1:
		return errors.New("pacing recover factor must be in (0, 1)")
	}
	return nil
}

// Governor is an adaptive delay controller safe for concurrent callers.
type Governor struct {
	name string
	cfg  Config

	mu      sync.Mutex
	current time.Duration
	last    time.Time

	now    func() time.Time
	sleep  func(context.Context, time.Duration) error
	jitter func() float64
}

// Option customizes a Governor.
type Option func(*Governor)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Governor) { g.now = now }
}

// WithSleeper overrides how the governor sleeps.
func WithSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(g *Governor) { g.sleep = sleep }
}

// WithJitter overrides the [0,1) jitter source.
func WithJitter(jitter func() float64) Option {
	return func(g *Governor) { g.jitter = jitter }
}

// NewGovernor builds a Governor starting at the floor delay.
func NewGovernor(name string, cfg Config, opts ...Option) (*Governor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	g := &Governor{
		name:    name,
		cfg:     cfg,
		current: cfg.Floor,
		now:     time.Now,
		sleep:   Sleep,
		jitter:  rand.Float64,
	}
	for _, opt := range opts {
		opt(g)
	}
	metrics.SetPacingDelay(name, g.current)
	return g, nil
}

// Name identifies the governor in logs and metrics.
func (g *Governor) Name() string { return g.name }

// Wait blocks until the next request may be sent and returns the time slept.
// The caller's slot is reserved under the lock, so concurrent callers are
// spaced by at least the sampled delay even when they arrive together.
func (g *Governor) Wait(ctx context.Context) (time.Duration, error) {
	g.mu.Lock()
	now := g.now()
	delay := time.Duration(float64(g.current) * (1 + 0.5*g.jitter()))
	var remaining time.Duration
	if !g.last.IsZero() {
		remaining = delay - now.Sub(g.last)
		if remaining < 0 {
			remaining = 0
		}
	}
	g.last = now.Add(remaining)
	g.mu.Unlock()

	if remaining == 0 {
		return 0, nil
	}
	if err := g.sleep(ctx, remaining); err != nil {
		return 0, err
	}
	metrics.ObservePacingDelay(g.name, remaining)
	return remaining, nil
}

// Backoff grows the delay by the backoff factor, capped at the ceiling.
func (g *Governor) Backoff() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	next := time.Duration(float64(g.current) * g.cfg.BackoffFactor)
	if next > g.cfg.Ceiling || next < 0 {
		next = g.cfg.Ceiling
	}
	g.current = next
	metrics.SetPacingDelay(g.name, next)
	return next
}

// Recover shrinks the delay by the recover factor, floored at the minimum.
func (g *Governor) Recover() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	next := time.Duration(float64(g.current) * g.cfg.RecoverFactor)
	if next < g.cfg.Floor {
		next = g.cfg.Floor
	}
	g.current = next
	metrics.SetPacingDelay(g.name, next)
	return next
}

// Reset returns the delay to the floor.
func (g *Governor) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.current = g.cfg.Floor
	metrics.SetPacingDelay(g.name, g.current)
}

// Current returns the base delay.
func (g *Governor) Current() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
