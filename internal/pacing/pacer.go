package pacing

import (
	"context"
	"time"
)

// Pacer composes a worker-slot governor, the process-wide governor and the
// optional rate cap. Feedback fans out to both governors.
type Pacer struct {
	local  *Governor
	global *Governor
	limit  *Cap
}

// NewPacer composes the tiers. global and limit may be nil.
func NewPacer(local, global *Governor, limit *Cap) *Pacer {
	return &Pacer{local: local, global: global, limit: limit}
}

// Wait waits on every tier in turn and returns the total time slept.
func (p *Pacer) Wait(ctx context.Context) (time.Duration, error) {
	total, err := p.local.Wait(ctx)
	if err != nil {
		return total, err
	}
	if p.global != nil {
		d, err := p.global.Wait(ctx)
		total += d
		if err != nil {
			return total, err
		}
	}
	if p.limit == nil {
		return total, nil
	}
	start := time.Now()
	if err := p.limit.Wait(ctx); err != nil {
		return total, err
	}
	return total + time.Since(start), nil
}

// Backoff slows both governors.
func (p *Pacer) Backoff() {
	p.local.Backoff()
	if p.global != nil {
		p.global.Backoff()
	}
}

// Recover relaxes both governors.
func (p *Pacer) Recover() {
	p.local.Recover()
	if p.global != nil {
		p.global.Recover()
	}
}

// Reset returns both governors to their floors.
func (p *Pacer) Reset() {
	p.local.Reset()
	if p.global != nil {
		p.global.Reset()
	}
}

// Local exposes the slot governor.
func (p *Pacer) Local() *Governor { return p.local }
