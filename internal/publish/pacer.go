package publish

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Pacer keeps a minimum gap between the end of one publish and the start of
// the next, across all destinations. The first call never waits.
type Pacer struct {
	mu      sync.Mutex
	gap     time.Duration
	limiter *rate.Limiter
}

// NewPacer creates a pacer. A zero gap never waits.
func NewPacer(gap time.Duration) *Pacer {
	p := &Pacer{gap: gap}
	p.limiter = p.newLimiter()
	return p
}

func (p *Pacer) newLimiter() *rate.Limiter {
	if p.gap <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(p.gap), 1)
}

// Wait blocks until the next publish may start or ctx ends.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	limiter := p.limiter
	p.mu.Unlock()
	return limiter.Wait(ctx)
}

// Done marks the end of a publish attempt, successful or not. The gap is
// measured from here.
func (p *Pacer) Done() {
	if p == nil || p.gap <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.limiter = p.newLimiter()
	p.limiter.Allow()
}

// Gap returns the configured minimum gap.
func (p *Pacer) Gap() time.Duration {
	if p == nil {
		return 0
	}
	return p.gap
}
