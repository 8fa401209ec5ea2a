package httpclient

import (
	"context"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter spaces requests per host with a token bucket and honours
// server supplied Retry-After backoffs.
type RateLimiter struct {
	mu       sync.Mutex
	rps      float64
	custom   map[string]float64
	limiters map[string]*rate.Limiter
	until    map[string]time.Time
}

// NewRateLimiter creates a limiter allowing rps requests per second per host.
// An rps of zero disables token bucket limiting; Retry-After backoffs still apply.
func NewRateLimiter(rps float64) *RateLimiter {
	return &RateLimiter{
		rps:      rps,
		custom:   make(map[string]float64),
		limiters: make(map[string]*rate.Limiter),
		until:    make(map[string]time.Time),
	}
}

// SetCustomRate overrides the rate for a single host.
func (rl *RateLimiter) SetCustomRate(host string, rps float64) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.custom[host] = rps
	delete(rl.limiters, host)
}

// Wait blocks until a request to urlStr is allowed.
func (rl *RateLimiter) Wait(ctx context.Context, urlStr string) error {
	if rl == nil {
		return nil
	}
	host := hostOf(urlStr)

	rl.mu.Lock()
	until := rl.until[host]
	limiter := rl.limiterLocked(host)
	rl.mu.Unlock()

	if d := time.Until(until); d > 0 {
		timer := time.NewTimer(d)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}

	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}

// maxBackoff caps server supplied Retry-After values.
const maxBackoff = 2 * time.Minute

// Backoff delays further requests to the host of urlStr by d, capped at two minutes.
func (rl *RateLimiter) Backoff(urlStr string, d time.Duration) {
	if rl == nil || d <= 0 {
		return
	}
	if d > maxBackoff {
		d = maxBackoff
	}
	host := hostOf(urlStr)
	next := time.Now().Add(d)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if next.After(rl.until[host]) {
		rl.until[host] = next
	}
}

func (rl *RateLimiter) limiterLocked(host string) *rate.Limiter {
	rps := rl.rps
	if v, ok := rl.custom[host]; ok {
		rps = v
	}
	if rps <= 0 {
		return nil
	}
	if l, ok := rl.limiters[host]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(rps), 1)
	rl.limiters[host] = l
	return l
}

// hostOf extracts the host, without port, from a URL string.
func hostOf(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Hostname()
}
