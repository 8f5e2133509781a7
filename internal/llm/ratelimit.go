package llm

import (
	"sync"
	"time"
)

// rateLimiter is a token bucket refilled on demand. The classification
// path never blocks on it: when no token is available the call is
// skipped and the pipeline degrades to rule/ML-only.
type rateLimiter struct {
	now          func() time.Time
	lastRefill   time.Time
	tokens       float64
	capacity     float64
	refillPerSec float64
	mu           sync.Mutex
}

// newRateLimiter creates a limiter allowing the given calls per minute.
func newRateLimiter(perMinute int, now func() time.Time) *rateLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	if now == nil {
		now = time.Now
	}
	return &rateLimiter{
		tokens:       float64(perMinute),
		capacity:     float64(perMinute),
		refillPerSec: float64(perMinute) / 60.0,
		lastRefill:   now(),
		now:          now,
	}
}

// tryAcquire takes a token if one is available, without blocking.
func (rl *rateLimiter) tryAcquire() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	elapsed := now.Sub(rl.lastRefill).Seconds()
	if elapsed > 0 {
		rl.tokens += elapsed * rl.refillPerSec
		if rl.tokens > rl.capacity {
			rl.tokens = rl.capacity
		}
		rl.lastRefill = now
	}

	if rl.tokens >= 1 {
		rl.tokens--
		return true
	}
	return false
}

// limiterPool keeps one rate limiter per tenant.
type limiterPool struct {
	now      func() time.Time
	limiters map[string]*rateLimiter
	mu       sync.Mutex
}

func newLimiterPool(now func() time.Time) *limiterPool {
	return &limiterPool{
		limiters: make(map[string]*rateLimiter),
		now:      now,
	}
}

func (p *limiterPool) get(tenantID string, perMinute int) *rateLimiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if rl, ok := p.limiters[tenantID]; ok {
		return rl
	}
	rl := newRateLimiter(perMinute, p.now)
	p.limiters[tenantID] = rl
	return rl
}
