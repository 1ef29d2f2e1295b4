package notification

import (
	"sync"
	"time"

	"github.com/Veraticus/quiesce/pkg/config"
	"github.com/Veraticus/quiesce/pkg/interfaces"
)

// TokenBucketRateLimiter implements token bucket rate limiting
type TokenBucketRateLimiter struct {
	capacity   int
	tokens     int
	refillRate time.Duration
	lastRefill time.Time
	now        func() time.Time
	mu         sync.Mutex
}

// NewTokenBucketRateLimiter creates a limiter holding capacity tokens and
// regaining one every refillRate.
func NewTokenBucketRateLimiter(capacity int, refillRate time.Duration) *TokenBucketRateLimiter {
	return &TokenBucketRateLimiter{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

// NewRateLimiter builds a limiter allowing MaxMessages per Window. It
// returns nil when rate limiting is disabled.
func NewRateLimiter(cfg config.RateLimitConfig) interfaces.RateLimiter {
	if cfg.MaxMessages <= 0 || cfg.Window <= 0 {
		return nil
	}
	return NewTokenBucketRateLimiter(cfg.MaxMessages, cfg.Window.Std()/time.Duration(cfg.MaxMessages))
}

// Allow checks if a request is allowed under the rate limit
func (tb *TokenBucketRateLimiter) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	if tb.refillRate > 0 {
		if earned := int(now.Sub(tb.lastRefill) / tb.refillRate); earned > 0 {
			tb.tokens = min(tb.capacity, tb.tokens+earned)
			// Carry the partial interval so slow callers are not penalised
			tb.lastRefill = tb.lastRefill.Add(time.Duration(earned) * tb.refillRate)
			if tb.tokens == tb.capacity {
				tb.lastRefill = now
			}
		}
	}

	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

// Reset resets the rate limiter to full capacity
func (tb *TokenBucketRateLimiter) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.tokens = tb.capacity
	tb.lastRefill = tb.now()
}
