package notification

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/quiesce/pkg/config"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(capacity int, refill time.Duration) (*TokenBucketRateLimiter, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	limiter := NewTokenBucketRateLimiter(capacity, refill)
	limiter.now = clock.Now
	limiter.lastRefill = clock.Now()
	return limiter, clock
}

func TestTokenBucketRateLimiter_Allow(t *testing.T) {
	type op struct {
		advance   time.Duration
		wantAllow bool
	}

	tests := []struct {
		name       string
		capacity   int
		refillRate time.Duration
		ops        []op
	}{
		{
			name:       "allow up to capacity immediately",
			capacity:   3,
			refillRate: time.Hour,
			ops:        []op{{0, true}, {0, true}, {0, true}, {0, false}},
		},
		{
			name:       "refill allows more",
			capacity:   2,
			refillRate: 100 * time.Millisecond,
			ops:        []op{{0, true}, {0, true}, {0, false}, {150 * time.Millisecond, true}, {0, false}},
		},
		{
			name:       "partial intervals accumulate",
			capacity:   1,
			refillRate: 100 * time.Millisecond,
			ops: []op{
				{0, true},
				{60 * time.Millisecond, false},
				{60 * time.Millisecond, true},
				{0, false},
			},
		},
		{
			name:       "refill capped at capacity",
			capacity:   2,
			refillRate: 10 * time.Millisecond,
			ops:        []op{{0, true}, {0, true}, {time.Second, true}, {0, true}, {0, false}},
		},
		{
			name:       "zero capacity always denies",
			capacity:   0,
			refillRate: time.Millisecond,
			ops:        []op{{0, false}, {time.Second, false}},
		},
		{
			name:       "negative capacity always denies",
			capacity:   -5,
			refillRate: time.Millisecond,
			ops:        []op{{0, false}, {time.Second, false}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter, clock := newTestLimiter(tt.capacity, tt.refillRate)
			for i, o := range tt.ops {
				clock.Advance(o.advance)
				assert.Equal(t, o.wantAllow, limiter.Allow(), "op %d", i)
			}
		})
	}
}

func TestTokenBucketRateLimiter_Reset(t *testing.T) {
	limiter, _ := newTestLimiter(2, time.Hour)
	require.True(t, limiter.Allow())
	require.True(t, limiter.Allow())
	require.False(t, limiter.Allow())

	limiter.Reset()
	assert.True(t, limiter.Allow())
	assert.True(t, limiter.Allow())
	assert.False(t, limiter.Allow())
}

func TestTokenBucketRateLimiter_Concurrent(t *testing.T) {
	const capacity = 100
	limiter := NewTokenBucketRateLimiter(capacity, time.Hour)

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < capacity*2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Allow() {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(capacity), allowed.Load())
}

func TestNewRateLimiter(t *testing.T) {
	assert.Nil(t, NewRateLimiter(config.RateLimitConfig{}), "zero config disables limiting")
	assert.Nil(t, NewRateLimiter(config.RateLimitConfig{Window: config.Duration(time.Minute)}))

	limiter := NewRateLimiter(config.RateLimitConfig{Window: config.Duration(time.Minute), MaxMessages: 3})
	require.NotNil(t, limiter)

	tb, ok := limiter.(*TokenBucketRateLimiter)
	require.True(t, ok)
	assert.Equal(t, 3, tb.capacity)
	assert.Equal(t, 20*time.Second, tb.refillRate)
}
