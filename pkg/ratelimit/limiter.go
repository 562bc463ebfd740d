// Package ratelimit throttles outbound provider calls per platform.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"mediagrab/pkg/platform"
)

// Limiter defines the interface for rate limiting
type Limiter interface {
	// Allow checks if a request is allowed under the current rate limit
	Allow() bool
	// Wait blocks until the rate limit allows another request or the
	// context is cancelled
	Wait(ctx context.Context) error
	// Reset resets the rate limiter state
	Reset()
}

// TokenBucket implements a token bucket rate limiter
type TokenBucket struct {
	capacity     int
	tokens       int
	refillPeriod time.Duration
	lastRefill   time.Time
	mu           sync.Mutex
}

// NewTokenBucket creates a new token bucket rate limiter
func NewTokenBucket(capacity int, refillPeriod time.Duration) *TokenBucket {
	return &TokenBucket{
		capacity:     capacity,
		tokens:       capacity,
		refillPeriod: refillPeriod,
		lastRefill:   time.Now(),
	}
}

// Allow checks if a request can proceed
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()

	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

// Wait blocks until a token is available or ctx is done
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for !tb.Allow() {
		tb.mu.Lock()
		wait := tb.refillPeriod - time.Since(tb.lastRefill)
		tb.mu.Unlock()

		if wait <= 0 {
			wait = 50 * time.Millisecond
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}

// Reset refills the bucket to capacity
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.tokens = tb.capacity
	tb.lastRefill = time.Now()
}

// refill adds tokens based on elapsed time
func (tb *TokenBucket) refill() {
	now := time.Now()
	if now.Sub(tb.lastRefill) >= tb.refillPeriod {
		tb.tokens = tb.capacity
		tb.lastRefill = now
	}
}

// PerPlatform holds one limiter per platform so a rate-limited provider
// does not throttle requests to the others
type PerPlatform struct {
	mu       sync.Mutex
	limiters map[platform.Platform]Limiter
	capacity int
	period   time.Duration
}

// NewPerPlatform creates a registry of token buckets with the given
// capacity per refill period
func NewPerPlatform(capacity int, period time.Duration) *PerPlatform {
	return &PerPlatform{
		limiters: make(map[platform.Platform]Limiter),
		capacity: capacity,
		period:   period,
	}
}

// Get returns the limiter for a platform, creating it on first use
func (pp *PerPlatform) Get(p platform.Platform) Limiter {
	pp.mu.Lock()
	defer pp.mu.Unlock()

	l, ok := pp.limiters[p]
	if !ok {
		l = NewTokenBucket(pp.capacity, pp.period)
		pp.limiters[p] = l
	}
	return l
}
