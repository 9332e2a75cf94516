// Package ratelimit provides the token bucket behind a service's
// rate_limiting behavior.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

// Bucket is a token bucket. It is safe for concurrent use.
type Bucket struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	rate       float64 // tokens per second
	lastUpdate time.Time
	now        func() time.Time
}

// NewBucket creates a bucket refilling at rate tokens per second and
// holding at most burst tokens (rate when burst <= 0). It starts full.
func NewBucket(rate float64, burst int) *Bucket {
	capacity := float64(burst)
	if capacity <= 0 {
		capacity = rate
	}
	b := &Bucket{
		capacity: capacity,
		rate:     rate,
		tokens:   capacity,
		now:      time.Now,
	}
	b.lastUpdate = b.now()
	return b
}

// PerMinute creates a bucket admitting n requests per minute with a burst
// of n.
func PerMinute(n int) *Bucket {
	return NewBucket(float64(n)/60, n)
}

// refill must be called with b.mu held.
func (b *Bucket) refill() {
	now := b.now()
	b.tokens = math.Min(b.capacity, b.tokens+now.Sub(b.lastUpdate).Seconds()*b.rate)
	b.lastUpdate = now
}

// Allow consumes a token if one is available.
func (b *Bucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// RetryAfter returns how long until the next token is available.
func (b *Bucket) RetryAfter() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	if b.tokens >= 1 || b.rate <= 0 {
		return 0
	}
	return time.Duration((1 - b.tokens) / b.rate * float64(time.Second))
}

// Available returns the current token count.
func (b *Bucket) Available() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	return b.tokens
}
