package ratelimit

import (
	"sync"
	"time"
)

// bucket is a token bucket refilled lazily on access.
type bucket struct {
	tokens   float64
	capacity float64
	refill   float64 // tokens per second
	updated  time.Time
}

// Limiter holds one token bucket per key. Keys are caller-defined, typically
// client address plus route, so each route can carry its own budget.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

func New() *Limiter { return &Limiter{buckets: make(map[string]*bucket)} }

// Allow consumes one token from the bucket for key, creating the bucket at
// full capacity on first use. Returns false when the bucket is empty.
func (l *Limiter) Allow(key string, capacity, refillPerSec float64) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: capacity, capacity: capacity, refill: refillPerSec, updated: now}
		l.buckets[key] = b
	}

	if elapsed := now.Sub(b.updated).Seconds(); elapsed > 0 {
		b.tokens += elapsed * b.refill
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.updated = now
	}

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Len reports the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
