// Package ratelimit provides a token bucket limiter keyed by identity.
package ratelimit

import (
	"sync"
	"time"
)

// idleAfter is how long a bucket may go unused before it is pruned.
const idleAfter = 10 * time.Minute

// Limiter implements token bucket rate limiting per key at a fixed rate.
// A zero or negative rate disables limiting.
type Limiter struct {
	mu        sync.Mutex
	rate      float64 // tokens per second, also the burst size
	buckets   map[string]*bucket
	lastPrune time.Time
	now       func() time.Time
}

type bucket struct {
	tokens   float64
	lastFill time.Time
}

// New creates a limiter allowing rate events per second per key.
func New(rate int) *Limiter {
	return &Limiter{
		rate:      float64(rate),
		buckets:   make(map[string]*bucket),
		lastPrune: time.Now(),
		now:       time.Now,
	}
}

// Enabled reports whether the limiter enforces anything.
func (l *Limiter) Enabled() bool {
	return l != nil && l.rate > 0
}

// Allow reports whether key may proceed, consuming a token if so.
func (l *Limiter) Allow(key string) bool {
	if !l.Enabled() {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(now)

	b := l.getOrCreateBucket(key, now)
	b.refill(now, l.rate)

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Forget clears the state for key.
func (l *Limiter) Forget(key string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *Limiter) getOrCreateBucket(key string, now time.Time) *bucket {
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{
			tokens:   l.rate, // start full
			lastFill: now,
		}
		l.buckets[key] = b
	}
	return b
}

func (l *Limiter) pruneLocked(now time.Time) {
	if now.Sub(l.lastPrune) < idleAfter {
		return
	}
	for key, b := range l.buckets {
		if now.Sub(b.lastFill) >= idleAfter {
			delete(l.buckets, key)
		}
	}
	l.lastPrune = now
}

func (b *bucket) refill(now time.Time, rate float64) {
	elapsed := now.Sub(b.lastFill).Seconds()
	b.tokens += elapsed * rate
	if b.tokens > rate {
		b.tokens = rate
	}
	b.lastFill = now
}
