// Package ratelimit provides fixed-window rate limiting keyed by an
// arbitrary string, typically a client IP or a DID.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a per-key fixed-window rate limiter.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*window
	rate    int           // max requests per window
	window  time.Duration // window duration
}

// window tracks request counts within the current window for one key.
type window struct {
	count int
	start time.Time
}

// New creates a Limiter that allows rate requests per window per key.
// It starts a background goroutine that cleans up stale entries every minute.
func New(rate int, windowDur time.Duration) *Limiter {
	l := &Limiter{
		entries: make(map[string]*window),
		rate:    rate,
		window:  windowDur,
	}
	go func() {
		for {
			time.Sleep(time.Minute)
			l.cleanup()
		}
	}()
	return l
}

// Allow reports whether the key is still within its rate limit.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	w, exists := l.entries[key]
	if !exists || now.Sub(w.start) > l.window {
		l.entries[key] = &window{count: 1, start: now}
		return true
	}
	w.count++
	return w.count <= l.rate
}

// cleanup removes entries whose window has expired.
func (l *Limiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	for key, w := range l.entries {
		if now.Sub(w.start) > l.window {
			delete(l.entries, key)
		}
	}
}
