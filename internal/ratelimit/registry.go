package ratelimit

import (
	"sync"
	"time"
)

// Registry hands out one Limiter per client session key (user ID, falling
// back to client IP for anonymous requests). Limiters idle past the
// eviction age are dropped by the background cleanup task; this mirrors
// the original behavior where a fresh session starts with clean counters.
type Registry struct {
	mu       sync.Mutex
	rules    map[Category]Rule
	limiters map[string]*Limiter
	now      func() time.Time
}

// NewRegistry creates a registry applying the same rules to every session.
func NewRegistry(rules map[Category]Rule) *Registry {
	return &Registry{
		rules:    rules,
		limiters: make(map[string]*Limiter),
		now:      time.Now,
	}
}

// For returns the limiter for the given session key, creating it on first
// use.
func (r *Registry) For(key string) *Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.limiters[key]
	if !ok {
		l = NewLimiter(r.rules)
		l.now = r.now
		l.lastTouch = r.now()
		r.limiters[key] = l
	}
	return l
}

// Len returns the number of active session limiters.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.limiters)
}

// EvictIdle removes limiters untouched for at least maxIdle and returns
// how many were dropped.
func (r *Registry) EvictIdle(maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-maxIdle)
	evicted := 0
	for key, l := range r.limiters {
		l.mu.Lock()
		idle := l.lastTouch.Before(cutoff)
		l.mu.Unlock()
		if idle {
			delete(r.limiters, key)
			evicted++
		}
	}
	return evicted
}
