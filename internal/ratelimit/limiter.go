// Package ratelimit implements per-session fixed-window attempt limiting
// for sensitive actions (login, payment, trading, general API use).
//
// Each session holds one window per category. A window tracks the attempt
// count and its start time; once the window duration has elapsed the next
// check resets it. Recording an attempt never blocks by itself — blocking
// is recomputed on the following CanProceed call. State is in-memory only:
// this is a UI affordance layered under the authoritative per-IP edge
// limits, not a security boundary on its own.
package ratelimit

import (
	"sync"
	"time"
)

// Category names gate distinct action classes independently.
type Category string

const (
	CategoryLogin   Category = "login"
	CategoryAPI     Category = "api"
	CategoryTrading Category = "trading"
	CategoryPayment Category = "payment"
)

// Rule bounds one category: at most MaxAttempts per Window.
type Rule struct {
	MaxAttempts int
	Window      time.Duration
}

// DefaultRules returns the platform's standard limits per category.
func DefaultRules() map[Category]Rule {
	return map[Category]Rule{
		CategoryLogin:   {MaxAttempts: 5, Window: 15 * time.Minute},
		CategoryAPI:     {MaxAttempts: 100, Window: 1 * time.Minute},
		CategoryTrading: {MaxAttempts: 10, Window: 1 * time.Minute},
		CategoryPayment: {MaxAttempts: 3, Window: 1 * time.Hour},
	}
}

// window is the per-category counter state.
type window struct {
	attempts    int
	windowStart time.Time
	blocked     bool
}

// Limiter is a per-session set of fixed windows. Safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	rules   map[Category]Rule
	windows map[Category]*window
	now     func() time.Time

	lastTouch time.Time
}

// NewLimiter creates a limiter with the given rules. Windows are created
// lazily per category on first check.
func NewLimiter(rules map[Category]Rule) *Limiter {
	return &Limiter{
		rules:   rules,
		windows: make(map[Category]*window),
		now:     time.Now,
	}
}

// windowFor returns the category window, creating it on first use.
// Callers must hold mu.
func (l *Limiter) windowFor(category Category) *window {
	w, ok := l.windows[category]
	if !ok {
		w = &window{windowStart: l.now()}
		l.windows[category] = w
	}
	return w
}

// CanProceed reports whether another attempt is allowed in this category.
// An expired window is reset before answering; a full window marks the
// category blocked and denies.
func (l *Limiter) CanProceed(category Category) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	rule, ok := l.rules[category]
	if !ok {
		return true // unconfigured categories are unlimited
	}

	now := l.now()
	l.lastTouch = now
	w := l.windowFor(category)

	if now.Sub(w.windowStart) >= rule.Window {
		w.attempts = 0
		w.windowStart = now
		w.blocked = false
		return true
	}

	if w.attempts >= rule.MaxAttempts {
		w.blocked = true
		return false
	}

	return true
}

// RecordAttempt increments the category counter. It does not evaluate
// blocking; that happens on the next CanProceed call.
func (l *Limiter) RecordAttempt(category Category) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lastTouch = l.now()
	l.windowFor(category).attempts++
}

// Attempts returns the current attempt count for the category.
func (l *Limiter) Attempts(category Category) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if w, ok := l.windows[category]; ok {
		return w.attempts
	}
	return 0
}

// RemainingTime returns how long until a blocked category's window expires.
// Zero when the category is not blocked.
func (l *Limiter) RemainingTime(category Category) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	rule, ok := l.rules[category]
	if !ok {
		return 0
	}

	w, ok := l.windows[category]
	if !ok || !w.blocked {
		return 0
	}

	remaining := rule.Window - l.now().Sub(w.windowStart)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Reset clears the category window entirely.
func (l *Limiter) Reset(category Category) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.windows, category)
}
