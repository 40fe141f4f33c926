package command

import (
	"sync"
	"time"
)

// Default command budget.
const (
	DefaultRateCalls  = 5
	DefaultRatePeriod = 60 * time.Second
)

// RateLimiter is a fixed-window call counter.
//
// The window opens on the first call and lasts period; at most calls calls
// are admitted per window. Safe for concurrent use.
type RateLimiter struct {
	calls  int
	period time.Duration
	now    func() time.Time

	mu          sync.Mutex
	windowStart time.Time
	used        int
}

// NewRateLimiter creates a limiter admitting calls per period. Non-positive
// values fall back to the defaults.
func NewRateLimiter(calls int, period time.Duration) *RateLimiter {
	if calls <= 0 {
		calls = DefaultRateCalls
	}
	if period <= 0 {
		period = DefaultRatePeriod
	}
	return &RateLimiter{calls: calls, period: period, now: time.Now}
}

// CanCall consumes one unit of budget if available.
func (r *RateLimiter) CanCall() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rollLocked()
	if r.used >= r.calls {
		return false
	}
	r.used++
	return true
}

// TimeToNextCall returns how long until a call would be admitted, or 0 if
// budget remains.
func (r *RateLimiter) TimeToNextCall() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rollLocked()
	if r.used < r.calls {
		return 0
	}
	return r.windowStart.Add(r.period).Sub(r.now())
}

// Remaining returns the calls left in the current window.
func (r *RateLimiter) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rollLocked()
	return r.calls - r.used
}

// rollLocked starts a new window once the current one has elapsed.
func (r *RateLimiter) rollLocked() {
	now := r.now()
	if r.windowStart.IsZero() || now.Sub(r.windowStart) >= r.period {
		r.windowStart = now
		r.used = 0
	}
}
