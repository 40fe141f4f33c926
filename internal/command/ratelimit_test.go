package command

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock is a manually advanced clock.
type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestLimiter(calls int, period time.Duration) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	r := NewRateLimiter(calls, period)
	r.now = clock.now
	return r, clock
}

func TestRateLimiter_SixthCallRejected(t *testing.T) {
	r, clock := newTestLimiter(5, 60*time.Second)

	for i := range 5 {
		assert.True(t, r.CanCall(), "call %d", i+1)
		clock.advance(time.Second)
	}
	assert.Equal(t, 0, r.Remaining())
	assert.False(t, r.CanCall())

	wait := r.TimeToNextCall()
	assert.Positive(t, wait)
	assert.Equal(t, 55*time.Second, wait)
}

func TestRateLimiter_WindowResets(t *testing.T) {
	r, clock := newTestLimiter(2, 10*time.Second)

	assert.True(t, r.CanCall())
	assert.True(t, r.CanCall())
	assert.False(t, r.CanCall())

	clock.advance(10 * time.Second)
	assert.Equal(t, time.Duration(0), r.TimeToNextCall())
	assert.Equal(t, 2, r.Remaining())
	assert.True(t, r.CanCall())
}

func TestRateLimiter_TimeToNextCallWithBudget(t *testing.T) {
	r, _ := newTestLimiter(3, time.Minute)
	assert.True(t, r.CanCall())
	assert.Equal(t, time.Duration(0), r.TimeToNextCall())
	assert.Equal(t, 2, r.Remaining())
}

func TestRateLimiter_Defaults(t *testing.T) {
	r := NewRateLimiter(0, 0)
	assert.Equal(t, DefaultRateCalls, r.calls)
	assert.Equal(t, DefaultRatePeriod, r.period)
}
