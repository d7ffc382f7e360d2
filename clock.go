package taskengine

import "time"

// Clock is the monotonic time source used by every scheduling,
// timeout, and latency measurement in the engine. Wall-clock time is
// never consulted for ordering decisions; Now always comes through
// this seam so tests can substitute a manual clock.
type Clock interface {
	// Now returns the current time. Implementations must return values
	// from a monotonic source (the stdlib realClock relies on the
	// monotonic reading time.Now() already carries).
	Now() time.Time

	// Since returns the duration elapsed since t, per this clock.
	Since(t time.Time) time.Duration
}

type realClock struct{}

// NewClock returns the default Clock, backed by time.Now().
func NewClock() Clock { return realClock{} }

func (realClock) Now() time.Time                  { return time.Now() }
func (realClock) Since(t time.Time) time.Duration { return time.Since(t) }
