package queue

import (
	"context"
	"time"
)

// NumClasses is the number of priority classes a PrioritySet serves:
// CRITICAL, HIGH, NORMAL, LOW, in strict dispatch order (spec.md §4.3).
const NumClasses = 4

// PrioritySet composes NumClasses Bounded queues and exposes a single
// blocking pop that always prefers the lowest-index (highest-priority)
// non-empty queue, giving FIFO order within a class and strict
// preemption across classes.
type PrioritySet[T any] struct {
	classes [NumClasses]*Bounded[T]

	// notify wakes PopBlocking promptly after a push; it is a
	// best-effort signal (capacity 1, non-blocking send) layered over
	// the bounded poll below, mirroring the teacher's dispatcher
	// select-with-default fan-in over several channels.
	notify chan struct{}
}

// NewPrioritySet builds a PrioritySet whose class i has capacity
// capacities[i].
func NewPrioritySet[T any](capacities [NumClasses]int) *PrioritySet[T] {
	ps := &PrioritySet[T]{notify: make(chan struct{}, 1)}
	for i := range ps.classes {
		ps.classes[i] = NewBounded[T](capacities[i])
	}
	return ps
}

// TryPush enqueues v onto class (0 = CRITICAL ... NumClasses-1 = LOW).
// An out-of-range class is coerced to the lowest priority class.
func (ps *PrioritySet[T]) TryPush(class int, v T) PushResult {
	class = clampClass(class)
	res := ps.classes[class].TryPush(v)
	if res == Accepted {
		ps.wake()
	}
	return res
}

func (ps *PrioritySet[T]) wake() {
	select {
	case ps.notify <- struct{}{}:
	default:
	}
}

// TryPopAny scans classes in priority order and returns the first
// available item, without blocking.
func (ps *PrioritySet[T]) TryPopAny() (v T, class int, ok bool) {
	for i, c := range ps.classes {
		if item, got := c.TryPop(); got {
			return item, i, true
		}
	}
	var zero T
	return zero, -1, false
}

// pollInterval bounds how stale PopBlocking's wake-up can be when a
// push races the select below; spec.md §4.3 requires this be <= 1ms.
const pollInterval = time.Millisecond

// PopBlocking pops the highest-priority available item, blocking until
// one exists or ctx is cancelled. It
// never blocks longer than pollInterval without re-checking all
// classes, so shutdown remains responsive even if a wake-up is missed.
func (ps *PrioritySet[T]) PopBlocking(ctx context.Context) (v T, class int, ok bool) {
	for {
		if item, c, got := ps.TryPopAny(); got {
			return item, c, true
		}
		select {
		case <-ctx.Done():
			var zero T
			return zero, -1, false
		case <-ps.notify:
		case <-time.After(pollInterval):
		}
	}
}

// Depths returns the current approximate length of every class, in
// priority order.
func (ps *PrioritySet[T]) Depths() [NumClasses]int {
	var d [NumClasses]int
	for i, c := range ps.classes {
		d[i] = c.Len()
	}
	return d
}

// Capacities returns the configured capacity of every class.
func (ps *PrioritySet[T]) Capacities() [NumClasses]int {
	var d [NumClasses]int
	for i, c := range ps.classes {
		d[i] = c.Cap()
	}
	return d
}

func clampClass(class int) int {
	if class < 0 {
		return 0
	}
	if class >= NumClasses {
		return NumClasses - 1
	}
	return class
}
