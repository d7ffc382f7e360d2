// Package queue implements the bounded, priority-ordered FIFO queues
// of spec.md §4.3: one buffered channel per priority class, composed
// into a PrioritySet that a worker pool drains in strict
// CRITICAL→HIGH→NORMAL→LOW order.
package queue

// PushResult is the outcome of a non-blocking insertion.
type PushResult int

const (
	Accepted PushResult = iota
	RejectedFull
)

// Queue is a bounded FIFO of items of type T for one priority class.
type Queue[T any] interface {
	// TryPush attempts a non-blocking insertion.
	TryPush(v T) PushResult

	// TryPop attempts a non-blocking removal. ok is false if the queue
	// was empty.
	TryPop() (v T, ok bool)

	// Len returns a monotonic-read-friendly approximate size.
	Len() int

	// Cap returns the queue's configured capacity.
	Cap() int
}
