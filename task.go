package taskengine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// Task is the opaque executable unit the engine runs. It is generic
// over the result type R so that Submit can accept any of the three
// callable shapes documented on Engine.Submit while still returning a
// strongly typed Future[R].
type Task[R any] interface {
	// Run executes the callable. It must be safe to call exactly once.
	Run(ctx context.Context) (R, error)

	// SendResult reports whether a successful Run should populate the
	// Result Cell's result field. Error-only tasks (func(ctx) error)
	// answer false: a nil error still reaches a terminal COMPLETED
	// state, but there is no payload to store.
	SendResult() bool
}

// TaskFunc adapts a func(context.Context) (R, error) into a Task[R].
type TaskFunc[R any] func(context.Context) (R, error)

func (f TaskFunc[R]) Run(ctx context.Context) (R, error) { return f(ctx) }
func (f TaskFunc[R]) SendResult() bool                   { return true }

// TaskValue adapts a func(context.Context) R into a Task[R].
type TaskValue[R any] func(context.Context) R

func (f TaskValue[R]) Run(ctx context.Context) (R, error) { return f(ctx), nil }
func (f TaskValue[R]) SendResult() bool                   { return true }

// TaskError adapts a func(context.Context) error into a Task[R]. It
// never produces a result value, only a possible error.
type TaskError[R any] func(context.Context) error

func (f TaskError[R]) Run(ctx context.Context) (R, error) {
	var zero R
	return zero, f(ctx)
}
func (f TaskError[R]) SendResult() bool { return false }

// newTask converts one of the three accepted callable shapes into a
// Task[R]. It mirrors the teacher's task.go shape-matching switch.
func newTask[R any](fn interface{}) (Task[R], error) {
	switch typed := fn.(type) {
	case Task[R]:
		return typed, nil
	case func(context.Context) (R, error):
		return TaskFunc[R](typed), nil
	case func(context.Context) R:
		return TaskValue[R](typed), nil
	case func(context.Context) error:
		return TaskError[R](typed), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrInvalidTask, fn)
	}
}

// runGuarded executes t.Run under a recover guard, honoring ctx
// cancellation: it returns an error derived from ctx.Err() immediately
// if ctx is done before or when t.Run returns, and converts a recovered
// panic into a PanicError tagged with id.
func runGuarded[R any](ctx context.Context, id TaskID, t Task[R]) (R, error) {
	type outcome struct {
		result R
		err    error
	}

	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				var zero R
				done <- outcome{result: zero, err: &PanicError{TaskID: id, Value: p}}
			}
		}()

		result, err := t.Run(ctx)
		done <- outcome{result: result, err: err}
	}()

	select {
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	case o := <-done:
		return o.result, o.err
	}
}

// descriptor is the immutable record created at submission time. The
// only mutable fields (retryCount, delayUntil, status via cell) are
// touched solely while the descriptor is owned by the scheduler or a
// worker, never concurrently by more than one container.
type descriptor[R any] struct {
	id         TaskID
	priority   Priority
	task       Task[R]
	maxRetries int
	retryCount int
	timeout    time.Duration // 0 disables the timeout
	delayUntil time.Time     // zero value: not delayed
	createdAt  time.Time

	cell *ResultCell[R]

	// cancelRequested is the cooperative cancellation flag observed by
	// the worker between dispatch and execution, and polled by the
	// callable via Descriptor-bound context cancellation.
	cancelRequested atomic.Bool

	// cancelFunc cancels the context passed to a RUNNING task's
	// callable, set by the worker immediately before execution.
	cancelFunc atomic.Pointer[context.CancelFunc]
}

func (d *descriptor[R]) requestCancel() {
	d.cancelRequested.Store(true)
	if cf := d.cancelFunc.Load(); cf != nil {
		(*cf)()
	}
}

// Terminal implements registry.Entry by delegating to the descriptor's
// Result Cell.
func (d *descriptor[R]) Terminal() bool {
	return d.cell.Terminal()
}

// CompletedAt implements registry.Entry by delegating to the
// descriptor's Result Cell.
func (d *descriptor[R]) CompletedAt() time.Time {
	return d.cell.CompletedAt()
}
