package taskengine

import (
	"context"
	"time"
)

// TaskStats is a per-task snapshot returned by Future.Stats.
type TaskStats struct {
	TaskID      TaskID
	Status      TaskStatus
	Priority    Priority
	RetryCount  int
	StartedAt   time.Time
	CompletedAt time.Time
	WorkerID    int
}

// submitFunc lets a Future submit a follow-up task on the engine that
// produced it, without Future depending on the concrete *Engine[R]
// type. It returns the new task's own Future.
type submitFunc[R any] func(priority Priority, t Task[R]) (*Future[R], error)

// Future wraps a TaskId and a shared reference to a Result Cell. It
// never owns a Descriptor. Waiting, polling, callbacks, and chained
// transforms all delegate to the underlying Result Cell.
type Future[R any] struct {
	taskID   TaskID
	priority Priority
	cell     *ResultCell[R]
	submit   submitFunc[R]
	now      func() time.Time
}

func newFuture[R any](id TaskID, priority Priority, cell *ResultCell[R], submit submitFunc[R], now func() time.Time) *Future[R] {
	return &Future[R]{taskID: id, priority: priority, cell: cell, submit: submit, now: now}
}

// ID returns the TaskId this Future refers to.
func (f *Future[R]) ID() TaskID { return f.taskID }

// IsReady performs a non-blocking check of terminal status.
func (f *Future[R]) IsReady() bool { return f.cell.isReady() }

// Wait blocks until the task reaches a terminal state or timeout
// elapses (timeout <= 0 waits indefinitely). It returns the terminal
// status, the result payload (zero value if not applicable), and the
// task's error (nil on success). A non-nil waitErr indicates the wait
// itself timed out without observing a terminal state.
func (f *Future[R]) Wait(timeout time.Duration) (status TaskStatus, result R, taskErr error, waitErr error) {
	return f.cell.wait(timeout)
}

// AddCallback registers cb to run exactly once on terminal transition,
// synchronously if the task is already terminal. The callback runs on
// the worker goroutine that performed the terminal transition; callers
// must not block inside it.
func (f *Future[R]) AddCallback(cb Callback[R]) { f.cell.addCallback(cb) }

// Stats returns a point-in-time record of this task's lifecycle.
func (f *Future[R]) Stats() TaskStats {
	status, _, _, started, completed, workerID, retries := f.cell.snapshot()
	return TaskStats{
		TaskID:      f.taskID,
		Status:      status,
		Priority:    f.priority,
		RetryCount:  retries,
		StartedAt:   started,
		CompletedAt: completed,
		WorkerID:    workerID,
	}
}

// Then returns a new Future that resolves to transform(result) once
// this Future's task completes successfully. If the upstream task
// fails or is cancelled, the downstream Future fails/cancels with the
// same outcome instead of running transform. The transform runs as a
// new NORMAL-priority task submitted on the same engine, implemented
// by registering a completion callback — the engine must tolerate this
// re-entrant Submit (spec.md §5).
func (f *Future[R]) Then(transform func(context.Context, R) (R, error)) *Future[R] {
	placeholder := newResultCell[R](0)
	downstream := &Future[R]{cell: placeholder, submit: f.submit, now: f.now}

	f.AddCallback(func(status TaskStatus, result R, err error) {
		if status != COMPLETED {
			forwardTerminal(placeholder, status, result, err, f.now)
			return
		}
		chained, subErr := f.submit(NORMAL, TaskFunc[R](func(ctx context.Context) (R, error) {
			return transform(ctx, result)
		}))
		if subErr != nil {
			placeholder.fail(subErr, f.now())
			return
		}
		downstream.taskID = chained.taskID
		downstream.priority = chained.priority
		chained.AddCallback(func(status TaskStatus, result R, err error) {
			forwardTerminal(placeholder, status, result, err, f.now)
		})
	})

	return downstream
}

// Catch returns a new Future that resolves to the original result on
// success, or to handler(err) on failure/cancellation.
func (f *Future[R]) Catch(handler func(context.Context, error) (R, error)) *Future[R] {
	placeholder := newResultCell[R](0)
	downstream := &Future[R]{cell: placeholder, submit: f.submit, now: f.now}

	f.AddCallback(func(status TaskStatus, result R, err error) {
		if status == COMPLETED {
			placeholder.complete(result, f.now())
			return
		}
		chained, subErr := f.submit(NORMAL, TaskFunc[R](func(ctx context.Context) (R, error) {
			return handler(ctx, err)
		}))
		if subErr != nil {
			placeholder.fail(subErr, f.now())
			return
		}
		downstream.taskID = chained.taskID
		downstream.priority = chained.priority
		chained.AddCallback(func(status TaskStatus, result R, err error) {
			forwardTerminal(placeholder, status, result, err, f.now)
		})
	})

	return downstream
}

// forwardTerminal replays a terminal outcome observed on one cell onto
// another, used to bridge a chained task's real Result Cell into a
// Then/Catch placeholder Future created before the chained task
// existed. now is the owning Future's injected clock.
func forwardTerminal[R any](cell *ResultCell[R], status TaskStatus, result R, err error, now func() time.Time) {
	ts := now()
	switch status {
	case COMPLETED:
		cell.complete(result, ts)
	case CANCELLED:
		cell.cancel(ts)
	default:
		cell.fail(err, ts)
	}
}
