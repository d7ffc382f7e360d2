package taskengine

import (
	"errors"
	"fmt"
)

// Namespace prefixes every sentinel error message, mirroring the
// teacher's convention of namespacing all exported errors.
const Namespace = "taskengine"

var (
	// ErrQueueFull is returned by Submit when the target priority queue
	// is at capacity and the task has no delay. Submit registers the
	// task before attempting the push and removes it again when the push
	// is rejected, so the rejected task cannot be looked up or cancelled
	// afterwards and no Future is returned; its TaskID is still consumed
	// (and never reused), and the Observer has already received
	// OnTaskSubmitted for it.
	ErrQueueFull = errors.New(Namespace + ": priority queue is full")

	// ErrEngineStopped is returned by Submit when the engine is not in
	// the RUNNING lifecycle state.
	ErrEngineStopped = errors.New(Namespace + ": engine is not running")

	// ErrIllegalState is returned by Start when called on an engine that
	// is stopping or already stopped.
	ErrIllegalState = errors.New(Namespace + ": illegal engine state transition")

	// ErrNotFound is returned by Lookup when no task with the given id
	// is known to the registry.
	ErrNotFound = errors.New(Namespace + ": task id not found")

	// ErrInvalidTask is returned by Submit when the supplied callable
	// does not match any of the accepted signatures.
	ErrInvalidTask = errors.New(Namespace + ": invalid task callable")

	// ErrWaitTimeout is returned by ResultCell.Wait / Future.Wait when
	// the supplied timeout elapses before the task reaches a terminal
	// state.
	ErrWaitTimeout = errors.New(Namespace + ": wait timed out before task completion")
)

// TimeoutError is returned as a task's terminal error when its
// execution time exceeds its configured timeout.
type TimeoutError struct {
	TaskID  TaskID
	Timeout string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: task %d exceeded timeout of %s", Namespace, e.TaskID, e.Timeout)
}

// CancelledError is returned as a task's terminal error when it is
// cancelled before or during execution.
type CancelledError struct {
	TaskID TaskID
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("%s: task %d was cancelled", Namespace, e.TaskID)
}

// PanicError wraps a recovered panic from a task's callable so that a
// panicking task fails its own Result Cell instead of taking down a
// worker goroutine or the engine.
type PanicError struct {
	TaskID  TaskID
	Value   interface{}
	Retried bool
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%s: task %d execution panicked: %v", Namespace, e.TaskID, e.Value)
}

// TaskMetaError exposes correlation metadata (task id, retry count) on a
// terminal task failure, adapted from the teacher's error_tagging.go.
type TaskMetaError interface {
	error
	Unwrap() error
	TaskID() TaskID
	RetryCount() int
}

type taggedError struct {
	err        error
	taskID     TaskID
	retryCount int
}

func newTaggedError(err error, id TaskID, retryCount int) error {
	if err == nil {
		return nil
	}
	return &taggedError{err: err, taskID: id, retryCount: retryCount}
}

func (e *taggedError) Error() string        { return e.err.Error() }
func (e *taggedError) Unwrap() error        { return e.err }
func (e *taggedError) TaskID() TaskID       { return e.taskID }
func (e *taggedError) RetryCount() int      { return e.retryCount }

// ExtractTaskID returns the task id carried by err, if any.
func ExtractTaskID(err error) (TaskID, bool) {
	var tme TaskMetaError
	if errors.As(err, &tme) {
		return tme.TaskID(), true
	}
	return 0, false
}
