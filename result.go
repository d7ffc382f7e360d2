package taskengine

import (
	"sync"
	"time"
)

// Callback is invoked exactly once when a Result Cell reaches a
// terminal state. It receives the same (status, result, err) triple a
// Wait call would observe.
type Callback[R any] func(status TaskStatus, result R, err error)

// ResultCell is the mutable, thread-safe terminal-state container
// shared between the worker that completes a task and every Future
// handle referring to it. All mutating operations are serialized by
// mu; once status is terminal, no field is ever mutated again
// (spec.md §4.2 invariant).
type ResultCell[R any] struct {
	mu sync.Mutex

	taskID TaskID

	status TaskStatus
	result R
	err    error

	startedAt   time.Time
	completedAt time.Time
	workerID    int
	retryCount  int

	done chan struct{} // closed exactly once, on terminal transition

	callbacks []Callback[R]
}

func newResultCell[R any](id TaskID) *ResultCell[R] {
	return &ResultCell[R]{
		taskID: id,
		status: PENDING,
		done:   make(chan struct{}),
	}
}

// transitionToRunning moves PENDING or RETRYING to RUNNING and records
// startedAt. It fails if the cell is already terminal (e.g. raced with
// a cancellation).
func (c *ResultCell[R]) transitionToRunning(workerID int, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status.Terminal() {
		return false
	}
	c.status = RUNNING
	c.startedAt = now
	c.workerID = workerID
	return true
}

// complete performs the RUNNING→COMPLETED transition. It is a no-op if
// the cell is already terminal.
func (c *ResultCell[R]) complete(result R, now time.Time) {
	c.finish(COMPLETED, result, nil, now)
}

// fail performs the RUNNING→FAILED transition. It is a no-op if the
// cell is already terminal.
func (c *ResultCell[R]) fail(err error, now time.Time) {
	var zero R
	c.finish(FAILED, zero, err, now)
}

// cancel performs PENDING/RETRYING→CANCELLED. If the cell is RUNNING,
// the caller is responsible for separately requesting cooperative
// cancellation via descriptor.requestCancel; cancel itself leaves a
// RUNNING cell unchanged, and the worker calls cancelRunning once it
// observes that request. Returns true if this call performed the
// transition.
func (c *ResultCell[R]) cancel(now time.Time) bool {
	c.mu.Lock()
	if c.status.Terminal() {
		c.mu.Unlock()
		return false
	}
	if c.status == RUNNING {
		// Cooperative: the worker must observe the cancellation flag and
		// call finish(CANCELLED, ...) itself. We don't transition here.
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()

	var zero R
	return c.finish(CANCELLED, zero, &CancelledError{TaskID: c.taskID}, now)
}

// cancelRunning is called by a worker that observed cooperative
// cancellation on a RUNNING task. Unlike cancel, it is allowed to
// transition out of RUNNING.
func (c *ResultCell[R]) cancelRunning(now time.Time) bool {
	var zero R
	return c.finish(CANCELLED, zero, &CancelledError{TaskID: c.taskID}, now)
}

// finish executes the one-shot terminal transition shared by complete,
// fail, and cancel(Running). It returns false if the cell was already
// terminal. Callbacks are invoked after mu is released so that a
// callback may re-enter the engine (e.g. Future.Then calling Submit).
func (c *ResultCell[R]) finish(status TaskStatus, result R, err error, now time.Time) bool {
	c.mu.Lock()
	if c.status.Terminal() {
		c.mu.Unlock()
		return false
	}
	c.status = status
	c.result = result
	c.err = err
	c.completedAt = now
	cbs := make([]Callback[R], len(c.callbacks))
	copy(cbs, c.callbacks)
	close(c.done)
	c.mu.Unlock()

	for _, cb := range cbs {
		cb(status, result, err)
	}
	return true
}

// scheduleRetry performs RUNNING→RETRYING and increments retryCount. It
// fails (returns false) if retryCount is already at maxRetries or the
// cell is terminal.
func (c *ResultCell[R]) scheduleRetry(maxRetries int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status.Terminal() {
		return false
	}
	if c.retryCount >= maxRetries {
		return false
	}
	c.retryCount++
	c.status = RETRYING
	return true
}

// isReady is a non-blocking check of terminal status.
func (c *ResultCell[R]) isReady() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Terminal reports whether the cell has reached a final state. It
// implements registry.Entry so a Registry can bound retention by
// terminal count.
func (c *ResultCell[R]) Terminal() bool {
	return c.isReady()
}

// CompletedAt returns the time the cell reached its terminal state, the
// zero value if it hasn't yet. It implements registry.Entry so eviction
// can order terminal entries by completion time rather than insertion
// order.
func (c *ResultCell[R]) CompletedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completedAt
}

// snapshot returns a consistent read of the cell's observable fields.
func (c *ResultCell[R]) snapshot() (status TaskStatus, result R, err error, started, completed time.Time, workerID, retryCount int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status, c.result, c.err, c.startedAt, c.completedAt, c.workerID, c.retryCount
}

// wait blocks until the cell reaches a terminal state or timeout
// elapses (timeout <= 0 means wait indefinitely). It never mutates the
// cell.
func (c *ResultCell[R]) wait(timeout time.Duration) (TaskStatus, R, error, error) {
	if timeout <= 0 {
		<-c.done
		status, result, err, _, _, _, _ := c.snapshot()
		return status, result, err, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-c.done:
		status, result, err, _, _, _, _ := c.snapshot()
		return status, result, err, nil
	case <-timer.C:
		var zero R
		return 0, zero, nil, ErrWaitTimeout
	}
}

// addCallback invokes cb synchronously if the cell is already terminal,
// otherwise appends it to be invoked exactly once on terminal
// transition, in registration order.
func (c *ResultCell[R]) addCallback(cb Callback[R]) {
	c.mu.Lock()
	if c.status.Terminal() {
		status, result, err := c.status, c.result, c.err
		c.mu.Unlock()
		cb(status, result, err)
		return
	}
	c.callbacks = append(c.callbacks, cb)
	c.mu.Unlock()
}
