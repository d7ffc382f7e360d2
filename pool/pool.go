// Package pool manages the goroutines that drain an Engine's priority
// queues (spec.md §4.5 Worker Pool). It is adapted from the teacher's
// object-reuse Pool (pool.go/fixed.go/dynamic.go originally wrapped
// Get/Put around a worker *value*): here a "worker" is a running
// goroutine executing WorkerFunc in a loop, and Get/Put become
// spin-up/tear-down of that goroutine, since the spec's workers are
// long-lived executors, not objects checked in and out for reuse.
package pool

import "context"

// WorkerFunc is one worker's main loop body. It must return when ctx
// is cancelled. workerID is stable for the lifetime of that goroutine
// and is reported in TaskStats/Events so callers can attribute work.
type WorkerFunc func(ctx context.Context, workerID int)

// Pool starts and stops a set of goroutines, each running WorkerFunc.
type Pool interface {
	// Start launches the pool's initial workers. Safe to call once.
	Start()

	// Stop cancels every worker's context and waits for all of them to
	// return.
	Stop()

	// Active reports the current number of running workers.
	Active() int
}
