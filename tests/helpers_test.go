package tests

import (
	"context"
	"fmt"
	"time"
)

// newFlakyTask returns a callable that fails on its first failCount
// invocations and succeeds thereafter, simulating a transient upstream
// error that a retry policy should recover from.
func newFlakyTask(failCount int) (func(ctx context.Context) (string, error), func() int) {
	attempts := 0
	task := func(ctx context.Context) (string, error) {
		attempts++
		if attempts <= failCount {
			return "", fmt.Errorf("transient failure on attempt %d", attempts)
		}
		return fmt.Sprintf("succeeded on attempt %d", attempts), nil
	}
	return task, func() int { return attempts }
}

// newSleepTask returns a callable that sleeps for d before returning
// label, simulating bounded-latency work.
func newSleepTask(label string, d time.Duration) func(ctx context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		select {
		case <-time.After(d):
			return label, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// newBlockingTask returns a callable that blocks until gate is closed.
func newBlockingTask(label string, gate <-chan struct{}) func(ctx context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		select {
		case <-gate:
			return label, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}
