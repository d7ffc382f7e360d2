package taskengine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, opts ...Option) *Engine[int] {
	t.Helper()
	e := New[int](opts...)
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() { e.Stop(false, time.Second) })
	return e
}

func TestSubmitAndWaitReturnsResult(t *testing.T) {
	e := newTestEngine(t, WithFixedWorkers(2))

	future, err := e.Submit(func(ctx context.Context) (int, error) { return 21 * 2, nil })
	require.NoError(t, err)

	status, result, taskErr, waitErr := future.Wait(time.Second)
	require.NoError(t, waitErr)
	require.NoError(t, taskErr)
	require.Equal(t, COMPLETED, status)
	require.Equal(t, 42, result)
}

func TestSubmitRejectsUnknownCallableShape(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Submit(123)
	require.ErrorIs(t, err, ErrInvalidTask)
}

func TestSubmitAfterStopFails(t *testing.T) {
	e := New[int](WithFixedWorkers(1))
	require.NoError(t, e.Start(context.Background()))
	require.NoError(t, e.Stop(true, time.Second))

	_, err := e.Submit(func(ctx context.Context) (int, error) { return 0, nil })
	require.ErrorIs(t, err, ErrEngineStopped)
}

func TestPriorityDispatchOrder(t *testing.T) {
	// A single worker, blocked on a gate, lets us enqueue several
	// priorities before any of them is dispatched, then observe the
	// strict CRITICAL > HIGH > NORMAL > LOW service order.
	gate := make(chan struct{})
	var mu sync.Mutex
	var order []string

	e := New[int](WithFixedWorkers(1), WithDefaultTimeout(0))
	require.NoError(t, e.Start(context.Background()))
	defer e.Stop(false, time.Second)

	record := func(label string) TaskFunc[int] {
		return func(ctx context.Context) (int, error) {
			<-gate
			mu.Lock()
			order = append(order, label)
			mu.Unlock()
			return 0, nil
		}
	}

	// First task occupies the sole worker and blocks on gate, giving us
	// time to enqueue the rest in a known order before any dispatch.
	first, err := e.Submit(record("first"), WithPriority(NORMAL))
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond) // let the worker pick up "first" and block

	_, err = e.Submit(record("low"), WithPriority(LOW))
	require.NoError(t, err)
	_, err = e.Submit(record("critical"), WithPriority(CRITICAL))
	require.NoError(t, err)
	_, err = e.Submit(record("high"), WithPriority(HIGH))
	require.NoError(t, err)
	_, err = e.Submit(record("normal"), WithPriority(NORMAL))
	require.NoError(t, err)

	close(gate)
	first.Wait(time.Second)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 5
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"first", "critical", "high", "normal", "low"}, order)
}

func TestRetryEventuallySucceeds(t *testing.T) {
	e := newTestEngine(t, WithFixedWorkers(2), WithRetryBackoff(time.Millisecond, 5*time.Millisecond))

	var attempts atomic.Int32
	future, err := e.Submit(func(ctx context.Context) (int, error) {
		n := attempts.Add(1)
		if n < 3 {
			return 0, errors.New("not yet")
		}
		return int(n), nil
	}, WithMaxRetries(5))
	require.NoError(t, err)

	status, result, _, waitErr := future.Wait(2 * time.Second)
	require.NoError(t, waitErr)
	require.Equal(t, COMPLETED, status)
	require.Equal(t, 3, result)
}

func TestRetryExhaustionFails(t *testing.T) {
	e := newTestEngine(t, WithFixedWorkers(1), WithRetryBackoff(time.Millisecond, 2*time.Millisecond))

	future, err := e.Submit(func(ctx context.Context) (int, error) {
		return 0, errors.New("always fails")
	}, WithMaxRetries(2))
	require.NoError(t, err)

	status, _, taskErr, waitErr := future.Wait(2 * time.Second)
	require.NoError(t, waitErr)
	require.Equal(t, FAILED, status)
	require.Error(t, taskErr)
}

func TestTimeoutFailsTaskByDefault(t *testing.T) {
	e := newTestEngine(t, WithFixedWorkers(1))

	future, err := e.Submit(func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}, WithTimeout(10*time.Millisecond))
	require.NoError(t, err)

	status, _, taskErr, waitErr := future.Wait(time.Second)
	require.NoError(t, waitErr)
	require.Equal(t, FAILED, status)

	var timeoutErr *TimeoutError
	require.ErrorAs(t, taskErr, &timeoutErr)
}

func TestCancelPendingTask(t *testing.T) {
	e := New[int](WithFixedWorkers(1))
	require.NoError(t, e.Start(context.Background()))
	defer e.Stop(false, time.Second)

	gate := make(chan struct{})
	blocker, err := e.Submit(func(ctx context.Context) (int, error) {
		<-gate
		return 0, nil
	})
	require.NoError(t, err)

	future, err := e.Submit(func(ctx context.Context) (int, error) { return 1, nil })
	require.NoError(t, err)

	require.True(t, e.Cancel(future.ID()))

	close(gate)
	blocker.Wait(time.Second)

	status, _, _, waitErr := future.Wait(time.Second)
	require.NoError(t, waitErr)
	require.Equal(t, CANCELLED, status)
}

func TestGracefulShutdownDrainsQueuedWork(t *testing.T) {
	e := New[int](WithFixedWorkers(8))
	require.NoError(t, e.Start(context.Background()))

	const n = 50
	futures := make([]*Future[int], n)
	for i := 0; i < n; i++ {
		f, err := e.Submit(func(ctx context.Context) (int, error) {
			time.Sleep(5 * time.Millisecond)
			return 1, nil
		})
		require.NoError(t, err)
		futures[i] = f
	}

	require.NoError(t, e.Stop(true, 5*time.Second))

	for _, f := range futures {
		status, _, _, waitErr := f.Wait(time.Second)
		require.NoError(t, waitErr)
		require.Equal(t, COMPLETED, status)
	}
}

func TestThenChainsOnSuccess(t *testing.T) {
	e := newTestEngine(t, WithFixedWorkers(2))

	future, err := e.Submit(func(ctx context.Context) (int, error) { return 1, nil })
	require.NoError(t, err)

	chained := future.Then(func(ctx context.Context, v int) (int, error) {
		return v + 41, nil
	})

	status, result, _, waitErr := chained.Wait(time.Second)
	require.NoError(t, waitErr)
	require.Equal(t, COMPLETED, status)
	require.Equal(t, 42, result)
}

func TestCatchRecoversFromFailure(t *testing.T) {
	e := newTestEngine(t, WithFixedWorkers(2))

	future, err := e.Submit(func(ctx context.Context) (int, error) {
		return 0, errors.New("boom")
	})
	require.NoError(t, err)

	recovered := future.Catch(func(ctx context.Context, err error) (int, error) {
		return 7, nil
	})

	status, result, _, waitErr := recovered.Wait(time.Second)
	require.NoError(t, waitErr)
	require.Equal(t, COMPLETED, status)
	require.Equal(t, 7, result)
}

func TestStatsReflectsCompletedWork(t *testing.T) {
	e := newTestEngine(t, WithFixedWorkers(4))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		f, err := e.Submit(func(ctx context.Context) (int, error) { return 1, nil })
		require.NoError(t, err)
		go func() {
			defer wg.Done()
			f.Wait(time.Second)
		}()
	}
	wg.Wait()

	snap := e.Stats()
	require.GreaterOrEqual(t, snap.TotalTasksProcessed, int64(10))
}

// TestAutoScaleGrowsAndShrinksWorkerPool sustains queue pressure above
// the scale-up watermark long enough for autoScaleLoop to see two
// consecutive 1-second samples past it, then lets the queue drain and checks the
// pool shrinks back down. It tolerates the loop's real ticker, so it
// runs for a few seconds of wall-clock time.
func TestAutoScaleGrowsAndShrinksWorkerPool(t *testing.T) {
	gate := make(chan struct{})

	e := New[int](
		WithAutoScale(1, 4),
		WithQueueCapacityTotal(8), // 2 slots per priority queue
		WithDefaultTimeout(0),
	)
	require.NoError(t, e.Start(context.Background()))
	defer e.Stop(false, time.Second)

	blocked := func(ctx context.Context) (int, error) {
		<-gate
		return 0, nil
	}

	// Fill every priority queue to capacity (or as close as the single
	// initial worker popping one task along the way allows), keeping
	// queue pressure above the 0.75 scale-up watermark.
	for _, p := range Priorities {
		for i := 0; i < 2; i++ {
			_, err := e.Submit(blocked, WithPriority(p))
			require.NoError(t, err)
		}
	}

	require.Eventually(t, func() bool {
		return e.Stats().WorkersTotal > 1
	}, 3*time.Second, 10*time.Millisecond, "expected the pool to scale up under sustained queue pressure")

	close(gate)

	require.Eventually(t, func() bool {
		return e.Stats().WorkersTotal == 1
	}, 3*time.Second, 10*time.Millisecond, "expected the pool to scale back down to min once queue pressure drops")
}
