package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSchedulerDispatchesAtEligibleTime(t *testing.T) {
	var mu sync.Mutex
	var got []int

	s := New[int](nil, 0, func(item int) bool {
		mu.Lock()
		got = append(got, item)
		mu.Unlock()
		return true
	}, nil)
	s.Start()
	defer s.Stop()

	now := time.Now()
	s.Insert(1, now.Add(20*time.Millisecond))
	s.Insert(2, now.Add(5*time.Millisecond))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{2, 1}, got)
}

func TestSchedulerRetriesOnFullDestination(t *testing.T) {
	var attempts int
	var mu sync.Mutex

	s := New[string](nil, 0, func(item string) bool {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		return attempts >= 3
	}, func(item string) (time.Duration, bool) {
		return time.Millisecond, true
	})
	s.Start()
	defer s.Stop()

	s.Insert("x", time.Now())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return attempts >= 3
	}, time.Second, time.Millisecond)
}

func TestSchedulerStopIsIdempotent(t *testing.T) {
	s := New[int](nil, 0, func(int) bool { return true }, nil)
	s.Start()
	s.Stop()
	s.Stop()
}

// TestSchedulerTickMaxCapsSleepBetweenRecomputations verifies that a
// far-future item still causes the loop to wake at least every
// tickMax, rather than sleeping in one long stretch until eligibility.
func TestSchedulerTickMaxCapsSleepBetweenRecomputations(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }

	s := New[int](clock, 10*time.Millisecond, func(item int) bool { return true }, nil)
	s.Start()
	defer s.Stop()

	s.Insert(1, now.Add(time.Hour)) // far enough that an uncapped sleep would never recompute in this test

	require.Eventually(t, func() bool {
		return s.TickCount() >= 1
	}, 200*time.Millisecond, time.Millisecond, "expected the scheduler to wake at least once within tickMax even though the item is not yet eligible")
}
