// Package scheduler implements the Delay/Retry Scheduler of spec.md
// §4.4: a single min-heap of pending items ordered by eligible time,
// woken by a dynamically reset timer rather than the teacher's fixed
// poll-interval ticker (see worker_pool.go's pollerLoop in the
// ChuLiYu-raft-recovery example this is grounded on), since delay/retry
// eligibility times are arbitrary and a fixed tick would either waste
// CPU or add needless latency.
package scheduler

import (
	"container/heap"
	"sync"
	"sync/atomic"
	"time"
)

// EnqueueFunc attempts to hand item to its destination queue,
// returning false if the destination is at capacity.
type EnqueueFunc[T any] func(item T) bool

// RejectFunc computes how long to wait before retrying an item whose
// EnqueueFunc returned false (destination queue full). It also reports
// whether the item should be requeued at all (false abandons it, e.g.
// once the caller observes sustained backpressure for too long). Any
// per-item attempt bookkeeping needed to compute wait lives in the
// caller's own item type, not in the Scheduler.
type RejectFunc[T any] func(item T) (wait time.Duration, retry bool)

// Scheduler holds items that become eligible for dispatch at a future
// time (initial delay, or retry-after-backoff) and hands each one to
// EnqueueFunc as soon as its eligible time arrives.
type Scheduler[T any] struct {
	now     func() time.Time
	tickMax time.Duration

	// tickCount counts timer firings in run(), whether or not they found
	// anything eligible to dispatch. It exists so tests can observe that
	// tickMax is actually bounding the sleep, without depending on
	// dispatch side effects.
	tickCount atomic.Int64

	mu   sync.Mutex
	h    entryHeap[T]
	seq  uint64
	stop chan struct{}
	wake chan struct{}

	enqueue EnqueueFunc[T]
	onFull  RejectFunc[T]

	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// New returns a Scheduler. now defaults to time.Now. tickMax
// upper-bounds how long the loop ever sleeps in one stretch before
// recomputing against the heap (<= 0 means no cap, sleep exactly until
// the next eligible time): a bound guards against the timer drifting
// far from reality across a long wait, e.g. if the caller's now clock
// is a test double that can jump. enqueue is called (outside the
// Scheduler's own lock) once an item's eligible time arrives; onFull
// decides what happens when enqueue reports the destination is full.
func New[T any](now func() time.Time, tickMax time.Duration, enqueue EnqueueFunc[T], onFull RejectFunc[T]) *Scheduler[T] {
	if now == nil {
		now = time.Now
	}
	return &Scheduler[T]{
		now:     now,
		tickMax: tickMax,
		stop:    make(chan struct{}),
		wake:    make(chan struct{}, 1),
		enqueue: enqueue,
		onFull:  onFull,
	}
}

// Start launches the scheduler's single background loop. Safe to call
// once; subsequent calls are no-ops.
func (s *Scheduler[T]) Start() {
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go s.run()
	})
}

// Stop signals the loop to exit and waits for it to do so. Safe to
// call multiple times.
func (s *Scheduler[T]) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	s.wg.Wait()
}

// Insert schedules item to become eligible at eligibleAt.
func (s *Scheduler[T]) Insert(item T, eligibleAt time.Time) {
	s.mu.Lock()
	s.seq++
	heap.Push(&s.h, &entry[T]{eligibleAt: eligibleAt, seq: s.seq, item: item})
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Len reports the number of pending (not-yet-eligible or not-yet-
// dispatched) items.
func (s *Scheduler[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.h)
}

// TickCount reports how many times the internal timer has fired since
// the scheduler started, including firings that found nothing eligible
// to dispatch. Exposed for tests exercising tickMax.
func (s *Scheduler[T]) TickCount() int64 {
	return s.tickCount.Load()
}

func (s *Scheduler[T]) run() {
	defer s.wg.Done()

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	timerActive := true

	for {
		s.mu.Lock()
		var d time.Duration
		haveNext := len(s.h) > 0
		if haveNext {
			d = s.h[0].eligibleAt.Sub(s.now())
		}
		s.mu.Unlock()

		if timerActive && !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}

		if !haveNext {
			timerActive = false
			select {
			case <-s.stop:
				return
			case <-s.wake:
				continue
			}
		}

		if d <= 0 {
			s.dispatchDue()
			continue
		}

		if s.tickMax > 0 && d > s.tickMax {
			d = s.tickMax
		}

		timer.Reset(d)
		timerActive = true
		select {
		case <-s.stop:
			return
		case <-s.wake:
			continue
		case <-timer.C:
			timerActive = false
			s.tickCount.Add(1)
			s.dispatchDue()
		}
	}
}

// dispatchDue pops and dispatches every entry already eligible.
func (s *Scheduler[T]) dispatchDue() {
	for {
		s.mu.Lock()
		if len(s.h) == 0 || s.h[0].eligibleAt.After(s.now()) {
			s.mu.Unlock()
			return
		}
		e := heap.Pop(&s.h).(*entry[T])
		s.mu.Unlock()

		if !s.enqueue(e.item) {
			s.handleFull(e.item)
		}
	}
}

func (s *Scheduler[T]) handleFull(item T) {
	if s.onFull == nil {
		return
	}
	wait, retry := s.onFull(item)
	if !retry {
		return
	}
	s.Insert(item, s.now().Add(wait))
}
