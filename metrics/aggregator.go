package metrics

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Aggregator is the Stats Aggregator of spec.md §4.7. Hot-path updates
// (RecordCompletion, RecordFailed, ...) only touch atomics and the
// WindowHistogram's own small critical section; Snapshot takes a brief
// exclusive lock solely to assemble the EWMA throughput figures, per
// the spec's "lock-free atomics on write path, brief lock only at
// snapshot" requirement.
type Aggregator struct {
	provider Provider

	execLatency *WindowHistogram

	completedTotal atomic.Int64
	failedTotal    atomic.Int64
	retriedTotal   atomic.Int64
	timedOutTotal  atomic.Int64
	cancelledTotal atomic.Int64

	now func() time.Time

	startedAt time.Time

	ewmaMu       sync.Mutex
	ewma1s       float64
	ewma1m       float64
	lastSampleAt time.Time
	lastCount    int64
}

// NewAggregator wraps provider, recording instrument values into it in
// addition to the aggregator's own bookkeeping (retry/fail/timeout/
// cancel counters and the latency window). now defaults to time.Now.
func NewAggregator(provider Provider, now func() time.Time) *Aggregator {
	if provider == nil {
		provider = NewNoopProvider()
	}
	if now == nil {
		now = time.Now
	}
	n := now()
	return &Aggregator{
		provider:     provider,
		execLatency:  NewWindowHistogram(4096),
		now:          now,
		startedAt:    n,
		lastSampleAt: n,
	}
}

// RecordCompletion records a successful task's execution latency.
func (a *Aggregator) RecordCompletion(latency time.Duration) {
	a.execLatency.Record(latency.Seconds())
	a.completedTotal.Add(1)
	a.provider.TaskOutcome(Completed).Add(1)
	a.provider.TaskDuration().Record(latency.Seconds())
}

// RecordFailed records a non-timeout task failure.
func (a *Aggregator) RecordFailed() {
	a.failedTotal.Add(1)
	a.provider.TaskOutcome(Failed).Add(1)
}

// RecordRetried records a scheduled retry.
func (a *Aggregator) RecordRetried() {
	a.retriedTotal.Add(1)
	a.provider.TaskOutcome(Retried).Add(1)
}

// RecordTimedOut records a task that exceeded its timeout.
func (a *Aggregator) RecordTimedOut() {
	a.timedOutTotal.Add(1)
	a.provider.TaskOutcome(TimedOut).Add(1)
}

// RecordCancelled records a cancelled task.
func (a *Aggregator) RecordCancelled() {
	a.cancelledTotal.Add(1)
	a.provider.TaskOutcome(Cancelled).Add(1)
}

// sampleThroughput lazily decays and updates the 1s/1m EWMA throughput
// estimates based on elapsed wall time and completedTotal's delta
// since the previous sample. Must be called with ewmaMu held.
func (a *Aggregator) sampleThroughput(now time.Time) (ewma1s, ewma1m float64) {
	dt := now.Sub(a.lastSampleAt).Seconds()
	if dt <= 0 {
		return a.ewma1s, a.ewma1m
	}

	count := a.completedTotal.Load()
	delta := count - a.lastCount
	instantRate := float64(delta) / dt

	alpha1s := 1 - math.Exp(-dt/1.0)
	alpha1m := 1 - math.Exp(-dt/60.0)

	a.ewma1s += alpha1s * (instantRate - a.ewma1s)
	a.ewma1m += alpha1m * (instantRate - a.ewma1m)

	a.lastSampleAt = now
	a.lastCount = count

	return a.ewma1s, a.ewma1m
}

// Snapshot assembles the Engine Stats Snapshot. queueDepths/capacities
// and worker counts are supplied by the caller (the Engine), which
// owns the queues and pool; the aggregator only owns counters and
// latency history.
func (a *Aggregator) Snapshot(depths QueueDepths, capacities [4]int, workersActive, workersIdle, workersTotal int) Snapshot {
	total := 0
	capSum := 0
	for i := range depths {
		total += depths[i]
		capSum += capacities[i]
		a.provider.QueueDepth(i).Set(int64(depths[i]))
	}

	pressure := 0.0
	if capSum > 0 {
		pressure = float64(total) / float64(capSum)
	}

	latency := a.execLatency.Snapshot()

	a.ewmaMu.Lock()
	e1s, e1m := a.sampleThroughput(a.now())
	a.ewmaMu.Unlock()

	return Snapshot{
		QueueDepths:         depths,
		TotalQueued:         total,
		QueuePressure:       pressure,
		WorkersActive:       workersActive,
		WorkersIdle:         workersIdle,
		WorkersTotal:        workersTotal,
		ThroughputEWMA1s:    e1s,
		ThroughputEWMA1m:    e1m,
		LatencyP50:          secondsToDuration(latency.P50),
		LatencyP95:          secondsToDuration(latency.P95),
		LatencyP99:          secondsToDuration(latency.P99),
		Failed:              a.failedTotal.Load(),
		Retried:             a.retriedTotal.Load(),
		TimedOut:            a.timedOutTotal.Load(),
		Cancelled:           a.cancelledTotal.Load(),
		Uptime:              a.now().Sub(a.startedAt),
		TotalTasksProcessed: a.completedTotal.Load() + a.failedTotal.Load() + a.cancelledTotal.Load(),
	}
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
