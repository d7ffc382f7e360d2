package taskengine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/relaywork/engine/metrics"
	"github.com/relaywork/engine/pool"
	"github.com/relaywork/engine/queue"
	"github.com/relaywork/engine/registry"
	"github.com/relaywork/engine/scheduler"
)

// engineState is the Engine's own lifecycle state, distinct from any
// single task's TaskStatus.
type engineState int32

const (
	stateCreated engineState = iota
	stateRunning
	stateStopping
	stateStopped
)

// SubmitOption configures one call to Engine.Submit.
type SubmitOption func(*submitConfig)

type submitConfig struct {
	priority   Priority
	delay      time.Duration
	maxRetries int
	timeout    time.Duration
	timeoutSet bool
}

// WithPriority sets the task's dispatch priority (default NORMAL).
func WithPriority(p Priority) SubmitOption {
	return func(c *submitConfig) { c.priority = p }
}

// WithDelay defers a task's eligibility by d (default: immediately
// eligible).
func WithDelay(d time.Duration) SubmitOption {
	return func(c *submitConfig) { c.delay = d }
}

// WithMaxRetries sets the maximum number of retries after failure
// (default 0: no retries).
func WithMaxRetries(n int) SubmitOption {
	return func(c *submitConfig) { c.maxRetries = n }
}

// WithTimeout overrides the engine's DefaultTimeout for this task. A
// zero duration disables the timeout for this task specifically.
func WithTimeout(d time.Duration) SubmitOption {
	return func(c *submitConfig) { c.timeout = d; c.timeoutSet = true }
}

// Engine is the Background Task Engine facade: it owns the priority
// queues, the delay/retry scheduler, the worker pool, the registry, and
// the stats aggregator, and wires them together per spec.md §2's
// control/data flow. Construct one with New[R].
type Engine[R any] struct {
	cfg   Config
	clock Clock

	queues     *queue.PrioritySet[*descriptor[R]]
	sched      *scheduler.Scheduler[*descriptor[R]]
	registry   *registry.Registry[TaskID, *descriptor[R]]
	aggregator *metrics.Aggregator
	observer   Observer

	workerPool pool.Pool

	nextID   atomic.Uint64
	inFlight atomic.Int64

	state     atomic.Int32
	startOnce sync.Once
	stopOnce  sync.Once

	rootCtx    context.Context
	rootCancel context.CancelFunc

	scaleStop chan struct{}
	scaleWG   sync.WaitGroup
}

// New constructs an Engine for tasks producing results of type R. The
// engine is not started unless WithStartImmediately was supplied.
func New[R any](opts ...Option) *Engine[R] {
	cfg := buildConfig(opts)

	e := &Engine[R]{
		cfg:      cfg,
		clock:    cfg.Clock,
		observer: cfg.Observer,
	}
	e.queues = queue.NewPrioritySet[*descriptor[R]](cfg.queueCapacities())
	e.registry = registry.New[TaskID, *descriptor[R]](int(cfg.RetentionTerminalMax))
	e.aggregator = metrics.NewAggregator(cfg.MetricsProvider, e.clock.Now)
	e.state.Store(int32(stateCreated))

	e.sched = scheduler.New[*descriptor[R]](e.clock.Now, cfg.SchedulerTickMax, e.enqueueDescriptor, e.onQueueFull)

	if cfg.StartImmediately {
		e.Start(context.Background())
	}
	return e
}

// Start transitions the engine to RUNNING, launching the worker pool,
// the scheduler, and (if auto-scaling) the pressure-sampling loop. Safe
// to call once; a second call returns ErrIllegalState.
func (e *Engine[R]) Start(ctx context.Context) error {
	if !e.state.CompareAndSwap(int32(stateCreated), int32(stateRunning)) {
		return ErrIllegalState
	}

	var started bool
	e.startOnce.Do(func() {
		started = true
		e.rootCtx, e.rootCancel = context.WithCancel(ctx)
		e.sched.Start()

		if e.cfg.AutoScale {
			d := pool.NewDynamic(e.rootCtx, int(e.cfg.MinWorkers), int(e.cfg.MaxWorkers), e.workerLoop)
			e.workerPool = d
			e.scaleStop = make(chan struct{})
			e.scaleWG.Add(1)
			go e.autoScaleLoop(d)
		} else {
			e.workerPool = pool.NewFixed(e.rootCtx, int(e.cfg.Workers), e.workerLoop)
		}
		e.workerPool.Start()
		e.observer.OnEngineStarted()
	})
	if !started {
		return ErrIllegalState
	}
	return nil
}

// Submit enqueues callable for execution. callable must be a Task[R],
// func(context.Context) (R, error), func(context.Context) R, or
// func(context.Context) error. It returns ErrInvalidTask if callable
// matches none of those shapes, ErrEngineStopped if the engine is not
// RUNNING, or ErrQueueFull if the task has no delay and its priority
// queue is at capacity.
func (e *Engine[R]) Submit(callable interface{}, opts ...SubmitOption) (*Future[R], error) {
	task, err := newTask[R](callable)
	if err != nil {
		return nil, err
	}
	return e.submitTask(task, opts...)
}

func (e *Engine[R]) submitTask(task Task[R], opts ...SubmitOption) (*Future[R], error) {
	if engineState(e.state.Load()) != stateRunning {
		return nil, ErrEngineStopped
	}

	sc := submitConfig{priority: NORMAL, timeout: e.cfg.DefaultTimeout}
	for _, o := range opts {
		o(&sc)
	}
	if !sc.priority.Valid() {
		sc.priority = NORMAL
	}
	timeout := e.cfg.DefaultTimeout
	if sc.timeoutSet {
		timeout = sc.timeout
	}

	id := TaskID(e.nextID.Add(1))
	cell := newResultCell[R](id)
	d := &descriptor[R]{
		id:         id,
		priority:   sc.priority,
		task:       task,
		maxRetries: sc.maxRetries,
		timeout:    timeout,
		createdAt:  e.clock.Now(),
		cell:       cell,
	}

	e.registry.Insert(id, d)

	ev := Event{TaskID: id, Timestamp: d.createdAt}
	e.observer.OnTaskSubmitted(ev, sc.priority)

	if sc.delay > 0 {
		d.delayUntil = e.clock.Now().Add(sc.delay)
		e.sched.Insert(d, d.delayUntil)
	} else if !e.enqueueDescriptor(d) {
		e.registry.Remove(id)
		return nil, ErrQueueFull
	}

	future := newFuture[R](id, sc.priority, cell, e.submitFromCallback, e.clock.Now)
	return future, nil
}

// submitFromCallback is the submitFunc bound into every Future created
// by this engine, letting Future.Then/Catch re-enter Submit from a
// completion callback (spec.md §5).
func (e *Engine[R]) submitFromCallback(priority Priority, t Task[R]) (*Future[R], error) {
	return e.submitTask(t, WithPriority(priority))
}

// enqueueDescriptor performs the non-blocking push onto d's priority
// queue. It is also the Scheduler's EnqueueFunc.
func (e *Engine[R]) enqueueDescriptor(d *descriptor[R]) bool {
	return e.queues.TryPush(int(d.priority), d) == queue.Accepted
}

// onQueueFull is the Scheduler's RejectFunc: a descriptor whose queue
// was full when its eligible time arrived is retried with a short fixed
// backoff rather than abandoned, since delayed/retried work must
// eventually land (spec.md §4.4 backpressure handling).
func (e *Engine[R]) onQueueFull(d *descriptor[R]) (time.Duration, bool) {
	return 50 * time.Millisecond, true
}

// Lookup returns a Future for an already-submitted task id.
func (e *Engine[R]) Lookup(id TaskID) (*Future[R], error) {
	d, ok := e.registry.Lookup(id)
	if !ok {
		return nil, ErrNotFound
	}
	return newFuture[R](id, d.priority, d.cell, e.submitFromCallback, e.clock.Now), nil
}

// Cancel requests cancellation of task id. A PENDING or RETRYING task
// is cancelled immediately; a RUNNING task is cooperatively cancelled
// the next time its callable observes ctx.Done(). It returns true if
// this call cancelled the task or signalled cancellation to it, and
// false if the task is unknown or already terminal (including already
// CANCELLED, so repeated calls after an effective one return false).
func (e *Engine[R]) Cancel(id TaskID) bool {
	d, ok := e.registry.Lookup(id)
	if !ok {
		return false
	}

	status, _, _, _, _, _, _ := d.cell.snapshot()
	if status.Terminal() {
		return false
	}

	now := e.clock.Now()
	if status == RUNNING {
		d.requestCancel()
		e.aggregator.RecordCancelled()
		e.observer.OnTaskCancelled(Event{TaskID: id, Timestamp: now})
		return true
	}

	if d.cell.cancel(now) {
		e.aggregator.RecordCancelled()
		e.observer.OnTaskCancelled(Event{TaskID: id, Timestamp: now})
		return true
	}
	return false
}

// Stats returns a point-in-time snapshot of queue depths, worker
// counts, throughput, latency percentiles, and outcome counters.
func (e *Engine[R]) Stats() metrics.Snapshot {
	depths := e.queues.Depths()
	caps := e.queues.Capacities()

	total := 0
	if e.workerPool != nil {
		total = e.workerPool.Active()
	}
	active := int(e.inFlight.Load())
	idle := total - active
	if idle < 0 {
		idle = 0
	}

	return e.aggregator.Snapshot(metrics.QueueDepths(depths), caps, active, idle, total)
}

// Stop transitions the engine to STOPPING and then STOPPED. No further
// Submit calls are accepted once this returns (in fact, once Stop is
// called at all, since the state flips before draining starts). If
// waitForCompletion is true, queued tasks keep draining and running
// tasks are allowed to finish naturally for up to timeout (<= 0 means
// unbounded); anything still outstanding when the deadline passes is
// cancelled (spec.md §5's shutdown semantics). If waitForCompletion is
// false, every non-running task is cancelled immediately and every
// running task receives a cancellation signal right away. Safe to call
// multiple times; later calls return nil immediately.
func (e *Engine[R]) Stop(waitForCompletion bool, timeout time.Duration) error {
	if !e.state.CompareAndSwap(int32(stateRunning), int32(stateStopping)) {
		if engineState(e.state.Load()) == stateStopped {
			return nil
		}
		return ErrIllegalState
	}

	e.observer.OnEngineStopping()

	e.stopOnce.Do(func() {
		if e.scaleStop != nil {
			close(e.scaleStop)
		}

		if waitForCompletion {
			if !e.waitForDrain(timeout) {
				e.forceCancelRemaining()
			}
		} else {
			e.forceCancelRemaining()
		}

		e.sched.Stop()
		if e.workerPool != nil {
			e.workerPool.Stop()
		}
		e.scaleWG.Wait()

		if e.rootCancel != nil {
			e.rootCancel()
		}

		e.state.Store(int32(stateStopped))
		e.observer.OnEngineStopped()
	})
	return nil
}

// waitForDrain polls until every queue, the scheduler, and in-flight
// execution are empty, or timeout elapses (<= 0 means unbounded). It
// returns whether drain completed before the deadline.
func (e *Engine[R]) waitForDrain(timeout time.Duration) bool {
	var deadline time.Time
	if timeout > 0 {
		deadline = e.clock.Now().Add(timeout)
	}

	const pollInterval = 5 * time.Millisecond
	for {
		if e.isDrained() {
			return true
		}
		if !deadline.IsZero() && !e.clock.Now().Before(deadline) {
			return false
		}
		time.Sleep(pollInterval)
	}
}

func (e *Engine[R]) isDrained() bool {
	if e.inFlight.Load() != 0 {
		return false
	}
	if e.sched.Len() != 0 {
		return false
	}
	for _, depth := range e.queues.Depths() {
		if depth != 0 {
			return false
		}
	}
	return true
}

// forceCancelRemaining walks the registry and, for every task not yet
// terminal, either cancels it directly (PENDING/RETRYING) or signals
// cooperative cancellation (RUNNING).
func (e *Engine[R]) forceCancelRemaining() {
	now := e.clock.Now()
	e.registry.Range(func(id TaskID, d *descriptor[R]) bool {
		status, _, _, _, _, _, _ := d.cell.snapshot()
		switch status {
		case RUNNING:
			d.requestCancel()
			e.aggregator.RecordCancelled()
			e.observer.OnTaskCancelled(Event{TaskID: id, Timestamp: now})
		case PENDING, RETRYING:
			if d.cell.cancel(now) {
				e.aggregator.RecordCancelled()
				e.observer.OnTaskCancelled(Event{TaskID: id, Timestamp: now})
			}
		}
		return true
	})
}

// autoScaleLoop samples queue pressure once per second and grows or
// shrinks the Dynamic pool per spec.md §9: scale up after pressure has
// stayed above 0.75 for a full sampling window (two consecutive samples,
// one second apart), scale down after it has stayed below 0.25 the same
// way, always honoring [min_workers, max_workers].
func (e *Engine[R]) autoScaleLoop(d *pool.Dynamic) {
	defer e.scaleWG.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	const highWatermark = 0.75
	const lowWatermark = 0.25
	var highStreak, lowStreak int

	for {
		select {
		case <-e.scaleStop:
			return
		case <-ticker.C:
			snap := e.Stats()
			switch {
			case snap.QueuePressure > highWatermark:
				highStreak++
				lowStreak = 0
			case snap.QueuePressure < lowWatermark:
				lowStreak++
				highStreak = 0
			default:
				highStreak, lowStreak = 0, 0
			}

			if highStreak >= 2 {
				d.ScaleUp()
				highStreak = 0
			} else if lowStreak >= 2 {
				d.ScaleDown()
				lowStreak = 0
			}
		}
	}
}

// workerLoop is the body run by every worker goroutine in the pool: it
// repeatedly drains the highest-priority available descriptor, executes
// it under its timeout, and reports the outcome, per spec.md §4.5. ctx
// only governs the pop loop itself (it is cancelled once the pool is
// told to stop accepting new work); an in-flight execute call keeps
// running against e.rootCtx so that stopping the pop loop during a
// graceful shutdown's drain window never aborts a task already underway.
func (e *Engine[R]) workerLoop(ctx context.Context, workerID int) {
	for {
		d, _, ok := e.queues.PopBlocking(ctx)
		if !ok {
			return
		}
		e.execute(workerID, d)
	}
}

func (e *Engine[R]) execute(workerID int, d *descriptor[R]) {
	e.inFlight.Add(1)
	defer e.inFlight.Add(-1)

	now := e.clock.Now()
	if d.cancelRequested.Load() {
		if d.cell.cancel(now) {
			e.aggregator.RecordCancelled()
			e.observer.OnTaskCancelled(Event{TaskID: d.id, Timestamp: now})
		}
		return
	}
	if !d.cell.transitionToRunning(workerID, now) {
		return
	}
	e.observer.OnTaskStarted(Event{TaskID: d.id, Timestamp: now}, workerID)

	var runCtx context.Context
	var cancel context.CancelFunc
	if d.timeout > 0 {
		runCtx, cancel = context.WithTimeout(e.rootCtx, d.timeout)
	} else {
		runCtx, cancel = context.WithCancel(e.rootCtx)
	}
	cf := context.CancelFunc(cancel)
	d.cancelFunc.Store(&cf)
	defer cancel()

	start := e.clock.Now()
	result, err := runGuarded[R](runCtx, d.id, d.task)
	latency := e.clock.Since(start)

	if d.cancelRequested.Load() {
		d.cell.cancelRunning(e.clock.Now())
		e.aggregator.RecordCancelled()
		e.observer.OnTaskCancelled(Event{TaskID: d.id, Timestamp: e.clock.Now()})
		return
	}

	switch {
	case err == nil:
		e.aggregator.RecordCompletion(latency)
		d.cell.complete(result, e.clock.Now())
		e.observer.OnTaskCompleted(Event{TaskID: d.id, Timestamp: e.clock.Now()}, COMPLETED)

	case runCtx.Err() == context.DeadlineExceeded:
		e.aggregator.RecordTimedOut()
		if e.cfg.RetryOnTimeout && e.scheduleRetry(d) {
			return
		}
		d.cell.fail(&TimeoutError{TaskID: d.id, Timeout: d.timeout.String()}, e.clock.Now())
		e.observer.OnTaskCompleted(Event{TaskID: d.id, Timestamp: e.clock.Now()}, FAILED)

	default:
		e.aggregator.RecordFailed()
		if e.scheduleRetry(d) {
			return
		}
		tagged := newTaggedError(err, d.id, d.retryCount)
		d.cell.fail(tagged, e.clock.Now())
		e.observer.OnTaskCompleted(Event{TaskID: d.id, Timestamp: e.clock.Now()}, FAILED)
	}
}

// scheduleRetry attempts to move d into RETRYING and reinsert it into
// the scheduler with exponential backoff. It returns false (leaving the
// Result Cell untouched) if the retry budget is exhausted.
func (e *Engine[R]) scheduleRetry(d *descriptor[R]) bool {
	if !d.cell.scheduleRetry(d.maxRetries) {
		return false
	}
	d.retryCount++
	backoff := retryBackoff(e.cfg.RetryBaseBackoff, e.cfg.RetryMaxBackoff, d.retryCount)
	d.delayUntil = e.clock.Now().Add(backoff)

	e.aggregator.RecordRetried()
	e.observer.OnTaskRetryScheduled(Event{TaskID: d.id, Timestamp: e.clock.Now()}, d.retryCount, backoff)

	e.sched.Insert(d, d.delayUntil)
	return true
}

// retryBackoff doubles base per attempt (1-indexed), capped at max.
func retryBackoff(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = time.Millisecond
	}
	backoff := base
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff >= max && max > 0 {
			return max
		}
	}
	if max > 0 && backoff > max {
		return max
	}
	return backoff
}
