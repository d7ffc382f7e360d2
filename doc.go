// Package taskengine implements a multi-priority, worker-pool-driven
// background task execution engine.
//
// Tasks are submitted with a priority (CRITICAL, HIGH, NORMAL, LOW), an
// optional delay, an optional timeout, and an optional retry budget. A
// pool of workers drains the four priority queues in strict order,
// executes each task's callable, and reports the outcome through a
// Future handle returned at submission time.
//
// Constructors
//   - New[R](opts ...Option) *Engine[R]: builds an Engine for tasks that
//     produce a result of type R. The engine is not started automatically;
//     call Start before submitting, or pass WithStartImmediately.
//
// Defaults
// Unless overridden, the following defaults apply to a newly constructed
// Engine:
//   - Workers: min(32, 2*runtime.NumCPU())
//   - QueueCapacityTotal: 10000, split evenly across the four priorities
//   - RetentionTerminalMax: 10000
//   - RetryBaseBackoff: 100ms, RetryMaxBackoff: 30s
//   - SchedulerTickMax: 100ms
//   - DefaultTimeout: 30s (0 disables timeouts)
//
// Result delivery
// Submit returns a Future[R] bound to the task's Result Cell. Callers
// either block on Future.Wait, poll Future.IsReady, register a callback
// with Future.AddCallback, or chain further work with Future.Then /
// Future.Catch. The engine does not expose a single shared results
// channel: each task has its own handle.
//
// Observability
// Engine.Stats returns a point-in-time metrics.Snapshot. An optional
// Observer receives lifecycle events (submitted, started, completed,
// retried, cancelled, engine start/stop) for external logging or
// dashboards; rendering those events is outside this package's scope.
package taskengine
