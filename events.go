package taskengine

import "time"

// Event is the common envelope for every lifecycle notification an
// Observer receives. Rendering or persisting events is outside this
// package's scope (spec.md §1); Observer is only a pull-free
// notification hook.
type Event struct {
	TaskID    TaskID
	Timestamp time.Time
}

// Observer receives optional lifecycle notifications. None of these
// calls may block the caller for long: they run synchronously on the
// engine's hot paths (submit, dispatch, scheduler tick). Implementors
// that need to do I/O should hand events off to their own buffered
// queue.
type Observer interface {
	OnTaskSubmitted(ev Event, priority Priority)
	OnTaskStarted(ev Event, workerID int)
	OnTaskCompleted(ev Event, status TaskStatus)
	OnTaskRetryScheduled(ev Event, retryCount int, backoff time.Duration)
	OnTaskCancelled(ev Event)
	OnEngineStarted()
	OnEngineStopping()
	OnEngineStopped()
}

// NoopObserver discards every event. It is the default Observer.
type NoopObserver struct{}

func (NoopObserver) OnTaskSubmitted(Event, Priority)                 {}
func (NoopObserver) OnTaskStarted(Event, int)                        {}
func (NoopObserver) OnTaskCompleted(Event, TaskStatus)               {}
func (NoopObserver) OnTaskRetryScheduled(Event, int, time.Duration) {}
func (NoopObserver) OnTaskCancelled(Event)                           {}
func (NoopObserver) OnEngineStarted()                                {}
func (NoopObserver) OnEngineStopping()                                {}
func (NoopObserver) OnEngineStopped()                                 {}
