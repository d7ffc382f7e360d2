package taskengine

// TaskStatus is a task's position in its state machine (spec.md §4.5):
//
//	           submit
//	(source) ─────────▶ PENDING ──────(worker picks)─────▶ RUNNING
//	                      │                                   │
//	                      │  cancel                           │  complete / fail / timeout
//	                      ▼                                   ▼
//	                  CANCELLED                         COMPLETED / FAILED
//
// A failure that the retry policy permits moves RUNNING to RETRYING
// instead of FAILED; the scheduler re-enqueues the task and a worker
// moves it from RETRYING straight back to RUNNING. PENDING and RETRYING
// tasks are cancelled directly; a RUNNING task reaches CANCELLED once
// its worker observes the cancellation request.
//
// COMPLETED, FAILED, and CANCELLED are terminal: once reached, a Result
// Cell's status and fields never change again.
type TaskStatus int32

const (
	PENDING TaskStatus = iota
	RUNNING
	COMPLETED
	FAILED
	CANCELLED
	RETRYING
)

func (s TaskStatus) String() string {
	switch s {
	case PENDING:
		return "PENDING"
	case RUNNING:
		return "RUNNING"
	case COMPLETED:
		return "COMPLETED"
	case FAILED:
		return "FAILED"
	case CANCELLED:
		return "CANCELLED"
	case RETRYING:
		return "RETRYING"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether s is one of the three terminal states.
func (s TaskStatus) Terminal() bool {
	return s == COMPLETED || s == FAILED || s == CANCELLED
}

// TaskID uniquely identifies a submitted task within the process
// lifetime. It is monotonically increasing, stable across retries, and
// never reused.
type TaskID uint64
