package taskengine

import (
	"runtime"
	"time"

	"github.com/relaywork/engine/metrics"
)

// MetricsProvider is the instrument backend the Stats Aggregator
// records into. It is an alias of metrics.Provider so that callers can
// pass a metrics.BasicProvider, metrics.NoopProvider, or a
// prometheus-backed provider without importing two packages.
type MetricsProvider = metrics.Provider

// QueueSplit is the fractional share of QueueCapacityTotal assigned to
// each priority class, in CRITICAL, HIGH, NORMAL, LOW order. The four
// fractions need not sum to exactly 1; each priority queue's capacity
// is computed independently as QueueCapacityTotal * fraction.
type QueueSplit [4]float64

// DefaultQueueSplit assigns an equal quarter of the total capacity to
// each priority class.
var DefaultQueueSplit = QueueSplit{0.25, 0.25, 0.25, 0.25}

// Config holds Engine configuration (spec.md §6). Zero-value fields are
// replaced by defaultConfig's values unless explicitly set through
// functional Options or YAML (see taskengine/config.Load).
type Config struct {
	// Workers is the worker pool size when auto-scaling is disabled.
	// Default: min(32, 2*runtime.NumCPU()).
	Workers uint

	// AutoScale enables the dynamic worker pool (pool.Dynamic) bounded
	// by MinWorkers/MaxWorkers. Default: false (fixed pool of Workers
	// goroutines).
	AutoScale bool

	// MinWorkers, MaxWorkers bound the dynamic pool when AutoScale is
	// enabled; otherwise ignored. Defaults: 2, Workers*4.
	MinWorkers uint
	MaxWorkers uint

	// QueueCapacityTotal is the combined capacity shared across the
	// four priority queues. Default: 10000.
	QueueCapacityTotal uint

	// QueueSplit is the fractional split of QueueCapacityTotal across
	// CRITICAL/HIGH/NORMAL/LOW. Default: DefaultQueueSplit.
	QueueSplit QueueSplit

	// RetentionTerminalMax is the soft bound on terminal entries kept
	// in the Registry. Default: 10000.
	RetentionTerminalMax uint

	// RetryBaseBackoff is the base for exponential retry backoff.
	// Default: 100ms.
	RetryBaseBackoff time.Duration

	// RetryMaxBackoff caps the exponential retry backoff.
	// Default: 30s.
	RetryMaxBackoff time.Duration

	// RetryOnTimeout controls whether a timed-out task is eligible for
	// retry. The spec's default is false: a timeout is final unless
	// this is explicitly enabled.
	RetryOnTimeout bool

	// SchedulerTickMax upper-bounds the scheduler's sleep between timer
	// recomputations. Default: 100ms.
	SchedulerTickMax time.Duration

	// DefaultTimeout applies when a submission omits a timeout; 0
	// disables timeouts. Default: 30s.
	DefaultTimeout time.Duration

	// StartImmediately starts the engine as part of New instead of
	// requiring an explicit Start call. Default: false.
	StartImmediately bool

	// Clock overrides the engine's time source. Default: NewClock().
	Clock Clock

	// MetricsProvider overrides the instrument backend used by the
	// Stats Aggregator. Default: metrics.NewNoopProvider().
	MetricsProvider MetricsProvider

	// Observer receives lifecycle events. Default: a no-op observer.
	Observer Observer
}

func defaultConfig() Config {
	workers := uint(2 * runtime.NumCPU())
	if workers > 32 {
		workers = 32
	}
	if workers == 0 {
		workers = 1
	}

	return Config{
		Workers:              workers,
		AutoScale:            false,
		MinWorkers:           2,
		MaxWorkers:           workers * 4,
		QueueCapacityTotal:   10000,
		QueueSplit:           DefaultQueueSplit,
		RetentionTerminalMax: 10000,
		RetryBaseBackoff:     100 * time.Millisecond,
		RetryMaxBackoff:      30 * time.Second,
		RetryOnTimeout:       false,
		SchedulerTickMax:     100 * time.Millisecond,
		DefaultTimeout:       30 * time.Second,
		StartImmediately:     false,
	}
}

// queueCapacities computes the per-priority integer capacities derived
// from QueueCapacityTotal and QueueSplit, in Priorities order.
func (c *Config) queueCapacities() [4]int {
	var caps [4]int
	for i, frac := range c.QueueSplit {
		caps[i] = int(float64(c.QueueCapacityTotal) * frac)
		if caps[i] < 1 {
			caps[i] = 1
		}
	}
	return caps
}
