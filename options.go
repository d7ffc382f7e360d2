package taskengine

import (
	"time"

	"github.com/relaywork/engine/metrics"
)

// Option configures an Engine. Use New[R](opts...) to construct one.
type Option func(*Config)

// WithFixedWorkers selects a fixed-size worker pool of n goroutines
// (must be > 0). This is the default mode; AutoScale is disabled.
func WithFixedWorkers(n uint) Option {
	return func(c *Config) {
		if n == 0 {
			panic("taskengine: WithFixedWorkers requires n > 0")
		}
		c.Workers = n
		c.AutoScale = false
	}
}

// WithAutoScale enables the dynamic worker pool, bounded by
// [min, max], scaling by sampled queue pressure (spec.md §9).
func WithAutoScale(min, max uint) Option {
	return func(c *Config) {
		if min == 0 || max < min {
			panic("taskengine: WithAutoScale requires 0 < min <= max")
		}
		c.AutoScale = true
		c.MinWorkers = min
		c.MaxWorkers = max
	}
}

// WithQueueCapacityTotal sets the combined capacity shared across the
// four priority queues.
func WithQueueCapacityTotal(n uint) Option {
	return func(c *Config) { c.QueueCapacityTotal = n }
}

// WithQueueSplit sets the fractional capacity split across
// CRITICAL/HIGH/NORMAL/LOW.
func WithQueueSplit(split QueueSplit) Option {
	return func(c *Config) { c.QueueSplit = split }
}

// WithRetentionMax sets the soft bound on terminal Registry entries.
func WithRetentionMax(n uint) Option {
	return func(c *Config) { c.RetentionTerminalMax = n }
}

// WithRetryBackoff sets the base and max exponential retry backoff.
func WithRetryBackoff(base, max time.Duration) Option {
	return func(c *Config) { c.RetryBaseBackoff = base; c.RetryMaxBackoff = max }
}

// WithRetryOnTimeout enables retrying a task whose execution failed
// with a timeout (disabled by default).
func WithRetryOnTimeout() Option {
	return func(c *Config) { c.RetryOnTimeout = true }
}

// WithSchedulerTick sets the upper bound on the scheduler's sleep
// between timer recomputations.
func WithSchedulerTick(d time.Duration) Option {
	return func(c *Config) { c.SchedulerTickMax = d }
}

// WithDefaultTimeout sets the timeout applied to submissions that omit
// one; 0 disables timeouts by default.
func WithDefaultTimeout(d time.Duration) Option {
	return func(c *Config) { c.DefaultTimeout = d }
}

// WithStartImmediately starts the engine as part of New.
func WithStartImmediately() Option {
	return func(c *Config) { c.StartImmediately = true }
}

// WithClock overrides the engine's time source. Intended for tests.
func WithClock(clock Clock) Option {
	return func(c *Config) { c.Clock = clock }
}

// WithMetricsProvider overrides the Stats Aggregator's instrument
// backend.
func WithMetricsProvider(p MetricsProvider) Option {
	return func(c *Config) { c.MetricsProvider = p }
}

// WithObserver overrides the engine's lifecycle event Observer.
func WithObserver(o Observer) Option {
	return func(c *Config) { c.Observer = o }
}

// buildConfig applies opts over defaultConfig and fills any Option
// that was left unset (Clock, MetricsProvider, Observer).
func buildConfig(opts []Option) Config {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt == nil {
			panic("taskengine: nil option")
		}
		opt(&cfg)
	}
	if cfg.Clock == nil {
		cfg.Clock = NewClock()
	}
	if cfg.MetricsProvider == nil {
		cfg.MetricsProvider = metrics.NewNoopProvider()
	}
	if cfg.Observer == nil {
		cfg.Observer = NoopObserver{}
	}
	return cfg
}
