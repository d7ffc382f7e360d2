// Package prometheus adapts taskengine/metrics.Provider onto
// github.com/prometheus/client_golang, so an Engine's Stats Aggregator
// can feed a real Prometheus registry instead of (or alongside) the
// in-memory metrics.BasicProvider. Scraping the resulting /metrics HTTP
// endpoint remains an external concern (spec.md §1); this package only
// creates and updates the instruments.
package prometheus

import (
	"sync"

	promclient "github.com/prometheus/client_golang/prometheus"

	"github.com/relaywork/engine/metrics"
)

// queueLabels names the four priority queues in metrics.QueueDepths
// order, used as the "priority" label on the queue_depth gauge vec.
var queueLabels = [4]string{"critical", "high", "normal", "low"}

// Provider implements metrics.Provider by registering and updating a
// fixed set of Prometheus instruments on the supplied Registerer: one
// counter vec over task outcome, one gauge vec over queue priority,
// and one histogram of task duration.
type Provider struct {
	outcomes *promclient.CounterVec
	queues   *promclient.GaugeVec
	duration promclient.Histogram

	mu           sync.Mutex
	outcomeCache [5]promclient.Counter
	queueCache   [4]promclient.Gauge
}

// New returns a Provider that registers its instruments on reg. Pass
// prometheus.NewRegistry() for an isolated registry, or
// promclient.DefaultRegisterer to use the global one.
func New(reg promclient.Registerer) *Provider {
	p := &Provider{
		outcomes: promclient.NewCounterVec(promclient.CounterOpts{
			Name: "taskengine_tasks_total",
			Help: "Task outcomes processed by the engine, by outcome.",
		}, []string{"outcome"}),
		queues: promclient.NewGaugeVec(promclient.GaugeOpts{
			Name: "taskengine_queue_depth",
			Help: "Current depth of each priority queue.",
		}, []string{"priority"}),
		duration: promclient.NewHistogram(promclient.HistogramOpts{
			Name:    "taskengine_task_duration_seconds",
			Help:    "Task execution latency in seconds.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
	reg.MustRegister(p.outcomes, p.queues, p.duration)
	return p
}

// TaskOutcome returns the counter for o, reusing the CounterVec child
// for that outcome's label.
func (p *Provider) TaskOutcome(o metrics.Outcome) metrics.Counter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c := p.outcomeCache[o]; c != nil {
		return counterAdapter{c}
	}
	c := p.outcomes.WithLabelValues(o.String())
	p.outcomeCache[o] = c
	return counterAdapter{c}
}

// QueueDepth returns the gauge for priority, which must be in [0, 4).
func (p *Provider) QueueDepth(priority int) metrics.Gauge {
	p.mu.Lock()
	defer p.mu.Unlock()

	if g := p.queueCache[priority]; g != nil {
		return gaugeAdapter{g}
	}
	g := p.queues.WithLabelValues(queueLabels[priority])
	p.queueCache[priority] = g
	return gaugeAdapter{g}
}

// TaskDuration returns the shared task-duration histogram.
func (p *Provider) TaskDuration() metrics.Histogram {
	return histogramAdapter{p.duration}
}

type counterAdapter struct{ c promclient.Counter }

func (a counterAdapter) Add(n int64) { a.c.Add(float64(n)) }

type gaugeAdapter struct{ g promclient.Gauge }

func (a gaugeAdapter) Set(v int64) { a.g.Set(float64(v)) }

type histogramAdapter struct{ h promclient.Histogram }

func (a histogramAdapter) Record(v float64) { a.h.Observe(v) }
