// Package metrics exposes batch run counters as Prometheus collectors.
//
// Each Collector owns its own registry so that concurrent runs, and tests, never
// share state. The CLI writes the registry to a node-exporter textfile at the end
// of a run.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const defaultNamespace = "gradebook"

// Outcome label values.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
)

// Collector records job outcomes, durations and pool activity.
type Collector struct {
	registry *prometheus.Registry

	jobsTotal     *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	itemsTotal    prometheus.Counter
	activeWorkers prometheus.Gauge
}

// NewCollector creates and registers the collectors. An empty namespace defaults
// to "gradebook".
func NewCollector(namespace string) (*Collector, error) {
	if namespace == "" {
		namespace = defaultNamespace
	}

	c := &Collector{
		registry: prometheus.NewRegistry(),
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "report",
			Name:      "jobs_total",
			Help:      "Report jobs that reached a terminal state, by outcome.",
		}, []string{"outcome"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "report",
			Name:      "job_duration_seconds",
			Help:      "Wall time of a single report job including verification.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"outcome"}),
		itemsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "report",
			Name:      "items_submitted_total",
			Help:      "Report jobs submitted to the worker pool.",
		}),
		activeWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "report",
			Name:      "active_workers",
			Help:      "Best-effort count of workers currently running a job.",
		}),
	}

	for _, col := range []prometheus.Collector{c.jobsTotal, c.jobDuration, c.itemsTotal, c.activeWorkers} {
		if err := c.registry.Register(col); err != nil {
			return nil, fmt.Errorf("registering collector: %w", err)
		}
	}
	return c, nil
}

// ItemsSubmitted adds n submitted jobs.
func (c *Collector) ItemsSubmitted(n int) {
	c.itemsTotal.Add(float64(n))
}

// JobFinished records one terminal job.
func (c *Collector) JobFinished(failed bool, d time.Duration) {
	outcome := OutcomeCompleted
	if failed {
		outcome = OutcomeFailed
	}
	c.jobsTotal.WithLabelValues(outcome).Inc()
	c.jobDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// ActiveWorkers sets the active worker gauge.
func (c *Collector) ActiveWorkers(n int) {
	c.activeWorkers.Set(float64(n))
}

// Registry returns the underlying registry, for HTTP exposure or testing.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// WriteTextfile writes all metrics in the text exposition format to path.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("writing metrics textfile %s: %w", path, err)
	}
	return nil
}
