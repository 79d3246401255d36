// Package metrics exposes Prometheus collectors for job runs and ticks.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openjobspec/ojs-cron/internal/runner"
	"github.com/openjobspec/ojs-cron/internal/scheduler"
)

const namespace = "ojs_cron"

// Metrics holds the collectors. It implements runner.Observer and
// scheduler.TickObserver.
type Metrics struct {
	registry *prometheus.Registry

	info              *prometheus.GaugeVec
	runs              *prometheus.CounterVec
	conflicts         *prometheus.CounterVec
	runDuration       *prometheus.HistogramVec
	lastSuccess       *prometheus.GaugeVec
	persistenceErrors *prometheus.CounterVec
	tickDuration      prometheus.Histogram
	ticks             prometheus.Counter
}

// New registers all collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "server_info",
			Help:      "Build and backend information.",
		}, []string{"version", "store"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Job run attempts by outcome.",
		}, []string{"job", "outcome"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_conflicts_total",
			Help:      "Runs skipped because another tick claimed the slot or held the lock.",
		}, []string{"job"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_run_duration_seconds",
			Help:      "Payload execution time.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 10),
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_last_success_timestamp_seconds",
			Help:      "Scheduled slot of the last successful run.",
		}, []string{"job"}),
		persistenceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_errors_total",
			Help:      "Jobs abandoned in a tick because the run log or lock backend failed.",
		}, []string{"job"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Wall time of a whole tick.",
			Buckets:   prometheus.DefBuckets,
		}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Completed ticks.",
		}),
	}
	reg.MustRegister(
		m.info, m.runs, m.conflicts, m.runDuration, m.lastSuccess,
		m.persistenceErrors, m.tickDuration, m.ticks,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Init records the server info gauge.
func (m *Metrics) Init(version, store string) {
	m.info.WithLabelValues(version, store).Set(1)
}

// RunCompleted implements runner.Observer.
func (m *Metrics) RunCompleted(_ context.Context, o runner.Outcome) {
	m.runs.WithLabelValues(o.JobCode, string(o.Status)).Inc()
	if o.Conflict {
		m.conflicts.WithLabelValues(o.JobCode).Inc()
	}
	if !o.Ran() {
		return
	}
	m.runDuration.WithLabelValues(o.JobCode).Observe(o.Duration.Seconds())
	if o.Status == runner.StatusSucceeded {
		m.lastSuccess.WithLabelValues(o.JobCode).Set(float64(o.Slot.Unix()))
	}
}

// TickCompleted implements scheduler.TickObserver.
func (m *Metrics) TickCompleted(r scheduler.Report, elapsed time.Duration) {
	m.ticks.Inc()
	m.tickDuration.Observe(elapsed.Seconds())
	for _, res := range r.Results {
		if res.Err != nil {
			m.persistenceErrors.WithLabelValues(res.Outcome.JobCode).Inc()
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
