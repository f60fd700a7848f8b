// Package metrics exposes Prometheus collectors for task submissions, poll
// attempts, and operation outcomes. Collectors live on a private registry so
// the CLI can flush them to a node-exporter textfile at exit.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "storyreel"

// Recorder owns the collectors. A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	submissions  *prometheus.CounterVec
	outcomes     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	pollAttempts *prometheus.CounterVec
	inFlight     *prometheus.GaugeVec
	loads        *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "task",
				Name:      "submissions_total",
				Help:      "Total number of backend task submissions",
			},
			[]string{"operation"},
		),
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "task",
				Name:      "outcomes_total",
				Help:      "Terminal outcomes of submitted operations",
			},
			[]string{"operation", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "task",
				Name:      "duration_seconds",
				Help:      "Time from submission to terminal outcome",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"operation"},
		),
		pollAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "poll",
				Name:      "attempts_total",
				Help:      "Task status queries by observed status",
			},
			[]string{"status"},
		),
		inFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "task",
				Name:      "in_flight",
				Help:      "Operations currently awaiting a terminal status",
			},
			[]string{"operation"},
		),
		loads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "loads_total",
				Help:      "Pipeline state loads by result",
			},
			[]string{"result"},
		),
	}
	r.registry.MustRegister(
		r.submissions,
		r.outcomes,
		r.duration,
		r.pollAttempts,
		r.inFlight,
		r.loads,
		collectors.NewGoCollector(),
	)
	return r
}

// Registry exposes the underlying registry (tests and textfile export).
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Submitted counts one submission and marks the operation in flight.
func (r *Recorder) Submitted(operation string) {
	if r == nil {
		return
	}
	r.submissions.WithLabelValues(operation).Inc()
	r.inFlight.WithLabelValues(operation).Inc()
}

// Finished records a terminal outcome. Submitted operations also leave the
// in-flight gauge; rejected ones never entered it.
func (r *Recorder) Finished(operation, outcome string, submitted bool, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.outcomes.WithLabelValues(operation, outcome).Inc()
	if submitted {
		r.inFlight.WithLabelValues(operation).Dec()
		r.duration.WithLabelValues(operation).Observe(elapsed.Seconds())
	}
}

// PollAttempt counts one status query. Query failures use status "error".
func (r *Recorder) PollAttempt(status string) {
	if r == nil {
		return
	}
	if status == "" {
		status = "error"
	}
	r.pollAttempts.WithLabelValues(status).Inc()
}

// Loaded counts a LoadAll result ("ok" or "error").
func (r *Recorder) Loaded(result string) {
	if r == nil {
		return
	}
	r.loads.WithLabelValues(result).Inc()
}

// WriteTextfile writes the registry in exposition format for a textfile
// collector. The write is atomic.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
