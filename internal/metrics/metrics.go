// Package metrics provides Prometheus metrics for reconciliation runs.
//
// The CLI is a batch process, so metrics are not served over HTTP. They are
// written to a node_exporter textfile after each run when configured.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/scd2/internal/engine"
)

const namespace = "scd2"

// Metrics holds all reconciliation metrics.
type Metrics struct {
	// Counters
	RunsTotal   *prometheus.CounterVec
	RowsTotal   *prometheus.CounterVec
	ErrorsTotal *prometheus.CounterVec

	// Gauges
	TargetRows *prometheus.GaugeVec
	LastRunTS  *prometheus.GaugeVec

	// Histograms
	RunDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates a metrics instance with its own registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total reconciliation runs by outcome",
		},
		[]string{"dimension", "status"}, // "success", "error"
	)

	m.RowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_total",
			Help:      "Rows classified per change type",
		},
		[]string{"dimension", "change"}, // "unchanged_active", "unchanged_inactive", "ended", "new", "reopened"
	)

	m.ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Failed runs by error code",
		},
		[]string{"dimension", "code"},
	)

	m.TargetRows = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "target_rows",
			Help:      "Rows in the target table after the last successful run",
		},
		[]string{"dimension"},
	)

	m.LastRunTS = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Wall clock time of the last successful run",
		},
		[]string{"dimension"},
	)

	m.RunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Time spent reconciling one snapshot",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0, 120.0},
		},
		[]string{"dimension"},
	)

	m.registry.MustRegister(
		m.RunsTotal,
		m.RowsTotal,
		m.ErrorsTotal,
		m.TargetRows,
		m.LastRunTS,
		m.RunDuration,
	)

	return m
}

// Registry returns the registry holding every metric.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RunSucceeded records a successful run. Implements engine.Recorder.
func (m *Metrics) RunSucceeded(dimension string, stats engine.Stats, elapsed time.Duration) {
	m.RunsTotal.WithLabelValues(dimension, "success").Inc()

	m.RowsTotal.WithLabelValues(dimension, "unchanged_active").Add(float64(stats.UnchangedActive))
	m.RowsTotal.WithLabelValues(dimension, "unchanged_inactive").Add(float64(stats.UnchangedInactive))
	m.RowsTotal.WithLabelValues(dimension, "ended").Add(float64(stats.Ended))
	m.RowsTotal.WithLabelValues(dimension, "new").Add(float64(stats.New))
	m.RowsTotal.WithLabelValues(dimension, "reopened").Add(float64(stats.Reopened))

	m.TargetRows.WithLabelValues(dimension).Set(float64(stats.OutputRows))
	m.LastRunTS.WithLabelValues(dimension).SetToCurrentTime()
	m.RunDuration.WithLabelValues(dimension).Observe(elapsed.Seconds())
}

// RunFailed records a failed run. Implements engine.Recorder.
func (m *Metrics) RunFailed(dimension string, code engine.ErrorCode) {
	m.RunsTotal.WithLabelValues(dimension, "error").Inc()
	m.ErrorsTotal.WithLabelValues(dimension, string(code)).Inc()
}

// WriteTextfile writes every metric to path in the text exposition format,
// atomically, for the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

var _ engine.Recorder = (*Metrics)(nil)
