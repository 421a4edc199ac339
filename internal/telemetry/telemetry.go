// Package telemetry exposes Prometheus metrics for validation runs.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks validation run counters on a dedicated registry
type Metrics struct {
	registry *prometheus.Registry

	itemsCompleted *prometheus.CounterVec
	itemsSkipped   *prometheus.CounterVec
	runsTotal      *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
}

// New creates a metrics set with its own registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		itemsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "validation",
			Name:      "items_completed_total",
			Help:      "Trials, samples, folds, or steps that completed successfully.",
		}, []string{"operation"}),
		itemsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "validation",
			Name:      "items_skipped_total",
			Help:      "Trials, samples, folds, or steps skipped due to non-fatal failures.",
		}, []string{"operation"}),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "validation",
			Name:      "runs_total",
			Help:      "Validation runs by operation and outcome.",
		}, []string{"operation", "status"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "validation",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of validation runs.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"operation"}),
	}

	m.registry.MustRegister(m.itemsCompleted, m.itemsSkipped, m.runsTotal, m.runDuration)
	return m
}

// ObserveRun records the outcome of one validation run
func (m *Metrics) ObserveRun(operation string, completed, skipped int, duration time.Duration, err error) {
	m.itemsCompleted.WithLabelValues(operation).Add(float64(completed))
	m.itemsSkipped.WithLabelValues(operation).Add(float64(skipped))

	status := "ok"
	if err != nil {
		status = "error"
	}
	m.runsTotal.WithLabelValues(operation, status).Inc()
	m.runDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// Handler returns the scrape handler for this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
