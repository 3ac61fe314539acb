// Package metrics provides Prometheus metrics for project operations.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for sbvc.
type Metrics struct {
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	DiffChanges       *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sbvc_operations_total",
				Help: "Total number of project operations by operation and result.",
			},
			[]string{"op", "result"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sbvc_operation_duration_seconds",
				Help:    "Project operation duration by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		DiffChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sbvc_diff_changes",
				Help: "Changes reported by diffs, by report section.",
			},
			[]string{"section"},
		),
		registry: reg,
	}

	reg.MustRegister(m.OperationsTotal)
	reg.MustRegister(m.OperationDuration)
	reg.MustRegister(m.DiffChanges)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordOperation counts one finished operation and its duration. result
// is "ok" or an error kind code.
func (m *Metrics) RecordOperation(op, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(op, result).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// RecordDiff adds the per-section change counts of one diff.
func (m *Metrics) RecordDiff(counts map[string]int) {
	if m == nil {
		return
	}
	for section, n := range counts {
		if n > 0 {
			m.DiffChanges.WithLabelValues(section).Add(float64(n))
		}
	}
}
