package embedder

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus instrumentation for embedding generation calls.
type Metrics struct {
	duration  *prometheus.HistogramVec
	batchSize *prometheus.HistogramVec
	errors    *prometheus.CounterVec
}

// NewMetrics creates embedder metrics and registers them with reg. Passing
// nil skips registration (used by tests that construct more than one
// Client against the default registry).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "etl_embedder_generation_duration_seconds",
			Help:    "Duration of embedder HTTP calls, labeled by operation.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation"}),
		batchSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "etl_embedder_batch_size",
			Help:    "Number of texts per embed request.",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
		}, []string{"operation"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "etl_embedder_errors_total",
			Help: "Total embedder call errors, labeled by operation.",
		}, []string{"operation"}),
	}
	if reg != nil {
		reg.MustRegister(m.duration, m.batchSize, m.errors)
	}
	return m
}

// RecordGeneration records one embed call's duration, batch size, and
// whether it failed.
func (m *Metrics) RecordGeneration(operation string, duration time.Duration, batchSize int, err error) {
	m.duration.WithLabelValues(operation).Observe(duration.Seconds())
	if batchSize > 0 {
		m.batchSize.WithLabelValues(operation).Observe(float64(batchSize))
	}
	if err != nil {
		m.errors.WithLabelValues(operation).Inc()
	}
}
