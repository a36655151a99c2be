package fetcher

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus instrumentation for attachment downloads.
type Metrics struct {
	duration *prometheus.HistogramVec
	bytes    *prometheus.HistogramVec
	errors   *prometheus.CounterVec
}

// NewMetrics creates fetcher metrics and registers them with reg. Passing
// nil skips registration (used by tests that construct more than one
// Client against the default registry).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "etl_fetcher_duration_seconds",
			Help:    "Duration of attachment downloads.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		bytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "etl_fetcher_bytes",
			Help:    "Size of downloaded attachments in bytes.",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		}, []string{"outcome"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "etl_fetcher_errors_total",
			Help: "Total fetch failures, labeled by error kind.",
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.duration, m.bytes, m.errors)
	}
	return m
}

// RecordFetch records one Fetch call's duration and, on success, its size.
func (m *Metrics) RecordFetch(duration time.Duration, size int, errKind string) {
	outcome := "ok"
	if errKind != "" {
		outcome = "error"
		m.errors.WithLabelValues(errKind).Inc()
	}
	m.duration.WithLabelValues(outcome).Observe(duration.Seconds())
	if errKind == "" {
		m.bytes.WithLabelValues(outcome).Observe(float64(size))
	}
}
