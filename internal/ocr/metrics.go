package ocr

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus instrumentation for OCR page recognition.
type Metrics struct {
	duration *prometheus.HistogramVec
	errors   *prometheus.CounterVec
}

// NewMetrics creates OCR metrics and registers them with reg. Passing nil
// skips registration (used by tests).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "etl_ocr_duration_seconds",
			Help:    "Duration of page recognition calls against the OCR service.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "etl_ocr_errors_total",
			Help: "Total OCR recognition failures, labeled by error kind.",
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.duration, m.errors)
	}
	return m
}

// RecordRecognize records one Recognize call's duration and outcome.
func (m *Metrics) RecordRecognize(duration time.Duration, errKind string) {
	outcome := "ok"
	if errKind != "" {
		outcome = "error"
		m.errors.WithLabelValues(errKind).Inc()
	}
	m.duration.WithLabelValues(outcome).Observe(duration.Seconds())
}
