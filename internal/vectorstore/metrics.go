// Package vectorstore provides Prometheus metrics for vector-store calls.
package vectorstore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationDuration tracks upsert/search latency, labeled by operation.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "etl",
			Subsystem: "vectorstore",
			Name:      "operation_duration_seconds",
			Help:      "Duration of vector store operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// OperationErrors counts failed vector store operations.
	OperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "etl",
			Subsystem: "vectorstore",
			Name:      "operation_errors_total",
			Help:      "Total vector store operation failures, labeled by operation",
		},
		[]string{"operation"},
	)

	// HealthStatus indicates current reachability (1=healthy, 0=unavailable).
	HealthStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "etl",
			Subsystem: "vectorstore",
			Name:      "health_status",
			Help:      "Current vector store health status (1=healthy, 0=unavailable)",
		},
	)
)

// RecordOperation records one vector store call's latency and outcome.
func RecordOperation(operation string, duration time.Duration, err error) {
	OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		OperationErrors.WithLabelValues(operation).Inc()
	}
}
