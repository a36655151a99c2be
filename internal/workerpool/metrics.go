package workerpool

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus instrumentation for pool admission and execution.
type Metrics struct {
	queueDepth  prometheus.Gauge
	activeSlots prometheus.Gauge
	jobsTotal   *prometheus.CounterVec
}

// NewMetrics creates workerpool metrics and registers them with reg. Passing
// nil skips registration (used by tests, and by pools built without a
// registry).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "etl_workerpool_queue_depth",
			Help: "Jobs currently sitting in the admission queue.",
		}),
		activeSlots: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "etl_workerpool_active_workers",
			Help: "Worker slots currently occupied by an in-flight job.",
		}),
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "etl_workerpool_jobs_total",
			Help: "Completed jobs, labeled by terminal status and error kind.",
		}, []string{"status", "kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.queueDepth, m.activeSlots, m.jobsTotal)
	}
	return m
}

func (m *Metrics) setQueueDepth(n int) {
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) workerAcquired() {
	m.activeSlots.Inc()
}

func (m *Metrics) workerReleased() {
	m.activeSlots.Dec()
}

func (m *Metrics) recordJob(status, kind string) {
	m.jobsTotal.WithLabelValues(status, kind).Inc()
}
