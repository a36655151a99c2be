package httpapi

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus instrumentation for the inbound HTTP surface.
type Metrics struct {
	requestsTotal *prometheus.CounterVec
	requestDur    *prometheus.HistogramVec
}

// NewMetrics creates HTTP metrics and registers them with reg. Passing nil
// skips registration, used by tests that build more than one Server.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "etl_http_requests_total",
			Help: "Total HTTP requests, labeled by route, method, and status.",
		}, []string{"route", "method", "status"}),
		requestDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "etl_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds, labeled by route and method.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		}, []string{"route", "method"}),
	}
	if reg != nil {
		reg.MustRegister(m.requestsTotal, m.requestDur)
	}
	return m
}

// Middleware returns an echo.MiddlewareFunc that records per-route counts
// and latency.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			m.requestDur.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
			m.requestsTotal.WithLabelValues(route, method, strconv.Itoa(c.Response().Status)).Inc()
			return err
		}
	}
}
