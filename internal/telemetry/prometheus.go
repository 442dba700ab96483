package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"profilehub/internal/types"
)

// PrometheusMetrics keeps its own registry so tests and multiple servers in
// one process do not collide on the default registerer.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	verdicts        *prometheus.CounterVec
	charges         *prometheus.CounterVec
	chargedCost     *prometheus.CounterVec
}

// NewPrometheusMetrics creates and registers the collectors under namespace.
func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	m := &PrometheusMetrics{
		registry: prometheus.NewRegistry(),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration observed at the API layer.",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"method", "route", "status"},
		),
		requestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests handled by the API.",
			},
			[]string{"method", "route", "status"},
		),
		verdicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "access",
				Name:      "verdicts_total",
				Help:      "Access decisions by operation and reason code.",
			},
			[]string{"operation", "reason"},
		),
		charges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "usage",
				Name:      "charges_total",
				Help:      "Recorded charges by operation and run kind.",
			},
			[]string{"operation", "run_kind"},
		),
		chargedCost: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "usage",
				Name:      "charged_cost_total",
				Help:      "Sum of recorded charge amounts.",
			},
			[]string{"operation"},
		),
	}
	m.registry.MustRegister(m.requestDuration, m.requestTotal, m.verdicts, m.charges, m.chargedCost)
	return m
}

// RecordRequest observes one HTTP request.
func (m *PrometheusMetrics) RecordRequest(method, endpoint, status string, duration time.Duration) {
	m.requestDuration.WithLabelValues(method, endpoint, status).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, endpoint, status).Inc()
}

// RecordVerdict counts one access decision.
func (m *PrometheusMetrics) RecordVerdict(_ context.Context, v types.Verdict) {
	m.verdicts.WithLabelValues(string(v.Operation), string(v.ReasonCode)).Inc()
}

// UsageRecorded counts one charge and adds its cost.
func (m *PrometheusMetrics) UsageRecorded(_ context.Context, e types.UsageEvent) error {
	m.charges.WithLabelValues(string(e.Operation), string(e.RunKind)).Inc()
	m.chargedCost.WithLabelValues(string(e.Operation)).Add(e.Cost.InexactFloat64())
	return nil
}

// Handler serves the registry in the Prometheus exposition format.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
