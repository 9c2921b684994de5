// Package observability owns the Prometheus registry and the OpenTelemetry
// tracer provider. Everything else only sees small interfaces.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	RateLimitedTotal    prometheus.Counter

	// Business metrics
	SignInsTotal          *prometheus.CounterVec
	TokenRedemptionsTotal *prometheus.CounterVec
}

// NewMetrics creates a registry with the Go runtime and process
// collectors plus every harena metric.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harena_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harena_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		RateLimitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "harena_rate_limited_requests_total",
				Help: "Requests rejected by the rate limiter",
			},
		),
		SignInsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harena_signins_total",
				Help: "Google sign-in attempts by outcome",
			},
			[]string{"outcome"},
		),
		TokenRedemptionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harena_token_redemptions_total",
				Help: "Invite token redemptions by token kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.RateLimitedTotal,
		m.SignInsTotal,
		m.TokenRedemptionsTotal,
	)
	return m
}

// ObserveRequest records one finished HTTP request. route is the chi
// route pattern, never the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// RateLimited counts one rejected request.
func (m *Metrics) RateLimited() {
	m.RateLimitedTotal.Inc()
}

// SignIn implements service.EventRecorder.
func (m *Metrics) SignIn(outcome string) {
	m.SignInsTotal.WithLabelValues(outcome).Inc()
}

// TokenRedemption implements service.EventRecorder.
func (m *Metrics) TokenRedemption(kind, outcome string) {
	m.TokenRedemptionsTotal.WithLabelValues(kind, outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
