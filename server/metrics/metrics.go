package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics encapsulates Prometheus metrics for the relay.
type Metrics struct {
	registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ActiveRequests  *prometheus.GaugeVec
	ErrorsTotal     *prometheus.CounterVec

	// GatewayRequests counts completion calls by model and final outcome
	// (succeeded, failed_remote, failed_no_response, failed_setup).
	GatewayRequests *prometheus.CounterVec
	GatewayDuration *prometheus.HistogramVec
	PromptTokens    prometheus.Histogram
	BreakerState    *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance with a custom registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	m := &Metrics{
		registry: registry,
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vitsa_http_requests_total",
				Help: "Total number of HTTP requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vitsa_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		ActiveRequests: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vitsa_http_active_requests",
				Help: "Number of currently active HTTP requests by method",
			},
			[]string{"method"},
		),
		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vitsa_errors_total",
				Help: "Total number of errors by type",
			},
			[]string{"type"},
		),
		GatewayRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vitsa_gateway_requests_total",
				Help: "Completion API calls by model and outcome",
			},
			[]string{"model", "outcome"},
		),
		GatewayDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vitsa_gateway_request_duration_seconds",
				Help:    "Duration of completion API calls in seconds",
				Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 20, 40, 80},
			},
			[]string{"model"},
		),
		PromptTokens: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vitsa_prompt_tokens",
				Help:    "Estimated token count of transcripts sent to the completion API",
				Buckets: prometheus.ExponentialBuckets(16, 2, 12),
			},
		),
		BreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vitsa_circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
	}

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns a handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: false,
	})
}
