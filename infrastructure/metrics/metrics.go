// Package metrics provides Prometheus metrics collection
package metrics

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Error metrics
	ErrorsTotal *prometheus.CounterVec

	// Upstream forwarding metrics
	UpstreamForwardTotal    *prometheus.CounterVec
	UpstreamForwardDuration *prometheus.HistogramVec

	// Endpoint health
	EndpointHealthy     *prometheus.GaugeVec
	EndpointFailures    *prometheus.GaugeVec
	AlertsEmittedTotal  *prometheus.CounterVec

	// Service health
	ServiceUptime prometheus.Gauge
	ServiceInfo   *prometheus.GaugeVec
}

// New creates a new Metrics instance with all collectors registered
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new Metrics instance with a custom registry
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP metrics
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"service", "method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"service", "method", "path"},
		),
		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Current number of HTTP requests being processed",
			},
		),

		// Error metrics
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "errors_total",
				Help: "Total number of errors",
			},
			[]string{"service", "type", "operation"},
		),

		// Upstream forwarding metrics
		UpstreamForwardTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_upstream_forward_total",
				Help: "Total number of requests forwarded to upstream endpoints",
			},
			[]string{"route", "endpoint_id", "outcome"},
		),
		UpstreamForwardDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_upstream_forward_duration_seconds",
				Help:    "Upstream forward duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"route", "endpoint_id"},
		),

		// Endpoint health
		EndpointHealthy: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gateway_endpoint_healthy",
				Help: "Whether an endpoint is currently healthy (1) or not (0)",
			},
			[]string{"route", "endpoint_id"},
		),
		EndpointFailures: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gateway_endpoint_consecutive_failures",
				Help: "Current consecutive failure count for an endpoint",
			},
			[]string{"route", "endpoint_id"},
		),
		AlertsEmittedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_alerts_emitted_total",
				Help: "Total number of healthy-to-unhealthy alert events emitted",
			},
			[]string{"route", "endpoint_id"},
		),

		// Service health
		ServiceUptime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "service_uptime_seconds",
				Help: "Service uptime in seconds",
			},
		),
		ServiceInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "service_info",
				Help: "Service information",
			},
			[]string{"service", "version", "environment"},
		),
	}

	// Register all collectors
	if registerer != nil {
		registerer.MustRegister(
			m.RequestsTotal,
			m.RequestDuration,
			m.RequestsInFlight,
			m.ErrorsTotal,
			m.UpstreamForwardTotal,
			m.UpstreamForwardDuration,
			m.EndpointHealthy,
			m.EndpointFailures,
			m.AlertsEmittedTotal,
			m.ServiceUptime,
			m.ServiceInfo,
		)
	}

	// Set service info
	m.ServiceInfo.WithLabelValues(serviceName, "1.0.0", environment()).Set(1)

	return m
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(service, method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(service, method, path, status).Inc()
	m.RequestDuration.WithLabelValues(service, method, path).Observe(duration.Seconds())
}

// RecordError records an error
func (m *Metrics) RecordError(service, errorType, operation string) {
	m.ErrorsTotal.WithLabelValues(service, errorType, operation).Inc()
}

// RecordUpstreamForward records the outcome and latency of a pool.forward call.
func (m *Metrics) RecordUpstreamForward(route, endpointID, outcome string, duration time.Duration) {
	m.UpstreamForwardTotal.WithLabelValues(route, endpointID, outcome).Inc()
	m.UpstreamForwardDuration.WithLabelValues(route, endpointID).Observe(duration.Seconds())
}

// SetEndpointHealth records the current health snapshot for an endpoint.
func (m *Metrics) SetEndpointHealth(route, endpointID string, healthy bool, consecutiveFailures int) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.EndpointHealthy.WithLabelValues(route, endpointID).Set(value)
	m.EndpointFailures.WithLabelValues(route, endpointID).Set(float64(consecutiveFailures))
}

// RecordAlert records a healthy-to-unhealthy alert event.
func (m *Metrics) RecordAlert(route, endpointID string) {
	m.AlertsEmittedTotal.WithLabelValues(route, endpointID).Inc()
}

// UpdateUptime updates the service uptime
func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.ServiceUptime.Set(time.Since(startTime).Seconds())
}

// IncrementInFlight increments the in-flight requests counter
func (m *Metrics) IncrementInFlight() {
	m.RequestsInFlight.Inc()
}

// DecrementInFlight decrements the in-flight requests counter
func (m *Metrics) DecrementInFlight() {
	m.RequestsInFlight.Dec()
}

// Helper functions

func environment() string {
	env := strings.ToLower(strings.TrimSpace(os.Getenv("APP_ENV")))
	if env == "" {
		return "development"
	}
	return env
}

func isProduction() bool {
	return environment() == "production"
}

// Enabled returns whether Prometheus metrics should be exposed.
//
// Defaults:
// - production: disabled unless explicitly enabled via METRICS_ENABLED
// - non-production: enabled unless explicitly disabled via METRICS_ENABLED
func Enabled() bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("METRICS_ENABLED")))
	if raw == "" {
		return !isProduction()
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// Global metrics instance
var (
	globalMetrics *Metrics
	globalMu      sync.Mutex
)

// Init initializes the global metrics instance
func Init(serviceName string) *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New(serviceName)
	}
	return globalMetrics
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New("unknown")
	}
	return globalMetrics
}
