// Package metrics provides Prometheus metrics collection for the proxy engine.
package metrics

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors exposed by the proxy.
type Metrics struct {
	// Admin/control API HTTP metrics.
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Proxy engine metrics.
	ProxiedRequestsTotal *prometheus.CounterVec
	UpstreamDuration     prometheus.Histogram
	TunnelsActive        prometheus.Gauge
	TunnelsTotal         prometheus.Counter

	// Flow engine metrics.
	FlowMatchesTotal    *prometheus.CounterVec
	FlowExecutionErrors *prometheus.CounterVec

	// Certificate authority metrics.
	LeafCertsIssuedTotal prometheus.Counter
	LeafCacheHitsTotal   prometheus.Counter

	// Script sandbox metrics.
	ScriptExecutionDuration prometheus.Histogram
	ScriptErrorsTotal       prometheus.Counter

	// Recorder metrics.
	RecorderSize prometheus.Gauge

	ServiceUptime prometheus.Gauge
	ServiceInfo   *prometheus.GaugeVec
}

// New creates a Metrics instance registered against the default registry.
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a Metrics instance registered against a custom registry.
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admin_http_requests_total",
				Help: "Total number of admin/control API HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "admin_http_request_duration_seconds",
				Help:    "Admin API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "admin_http_requests_in_flight",
				Help: "Admin API requests currently being processed",
			},
		),
		ProxiedRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proxy_requests_total",
				Help: "Total number of proxied HTTP requests, by outcome",
			},
			[]string{"outcome"}, // forwarded | synthesized | bad_gateway
		),
		UpstreamDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "proxy_upstream_duration_seconds",
				Help:    "Time spent waiting on the upstream round trip",
				Buckets: prometheus.DefBuckets,
			},
		),
		TunnelsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "proxy_tunnels_active",
				Help: "Number of currently spliced CONNECT tunnels",
			},
		),
		TunnelsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "proxy_tunnels_total",
				Help: "Total number of CONNECT tunnels opened",
			},
		),
		FlowMatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flow_matches_total",
				Help: "Total number of requests matched to a flow, by flow id",
			},
			[]string{"flow_id"},
		),
		FlowExecutionErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flow_execution_errors_total",
				Help: "Total number of flow node execution errors, by node kind",
			},
			[]string{"node_kind"},
		),
		LeafCertsIssuedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ca_leaf_certs_issued_total",
				Help: "Total number of leaf certificates minted by the CA",
			},
		),
		LeafCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ca_leaf_cache_hits_total",
				Help: "Total number of leaf certificate cache hits",
			},
		),
		ScriptExecutionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "script_execution_duration_seconds",
				Help:    "Time spent executing a user script in the sandbox",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
		),
		ScriptErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "script_errors_total",
				Help: "Total number of user script executions that threw",
			},
		),
		RecorderSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "recorder_entries",
				Help: "Current number of entries held by the request recorder",
			},
		),
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
			[]string{"service", "version"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.RequestsTotal,
			m.RequestDuration,
			m.RequestsInFlight,
			m.ProxiedRequestsTotal,
			m.UpstreamDuration,
			m.TunnelsActive,
			m.TunnelsTotal,
			m.FlowMatchesTotal,
			m.FlowExecutionErrors,
			m.LeafCertsIssuedTotal,
			m.LeafCacheHitsTotal,
			m.ScriptExecutionDuration,
			m.ScriptErrorsTotal,
			m.RecorderSize,
			m.ServiceUptime,
			m.ServiceInfo,
		)
	}

	m.ServiceInfo.WithLabelValues(serviceName, "1.0.0").Set(1)

	return m
}

// RecordHTTPRequest records an admin API HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordProxied records the outcome of one proxied request.
func (m *Metrics) RecordProxied(outcome string, upstreamDuration time.Duration) {
	m.ProxiedRequestsTotal.WithLabelValues(outcome).Inc()
	if upstreamDuration > 0 {
		m.UpstreamDuration.Observe(upstreamDuration.Seconds())
	}
}

// RecordFlowMatch records which flow a request matched.
func (m *Metrics) RecordFlowMatch(flowID string) {
	m.FlowMatchesTotal.WithLabelValues(flowID).Inc()
}

// RecordFlowError records a node execution error by node kind.
func (m *Metrics) RecordFlowError(nodeKind string) {
	m.FlowExecutionErrors.WithLabelValues(nodeKind).Inc()
}

// UpdateUptime updates the service uptime gauge.
func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.ServiceUptime.Set(time.Since(startTime).Seconds())
}

// IncrementInFlight increments the in-flight admin request counter.
func (m *Metrics) IncrementInFlight() { m.RequestsInFlight.Inc() }

// DecrementInFlight decrements the in-flight admin request counter.
func (m *Metrics) DecrementInFlight() { m.RequestsInFlight.Dec() }

// Enabled returns whether Prometheus metrics should be exposed.
// Defaults to enabled unless explicitly disabled via METRICS_ENABLED.
func Enabled() bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("METRICS_ENABLED")))
	if raw == "" {
		return true
	}
	switch raw {
	case "0", "false", "no", "off":
		return false
	default:
		return true
	}
}

var (
	globalMetrics *Metrics
	globalMu      sync.Mutex
)

// Init initializes the global metrics instance.
func Init(serviceName string) *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New(serviceName)
	}
	return globalMetrics
}

// Global returns the global metrics instance, creating one lazily if needed.
func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New("debugproxy")
	}
	return globalMetrics
}
