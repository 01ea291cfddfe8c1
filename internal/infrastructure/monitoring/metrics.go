// Package monitoring provides Prometheus metrics for the daemon: HTTP
// request accounting, terminal session lifecycle and per-command outcomes.
package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors. Each Metrics value carries its
// own registry so independent instances (and tests) never collide.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Terminal session metrics
	SessionsActive  prometheus.Gauge
	SessionsCreated prometheus.Counter
	SessionsClosed  prometheus.Counter

	// Command execution metrics
	CommandsTotal   *prometheus.CounterVec
	CommandDuration prometheus.Histogram

	// WebSocket metrics
	WSConnections prometheus.Gauge
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edgeterm_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "edgeterm_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "edgeterm_sessions_active",
				Help: "Number of registered terminal sessions",
			},
		),
		SessionsCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "edgeterm_sessions_created_total",
				Help: "Total number of terminal sessions created",
			},
		),
		SessionsClosed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "edgeterm_sessions_closed_total",
				Help: "Total number of terminal sessions closed",
			},
		),

		CommandsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edgeterm_commands_total",
				Help: "Total number of executed commands by outcome",
			},
			[]string{"status"},
		),
		CommandDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "edgeterm_command_duration_seconds",
				Help:    "Command execution duration in seconds, including the read loop",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "edgeterm_ws_connections",
				Help: "Number of open WebSocket connections",
			},
		),
	}
}

// Handler returns the Prometheus exposition handler for this collector.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records one handled HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// SessionOpened records a session creation.
func (m *Metrics) SessionOpened() {
	m.SessionsCreated.Inc()
	m.SessionsActive.Inc()
}

// SessionClosed records a session teardown.
func (m *Metrics) SessionClosed() {
	m.SessionsClosed.Inc()
	m.SessionsActive.Dec()
}

// RecordCommand records one ExecuteCommand outcome.
func (m *Metrics) RecordCommand(status string, duration time.Duration) {
	m.CommandsTotal.WithLabelValues(status).Inc()
	if duration > 0 {
		m.CommandDuration.Observe(duration.Seconds())
	}
}

// WSConnected records a WebSocket connection being opened.
func (m *Metrics) WSConnected() {
	m.WSConnections.Inc()
}

// WSDisconnected records a WebSocket connection being closed.
func (m *Metrics) WSDisconnected() {
	m.WSConnections.Dec()
}
