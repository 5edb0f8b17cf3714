// Package telemetry defines the Prometheus metrics tenantly exposes on
// /metrics.
//
// Metric naming follows Prometheus conventions:
//   - tenantly_ prefix for all metrics
//   - _total suffix for counters
//   - _seconds suffix for duration histograms
//
// A nil *Metrics is valid and records nothing, so packages can take one as an
// optional dependency.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cache operation results.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheOK    = "ok"
	CacheError = "error"
	CacheSkip  = "skipped"
)

// Metrics owns a private registry and the collectors registered on it.
type Metrics struct {
	registry *prometheus.Registry

	// RequestsTotal counts HTTP requests by method, route pattern and status.
	RequestsTotal *prometheus.CounterVec

	// RequestDuration is a histogram of request latency by method and route.
	RequestDuration *prometheus.HistogramVec

	// CacheOperations counts cache calls by operation and result.
	CacheOperations *prometheus.CounterVec

	// AuthFailures counts rejected credentials by scheme (bearer, apikey).
	AuthFailures *prometheus.CounterVec

	// RealtimeConnections is the number of open websocket connections.
	RealtimeConnections prometheus.Gauge
}

// New builds a Metrics with its own registry, including the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantly_http_requests_total",
				Help: "Total number of HTTP requests by method, route and status.",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tenantly_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		CacheOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantly_cache_operations_total",
				Help: "Total cache operations by operation and result.",
			},
			[]string{"op", "result"},
		),
		AuthFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantly_auth_failures_total",
				Help: "Total rejected credentials by scheme.",
			},
			[]string{"scheme"},
		),
		RealtimeConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tenantly_realtime_connections",
				Help: "Number of open realtime connections.",
			},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RequestsTotal,
		m.RequestDuration,
		m.CacheOperations,
		m.AuthFailures,
		m.RealtimeConnections,
	)
	return m
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest records one completed HTTP request.
func (m *Metrics) RecordRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordCache records a cache operation outcome.
func (m *Metrics) RecordCache(op, result string) {
	if m == nil {
		return
	}
	m.CacheOperations.WithLabelValues(op, result).Inc()
}

// RecordAuthFailure records a rejected credential for scheme.
func (m *Metrics) RecordAuthFailure(scheme string) {
	if m == nil {
		return
	}
	m.AuthFailures.WithLabelValues(scheme).Inc()
}

// ConnectionOpened increments the realtime connection gauge.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.RealtimeConnections.Inc()
}

// ConnectionClosed decrements the realtime connection gauge.
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.RealtimeConnections.Dec()
}
