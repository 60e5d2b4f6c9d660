package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Permission check metrics
	PermissionChecksTotal   *prometheus.CounterVec
	PermissionCheckDuration *prometheus.HistogramVec

	// Token validation metrics
	TokenValidationsTotal *prometheus.CounterVec
	KeySetRefreshesTotal  *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Audit metrics
	AuditWriteFailuresTotal prometheus.Counter

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sentinel_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		PermissionChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_permission_checks_total",
				Help: "Total number of permission checks by outcome and error code",
			},
			[]string{"outcome", "error_code"},
		),
		PermissionCheckDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sentinel_permission_check_duration_seconds",
				Help:    "Permission check duration in seconds by stage reached",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),

		TokenValidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_token_validations_total",
				Help: "Total number of token validations by result",
			},
			[]string{"result"},
		),
		KeySetRefreshesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_keyset_refreshes_total",
				Help: "Total number of signing key set refreshes by status",
			},
			[]string{"status"},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_cache_hits_total",
				Help: "Total number of cache hits by cache name",
			},
			[]string{"cache"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_cache_misses_total",
				Help: "Total number of cache misses by cache name",
			},
			[]string{"cache"},
		),

		AuditWriteFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sentinel_audit_write_failures_total",
				Help: "Total number of swallowed audit sink failures",
			},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sentinel_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sentinel_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.PermissionChecksTotal,
		m.PermissionCheckDuration,
		m.TokenValidationsTotal,
		m.KeySetRefreshesTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.AuditWriteFailuresTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// RecordHTTPRequest records metrics for a completed HTTP request
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordPermissionCheck records the outcome of one permission check
func (m *Metrics) RecordPermissionCheck(allowed bool, errorCode string, duration time.Duration) {
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	if errorCode == "" {
		errorCode = "none"
	}
	m.PermissionChecksTotal.WithLabelValues(outcome, errorCode).Inc()
	m.PermissionCheckDuration.WithLabelValues("complete").Observe(duration.Seconds())
}

// RecordTokenValidation records a token validation result label
func (m *Metrics) RecordTokenValidation(result string) {
	m.TokenValidationsTotal.WithLabelValues(result).Inc()
}

// RecordCacheHit records a hit for the named cache
func (m *Metrics) RecordCacheHit(cache string) {
	m.CacheHitsTotal.WithLabelValues(cache).Inc()
}

// RecordCacheMiss records a miss for the named cache
func (m *Metrics) RecordCacheMiss(cache string) {
	m.CacheMissesTotal.WithLabelValues(cache).Inc()
}

// Handler returns an HTTP handler serving the metrics registry
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
