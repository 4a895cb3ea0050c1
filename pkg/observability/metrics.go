package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the tenant manager
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Access resolution metrics
	AccessDecisionsTotal   *prometheus.CounterVec
	AccessResolveDuration  prometheus.Histogram
	AccessResolutionErrors prometheus.Counter

	// Authorization cache metrics
	CacheHitsTotal          *prometheus.CounterVec
	CacheMissesTotal        *prometheus.CounterVec
	CachePutFailuresTotal   prometheus.Counter
	InvalidationsTotal      *prometheus.CounterVec
	InvalidationKeysDeleted prometheus.Counter

	// Rate limiter metrics
	RateLimitRequestsTotal *prometheus.CounterVec
	RateLimitFallbackTotal prometheus.Counter
	RateLimitFallbackMode  prometheus.Gauge
	RateLimitDelayApplied  prometheus.Histogram
}

// NewMetrics creates and registers all Prometheus metrics on the registry.
// Pass nil to register on the default registerer.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenant_manager_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tenant_manager_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		AccessDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenant_manager_access_decisions_total",
				Help: "Access decisions by outcome and denial reason",
			},
			[]string{"outcome", "reason"},
		),
		AccessResolveDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tenant_manager_access_resolve_duration_seconds",
				Help:    "Duration of uncached access resolutions",
				Buckets: prometheus.DefBuckets,
			},
		),
		AccessResolutionErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tenant_manager_access_resolution_errors_total",
				Help: "Directory or subaccount lookups that failed during resolution",
			},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenant_manager_cache_hits_total",
				Help: "Authorization cache hits by key namespace",
			},
			[]string{"namespace"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenant_manager_cache_misses_total",
				Help: "Authorization cache misses by key namespace",
			},
			[]string{"namespace"},
		),
		CachePutFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tenant_manager_cache_put_failures_total",
				Help: "Best-effort cache writes that failed and were dropped",
			},
		),
		InvalidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenant_manager_cache_invalidations_total",
				Help: "Cache invalidation sweeps by scope",
			},
			[]string{"scope"},
		),
		InvalidationKeysDeleted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tenant_manager_cache_invalidation_keys_deleted_total",
				Help: "Cache keys removed by invalidation sweeps",
			},
		),

		RateLimitRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenant_manager_ratelimit_requests_total",
				Help: "Rate limiter verdicts by tier and outcome",
			},
			[]string{"tier", "outcome"},
		),
		RateLimitFallbackTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tenant_manager_ratelimit_fallback_total",
				Help: "Increments served by the in-process fallback store",
			},
		),
		RateLimitFallbackMode: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tenant_manager_ratelimit_fallback_mode",
				Help: "1 while the limiter is running on the in-process fallback store",
			},
		),
		RateLimitDelayApplied: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tenant_manager_ratelimit_delay_seconds",
				Help:    "Artificial delay added by the progressive-delay tier",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5},
			},
		),
	}

	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	if registry != nil {
		registerer = registry
	}
	registerer.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AccessDecisionsTotal,
		m.AccessResolveDuration,
		m.AccessResolutionErrors,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CachePutFailuresTotal,
		m.InvalidationsTotal,
		m.InvalidationKeysDeleted,
		m.RateLimitRequestsTotal,
		m.RateLimitFallbackTotal,
		m.RateLimitFallbackMode,
		m.RateLimitDelayApplied,
	)

	return m
}

// Handler returns the Prometheus scrape handler for the registry the metrics
// were registered on
func Handler(registry *prometheus.Registry) http.Handler {
	if registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
