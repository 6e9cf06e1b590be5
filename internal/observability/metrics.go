package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// namespace defines the global prefix for all metrics (e.g., pulse_...).
const namespace = "pulse"

var (
	// -------------------------------------------------------------------------
	// API (HTTP)
	// -------------------------------------------------------------------------

	// APIReqDuration measures the latency of HTTP requests.
	// Metric: pulse_api_http_handling_seconds
	APIReqDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "http_handling_seconds",
		Help:      "Time taken to handle HTTP requests",
		Buckets:   prometheus.DefBuckets, // Dashboard polling runs at human speed
	}, []string{"method", "path"})

	// APIReqTotal counts the total number of HTTP requests.
	// Metric: pulse_api_http_requests_total
	APIReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests",
	}, []string{"method", "path", "code"})

	// -------------------------------------------------------------------------
	// CARD ENGINE
	// -------------------------------------------------------------------------

	// CardComputations counts card value computations by calculation kind and
	// outcome ("ok" or the error tag that was rendered).
	// Metric: pulse_engine_card_computations_total
	CardComputations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "card_computations_total",
		Help:      "Total card value computations by calculation kind and outcome",
	}, []string{"calc_kind", "outcome"})

	// RefreshDuration measures the latency of a full dashboard refresh
	// (all active cards for one actor).
	// Metric: pulse_engine_refresh_seconds
	RefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "refresh_seconds",
		Help:      "Time taken to compute all active cards for one refresh",
		Buckets:   prometheus.DefBuckets,
	})

	// -------------------------------------------------------------------------
	// CONFIG CACHE (L1)
	// -------------------------------------------------------------------------

	ConfigCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "config_cache_hits_total",
		Help:      "Total card config cache hits (in-memory)",
	})

	ConfigCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "config_cache_misses_total",
		Help:      "Total card config cache misses",
	})

	// ConfigCacheInvalidations tracks invalidation events received via PubSub.
	// Metric: pulse_engine_config_cache_invalidations_total
	ConfigCacheInvalidations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "config_cache_invalidations_total",
		Help:      "Total cache invalidation events received via PubSub",
	})
)
