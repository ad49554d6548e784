package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests served by the facade.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	upstreamLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ogc_upstream_latency_seconds",
			Help:    "Latency of calls to the OGC service in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"operation"},
	)

	upstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ogc_upstream_requests_total",
			Help: "Calls to the OGC service by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	downloadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ogc_download_bytes_total",
			Help: "Bytes of coverage data written to disk.",
		},
	)

	catalogCacheResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_cache_results_total",
			Help: "Catalog cache lookups by tier and outcome.",
		},
		[]string{"tier", "outcome"},
	)

	eventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "request_events_total",
			Help: "Request events by outcome (queued, dropped, failed).",
		},
		[]string{"outcome"},
	)

	invalidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_invalidations_total",
			Help: "Catalog refresh messages by result (ok, decode, invalid, error).",
		},
		[]string{"result"},
	)

	cacheOpTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_op_total",
			Help: "Redis document tier operations by result.",
		},
		[]string{"op", "result"},
	)

	redisOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Duration of redis operations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op"},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)
)

// Upstream outcomes.
const (
	OutcomeOK              = "ok"
	OutcomeConnection      = "connection_error"
	OutcomeInvalidInstance = "invalid_instance"
	OutcomeServiceError    = "service_error"
)

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveUpstream(operation, outcome string, durationSeconds float64) {
	upstreamLatencySeconds.WithLabelValues(operation).Observe(durationSeconds)
	upstreamRequestsTotal.WithLabelValues(operation, outcome).Inc()
}

func AddDownloadedBytes(n int64) {
	if n > 0 {
		downloadBytesTotal.Add(float64(n))
	}
}

func IncCatalogCache(tier string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	catalogCacheResults.WithLabelValues(tier, outcome).Inc()
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	cacheOpTotal.WithLabelValues(op, result).Inc()
	redisOpDuration.WithLabelValues(op).Observe(durationSeconds)
}

func IncEvent(outcome string) {
	eventsTotal.WithLabelValues(outcome).Inc()
}

func IncInvalidation(result string) {
	invalidationsTotal.WithLabelValues(result).Inc()
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}
