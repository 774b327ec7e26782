package metrics

import (
	"time"

	"github.com/shoplens/shoplens/internal/observability"
)

// Application-level metrics following Prometheus conventions
var (
	// GraphQL execution metrics
	QueriesTotal    = "app_graphql_queries_total"
	QueryCostTotal  = "app_graphql_query_cost_total"
	QueryDuration   = "app_graphql_query_duration_ms"
	ThrottledTotal  = "app_graphql_throttled_total"
	AvailablePoints = "app_throttle_available_points"

	// Cache metrics
	CacheHitsTotal   = "app_cache_hits_total"
	CacheMissesTotal = "app_cache_misses_total"
	CacheEntries     = "app_cache_entries"

	// Health check metrics
	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"

	// Server lifecycle metrics
	ServerStartTime = "app_server_start_time_seconds"
	ServerUptime    = "app_server_uptime_seconds"
)

// RecordQuery records a GraphQL execution with its outcome and source.
func RecordQuery(success bool, fromCache bool, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}

	status := "success"
	if !success {
		status = "failure"
	}
	source := "network"
	if fromCache {
		source = "cache"
	}

	_ = observability.TelemetrySystem.Counter(
		QueriesTotal,
		1,
		map[string]string{
			"status": status,
			"source": source,
		},
	)

	_ = observability.TelemetrySystem.Histogram(
		QueryDuration,
		duration,
		map[string]string{"source": source},
	)
}

// RecordQueryCost records the actual cost points consumed by a query.
func RecordQueryCost(cost float64) {
	if observability.TelemetrySystem != nil && cost > 0 {
		_ = observability.TelemetrySystem.Counter(QueryCostTotal, cost, nil)
	}
}

// RecordThrottled records a throttled response.
func RecordThrottled() {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(ThrottledTotal, 1, nil)
	}
}

// SetAvailablePoints publishes the most recent bucket level.
func SetAvailablePoints(points float64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(AvailablePoints, points, nil)
	}
}

// RecordCacheAccess records a cache hit or miss.
func RecordCacheAccess(hit bool) {
	if observability.TelemetrySystem == nil {
		return
	}
	name := CacheMissesTotal
	if hit {
		name = CacheHitsTotal
	}
	_ = observability.TelemetrySystem.Counter(name, 1, nil)
}

// SetCacheEntries publishes the current cache entry count.
func SetCacheEntries(count int) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(CacheEntries, float64(count), nil)
	}
}

// RecordHealthCheck records a health check execution
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			HealthCheckTotal,
			1,
			map[string]string{
				"check":  checkName,
				"status": status,
			},
		)

		_ = observability.TelemetrySystem.Histogram(
			HealthCheckDuration,
			duration,
			map[string]string{
				"check": checkName,
			},
		)
	}
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			ServerStartTime,
			float64(timestamp),
			nil,
		)
	}
}

// SetServerUptime records the server uptime in seconds
func SetServerUptime(seconds int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			ServerUptime,
			float64(seconds),
			nil,
		)
	}
}
