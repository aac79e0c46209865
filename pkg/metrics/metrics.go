// Package metrics documents the Prometheus metrics of the Coinbase client.
// Metrics are defined with promauto in the packages that record them
// (transport, auth, clock, pagination, client, cache, ratelimit) and land in the
// default registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer all client metrics are registered with.
var Registry = prometheus.DefaultRegisterer

// Names lists every metric the client registers.
var Names = []string{
	// pkg/transport
	"cb_requests_total",
	"cb_request_duration_seconds",
	"cb_transport_errors_total",

	// pkg/auth
	"cb_sign_total",

	// pkg/clock
	"cb_clock_skew_seconds",
	"cb_clock_observations_total",

	// pkg/pagination
	"cb_pages_fetched_total",
	"cb_stream_failures_total",

	// pkg/client
	"cb_retries_total",
	"cb_retry_backoff_seconds",
	"cb_retry_exhausted_total",

	// pkg/cache
	"cb_cache_hits_total",
	"cb_cache_misses_total",
	"cb_cache_errors_total",
	"cb_304_responses_total",
	"cb_cache_size_bytes",

	// pkg/ratelimit
	"cb_rate_limit_remaining",
	"cb_rate_limit_waits_total",
	"cb_rate_limit_hits_total",
}

// Handler serves the default gatherer in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Request Metrics (pkg/transport):
//   - cb_requests_total{endpoint, status} (Counter): Responses by endpoint and HTTP status
//   - cb_request_duration_seconds{endpoint} (Histogram): Round trip duration
//   - cb_transport_errors_total{kind} (Counter): Failures by kind (connect, tls, timeout, canceled)
//
// Signing Metrics (pkg/auth):
//   - cb_sign_total{scheme, result} (Counter): Signatures by scheme (hmac, jwt) and result
//
// Clock Metrics (pkg/clock):
//   - cb_clock_skew_seconds (Gauge): Current server minus local clock estimate
//   - cb_clock_observations_total{source} (Counter): Skew updates by source (rejection, poll, manual)
//
// Pagination Metrics (pkg/pagination):
//   - cb_pages_fetched_total{endpoint} (Counter): Pages decoded
//   - cb_stream_failures_total{endpoint, reason} (Counter): Streams ended by fetch, status, decode or cursor_loop
//
// Retry Metrics (pkg/client):
//   - cb_retries_total{reason} (Counter): Retry attempts by error class
//   - cb_retry_backoff_seconds{reason} (Histogram): Backoff before each retry
//   - cb_retry_exhausted_total{reason} (Counter): Calls that used every attempt
//
// Cache Metrics (pkg/cache):
//   - cb_cache_hits_total{layer="redis"} (Counter): Fresh hits
//   - cb_cache_misses_total (Counter): Misses
//   - cb_cache_errors_total{operation} (Counter): Redis errors by operation
//   - cb_304_responses_total (Counter): Successful revalidations
//   - cb_cache_size_bytes{layer="redis"} (Gauge): Bytes written
//
// Rate Limit Metrics (pkg/ratelimit):
//   - cb_rate_limit_remaining (Gauge): Request budget last reported by the API
//   - cb_rate_limit_hits_total (Counter): 429 responses recorded
//   - cb_rate_limit_waits_total (Counter): Requests delayed until a shared reset
//
// Example Prometheus Queries:
//
//   # Auth rejections that corrected the clock
//   rate(cb_clock_observations_total{source="rejection"}[5m])
//
//   # Absolute skew
//   abs(cb_clock_skew_seconds)
//
//   # Stream failure rate by endpoint
//   sum by (endpoint) (rate(cb_stream_failures_total[5m]))
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(cb_request_duration_seconds_bucket[5m]))
//
//   # Requests held back by a shared rate limit
//   rate(cb_rate_limit_waits_total[5m])
//
//   # Cache Hit Rate
//   sum(rate(cb_cache_hits_total[5m])) /
//   (sum(rate(cb_cache_hits_total[5m])) + sum(rate(cb_cache_misses_total[5m])))
