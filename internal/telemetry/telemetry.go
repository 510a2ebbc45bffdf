// Package telemetry holds the Prometheus collectors shared by the upstream
// clients, the aggregator and the HTTP layer.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "metta_upstream_requests_total",
		Help: "Requests issued to external providers, by provider and status code.",
	}, []string{"provider", "status"})

	UpstreamLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "metta_upstream_request_duration_seconds",
		Help:    "Latency of requests to external providers.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})

	RetryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "metta_upstream_retries_total",
		Help: "Retries performed after a retryable upstream failure.",
	}, []string{"provider"})

	ListTruncated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "metta_upstream_list_truncated_total",
		Help: "Paginated listings aborted because more pages remained at the page limit.",
	}, []string{"provider"})

	UnmappedPaymentStatus = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "metta_unmapped_payment_status_total",
		Help: "Payments whose provider status falls outside every bucket.",
	}, []string{"status"})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "metta_cache_lookups_total",
		Help: "Response cache lookups by result (hit, miss, error).",
	}, []string{"result"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "metta_http_requests_total",
		Help: "Requests served by the API, by route pattern, method and status.",
	}, []string{"route", "method", "code"})

	HTTPLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "metta_http_request_duration_seconds",
		Help:    "Latency of API requests by route pattern.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)
