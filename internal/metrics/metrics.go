// Package metrics provides Prometheus metrics for the dispatcher: request
// counts, cache effectiveness, errors, and provider latencies.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "llmrelay"

// LatencyBuckets defines histogram buckets for provider latency (seconds).
// LLM calls routinely run into tens of seconds, so the tail is long.
var LatencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 4.0, 8.0, 15.0, 30.0, 60.0, 120.0,
}

var (
	// RequestsTotal counts dispatched requests by provider and outcome.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of dispatch requests",
		},
		[]string{"provider", "status"},
	)

	// CacheHitsTotal counts responses served from the response cache.
	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of response cache hits",
		},
	)

	// ErrorsTotal counts terminal dispatch failures by provider and type.
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total number of terminal dispatch failures",
		},
		[]string{"provider", "type"},
	)

	// ProviderLatency tracks wall-clock latency of provider calls.
	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_latency_seconds",
			Help:      "Provider call latency in seconds",
			Buckets:   LatencyBuckets,
		},
		[]string{"provider"},
	)

	// RetriesTotal counts retry attempts beyond the first, by provider.
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Total number of retry attempts",
		},
		[]string{"provider"},
	)

	// BatchFlushSize observes how full batches are when flushed.
	BatchFlushSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_flush_size",
			Help:      "Number of requests per batch flush",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
		},
	)
)
