// Package telemetry exposes Lantern's Prometheus metrics: request outcomes,
// fallback behavior, cost, and registry freshness.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "lantern"

var (
	// RequestsTotal counts every router request, labeled by the model that
	// ultimately served it and whether it succeeded.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of router requests",
		},
		[]string{"model", "outcome"},
	)

	// AttemptsTotal counts individual backend attempts, including ones that
	// were superseded by a fallback.
	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Total number of backend attempts made while executing requests",
		},
		[]string{"model", "outcome", "error_kind"},
	)

	// FallbacksTotal counts requests that needed more than one attempt to
	// succeed.
	FallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Total number of requests that fell back past the preferred model",
		},
	)

	// RequestLatency tracks end-to-end request latency.
	RequestLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_latency_seconds",
			Help:      "End-to-end router request latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		},
		[]string{"model"},
	)

	// SpendTotal accumulates estimated spend in USD, per model.
	SpendTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spend_total_usd",
			Help:      "Total estimated spend in USD",
		},
		[]string{"model"},
	)

	// SavedTotal accumulates estimated savings in USD from routing to a
	// local model instead of the default cloud fallback.
	SavedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "saved_total_usd",
			Help:      "Total estimated savings in USD from local routing",
		},
	)

	// RegistryStale reports whether the model registry is currently serving
	// a snapshot that hasn't been confirmed by a live probe.
	RegistryStale = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registry_stale",
			Help:      "1 if the model registry is serving a stale snapshot, 0 otherwise",
		},
	)

	// RegistryModels tracks the number of models currently known to the
	// registry, split by provider.
	RegistryModels = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registry_models",
			Help:      "Number of models currently known to the registry",
		},
		[]string{"provider"},
	)

	// ConcurrentRequests tracks in-flight router requests.
	ConcurrentRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "concurrent_requests",
			Help:      "Number of router requests currently in flight",
		},
	)

	// BusyRejections counts requests turned away because the concurrency
	// limit was already saturated.
	BusyRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "busy_rejections_total",
			Help:      "Total number of requests rejected because the router was at capacity",
		},
	)

	// CacheLookupsTotal counts response-cache lookups, labeled by result:
	// exact hit, similarity hit, or miss.
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Total response cache lookups by result",
		},
		[]string{"result"},
	)
)
