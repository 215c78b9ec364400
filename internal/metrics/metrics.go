package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Catalog metrics
var (
	CatalogSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "snaphound_catalog_items",
			Help: "Number of descriptors currently held in the catalog",
		},
	)

	PushMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snaphound_push_messages_total",
			Help: "Total number of host push messages received",
		},
		[]string{"name"},
	)

	StaleEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snaphound_stale_events_dropped_total",
			Help: "Push messages discarded because their stream or epoch was not current",
		},
		[]string{"name"},
	)
)

// Search metrics
var (
	DispatchedRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snaphound_search_dispatched_total",
			Help: "Settled queries sent to the host",
		},
		[]string{"mode"},
	)
)

// Host transport metrics
var (
	RPCRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snaphound_rpc_requests_total",
			Help: "Total number of RPC calls made to the host",
		},
		[]string{"call", "status"},
	)

	RPCRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snaphound_rpc_retries_total",
			Help: "Total number of RPC retries after transient failures",
		},
		[]string{"call"},
	)

	RPCDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "snaphound_rpc_duration_seconds",
			Help:    "RPC call duration in seconds, including retries",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"call"},
	)

	SubscriptionFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snaphound_subscription_failures_total",
			Help: "Push channel subscriptions that failed or ended unexpectedly",
		},
	)
)

// Resource metrics
var (
	ResourcesResolvedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snaphound_resources_resolved_total",
			Help: "Item resources resolved after becoming visible",
		},
	)

	ResourceFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snaphound_resource_failures_total",
			Help: "Resolved resources that failed to load",
		},
	)
)
