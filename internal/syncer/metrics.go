package syncer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Call outcomes recorded in syncCalls.
const (
	outcomeSuccess      = "success"
	outcomeFailure      = "failure"
	outcomeUnauthorized = "unauthorized"
	outcomeSkipped      = "skipped"
)

var (
	syncCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_sync_calls_total",
			Help: "Remote sync calls by store, operation and outcome",
		},
		[]string{"store", "op", "outcome"},
	)

	syncQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "storefront_sync_queue_depth",
			Help: "Sync tasks queued or running",
		},
		[]string{"store"},
	)

	syncConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "storefront_sync_consecutive_failures",
			Help: "Consecutive remote sync failures",
		},
		[]string{"store"},
	)

	syncCircuitOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "storefront_sync_circuit_open",
			Help: "1 while remote sync is suspended by the breaker",
		},
		[]string{"store"},
	)

	syncTaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_sync_task_duration_seconds",
			Help:    "Duration of background sync tasks",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"store", "task"},
	)
)
