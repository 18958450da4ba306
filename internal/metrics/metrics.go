package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsEnqueuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "spool_jobs_enqueued_total",
			Help: "Total number of print jobs accepted into the queue",
		},
	)

	// outcome: printed, retry, failed, error
	PrintAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spool_print_attempts_total",
			Help: "Print attempts made by the queue processor, by outcome",
		},
		[]string{"outcome"},
	)

	QueueJobs = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "spool_queue_jobs",
			Help: "Jobs currently stored in the queue, by status",
		},
		[]string{"status"},
	)

	TickDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "spool_tick_duration_seconds",
			Help:    "Time spent processing one queue tick",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	DiscoveryRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spool_discovery_runs_total",
			Help: "Bluetooth discovery command runs, by mode and result",
		},
		[]string{"mode", "result"},
	)

	NotifierClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "spool_notifier_clients",
			Help: "WebSocket clients currently connected",
		},
	)
)

// SetQueueDepth publishes per-status job counts.
func SetQueueDepth(pending, printed, failed, errored int) {
	QueueJobs.WithLabelValues("pending").Set(float64(pending))
	QueueJobs.WithLabelValues("printed").Set(float64(printed))
	QueueJobs.WithLabelValues("failed").Set(float64(failed))
	QueueJobs.WithLabelValues("error").Set(float64(errored))
}
