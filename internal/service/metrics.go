package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SweepMetrics exposes what the background sweep has been doing. One sweep
// cycle can purge retained trash, reclaim orphaned uploads and retry queued
// object deletions; each gets its own counter.
type SweepMetrics struct {
	RetentionPurgedNodes prometheus.Counter
	OrphansReclaimed     prometheus.Counter
	QueueRetries         prometheus.Counter
	Errors               prometheus.Counter
}

// NewSweepMetrics registers the sweep counters on the given registry.
func NewSweepMetrics(registry prometheus.Registerer) *SweepMetrics {
	return &SweepMetrics{
		RetentionPurgedNodes: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Namespace: "droply",
			Name:      "sweep_retention_purged_nodes_total",
			Help:      "Nodes permanently removed by the retention sweep.",
		}),
		OrphansReclaimed: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Namespace: "droply",
			Name:      "sweep_orphans_reclaimed_total",
			Help:      "Orphaned upload objects deleted after their token expired.",
		}),
		QueueRetries: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Namespace: "droply",
			Name:      "sweep_purge_queue_retries_total",
			Help:      "Queued object deletions retried by the sweep.",
		}),
		Errors: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Namespace: "droply",
			Name:      "sweep_errors_total",
			Help:      "Per-item failures encountered during sweep cycles.",
		}),
	}
}
