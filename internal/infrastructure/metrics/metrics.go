package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hlsd",
		Name:      "queue_depth",
		Help:      "Number of encode jobs waiting for a worker.",
	})

	ActiveEncodes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hlsd",
		Name:      "active_encodes",
		Help:      "Number of encoder processes currently supervised.",
	})

	SubmissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hlsd",
		Name:      "submissions_total",
		Help:      "Encode submissions by result.",
	}, []string{"result"})

	EncodeOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hlsd",
		Name:      "encode_outcomes_total",
		Help:      "Finished encodes by outcome.",
	}, []string{"outcome"})

	EncodeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "hlsd",
		Name:      "encode_duration_seconds",
		Help:      "Wall time of supervised encodes.",
		Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200, 3600},
	})

	MetadataWriteConflictsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hlsd",
		Name:      "metadata_write_conflicts_total",
		Help:      "Metadata writes that hit store contention and were retried.",
	})

	MetadataWriteFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hlsd",
		Name:      "metadata_write_failures_total",
		Help:      "Metadata writes abandoned after retries.",
	})

	ReconcileResubmissionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hlsd",
		Name:      "reconcile_resubmissions_total",
		Help:      "Items re-queued by startup reconciliation.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		QueueDepth,
		ActiveEncodes,
		SubmissionsTotal,
		EncodeOutcomesTotal,
		EncodeDuration,
		MetadataWriteConflictsTotal,
		MetadataWriteFailuresTotal,
		ReconcileResubmissionsTotal,
	)
}
