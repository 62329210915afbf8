package matchqueue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "eventscout"

var (
	queueUpserts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "matchqueue",
			Name:      "upserts_total",
			Help:      "Queue upserts by outcome (written = new row or improved score, kept = incumbent retained)",
		},
		[]string{"outcome"},
	)

	queueSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "matchqueue",
			Name:      "entries",
			Help:      "Number of queue entries by sent state",
		},
		[]string{"state"},
	)

	entriesMarkedSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "matchqueue",
			Name:      "marked_sent_total",
			Help:      "Queue entries flipped to sent",
		},
	)
)

func recordUpsert(written bool) {
	outcome := "kept"
	if written {
		outcome = "written"
	}
	queueUpserts.WithLabelValues(outcome).Inc()
}

func recordMarkedSent(count int64) {
	entriesMarkedSent.Add(float64(count))
}

// RecordQueueStats updates queue size gauges.
func RecordQueueStats(stats *QueueStats) {
	queueSize.WithLabelValues("unsent").Set(float64(stats.Unsent))
	queueSize.WithLabelValues("sent").Set(float64(stats.Sent))
}
