package digest

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "eventscout"

var (
	digestsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "digest",
			Name:      "sent_total",
			Help:      "Digests successfully handed to the mailer",
		},
	)

	digestEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "digest",
			Name:      "events_total",
			Help:      "Events included in sent digests",
		},
	)

	digestsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "digest",
			Name:      "dropped_total",
			Help:      "Digests disposed of without delivery (sending disabled)",
		},
	)

	emptyDigests = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "digest",
			Name:      "empty_total",
			Help:      "Due subscriptions rescheduled without mailing (no unsent matches)",
		},
	)

	digestFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "digest",
			Name:      "failures_total",
			Help:      "Per-subscription digest failures by stage",
		},
		[]string{"stage"},
	)

	cycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "digest",
			Name:      "cycle_duration_seconds",
			Help:      "Time to run one digest cycle",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	sendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "digest",
			Name:      "send_duration_seconds",
			Help:      "Time for one mailer send",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)
)

func recordCycle(report *Report, duration time.Duration) {
	cycleDuration.Observe(duration.Seconds())
	digestsSent.Add(float64(report.DigestsSent))
	digestsDropped.Add(float64(report.DigestsDropped))
	digestEvents.Add(float64(report.EventsIncluded))
	emptyDigests.Add(float64(report.EmptyDigests))
	for _, f := range report.Failures {
		digestFailures.WithLabelValues(f.Stage).Inc()
	}
}
