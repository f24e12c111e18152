package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "vilo"

var (
	once sync.Once

	syncRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_sync_runs_total",
			Help:      "Count of channel sync runs by trigger and terminal status.",
		},
		[]string{"sync_type", "status"},
	)

	syncDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "channel_sync_duration_seconds",
			Help:      "Wall time of a channel sync run.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"sync_type"},
	)

	recordsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_sync_records_total",
			Help:      "Count of feed records by outcome (created, updated, failed, skipped).",
		},
		[]string{"outcome"},
	)

	conflictsFlagged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_sync_conflicts_total",
			Help:      "Count of ingested reservations flagged as conflicting.",
		},
	)

	feedFetches = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ical_feed_fetch_duration_seconds",
			Help:      "Duration of iCal feed fetches by host and outcome.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"host", "outcome"},
	)

	schedulerTicks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_scheduler_ticks_total",
			Help:      "Count of scheduler ticks.",
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(syncRuns, syncDuration, recordsIngested, conflictsFlagged, feedFetches, schedulerTicks)
	})
}

func ObserveSyncRun(syncType, status string, elapsed time.Duration) {
	syncRuns.WithLabelValues(syncType, status).Inc()
	syncDuration.WithLabelValues(syncType).Observe(elapsed.Seconds())
}

func AddRecords(outcome string, n int) {
	if n > 0 {
		recordsIngested.WithLabelValues(outcome).Add(float64(n))
	}
}

func AddConflicts(n int) {
	if n > 0 {
		conflictsFlagged.Add(float64(n))
	}
}

func ObserveFeedFetch(host, outcome string, elapsed time.Duration) {
	feedFetches.WithLabelValues(host, outcome).Observe(elapsed.Seconds())
}

func IncSchedulerTick() {
	schedulerTicks.Inc()
}
