// Package metrics holds the process-wide Prometheus collectors for
// ja3sentry: package-level vars registered once via sync.Once, all
// namespaced under the project name.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// --- Monitor / bucket accounting ---
	ActiveBuckets = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ja3sentry",
			Name:      "active_buckets",
			Help:      "Current number of keys tracked in the bucket table.",
		},
	)

	BucketsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ja3sentry",
			Name:      "buckets_created_total",
			Help:      "Total number of buckets created for newly seen keys.",
		},
	)

	ViolationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ja3sentry",
			Name:      "violations_total",
			Help:      "Total number of threshold violations declared by the monitor.",
		},
	)

	// --- Alert ledger / transport ---
	ActiveLedgerEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ja3sentry",
			Name:      "active_ledger_entries",
			Help:      "Current number of keys tracked in the alert ledger.",
		},
	)

	AlertsPostedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ja3sentry",
			Name:      "alerts_posted_total",
			Help:      "Total alerts successfully posted, labeled by realert.",
		},
		[]string{"realert"},
	)

	AlertsSuppressedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ja3sentry",
			Name:      "alerts_suppressed_total",
			Help:      "Total alerts suppressed by dedup within the window.",
		},
	)

	AlertTransportErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ja3sentry",
			Name:      "alert_transport_errors_total",
			Help:      "Total alert POSTs that failed at the transport or status-code level.",
		},
	)

	// --- Pipeline queues ---
	MonitorQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ja3sentry",
			Name:      "monitor_queue_depth",
			Help:      "Current number of items buffered in the monitor queue.",
		},
	)

	AlertQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ja3sentry",
			Name:      "alert_queue_depth",
			Help:      "Current number of items buffered in the alert queue.",
		},
	)

	PacketsIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ja3sentry",
			Name:      "packets_ingested_total",
			Help:      "Total packets seen by the ingest stage, labeled by kind (interesting, ignored, ip_whitelisted).",
		},
		[]string{"kind"},
	)

	registerOnce sync.Once
)

// Register registers all collectors exactly once against reg.
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(
			ActiveBuckets,
			BucketsCreatedTotal,
			ViolationsTotal,
			ActiveLedgerEntries,
			AlertsPostedTotal,
			AlertsSuppressedTotal,
			AlertTransportErrorsTotal,
			MonitorQueueDepth,
			AlertQueueDepth,
			PacketsIngestedTotal,
		)
	})
}
