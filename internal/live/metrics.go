package live

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	subscriptionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "traty",
			Subsystem: "live",
			Name:      "subscriptions_active",
			Help:      "Number of open live-query subscriptions.",
		},
	)

	changesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "traty",
			Subsystem: "live",
			Name:      "table_changes_total",
			Help:      "Table changes that woke subscribers.",
		},
	)

	snapshotsDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "traty",
			Subsystem: "live",
			Name:      "snapshots_delivered_total",
			Help:      "Snapshots handed to subscribers.",
		},
	)
)
