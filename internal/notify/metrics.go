package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	notificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "traty",
			Subsystem: "notify",
			Name:      "sent_total",
		},
		[]string{"kind"},
	)

	notificationsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "traty",
			Subsystem: "notify",
			Name:      "failures_total",
		},
		[]string{"kind"},
	)
)
