package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "traty",
			Subsystem: "events",
			Name:      "published_total",
		},
		[]string{"kind"},
	)

	eventsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "traty",
			Subsystem: "events",
			Name:      "publish_failures_total",
		},
		[]string{"kind"},
	)
)
