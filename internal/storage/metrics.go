package storage

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "traty",
			Subsystem: "storage",
			Name:      "operation_duration_seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"operation"},
	)

	cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "traty",
			Subsystem: "storage",
			Name:      "snapshot_cache_lookups_total",
		},
		[]string{"result"},
	)
)

func observe(op string, start time.Time) {
	operationDuration.
		WithLabelValues(op).
		Observe(time.Since(start).Seconds())
}
