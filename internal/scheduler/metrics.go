package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sweepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_sweeps_total",
			Help: "Total number of dispatch sweeps by result.",
		},
		[]string{"result"},
	)

	outcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_outcomes_total",
			Help: "Total number of delivery attempt outcomes by channel.",
		},
		[]string{"channel", "outcome"},
	)

	sendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notifier_send_duration_seconds",
			Help:    "Duration of provider send calls in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"channel"},
	)
)
