package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	schedulesFiredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_schedules_fired_total",
			Help: "Total number of schedule executions that succeeded",
		},
		[]string{"action"},
	)

	schedulesFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_schedules_failed_total",
			Help: "Total number of schedule executions that failed",
		},
		[]string{"action"},
	)

	schedulesSkippedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "workflow_schedules_skipped_total",
			Help: "Total number of due schedules skipped because another worker held the lock",
		},
	)

	scheduleRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "workflow_schedule_run_duration_seconds",
			Help:    "Duration of a single trigger sweep in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)
)
