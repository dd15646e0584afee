package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики выполнения юнитов и блокировки проекта.
var (
	unitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lineage_units_total",
		Help: "Executed workflow units by final status.",
	}, []string{"status", "plan"})

	unitDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lineage_unit_duration_seconds",
		Help:    "Wall-clock duration of executed units.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
	}, []string{"plan"})

	lockWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lineage_project_lock_wait_seconds",
		Help:    "Time spent waiting for the project advisory lock.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	})

	lockTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lineage_project_lock_timeouts_total",
		Help: "Project lock acquisitions that timed out.",
	})

	statusRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lineage_status_runs_total",
		Help: "Status computations by outcome (clean/stale).",
	}, []string{"outcome"})
)

// ObserveUnit фиксирует итог одного юнита.
func ObserveUnit(status, plan string, duration time.Duration) {
	unitsTotal.WithLabelValues(status, plan).Inc()
	if duration > 0 {
		unitDuration.WithLabelValues(plan).Observe(duration.Seconds())
	}
}

// ObserveLockWait фиксирует время ожидания блокировки проекта.
func ObserveLockWait(duration time.Duration) {
	lockWait.Observe(duration.Seconds())
}

// ObserveLockTimeout фиксирует таймаут блокировки.
func ObserveLockTimeout() {
	lockTimeouts.Inc()
}

// ObserveStatus фиксирует результат вычисления статуса.
func ObserveStatus(clean bool) {
	outcome := "stale"
	if clean {
		outcome = "clean"
	}
	statusRuns.WithLabelValues(outcome).Inc()
}
