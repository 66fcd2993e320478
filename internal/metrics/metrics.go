// Package metrics exposes the collector's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var reconcilePassesTotal = promauto.With(prometheus.DefaultRegisterer).NewCounterVec(
	prometheus.CounterOpts{
		Name: "spawner_reconcile_passes_total",
		Help: "Total number of idle reconciliation passes, by outcome (requeued, deleted, status_check_failed, delete_failed).",
	},
	[]string{"outcome"},
)

var workloadsDeletedTotal = promauto.With(prometheus.DefaultRegisterer).NewCounter(
	prometheus.CounterOpts{
		Name: "spawner_workloads_deleted_total",
		Help: "Total number of idle workload resources deleted.",
	},
)

var workloadIdleSeconds = promauto.With(prometheus.DefaultRegisterer).NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "spawner_workload_idle_seconds",
		Help: "Last self-reported idle duration per workload resource.",
	},
	[]string{"resource"},
)

// RecordPass counts one finished reconciliation pass with its outcome.
func RecordPass(outcome string) {
	reconcilePassesTotal.WithLabelValues(outcome).Inc()
}

// RecordDelete counts one successful idle-workload deletion.
func RecordDelete() {
	workloadsDeletedTotal.Inc()
}

// RecordIdleSeconds records the idle duration a workload reported.
func RecordIdleSeconds(resource string, seconds uint32) {
	workloadIdleSeconds.WithLabelValues(resource).Set(float64(seconds))
}

// ForgetWorkload drops the per-resource gauge after a deletion so the
// series does not linger for removed workloads.
func ForgetWorkload(resource string) {
	workloadIdleSeconds.DeleteLabelValues(resource)
}
