// Package metrics exposes Prometheus instrumentation for reconciliation runs
// and exports. Collectors register with the default registry, which
// promhttp serves on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "featuresync"

var (
	// runsTotal counts finished runs.
	// Labels: dataset, result (applied, no_op, dry_run, partial, failed)
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reconcile",
		Name:      "runs_total",
		Help:      "Reconciliation runs by outcome",
	}, []string{"dataset", "result"})

	// runDuration measures wall time from acquire to completion.
	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "reconcile",
		Name:      "run_duration_seconds",
		Help:      "Reconciliation run duration in seconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"dataset"})

	// updatesSubmitted counts FieldUpdates sent to the store.
	updatesSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reconcile",
		Name:      "updates_submitted_total",
		Help:      "Field updates submitted to the record store",
	}, []string{"dataset"})

	// itemFailures counts items the store rejected.
	itemFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reconcile",
		Name:      "item_failures_total",
		Help:      "Submitted items rejected by the record store",
	}, []string{"dataset"})

	// activeRuns tracks runs currently holding a limiter slot.
	activeRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "reconcile",
		Name:      "active_runs",
		Help:      "Reconciliation runs in progress",
	})

	// recordsExported counts rows written by exports.
	recordsExported = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "export",
		Name:      "records_total",
		Help:      "Records written by CSV exports",
	}, []string{"dataset"})
)

// Run results.
const (
	ResultApplied = "applied"
	ResultNoOp    = "no_op"
	ResultDryRun  = "dry_run"
	ResultPartial = "partial"
	ResultFailed  = "failed"
)

// RunStarted marks a run as in progress.
func RunStarted() { activeRuns.Inc() }

// RunFinished records the outcome of a run started with RunStarted.
func RunFinished(dataset, result string, d time.Duration, submitted, failed int) {
	activeRuns.Dec()
	runsTotal.WithLabelValues(dataset, result).Inc()
	runDuration.WithLabelValues(dataset).Observe(d.Seconds())
	if submitted > 0 {
		updatesSubmitted.WithLabelValues(dataset).Add(float64(submitted))
	}
	if failed > 0 {
		itemFailures.WithLabelValues(dataset).Add(float64(failed))
	}
}

// Exported records rows written by an export.
func Exported(dataset string, n int) {
	recordsExported.WithLabelValues(dataset).Add(float64(n))
}
