package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	assetIngest = "asset_ingest"

	// Ingestion metrics
	batchesProcessedTotal = "batches_processed_total"
	elementsCreatedTotal  = "elements_created_total"

	// Recovery metrics
	sessionsStalledTotal = "sessions_stalled_total"
	aggregationRunsTotal = "aggregation_runs_total"
	orphansDeletedTotal  = "orphans_deleted_total"

	// Labels
	batchStatusLabel      = "status"
	aggregationScopeLabel = "scope"
)

var batchesProcessedLabels = []string{
	batchStatusLabel,
}

var aggregationRunsLabels = []string{
	aggregationScopeLabel,
}

/**
* Metrics definition
**/
var batchesProcessedTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: assetIngest,
		Name:      batchesProcessedTotal,
		Help:      "number of upload batches processed, by terminal status",
	},
	batchesProcessedLabels,
)

var elementsCreatedTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: assetIngest,
		Name:      elementsCreatedTotal,
		Help:      "number of elements created by batch ingestion",
	},
)

var sessionsStalledTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: assetIngest,
		Name:      sessionsStalledTotal,
		Help:      "number of upload sessions resolved by the stall sweeper",
	},
)

var aggregationRunsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: assetIngest,
		Name:      aggregationRunsTotal,
		Help:      "number of statistics recomputation runs",
	},
	aggregationRunsLabels,
)

var orphansDeletedTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: assetIngest,
		Name:      orphansDeletedTotal,
		Help:      "number of orphaned documents removed by the orphan sweep",
	},
)

func IncreaseBatchesProcessedMetric(status string) {
	labels := prometheus.Labels{
		batchStatusLabel: status,
	}
	batchesProcessedTotalMetric.With(labels).Inc()
}

func AddElementsCreatedMetric(count int) {
	elementsCreatedTotalMetric.Add(float64(count))
}

func IncreaseSessionsStalledMetric() {
	sessionsStalledTotalMetric.Inc()
}

func IncreaseAggregationRunsMetric(scope string) {
	labels := prometheus.Labels{
		aggregationScopeLabel: scope,
	}
	aggregationRunsTotalMetric.With(labels).Inc()
}

func AddOrphansDeletedMetric(count int) {
	orphansDeletedTotalMetric.Add(float64(count))
}

func RegisterMetrics() {
	prometheus.MustRegister(batchesProcessedTotalMetric)
	prometheus.MustRegister(elementsCreatedTotalMetric)
	prometheus.MustRegister(sessionsStalledTotalMetric)
	prometheus.MustRegister(aggregationRunsTotalMetric)
	prometheus.MustRegister(orphansDeletedTotalMetric)
}
