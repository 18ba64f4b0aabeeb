package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sync run metrics
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vendhub_sync_runs_total",
			Help: "Total number of synchronization runs by outcome",
		},
		[]string{"status"},
	)

	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vendhub_sync_duration_seconds",
			Help:    "Duration of synchronization runs in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Fetch metrics
	PagesFetchedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vendhub_sync_pages_fetched_total",
			Help: "Total number of pages fetched from the Vendista API",
		},
	)

	// Ingestion metrics
	TransactionsInsertedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vendhub_sync_transactions_inserted_total",
			Help: "Total number of raw transactions inserted",
		},
	)

	DuplicatesSkippedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vendhub_sync_duplicates_skipped_total",
			Help: "Total number of duplicate transactions skipped during ingestion",
		},
	)

	RowsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vendhub_sync_rows_dropped_total",
			Help: "Total number of malformed source rows dropped during ingestion",
		},
	)
)
