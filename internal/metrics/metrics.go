package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Batch processing metrics
	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ttnexport_batches_total",
			Help: "Total number of batches processed",
		},
		[]string{"source"},
	)

	LinesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ttnexport_lines_total",
			Help: "Total number of input lines by outcome",
		},
		[]string{"status"},
	)

	RowsEncodedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ttnexport_rows_encoded_total",
			Help: "Total number of CSV rows encoded",
		},
	)

	ProcessDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ttnexport_process_duration_seconds",
			Help:    "Duration of batch processing in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Deduplication metrics
	DedupRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ttnexport_dedup_rows_total",
			Help: "Total number of deduplicated rows by outcome",
		},
		[]string{"result"},
	)

	DedupDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ttnexport_dedup_duration_seconds",
			Help:    "Duration of deduplication runs in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Fetch metrics
	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ttnexport_fetches_total",
			Help: "Total number of storage API fetches by status",
		},
		[]string{"status"},
	)

	// Rate limiting metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ttnexport_rate_limit_hits_total",
			Help: "Total number of rate limited requests",
		},
		[]string{"key"},
	)
)
