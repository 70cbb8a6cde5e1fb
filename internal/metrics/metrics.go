package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pdfmerger"

// Document lifecycle metrics
var (
	// UploadsTotal counts uploads by result (stored/rejected/error)
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Total uploads by result",
		},
		[]string{"result"},
	)

	UploadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_bytes_total",
			Help:      "Total bytes accepted from uploads",
		},
	)

	// MergesTotal counts merge requests by result (success/invalid/not_found/failed)
	MergesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merges_total",
			Help:      "Total merge requests by result",
		},
		[]string{"result"},
	)

	MergeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "merge_duration_seconds",
			Help:      "Merge duration in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	MergedPages = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "merged_pages",
			Help:      "Pages per merged document",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	// NormalizationsTotal counts fallback re-encodings of inputs the parser rejected
	NormalizationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "normalizations_total",
			Help:      "Inputs re-encoded before merging",
		},
	)

	// DownloadsTotal counts download attempts by result (served/not_found/expired)
	DownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Total download attempts by result",
		},
		[]string{"result"},
	)
)

// Retention metrics
var (
	// SweptTotal counts objects removed by the sweeper per area (uploads/merged/scratch)
	SweptTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swept_files_total",
			Help:      "Expired files removed by area",
		},
		[]string{"area"},
	)

	ConsumeFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consume_failures_total",
			Help:      "Merged source files whose record could not be removed",
		},
	)

	SweepErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_errors_total",
			Help:      "Sweeps that finished with an error",
		},
	)
)

// RecordSweep adds one sweep's counts.
func RecordSweep(uploads, merged, scratch int, err error) {
	SweptTotal.WithLabelValues("uploads").Add(float64(uploads))
	SweptTotal.WithLabelValues("merged").Add(float64(merged))
	SweptTotal.WithLabelValues("scratch").Add(float64(scratch))
	if err != nil {
		SweepErrorsTotal.Inc()
	}
}
