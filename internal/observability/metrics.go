package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the acquisition pipeline.
// Metrics are organized by subsystem: jobs, stages, papers, sources and
// streaming. All collectors are registered via promauto against the
// provided registerer.
type Metrics struct {
	// JobsSubmitted counts the total number of acquisition jobs submitted.
	JobsSubmitted prometheus.Counter

	// JobsCompleted counts jobs that reached the completed status.
	JobsCompleted prometheus.Counter

	// JobsFailed counts jobs that reached the failed status.
	JobsFailed prometheus.Counter

	// JobsCancelled counts jobs cancelled by a caller.
	JobsCancelled prometheus.Counter

	// JobDuration observes end-to-end job duration in seconds.
	JobDuration prometheus.Histogram

	// StageDuration observes per-stage duration in seconds, labeled by stage.
	StageDuration *prometheus.HistogramVec

	// PapersFound counts unique papers inserted by the deduper.
	PapersFound prometheus.Counter

	// PapersDuplicate counts records merged away by the deduper.
	PapersDuplicate prometheus.Counter

	// PapersDownloaded counts successful PDF downloads.
	PapersDownloaded prometheus.Counter

	// PapersSkipped counts per-paper skips, labeled by skip reason.
	PapersSkipped *prometheus.CounterVec

	// PapersExtracted counts successful text extractions.
	PapersExtracted prometheus.Counter

	// PapersTranslated counts papers with completed translations.
	PapersTranslated prometheus.Counter

	// SourceRequestsTotal counts HTTP requests to source APIs, labeled by source.
	SourceRequestsTotal *prometheus.CounterVec

	// SourceRequestsFailed counts failed source requests, labeled by source.
	SourceRequestsFailed *prometheus.CounterVec

	// SourceSearchDuration observes source search page duration in seconds.
	SourceSearchDuration *prometheus.HistogramVec

	// SubscribersActive gauges currently connected progress-stream subscribers.
	SubscribersActive prometheus.Gauge

	// SubscribersDropped counts slow subscribers dropped by the progress bus.
	SubscribersDropped prometheus.Counter
}

// NewMetrics creates a Metrics instance registered against the default
// Prometheus registerer. The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return newMetrics(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates a Metrics instance registered against a
// caller-supplied registry. Used in tests to avoid duplicate registration.
func NewMetricsWithRegistry(namespace string, reg prometheus.Registerer) *Metrics {
	return newMetrics(namespace, reg)
}

func newMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		JobsSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_submitted_total",
			Help:      "Total number of acquisition jobs submitted",
		}),
		JobsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_completed_total",
			Help:      "Total number of acquisition jobs completed successfully",
		}),
		JobsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_failed_total",
			Help:      "Total number of acquisition jobs that failed",
		}),
		JobsCancelled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_cancelled_total",
			Help:      "Total number of acquisition jobs cancelled",
		}),
		JobDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Duration of acquisition jobs in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200, 1800, 3600},
		}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages in seconds",
			Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"stage"}),
		PapersFound: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_found_total",
			Help:      "Total number of unique papers discovered",
		}),
		PapersDuplicate: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_duplicate_total",
			Help:      "Total number of duplicate records merged during deduplication",
		}),
		PapersDownloaded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_downloaded_total",
			Help:      "Total number of PDFs downloaded",
		}),
		PapersSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_skipped_total",
			Help:      "Total number of per-paper skips by reason",
		}, []string{"reason"}),
		PapersExtracted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_extracted_total",
			Help:      "Total number of PDFs with extracted text",
		}),
		PapersTranslated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_translated_total",
			Help:      "Total number of papers translated",
		}),
		SourceRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_total",
			Help:      "Total number of HTTP requests to source APIs",
		}, []string{"source"}),
		SourceRequestsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_failed_total",
			Help:      "Total number of failed HTTP requests to source APIs",
		}, []string{"source"}),
		SourceSearchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_search_duration_seconds",
			Help:      "Duration of source search pages in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}),
		SubscribersActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_subscribers_active",
			Help:      "Currently connected progress stream subscribers",
		}),
		SubscribersDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_subscribers_dropped_total",
			Help:      "Subscribers dropped for falling behind the event queue",
		}),
	}
}
