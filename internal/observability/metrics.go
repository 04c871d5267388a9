package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus metrics of a single CLI invocation.
// Every metric lives in a private registry so separate runs and tests never
// collide, and the registry can be dumped as a node-exporter textfile.
type Metrics struct {
	registry *prometheus.Registry

	// QueriesTotal counts finished queries, labeled by terminal status.
	QueriesTotal *prometheus.CounterVec

	// QueryDuration observes per-query collection time in seconds.
	QueryDuration prometheus.Histogram

	// ArticlesCollected counts metadata records written to the store.
	ArticlesCollected prometheus.Counter

	// AbstractsCollected counts records enriched with an abstract.
	AbstractsCollected prometheus.Counter

	// FullTextTotal counts full-text attempts, labeled by outcome
	// (collected, not_found, error).
	FullTextTotal *prometheus.CounterVec

	// SourceRequestsTotal counts HTTP requests, labeled by source and endpoint.
	SourceRequestsTotal *prometheus.CounterVec

	// SourceRequestsFailed counts failed HTTP requests, labeled by source, endpoint, and error type.
	SourceRequestsFailed *prometheus.CounterVec

	// SourceRequestDuration observes HTTP request duration in seconds.
	SourceRequestDuration *prometheus.HistogramVec

	// DedupFilesScanned counts metadata files read by the deduplicator.
	DedupFilesScanned prometheus.Counter

	// DedupDuplicates counts repeat occurrences of an already-seen PMID.
	DedupDuplicates prometheus.Counter

	// DedupUnique counts distinct PMIDs written by the deduplicator.
	DedupUnique prometheus.Counter

	// RecordsSkipped counts unreadable records, labeled by stage.
	RecordsSkipped *prometheus.CounterVec

	// ValidationScores observes per-article content quality scores.
	ValidationScores prometheus.Histogram
}

// Full-text outcome label values.
const (
	FullTextCollected = "collected"
	FullTextNotFound  = "not_found"
	FullTextError     = "error"
)

// NewMetrics creates a new Metrics instance registered in a fresh registry.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		// Queries
		QueriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Total number of collection queries by terminal status",
		}, []string{"status"}),
		QueryDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Duration of a single query collection in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200, 1800, 3600},
		}),

		// Articles
		ArticlesCollected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_collected_total",
			Help:      "Total number of article metadata records saved",
		}),
		AbstractsCollected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "abstracts_collected_total",
			Help:      "Total number of abstracts attached to records",
		}),
		FullTextTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fulltext_total",
			Help:      "Total number of full-text retrievals by outcome",
		}, []string{"outcome"}),

		// Sources
		SourceRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_total",
			Help:      "Total number of requests to remote sources",
		}, []string{"source", "endpoint"}),
		SourceRequestsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_failed_total",
			Help:      "Total number of failed requests to remote sources",
		}, []string{"source", "endpoint", "error_type"}),
		SourceRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_request_duration_seconds",
			Help:      "Duration of requests to remote sources in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source", "endpoint"}),

		// Deduplication
		DedupFilesScanned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_files_scanned_total",
			Help:      "Total number of metadata files scanned by deduplication",
		}),
		DedupDuplicates: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_duplicates_total",
			Help:      "Total number of duplicate occurrences found",
		}),
		DedupUnique: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_unique_total",
			Help:      "Total number of unique articles written",
		}),
		RecordsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_skipped_total",
			Help:      "Total number of unreadable records skipped",
		}, []string{"stage"}),

		// Validation
		ValidationScores: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "validation_score",
			Help:      "Content quality score per validated article",
			Buckets:   []float64{20, 40, 60, 80, 100},
		}),
	}
}

// Registry returns the registry holding every metric of m.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the current metric values to path in the text
// exposition format understood by the node-exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

// RecordQueryFinished records the terminal status and duration of a query.
func (m *Metrics) RecordQueryFinished(status string, durationSeconds float64) {
	m.QueriesTotal.WithLabelValues(status).Inc()
	m.QueryDuration.Observe(durationSeconds)
}

// RecordArticleSaved records a saved metadata record.
func (m *Metrics) RecordArticleSaved(withAbstract bool) {
	m.ArticlesCollected.Inc()
	if withAbstract {
		m.AbstractsCollected.Inc()
	}
}

// RecordFullText records the outcome of one full-text retrieval.
func (m *Metrics) RecordFullText(outcome string) {
	m.FullTextTotal.WithLabelValues(outcome).Inc()
}

// RecordSourceRequest records a request to a remote source.
func (m *Metrics) RecordSourceRequest(source, endpoint string, durationSeconds float64) {
	m.SourceRequestsTotal.WithLabelValues(source, endpoint).Inc()
	m.SourceRequestDuration.WithLabelValues(source, endpoint).Observe(durationSeconds)
}

// RecordSourceRequestFailed records a failed request to a remote source.
func (m *Metrics) RecordSourceRequestFailed(source, endpoint, errorType string) {
	m.SourceRequestsFailed.WithLabelValues(source, endpoint, errorType).Inc()
}

// RecordDedupFile records one scanned metadata file.
func (m *Metrics) RecordDedupFile(duplicate bool) {
	m.DedupFilesScanned.Inc()
	if duplicate {
		m.DedupDuplicates.Inc()
	}
}

// RecordDedupUnique records the number of unique articles written.
func (m *Metrics) RecordDedupUnique(count int) {
	m.DedupUnique.Add(float64(count))
}

// RecordSkipped records an unreadable record skipped by stage.
func (m *Metrics) RecordSkipped(stage string) {
	m.RecordsSkipped.WithLabelValues(stage).Inc()
}

// RecordValidationScore records the content quality score of one article.
func (m *Metrics) RecordValidationScore(score int) {
	m.ValidationScores.Observe(float64(score))
}
