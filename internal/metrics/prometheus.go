package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DocumentsProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hr_docs_documents_processed_total",
			Help: "Total documents processed through the pipeline",
		},
	)

	ExtractionFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hr_docs_extraction_failures_total",
			Help: "Total text extraction failures",
		},
		[]string{"mime_type"},
	)

	AnalysisFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hr_docs_analysis_failures_total",
			Help: "Total document analysis failures",
		},
	)

	SubExtractionFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hr_docs_sub_extraction_failures_total",
			Help: "Total isolated sub-extraction failures",
		},
		[]string{"extraction"},
	)

	EmbeddingsComputed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hr_docs_embeddings_computed_total",
			Help: "Embedding operations by outcome",
		},
		[]string{"status"},
	)

	EmbeddingFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hr_docs_embedding_failures_total",
			Help: "Total single-document embedding failures",
		},
	)

	BackfillBatches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hr_docs_backfill_batches_total",
			Help: "Total backfill batch invocations",
		},
	)

	BackfillItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hr_docs_backfill_items_total",
			Help: "Backfill items by outcome",
		},
		[]string{"outcome"},
	)

	SearchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hr_docs_search_duration_seconds",
			Help:    "Search latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)

	SearchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hr_docs_search_total",
			Help: "Total searches by status",
		},
		[]string{"status"},
	)

	AnswersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hr_docs_answers_total",
			Help: "Generated answers by grounding",
		},
		[]string{"grounded"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hr_docs_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hr_docs_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)
)

func Init() {
	prometheus.MustRegister(DocumentsProcessed)
	prometheus.MustRegister(ExtractionFailures)
	prometheus.MustRegister(AnalysisFailures)
	prometheus.MustRegister(SubExtractionFailures)
	prometheus.MustRegister(EmbeddingsComputed)
	prometheus.MustRegister(EmbeddingFailures)
	prometheus.MustRegister(BackfillBatches)
	prometheus.MustRegister(BackfillItems)
	prometheus.MustRegister(SearchDuration)
	prometheus.MustRegister(SearchTotal)
	prometheus.MustRegister(AnswersTotal)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
