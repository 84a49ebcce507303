package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	IngestionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vivi_ingestion_duration_seconds",
			Help:    "Document ingestion duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	DocumentsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vivi_documents_processed_total",
			Help: "Total documents processed by terminal status",
		},
		[]string{"status"},
	)

	DocumentsUploaded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vivi_documents_uploaded_total",
			Help: "Total documents uploaded",
		},
	)

	ChatRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vivi_chat_requests_total",
			Help: "Total chat turns processed",
		},
		[]string{"status"},
	)

	ChatTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vivi_chat_tokens_used_total",
			Help: "Total inference tokens reported per model",
		},
		[]string{"model"},
	)

	SearchRequests = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vivi_search_requests_total",
			Help: "Total document searches",
		},
	)

	SearchResultsCount = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vivi_search_results_count",
			Help:    "Number of results returned per search",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vivi_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vivi_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)
)

func Init() {
	prometheus.MustRegister(IngestionDuration)
	prometheus.MustRegister(DocumentsProcessed)
	prometheus.MustRegister(DocumentsUploaded)
	prometheus.MustRegister(ChatRequests)
	prometheus.MustRegister(ChatTokensUsed)
	prometheus.MustRegister(SearchRequests)
	prometheus.MustRegister(SearchResultsCount)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
