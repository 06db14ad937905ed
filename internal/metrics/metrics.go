// Package metrics provides Prometheus instrumentation for the exerciser.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CyclesTotal counts completed orchestrator cycles.
	CyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "exerciser_cycles_total",
		Help: "Total number of orchestrator cycles run",
	})

	// PositionsProcessed counts positions handled per kind and outcome.
	PositionsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exerciser_positions_processed_total",
		Help: "Positions processed, partitioned by kind and outcome",
	}, []string{"kind", "outcome"})

	// ResultCacheHits counts profitability result cache hits and misses.
	ResultCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exerciser_result_cache_total",
		Help: "Profitability result cache lookups",
	}, []string{"outcome"})

	// MetadataCacheHits counts market metadata cache hits and misses.
	MetadataCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exerciser_metadata_cache_total",
		Help: "Market metadata cache lookups",
	}, []string{"outcome"})

	// QuoteBatchSize observes the number of quotes per batched round trip.
	QuoteBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "exerciser_quote_batch_size",
		Help:    "Quotes per batched round trip",
		Buckets: []float64{1, 2, 4, 8, 16, 32, 64},
	})

	// SubmissionsTotal counts broadcast transactions by kind and status.
	SubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exerciser_submissions_total",
		Help: "Transactions broadcast, partitioned by kind and status",
	}, []string{"kind", "status"})

	// CalculateDuration observes profitability calculation latency.
	CalculateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "exerciser_calculate_duration_seconds",
		Help:    "Profitability calculation latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exerciser_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
