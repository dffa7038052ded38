package metrics

import "github.com/prometheus/client_golang/prometheus"

// Crawl and query Prometheus metrics.
var (
	CrawlPagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "syncdex",
			Name:      "crawl_pages_total",
			Help:      "Upstream pages processed",
		},
		[]string{"collection"},
	)

	CrawlRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "syncdex",
			Name:      "crawl_records_total",
			Help:      "Records processed by reconciliation outcome",
		},
		[]string{"collection", "outcome"}, // added, updated, unchanged, deleted, failed
	)

	CrawlsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "syncdex",
			Name:      "crawls_total",
			Help:      "Finished crawls by status",
		},
		[]string{"collection", "status"},
	)

	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "syncdex",
			Name:      "query_duration_seconds",
			Help:      "Query duration in seconds by query type",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"type", "status"},
	)
)

var syncMetricsRegistered bool

// RegisterSyncMetrics registers crawl and query metrics. Must be called once from main.
func RegisterSyncMetrics() {
	if syncMetricsRegistered {
		return
	}
	prometheus.MustRegister(CrawlPagesTotal)
	prometheus.MustRegister(CrawlRecordsTotal)
	prometheus.MustRegister(CrawlsTotal)
	prometheus.MustRegister(QueryDuration)
	syncMetricsRegistered = true
}
