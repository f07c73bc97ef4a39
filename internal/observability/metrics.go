// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Indexer metrics
	EventsProcessed  *prometheus.CounterVec
	EventErrors      *prometheus.CounterVec
	BatchesProcessed *prometheus.CounterVec
	IndexerCursor    prometheus.Gauge
	ChainHead        prometheus.Gauge
	BatchDuration    prometheus.Histogram

	// Chain client metrics
	RPCCallLatency  *prometheus.HistogramVec
	RPCCallErrors   *prometheus.CounterVec
	RPCRetries      *prometheus.CounterVec
	EndpointHealthy *prometheus.GaugeVec

	// Metadata metrics
	MetadataFetches *prometheus.CounterVec

	// Metrics refresh
	TierRuns        *prometheus.CounterVec
	TierDuration    *prometheus.HistogramVec
	TokensRefreshed *prometheus.CounterVec
	RefreshSkipped  *prometheus.CounterVec
	BootstrapTokens *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulBatch prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "launchpad_indexer"
	}

	return &Metrics{
		// Indexer metrics
		EventsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "events_processed_total",
			Help:      "Total number of contract events processed by kind",
		}, []string{"kind"}),
		EventErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "event_errors_total",
			Help:      "Total number of events that failed to process by kind",
		}, []string{"kind"}),
		BatchesProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "batches_total",
			Help:      "Total number of block windows processed by status",
		}, []string{"status"}),
		IndexerCursor: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "cursor_block",
			Help:      "Next block the indexer will process",
		}),
		ChainHead: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "chain_head_block",
			Help:      "Latest chain height observed",
		}),
		BatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "batch_duration_seconds",
			Help:      "Block window processing duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),

		// Chain client metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "rpc_call_latency_seconds",
			Help:      "RPC call latency in seconds including retries",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RPCCallErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "rpc_call_errors_total",
			Help:      "Total number of failed RPC calls after retries",
		}, []string{"method"}),
		RPCRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "rpc_retries_total",
			Help:      "Total number of RPC retries",
		}, []string{"method"}),
		EndpointHealthy: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "endpoint_healthy",
			Help:      "1 if the endpoint is below the error threshold",
		}, []string{"endpoint"}),

		// Metadata metrics
		MetadataFetches: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "metadata",
			Name:      "fetches_total",
			Help:      "Total number of metadata resolutions by source",
		}, []string{"source"}),

		// Metrics refresh
		TierRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recompute",
			Name:      "tier_runs_total",
			Help:      "Total number of tier refresh runs by status",
		}, []string{"tier", "status"}),
		TierDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "recompute",
			Name:      "tier_duration_seconds",
			Help:      "Tier refresh duration in seconds",
			Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
		}, []string{"tier"}),
		TokensRefreshed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recompute",
			Name:      "tokens_refreshed_total",
			Help:      "Total number of token metric refreshes by tier",
		}, []string{"tier"}),
		RefreshSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recompute",
			Name:      "refresh_skipped_total",
			Help:      "Total number of tier ticks skipped because a run was in flight",
		}, []string{"tier"}),
		BootstrapTokens: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bootstrap",
			Name:      "tokens_total",
			Help:      "Total number of tokens processed by bootstrap by status",
		}, []string{"status"}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulBatch: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_batch_timestamp",
			Help:      "Unix timestamp of last successfully processed block window",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordEvent counts one processed event, failed or not.
func RecordEvent(kind string, err error) {
	DefaultMetrics.EventsProcessed.WithLabelValues(kind).Inc()
	if err != nil {
		DefaultMetrics.EventErrors.WithLabelValues(kind).Inc()
	}
}

// RecordBatch records one block window.
func RecordBatch(status string, seconds float64, unixTS int64) {
	DefaultMetrics.BatchesProcessed.WithLabelValues(status).Inc()
	DefaultMetrics.BatchDuration.Observe(seconds)
	if status == "ok" {
		DefaultMetrics.LastSuccessfulBatch.Set(float64(unixTS))
	}
}

// UpdateCursor updates the cursor and head gauges.
func UpdateCursor(cursor, head uint64) {
	DefaultMetrics.IndexerCursor.Set(float64(cursor))
	DefaultMetrics.ChainHead.Set(float64(head))
}

// RecordRPCCall records RPC call latency and final outcome.
func RecordRPCCall(method string, seconds float64, err error) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
	if err != nil {
		DefaultMetrics.RPCCallErrors.WithLabelValues(method).Inc()
	}
}

// RecordRPCRetry counts one retry.
func RecordRPCRetry(method string) {
	DefaultMetrics.RPCRetries.WithLabelValues(method).Inc()
}

// SetEndpointHealthy updates the endpoint health gauge.
func SetEndpointHealthy(endpoint string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1
	}
	DefaultMetrics.EndpointHealthy.WithLabelValues(endpoint).Set(v)
}

// RecordMetadataFetch counts a metadata resolution by source
// (cache, gateway, miss).
func RecordMetadataFetch(source string) {
	DefaultMetrics.MetadataFetches.WithLabelValues(source).Inc()
}

// RecordTierRun records a tier refresh run.
func RecordTierRun(tier, status string, seconds float64, refreshed int) {
	DefaultMetrics.TierRuns.WithLabelValues(tier, status).Inc()
	DefaultMetrics.TierDuration.WithLabelValues(tier).Observe(seconds)
	DefaultMetrics.TokensRefreshed.WithLabelValues(tier).Add(float64(refreshed))
}

// RecordTierSkipped counts a tick dropped by single-flight.
func RecordTierSkipped(tier string) {
	DefaultMetrics.RefreshSkipped.WithLabelValues(tier).Inc()
}

// RecordBootstrapToken counts one bootstrap token outcome.
func RecordBootstrapToken(status string) {
	DefaultMetrics.BootstrapTokens.WithLabelValues(status).Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
