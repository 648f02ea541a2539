package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Sui RPC Metrics
	suiRPCCallsTotal    *prometheus.CounterVec
	suiRPCCallDuration  *prometheus.HistogramVec
	suiRPCRateLimitHits *prometheus.CounterVec
	suiRPCRetries       *prometheus.CounterVec

	// Analysis Pipeline Metrics
	analysesTotal          *prometheus.CounterVec
	analysisDuration       *prometheus.HistogramVec
	analysesCoalesced      prometheus.Counter
	normalizeSkipped       *prometheus.CounterVec
	graphUnresolvedObjects prometheus.Counter
	graphSize              *prometheus.HistogramVec

	// Summarizer Metrics
	summarizerCallsTotal   *prometheus.CounterVec
	summarizerCallDuration prometheus.Histogram

	// Cache Metrics
	cacheLookupsTotal   *prometheus.CounterVec
	cacheEvictionsTotal *prometheus.CounterVec
	cacheEntries        prometheus.Gauge

	// Database Metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Sui RPC Metrics
		suiRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sui_rpc_calls_total",
				Help: "Total number of Sui RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		suiRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sui_rpc_call_duration_seconds",
				Help:    "Duration of Sui RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),
		suiRPCRateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sui_rpc_rate_limit_hits_total",
				Help: "Total number of Sui RPC rate limit hits (429 errors)",
			},
			[]string{"endpoint"},
		),
		suiRPCRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sui_rpc_retries_total",
				Help: "Total number of Sui RPC retry attempts",
			},
			[]string{"method", "reason"},
		),

		// Analysis Pipeline Metrics
		analysesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analyses_total",
				Help: "Total number of analysis requests by outcome",
			},
			[]string{"outcome"},
		),
		analysisDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "analysis_duration_seconds",
				Help:    "Duration of analysis requests in seconds",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"source"},
		),
		analysesCoalesced: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "analyses_coalesced_total",
				Help: "Total number of analysis requests that shared an in-flight computation",
			},
		),
		normalizeSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "normalize_skipped_records_total",
				Help: "Total number of raw records skipped by the normalizer",
			},
			[]string{"reason"},
		),
		graphUnresolvedObjects: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "graph_unresolved_objects_total",
				Help: "Total number of object nodes emitted without an incoming edge",
			},
		),
		graphSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "graph_size",
				Help:    "Number of nodes and edges per built graph",
				Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
			},
			[]string{"element"},
		),

		// Summarizer Metrics
		summarizerCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "summarizer_calls_total",
				Help: "Total number of summarizer calls by status",
			},
			[]string{"status"},
		),
		summarizerCallDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "summarizer_call_duration_seconds",
				Help:    "Duration of summarizer calls in seconds",
				Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
			},
		),

		// Cache Metrics
		cacheLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_lookups_total",
				Help: "Total number of result cache lookups by result",
			},
			[]string{"result"},
		),
		cacheEvictionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_evictions_total",
				Help: "Total number of result cache evictions by reason",
			},
			[]string{"reason"},
		),
		cacheEntries: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "cache_entries",
				Help: "Number of entries currently held by the result cache",
			},
		),

		// Database Metrics
		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		// HTTP Metrics
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 10.0},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),

		// NATS Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Sui RPC metric helpers

// RecordRPCCall records a Sui RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	m.suiRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.suiRPCCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordRateLimitHit records a rate limit hit (429 error).
func (m *Metrics) RecordRateLimitHit(endpoint string) {
	m.suiRPCRateLimitHits.WithLabelValues(endpoint).Inc()
}

// RecordRPCRetry records a retry attempt.
func (m *Metrics) RecordRPCRetry(method, reason string) {
	m.suiRPCRetries.WithLabelValues(method, reason).Inc()
}

// Analysis metric helpers

// RecordAnalysis records the outcome of an analysis request.
// Source is "cache" for cache hits and "computed" otherwise.
func (m *Metrics) RecordAnalysis(outcome, source string, duration float64) {
	m.analysesTotal.WithLabelValues(outcome).Inc()
	m.analysisDuration.WithLabelValues(source).Observe(duration)
}

// RecordAnalysisCoalesced records a request served by another request's computation.
func (m *Metrics) RecordAnalysisCoalesced() {
	m.analysesCoalesced.Inc()
}

// RecordNormalizeSkipped records raw records the normalizer could not use.
func (m *Metrics) RecordNormalizeSkipped(reason string, count int) {
	m.normalizeSkipped.WithLabelValues(reason).Add(float64(count))
}

// RecordGraph records the size of a built graph and its unresolved objects.
func (m *Metrics) RecordGraph(nodes, edges, unresolved int) {
	m.graphSize.WithLabelValues("nodes").Observe(float64(nodes))
	m.graphSize.WithLabelValues("edges").Observe(float64(edges))
	m.graphUnresolvedObjects.Add(float64(unresolved))
}

// RecordSummarizerCall records a summarizer call.
func (m *Metrics) RecordSummarizerCall(status string, duration float64) {
	m.summarizerCallsTotal.WithLabelValues(status).Inc()
	m.summarizerCallDuration.Observe(duration)
}

// Cache metric helpers

// RecordCacheLookup records a cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordCacheEviction records an entry leaving the cache.
func (m *Metrics) RecordCacheEviction(reason string) {
	m.cacheEvictionsTotal.WithLabelValues(reason).Inc()
}

// SetCacheEntries sets the current number of cache entries.
func (m *Metrics) SetCacheEntries(count int) {
	m.cacheEntries.Set(float64(count))
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Helper functions

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
