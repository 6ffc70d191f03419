package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors of the service.
type Metrics struct {
	HTTPRequests   *prometheus.CounterVec
	HTTPDuration   *prometheus.HistogramVec
	LLMRequests    *prometheus.CounterVec
	LLMDuration    *prometheus.HistogramVec
	Queries        *prometheus.CounterVec
	QueryDuration  prometheus.Histogram
	UnsafeQueries  prometheus.Counter
	ActiveSessions prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the provided registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatdb_http_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "path", "status"})

	httpDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chatdb_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	llmRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatdb_llm_requests_total",
		Help: "Total number of LLM completions by task and outcome.",
	}, []string{"task", "status"})

	llmDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chatdb_llm_request_duration_seconds",
		Help:    "LLM completion latency by task.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 60},
	}, []string{"task"})

	queries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatdb_queries_total",
		Help: "Total number of executed generated queries by outcome.",
	}, []string{"status"})

	queryDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "chatdb_query_duration_seconds",
		Help:    "Execution latency of generated queries.",
		Buckets: prometheus.DefBuckets,
	})

	unsafeQueries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatdb_unsafe_queries_total",
		Help: "Total number of generated queries blocked by the keyword filter.",
	})

	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatdb_active_sessions",
		Help: "Sessions seen within the session TTL.",
	})

	reg.MustRegister(httpRequests, httpDuration, llmRequests, llmDuration, queries, queryDuration, unsafeQueries, activeSessions)

	return &Metrics{
		HTTPRequests:   httpRequests,
		HTTPDuration:   httpDuration,
		LLMRequests:    llmRequests,
		LLMDuration:    llmDuration,
		Queries:        queries,
		QueryDuration:  queryDuration,
		UnsafeQueries:  unsafeQueries,
		ActiveSessions: activeSessions,
	}
}

func (m *Metrics) ObserveLLM(task string, status string, elapsed time.Duration) {
	m.LLMRequests.WithLabelValues(task, status).Inc()
	m.LLMDuration.WithLabelValues(task).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveQuery(status string, elapsed time.Duration) {
	m.Queries.WithLabelValues(status).Inc()
	m.QueryDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) UnsafeQuery() {
	m.UnsafeQueries.Inc()
}

func (m *Metrics) SetActiveSessions(n int) {
	if n < 0 {
		n = 0
	}
	m.ActiveSessions.Set(float64(n))
}
