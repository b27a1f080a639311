package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements Recorder with Prometheus collectors.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	queriesProcessed *prometheus.CounterVec
	queryDuration    prometheus.Histogram
	llmCacheHits     prometheus.Counter
	llmCacheMisses   prometheus.Counter
	llmProviderCalls *prometheus.CounterVec
	geoCacheHits     prometheus.Counter
	geoCacheMisses   prometheus.Counter
	tasksPublished   *prometheus.CounterVec
	tasksProcessed   *prometheus.CounterVec
	queueDepth       *prometheus.GaugeVec
}

// NewPrometheus returns a Recorder backed by a dedicated Prometheus registry.
func NewPrometheus() *PrometheusRecorder {
	r := &PrometheusRecorder{registry: prometheus.NewRegistry()}

	r.queriesProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geollm_queries_processed_total",
		Help: "Completed geospatial queries by outcome.",
	}, []string{"status"})

	r.queryDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "geollm_query_duration_seconds",
		Help:    "End-to-end query pipeline duration.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	r.llmCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geollm_llm_cache_hits_total",
		Help: "Model response cache hits.",
	})

	r.llmCacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geollm_llm_cache_misses_total",
		Help: "Model response cache misses.",
	})

	r.llmProviderCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geollm_llm_provider_calls_total",
		Help: "Language model provider calls by outcome.",
	}, []string{"status"})

	r.geoCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geollm_geo_cache_hits_total",
		Help: "Feature collection cache hits.",
	})

	r.geoCacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geollm_geo_cache_misses_total",
		Help: "Feature collection cache misses.",
	})

	r.tasksPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geollm_tasks_published_total",
		Help: "Tasks published to Redis streams by queue and outcome.",
	}, []string{"queue", "status"})

	r.tasksProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geollm_tasks_processed_total",
		Help: "Tasks consumed from Redis streams by queue and outcome.",
	}, []string{"queue", "status"})

	r.queueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "geollm_task_queue_depth",
		Help: "Current Redis stream length per task queue.",
	}, []string{"queue"})

	r.registry.MustRegister(
		r.queriesProcessed,
		r.queryDuration,
		r.llmCacheHits,
		r.llmCacheMisses,
		r.llmProviderCalls,
		r.geoCacheHits,
		r.geoCacheMisses,
		r.tasksPublished,
		r.tasksProcessed,
		r.queueDepth,
	)

	return r
}

// Handler returns the /metrics HTTP handler for this recorder's registry.
func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// IncQueryProcessed increments the per-status query counter.
func (r *PrometheusRecorder) IncQueryProcessed(status string) {
	r.queriesProcessed.WithLabelValues(status).Inc()
}

// ObserveQueryDuration records pipeline duration.
func (r *PrometheusRecorder) ObserveQueryDuration(duration time.Duration) {
	r.queryDuration.Observe(duration.Seconds())
}

// IncLLMCacheHit increments the model response cache hit counter.
func (r *PrometheusRecorder) IncLLMCacheHit() {
	r.llmCacheHits.Inc()
}

// IncLLMCacheMiss increments the model response cache miss counter.
func (r *PrometheusRecorder) IncLLMCacheMiss() {
	r.llmCacheMisses.Inc()
}

// IncLLMProviderCall increments the per-status provider call counter.
func (r *PrometheusRecorder) IncLLMProviderCall(status string) {
	r.llmProviderCalls.WithLabelValues(status).Inc()
}

// IncGeoCacheHit increments the feature cache hit counter.
func (r *PrometheusRecorder) IncGeoCacheHit() {
	r.geoCacheHits.Inc()
}

// IncGeoCacheMiss increments the feature cache miss counter.
func (r *PrometheusRecorder) IncGeoCacheMiss() {
	r.geoCacheMisses.Inc()
}

// IncTaskPublished increments the per-queue publish counter.
func (r *PrometheusRecorder) IncTaskPublished(queue, status string) {
	r.tasksPublished.WithLabelValues(queue, status).Inc()
}

// IncTaskProcessed increments the per-queue processed counter.
func (r *PrometheusRecorder) IncTaskProcessed(queue, status string) {
	r.tasksProcessed.WithLabelValues(queue, status).Inc()
}

// SetQueueDepth records the current stream depth for a queue.
func (r *PrometheusRecorder) SetQueueDepth(queue string, depth int64) {
	r.queueDepth.WithLabelValues(queue).Set(float64(depth))
}
