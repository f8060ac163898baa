package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/krs-admission-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
// It also satisfies jobs.Metrics for the admission queue.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	queuePending    *prometheus.GaugeVec
	queueInFlight   *prometheus.GaugeVec
	queueAttempts   *prometheus.CounterVec
	queueAttemptDur *prometheus.HistogramVec
	queueWait       *prometheus.HistogramVec
	queueSettled    *prometheus.CounterVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	queueSettledCount    uint64
	queueFailedCount     uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	queuePending := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "admission_queue_pending",
		Help: "Work items waiting to start",
	}, []string{"queue"})

	queueInFlight := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "admission_queue_in_flight",
		Help: "Work items currently processing",
	}, []string{"queue"})

	queueAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "admission_queue_attempts_total",
		Help: "Processing attempts by outcome",
	}, []string{"queue", "outcome"})

	queueAttemptDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "admission_queue_attempt_seconds",
		Help:    "Duration of individual processing attempts",
		Buckets: prometheus.DefBuckets,
	}, []string{"queue"})

	queueWait := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "admission_queue_wait_seconds",
		Help:    "Time from enqueue to settlement",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
	}, []string{"queue"})

	queueSettled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "admission_queue_settled_total",
		Help: "Settled work items by outcome",
	}, []string{"queue", "outcome"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		queuePending, queueInFlight, queueAttempts, queueAttemptDur, queueWait, queueSettled, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		queuePending:    queuePending,
		queueInFlight:   queueInFlight,
		queueAttempts:   queueAttempts,
		queueAttemptDur: queueAttemptDur,
		queueWait:       queueWait,
		queueSettled:    queueSettled,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveQueueDepth publishes the pending and in-flight gauges.
func (m *MetricsService) ObserveQueueDepth(queue string, pending, inFlight int) {
	if m == nil {
		return
	}
	m.queuePending.WithLabelValues(queue).Set(float64(pending))
	m.queueInFlight.WithLabelValues(queue).Set(float64(inFlight))
}

// ObserveQueueAttempt counts one processing attempt.
func (m *MetricsService) ObserveQueueAttempt(queue, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.queueAttempts.WithLabelValues(queue, outcome).Inc()
	m.queueAttemptDur.WithLabelValues(queue).Observe(duration.Seconds())
}

// ObserveQueueSettled counts a settled item and its total wait.
func (m *MetricsService) ObserveQueueSettled(queue, outcome string, wait time.Duration) {
	if m == nil {
		return
	}
	m.queueSettled.WithLabelValues(queue, outcome).Inc()
	m.queueWait.WithLabelValues(queue).Observe(wait.Seconds())
	atomic.AddUint64(&m.queueSettledCount, 1)
	if outcome != "fulfilled" {
		atomic.AddUint64(&m.queueFailedCount, 1)
	}
}

// Snapshot returns aggregated metrics suitable for the metrics endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if totalLookups := hits + misses; totalLookups > 0 {
		cacheRatio = float64(hits) / float64(totalLookups)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		QueueSettled:             atomic.LoadUint64(&m.queueSettledCount),
		QueueFailed:              atomic.LoadUint64(&m.queueFailedCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
