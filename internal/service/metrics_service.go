package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/course-optimizer/internal/models"
	"github.com/noah-isme/course-optimizer/internal/optimizer"
	"github.com/noah-isme/course-optimizer/pkg/jobs"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP traffic, cache and database access
// and optimizer runs, and provides lightweight snapshots for API consumption.
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
	dbQueryDuration *prometheus.HistogramVec

	runsTotal        *prometheus.CounterVec
	runDuration      *prometheus.HistogramVec
	runsInFlight     prometheus.Gauge
	searchLeaves     *prometheus.GaugeVec
	searchEvaluation *prometheus.GaugeVec
	searchBestCount  *prometheus.GaugeVec
	searchBestScore  *prometheus.GaugeVec

	runsStarted   uint64
	runsCompleted uint64
	runsFailed    uint64

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	dbQueryCount         uint64
	dbQueryDurationTotal uint64
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

	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of database queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	runsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "optimizer_runs_total",
		Help: "Optimizer runs by priority and final status",
	}, []string{"priority", "status"})

	runDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "optimizer_run_duration_seconds",
		Help:    "Wall time of optimizer runs",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
	}, []string{"priority"})

	runsInFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "optimizer_runs_in_flight",
		Help: "Optimizer runs currently executing",
	})

	searchLeaves := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "optimizer_search_leaves",
		Help: "Leaves reached by the current exhaustive search",
	}, []string{"priority"})

	searchEvaluation := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "optimizer_search_evaluations",
		Help: "Leaves scored by the current exhaustive search",
	}, []string{"priority"})

	searchBestCount := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "optimizer_search_best_count",
		Help: "Occurrences scheduled by the best answer found so far",
	}, []string{"priority"})

	searchBestScore := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "optimizer_search_best_score",
		Help: "Objective score of the best answer found so far",
	}, []string{"priority"})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses, dbQueryDuration, goroutines,
		runsTotal, runDuration, runsInFlight, searchLeaves, searchEvaluation, searchBestCount, searchBestScore)

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
		dbQueryDuration: dbQueryDuration,

		runsTotal:        runsTotal,
		runDuration:      runDuration,
		runsInFlight:     runsInFlight,
		searchLeaves:     searchLeaves,
		searchEvaluation: searchEvaluation,
		searchBestCount:  searchBestCount,
		searchBestScore:  searchBestScore,
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
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	total := hits + misses
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveDBQuery records database query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
	atomic.AddUint64(&m.dbQueryCount, 1)
	atomic.AddUint64(&m.dbQueryDurationTotal, uint64(duration.Nanoseconds()))
}

// RunStarted marks an optimizer run as executing.
func (m *MetricsService) RunStarted() {
	if m == nil {
		return
	}
	m.runsInFlight.Inc()
	atomic.AddUint64(&m.runsStarted, 1)
}

// RunFinished records the status a run moved to, QUEUED when it will be retried, and its duration.
func (m *MetricsService) RunFinished(priority models.OptimizerPriority, status models.OptimizerRunStatus, duration time.Duration) {
	if m == nil {
		return
	}
	m.runsInFlight.Dec()
	m.runsTotal.WithLabelValues(string(priority), string(status)).Inc()
	m.runDuration.WithLabelValues(string(priority)).Observe(duration.Seconds())
	switch status {
	case models.OptimizerRunCompleted:
		atomic.AddUint64(&m.runsCompleted, 1)
	case models.OptimizerRunFailed:
		atomic.AddUint64(&m.runsFailed, 1)
	}
}

// ObserveSearch publishes the progress of an exhaustive search.
func (m *MetricsService) ObserveSearch(priority models.OptimizerPriority, snap optimizer.Snapshot) {
	if m == nil {
		return
	}
	label := string(priority)
	m.searchLeaves.WithLabelValues(label).Set(float64(snap.Leaves))
	m.searchEvaluation.WithLabelValues(label).Set(float64(snap.Evaluations))
	m.searchBestCount.WithLabelValues(label).Set(float64(snap.BestCount))
	m.searchBestScore.WithLabelValues(label).Set(snap.BestScore)
}

// WatchQueue exports the depth of a job queue as optimizer_queue_jobs{queue,state}.
func (m *MetricsService) WatchQueue(name string, stats func() jobs.Stats) error {
	if m == nil {
		return nil
	}
	for state, pick := range map[string]func(jobs.Stats) int{
		"waiting":  func(s jobs.Stats) int { return s.Waiting },
		"running":  func(s jobs.Stats) int { return s.Running },
		"retrying": func(s jobs.Stats) int { return s.Retrying },
	} {
		pick := pick
		gauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "optimizer_queue_jobs",
			Help:        "Jobs held by an optimizer queue by state",
			ConstLabels: prometheus.Labels{"queue": name, "state": state},
		}, func() float64 { return float64(pick(stats())) })
		if err := m.registry.Register(gauge); err != nil {
			return fmt.Errorf("register queue gauge %s/%s: %w", name, state, err)
		}
	}
	return nil
}

// Snapshot returns aggregated metrics suitable for the health endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)
	dbCount := atomic.LoadUint64(&m.dbQueryCount)
	dbDuration := atomic.LoadUint64(&m.dbQueryDurationTotal)

	var cacheRatio float64
	totalLookups := hits + misses
	if totalLookups > 0 {
		cacheRatio = float64(hits) / float64(totalLookups)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	var avgDBMs float64
	if dbCount > 0 {
		avgDBMs = float64(dbDuration) / float64(dbCount) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		DBQueryCount:             dbCount,
		AverageDBQueryDurationMs: avgDBMs,
		RunsStarted:              atomic.LoadUint64(&m.runsStarted),
		RunsCompleted:            atomic.LoadUint64(&m.runsCompleted),
		RunsFailed:               atomic.LoadUint64(&m.runsFailed),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
