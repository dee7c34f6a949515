package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/sma-substitute-api/internal/models"
)

// MetricsSnapshot is a compact view of the collectors for the status endpoint.
type MetricsSnapshot struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	NoticesGenerated         uint64    `json:"notices_generated"`
	NoticesFailed            uint64    `json:"notices_failed"`
	SnapshotVersion          int64     `json:"snapshot_version"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
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
	snapshotVersion prometheus.Gauge
	snapshotSkipped prometheus.Gauge
	snapshotCollide prometheus.Gauge
	snapshotBuild   prometheus.Histogram
	noticesTotal    *prometheus.CounterVec
	noticeFailures  *prometheus.CounterVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	noticeCount          uint64
	noticeFailureCount   uint64
	currentVersion       int64
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

	snapshotVersion := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "timetable_snapshot_version",
		Help: "Version of the timetable snapshot currently served",
	})

	snapshotSkipped := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "timetable_skipped_rows",
		Help: "Timetable rows skipped while building the current snapshot",
	})

	snapshotCollide := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "timetable_collisions",
		Help: "Teacher slot collisions recorded while building the current snapshot",
	})

	snapshotBuild := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "timetable_build_duration_seconds",
		Help:    "Duration of timetable index builds",
		Buckets: prometheus.DefBuckets,
	})

	noticesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notices_generated_total",
		Help: "Substitution notices generated",
	}, []string{"kind", "format"})

	noticeFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notice_failures_total",
		Help: "Substitution notices that failed to generate",
	}, []string{"code"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses, dbQueryDuration,
		snapshotVersion, snapshotSkipped, snapshotCollide, snapshotBuild, noticesTotal, noticeFailures, goroutines)

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
		snapshotVersion: snapshotVersion,
		snapshotSkipped: snapshotSkipped,
		snapshotCollide: snapshotCollide,
		snapshotBuild:   snapshotBuild,
		noticesTotal:    noticesTotal,
		noticeFailures:  noticeFailures,
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
}

// RecordSnapshot publishes the stats of a freshly swapped snapshot.
func (m *MetricsService) RecordSnapshot(snapshot *models.Snapshot, duration time.Duration) {
	if m == nil || snapshot == nil {
		return
	}
	m.snapshotVersion.Set(float64(snapshot.Version))
	m.snapshotSkipped.Set(float64(snapshot.Stats.SkippedRows))
	m.snapshotCollide.Set(float64(len(snapshot.Stats.Collisions)))
	m.snapshotBuild.Observe(duration.Seconds())
	atomic.StoreInt64(&m.currentVersion, snapshot.Version)
}

// RecordNotice counts a generated notice.
func (m *MetricsService) RecordNotice(kind models.ChangeKind, format models.NoticeFormat) {
	if m == nil {
		return
	}
	m.noticesTotal.WithLabelValues(string(kind), string(format)).Inc()
	atomic.AddUint64(&m.noticeCount, 1)
}

// RecordNoticeFailure counts a notice that could not be generated.
func (m *MetricsService) RecordNoticeFailure(code string) {
	if m == nil {
		return
	}
	m.noticeFailures.WithLabelValues(code).Inc()
	atomic.AddUint64(&m.noticeFailureCount, 1)
}

// Snapshot returns aggregated metrics for the status endpoint.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	totalLookups := hits + misses
	if totalLookups > 0 {
		cacheRatio = float64(hits) / float64(totalLookups)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return MetricsSnapshot{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		NoticesGenerated:         atomic.LoadUint64(&m.noticeCount),
		NoticesFailed:            atomic.LoadUint64(&m.noticeFailureCount),
		SnapshotVersion:          atomic.LoadInt64(&m.currentVersion),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
