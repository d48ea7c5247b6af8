package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP traffic, the schedule cache
// and the scheduling core.
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

	conflictsDetected     *prometheus.CounterVec
	changeTransitions     *prometheus.CounterVec
	reconcileWarnings     prometheus.Counter
	notificationsSent     *prometheus.CounterVec
	reconcileDuration     prometheus.Observer
	sessionsOpened        prometheus.Counter
	maintenanceTransition *prometheus.CounterVec

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers the collectors on a private registry.
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
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache writes",
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

	conflictsDetected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "schedule_conflicts_detected_total",
		Help: "Room conflicts detected, by occupant kind",
	}, []string{"kind"})

	changeTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "schedule_change_transitions_total",
		Help: "Schedule change request transitions, by resulting status",
	}, []string{"status"})

	reconcileWarnings := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_reconciliation_warnings_total",
		Help: "Attendance recalculations that finished with a warning",
	})

	reconcileDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "attendance_reconciliation_seconds",
		Help:    "Duration of attendance recalculation after schedule edits",
		Buckets: prometheus.DefBuckets,
	})

	sessionsOpened := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_sessions_opened_total",
		Help: "Sessions opened for attendance",
	})

	maintenanceTransition := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "maintenance_transitions_total",
		Help: "Maintenance window transitions, by resulting status",
	}, []string{"status"})

	notificationsSent := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_dispatched_total",
		Help: "Notification dispatch attempts, by outcome",
	}, []string{"outcome"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		requestDuration, requestTotal,
		cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		conflictsDetected, changeTransitions, reconcileWarnings, reconcileDuration, sessionsOpened,
		maintenanceTransition, notificationsSent, goroutines,
	)

	return &MetricsService{
		registry:              registry,
		handler:               promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:       requestDuration,
		requestTotal:          requestTotal,
		cacheLatency:          cacheLatency,
		cacheWrite:            cacheWrite,
		cacheHitRatio:         cacheHitRatio,
		cacheHits:             cacheHits,
		cacheMisses:           cacheMisses,
		conflictsDetected:     conflictsDetected,
		changeTransitions:     changeTransitions,
		reconcileWarnings:     reconcileWarnings,
		reconcileDuration:     reconcileDuration,
		sessionsOpened:        sessionsOpened,
		maintenanceTransition: maintenanceTransition,
		notificationsSent:     notificationsSent,
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
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

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
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
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	if total > 0 {
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

// RecordConflict counts one detected conflict of kind.
func (m *MetricsService) RecordConflict(kind string) {
	if m == nil {
		return
	}
	m.conflictsDetected.WithLabelValues(kind).Inc()
}

// RecordScheduleChange counts a request transition.
func (m *MetricsService) RecordScheduleChange(status string) {
	if m == nil {
		return
	}
	m.changeTransitions.WithLabelValues(status).Inc()
}

// RecordMaintenanceTransition counts a maintenance status change.
func (m *MetricsService) RecordMaintenanceTransition(status string) {
	if m == nil {
		return
	}
	m.maintenanceTransition.WithLabelValues(status).Inc()
}

// RecordSessionOpened counts an opened attendance session.
func (m *MetricsService) RecordSessionOpened() {
	if m == nil {
		return
	}
	m.sessionsOpened.Inc()
}

// ObserveReconciliation records a recalculation and whether it warned.
func (m *MetricsService) ObserveReconciliation(duration time.Duration, warned bool) {
	if m == nil {
		return
	}
	m.reconcileDuration.Observe(duration.Seconds())
	if warned {
		m.reconcileWarnings.Inc()
	}
}

// RecordNotification counts a dispatch outcome ("sent", "failed", "dropped").
func (m *MetricsService) RecordNotification(outcome string) {
	if m == nil {
		return
	}
	m.notificationsSent.WithLabelValues(outcome).Inc()
}
