package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/issue-audit-api/internal/models"
)

// MetricsService owns the Prometheus registry for HTTP, cache and audit domain instrumentation.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	cacheLatency    prometheus.Histogram
	cacheWrite      prometheus.Histogram

	auditRecords       *prometheus.CounterVec
	ruleViolations     *prometheus.CounterVec
	alertsCreated      *prometheus.CounterVec
	alertsDeduplicated *prometheus.CounterVec
	alertsResolved     prometheus.Counter
	consistencyChecks  *prometheus.CounterVec
	detectorDuration   prometheus.Histogram
	notifications      *prometheus.CounterVec
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	m := &MetricsService{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_lookups_total",
			Help: "Cache lookups partitioned by result",
		}, []string{"result"}),
		cacheLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_latency_seconds",
			Help:    "Latency for cache lookups",
			Buckets: prometheus.DefBuckets,
		}),
		cacheWrite: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_write_seconds",
			Help:    "Latency for cache set operations",
			Buckets: prometheus.DefBuckets,
		}),
		auditRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audit_records_total",
			Help: "Audit records appended by validation status",
		}, []string{"field", "status"}),
		ruleViolations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "change_rule_violations_total",
			Help: "Change rule violations by rule type and outcome",
		}, []string{"rule_type", "status"}),
		alertsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alerts_created_total",
			Help: "Alerts raised by the pattern detector",
		}, []string{"type", "severity"}),
		alertsDeduplicated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alerts_deduplicated_total",
			Help: "Detector candidates suppressed by an open alert with the same dedup key",
		}, []string{"type"}),
		alertsResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alerts_resolved_total",
			Help: "Alerts resolved by administrators",
		}),
		consistencyChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "consistency_checks_total",
			Help: "Consistency validations by outcome",
		}, []string{"outcome"}),
		detectorDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "detector_run_duration_seconds",
			Help:    "Duration of pattern detector scans",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alert_notifications_total",
			Help: "Alert event deliveries by outcome",
		}, []string{"outcome"}),
	}

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		m.requestDuration, m.requestTotal, m.cacheLookups, m.cacheLatency, m.cacheWrite,
		m.auditRecords, m.ruleViolations, m.alertsCreated, m.alertsDeduplicated, m.alertsResolved,
		m.consistencyChecks, m.detectorDuration, m.notifications, goroutines,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Registry exposes the underlying registry for tests and additional collectors.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
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

// RecordCacheOperation records a cache lookup outcome.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordAuditRecord counts an appended audit record.
func (m *MetricsService) RecordAuditRecord(field string, status models.ValidationStatus) {
	if m == nil {
		return
	}
	m.auditRecords.WithLabelValues(field, string(status)).Inc()
}

// RecordRuleViolation counts a rule that rejected or flagged a change.
func (m *MetricsService) RecordRuleViolation(ruleType models.RuleType, status models.ValidationStatus) {
	if m == nil {
		return
	}
	m.ruleViolations.WithLabelValues(string(ruleType), string(status)).Inc()
}

// RecordAlert counts a detector candidate as created or deduplicated.
func (m *MetricsService) RecordAlert(alertType models.AlertType, severity models.Severity, created bool) {
	if m == nil {
		return
	}
	if created {
		m.alertsCreated.WithLabelValues(string(alertType), string(severity)).Inc()
		return
	}
	m.alertsDeduplicated.WithLabelValues(string(alertType)).Inc()
}

// RecordAlertResolved counts a resolution.
func (m *MetricsService) RecordAlertResolved() {
	if m == nil {
		return
	}
	m.alertsResolved.Inc()
}

// RecordConsistencyCheck counts a validation by outcome: consistent, inconsistent or error.
func (m *MetricsService) RecordConsistencyCheck(outcome string) {
	if m == nil {
		return
	}
	m.consistencyChecks.WithLabelValues(outcome).Inc()
}

// ObserveDetectorRun records the duration of one detector scan.
func (m *MetricsService) ObserveDetectorRun(duration time.Duration) {
	if m == nil {
		return
	}
	m.detectorDuration.Observe(duration.Seconds())
}

// RecordNotification counts an alert event delivery outcome.
func (m *MetricsService) RecordNotification(outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(outcome).Inc()
}
