// Package metrics provides Prometheus metrics collection
package metrics

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/R3E-Network/service_layer/infrastructure/runtime"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Error metrics
	ErrorsTotal *prometheus.CounterVec

	// Pipeline metrics
	StageProcessedTotal  *prometheus.CounterVec
	StageDuration        *prometheus.HistogramVec
	BusMessagesPublished *prometheus.CounterVec
	BusMessagesConsumed  *prometheus.CounterVec
	BusDeadLettered      *prometheus.CounterVec
	DuplicatesDetected   *prometheus.CounterVec
	SLABreaches          *prometheus.CounterVec
	RiskScore            *prometheus.HistogramVec

	// Database metrics
	DatabaseQueriesTotal    *prometheus.CounterVec
	DatabaseQueryDuration   *prometheus.HistogramVec
	DatabaseConnectionsOpen prometheus.Gauge

	// Service health
	ServiceUptime prometheus.Gauge
	ServiceInfo   *prometheus.GaugeVec
}

// New creates a new Metrics instance with all collectors registered
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new Metrics instance with a custom registry
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP metrics
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"service", "method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"service", "method", "path"},
		),
		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Current number of HTTP requests being processed",
			},
		),

		// Error metrics
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "errors_total",
				Help: "Total number of errors",
			},
			[]string{"service", "type", "operation"},
		),

		// Pipeline metrics
		StageProcessedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invoice_stage_processed_total",
				Help: "Total number of invoices processed per pipeline stage",
			},
			[]string{"service", "stage", "status"},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "invoice_stage_duration_seconds",
				Help:    "Pipeline stage processing duration in seconds",
				Buckets: []float64{.01, .05, .1, .5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"service", "stage"},
		),
		BusMessagesPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "event_bus_messages_published_total",
				Help: "Total number of messages published to the event bus",
			},
			[]string{"service", "event_type", "priority"},
		),
		BusMessagesConsumed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "event_bus_messages_consumed_total",
				Help: "Total number of messages consumed from the event bus",
			},
			[]string{"service", "event_type", "status"},
		),
		BusDeadLettered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "event_bus_dead_lettered_total",
				Help: "Total number of messages moved to the dead letter queue",
			},
			[]string{"service", "event_type"},
		),
		DuplicatesDetected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invoice_duplicates_detected_total",
				Help: "Total number of duplicate matches detected",
			},
			[]string{"service", "match_type"},
		),
		SLABreaches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invoice_sla_breaches_total",
				Help: "Total number of SLA breaches recorded",
			},
			[]string{"service", "escalation_level"},
		),
		RiskScore: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "invoice_risk_score",
				Help:    "Distribution of computed invoice risk scores",
				Buckets: []float64{.1, .2, .3, .4, .5, .6, .7, .8, .9, 1},
			},
			[]string{"service", "level"},
		),

		// Database metrics
		DatabaseQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "database_queries_total",
				Help: "Total number of database queries",
			},
			[]string{"service", "operation", "status"},
		),
		DatabaseQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "database_query_duration_seconds",
				Help:    "Database query duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"service", "operation"},
		),
		DatabaseConnectionsOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "database_connections_open",
				Help: "Current number of open database connections",
			},
		),

		// Service health
		ServiceUptime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "service_uptime_seconds",
				Help: "Service uptime in seconds",
			},
		),
		ServiceInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "service_info",
				Help: "Service information",
			},
			[]string{"service", "version", "environment"},
		),
	}

	// Register all collectors
	if registerer != nil {
		registerer.MustRegister(
			m.RequestsTotal,
			m.RequestDuration,
			m.RequestsInFlight,
			m.ErrorsTotal,
			m.StageProcessedTotal,
			m.StageDuration,
			m.BusMessagesPublished,
			m.BusMessagesConsumed,
			m.BusDeadLettered,
			m.DuplicatesDetected,
			m.SLABreaches,
			m.RiskScore,
			m.DatabaseQueriesTotal,
			m.DatabaseQueryDuration,
			m.DatabaseConnectionsOpen,
			m.ServiceUptime,
			m.ServiceInfo,
		)
	}

	// Set service info
	m.ServiceInfo.WithLabelValues(serviceName, "1.0.0", getEnvironment()).Set(1)

	return m
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(service, method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(service, method, path, status).Inc()
	m.RequestDuration.WithLabelValues(service, method, path).Observe(duration.Seconds())
}

// RecordError records an error
func (m *Metrics) RecordError(service, errorType, operation string) {
	m.ErrorsTotal.WithLabelValues(service, errorType, operation).Inc()
}

// RecordStageProcessed records the outcome of one pipeline stage for one invoice.
func (m *Metrics) RecordStageProcessed(service, stage, status string, duration time.Duration) {
	m.StageProcessedTotal.WithLabelValues(service, stage, status).Inc()
	m.StageDuration.WithLabelValues(service, stage).Observe(duration.Seconds())
}

// RecordBusPublish records a message published to the event bus.
func (m *Metrics) RecordBusPublish(service, eventType, priority string) {
	m.BusMessagesPublished.WithLabelValues(service, eventType, priority).Inc()
}

// RecordBusConsume records a message consumed from the event bus.
func (m *Metrics) RecordBusConsume(service, eventType, status string) {
	m.BusMessagesConsumed.WithLabelValues(service, eventType, status).Inc()
}

// RecordDeadLettered records a message moved to the dead letter queue.
func (m *Metrics) RecordDeadLettered(service, eventType string) {
	m.BusDeadLettered.WithLabelValues(service, eventType).Inc()
}

// RecordDuplicateDetected records a duplicate match.
func (m *Metrics) RecordDuplicateDetected(service, matchType string) {
	m.DuplicatesDetected.WithLabelValues(service, matchType).Inc()
}

// RecordSLABreach records an SLA breach at the given escalation level.
func (m *Metrics) RecordSLABreach(service, escalationLevel string) {
	m.SLABreaches.WithLabelValues(service, escalationLevel).Inc()
}

// RecordRiskScore records a computed risk score for histogram analysis.
func (m *Metrics) RecordRiskScore(service, level string, score float64) {
	m.RiskScore.WithLabelValues(service, level).Observe(score)
}

// RecordDatabaseQuery records a database query
func (m *Metrics) RecordDatabaseQuery(service, operation, status string, duration time.Duration) {
	m.DatabaseQueriesTotal.WithLabelValues(service, operation, status).Inc()
	m.DatabaseQueryDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

// SetDatabaseConnections sets the number of open database connections
func (m *Metrics) SetDatabaseConnections(count int) {
	m.DatabaseConnectionsOpen.Set(float64(count))
}

// UpdateUptime updates the service uptime
func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.ServiceUptime.Set(time.Since(startTime).Seconds())
}

// IncrementInFlight increments the in-flight requests counter
func (m *Metrics) IncrementInFlight() {
	m.RequestsInFlight.Inc()
}

// DecrementInFlight decrements the in-flight requests counter
func (m *Metrics) DecrementInFlight() {
	m.RequestsInFlight.Dec()
}

// Helper functions

func getEnvironment() string {
	return string(runtime.Env())
}

// Enabled returns whether Prometheus metrics should be exposed.
//
// Defaults:
// - production: disabled unless explicitly enabled via METRICS_ENABLED
// - non-production: enabled unless explicitly disabled via METRICS_ENABLED
func Enabled() bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("METRICS_ENABLED")))
	if raw == "" {
		return !runtime.IsProduction()
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// Global metrics instance
var (
	globalMetrics *Metrics
	globalMu      sync.Mutex
)

// Init initializes the global metrics instance
func Init(serviceName string) *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New(serviceName)
	}
	return globalMetrics
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New("unknown")
	}
	return globalMetrics
}
