// Package monitoring provides Prometheus metrics and OpenTelemetry tracing
// for the analytics engine
package monitoring

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// MetricsCollector handles Prometheus metrics collection
type MetricsCollector struct {
	logger *zap.Logger

	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Ingest metrics
	eventsIngestedTotal *prometheus.CounterVec
	batchSize           prometheus.Histogram

	// Engine metrics
	frictionEventsTotal *prometheus.CounterVec
	journeysSealedTotal *prometheus.CounterVec
	wsClientsActive     prometheus.Gauge
}

// NewMetricsCollector creates a metrics collector
func NewMetricsCollector(logger *zap.Logger) *MetricsCollector {
	return &MetricsCollector{
		logger: logger,

		httpRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		httpRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status_code"},
		),

		eventsIngestedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "events_ingested_total",
				Help: "Total number of interaction events accepted on ingest",
			},
			[]string{"tenant", "kind"},
		),
		batchSize: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ingest_batch_size",
				Help:    "Number of events per ingest batch",
				Buckets: prometheus.ExponentialBuckets(1, 4, 6),
			},
		),

		frictionEventsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "friction_events_total",
				Help: "Total number of classified friction events",
			},
			[]string{"tenant", "type", "severity"},
		),
		journeysSealedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "journeys_sealed_total",
				Help: "Total number of sealed journeys",
			},
			[]string{"tenant", "completed"},
		),
		wsClientsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ws_alert_clients_active",
				Help: "Connected websocket alert feed clients",
			},
		),
	}
}

// RecordHTTPRequest records an HTTP request observation
func (m *MetricsCollector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	code := fmt.Sprintf("%d", status)
	m.httpRequestsTotal.WithLabelValues(method, path, code).Inc()
	m.httpRequestDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
}

// RecordIngestedEvent counts an accepted interaction event
func (m *MetricsCollector) RecordIngestedEvent(tenant, kind string) {
	m.eventsIngestedTotal.WithLabelValues(tenant, kind).Inc()
}

// RecordBatch observes an ingest batch size
func (m *MetricsCollector) RecordBatch(size int) {
	m.batchSize.Observe(float64(size))
}

// RecordFrictionEvent counts a classified friction event
func (m *MetricsCollector) RecordFrictionEvent(tenant, frictionType, severity string) {
	m.frictionEventsTotal.WithLabelValues(tenant, frictionType, severity).Inc()
}

// RecordJourneySealed counts a sealed journey
func (m *MetricsCollector) RecordJourneySealed(tenant string, completed bool) {
	m.journeysSealedTotal.WithLabelValues(tenant, fmt.Sprintf("%t", completed)).Inc()
}

// WSClientConnected tracks a websocket client attach/detach
func (m *MetricsCollector) WSClientConnected(delta int) {
	m.wsClientsActive.Add(float64(delta))
}

// Handler returns the Prometheus scrape handler
func (m *MetricsCollector) Handler() http.Handler {
	return promhttp.Handler()
}
