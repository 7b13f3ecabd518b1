package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP Request Metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// WebSocket Metrics
	websocketConnections   prometheus.Gauge
	websocketMessagesTotal *prometheus.CounterVec
	websocketErrorsTotal   *prometheus.CounterVec
	deliveriesDropped      *prometheus.CounterVec

	// Presence Metrics
	presenceUpdatesTotal *prometheus.CounterVec
	presenceErrorsTotal  *prometheus.CounterVec

	// Call Metrics
	callsTotal       *prometheus.CounterVec
	callsActive      prometheus.Gauge
	callsDuration    *prometheus.HistogramVec
	callsFailedTotal *prometheus.CounterVec

	// Message Metrics
	messagesTotal       *prometheus.CounterVec
	messagesFailedTotal *prometheus.CounterVec

	// Auth Metrics
	authFailuresTotal *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer in main and a fresh registry in tests.
func NewMetrics(serviceName string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"service": serviceName}

	m := &Metrics{
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: labels,
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "HTTP request latency in seconds",
				ConstLabels: labels,
				Buckets:     prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		httpRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "http_requests_in_flight",
				Help:        "Number of HTTP requests currently being processed",
				ConstLabels: labels,
			},
		),

		websocketConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "websocket_connections",
				Help:        "Number of registered WebSocket connections",
				ConstLabels: labels,
			},
		),
		websocketMessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "websocket_messages_total",
				Help:        "Total number of WebSocket events",
				ConstLabels: labels,
			},
			[]string{"event", "direction"},
		),
		websocketErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "websocket_errors_total",
				Help:        "Total number of WebSocket errors",
				ConstLabels: labels,
			},
			[]string{"error"},
		),
		deliveriesDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "websocket_deliveries_dropped_total",
				Help:        "Outbound events dropped because the target connection could not take them",
				ConstLabels: labels,
			},
			[]string{"event"},
		),

		presenceUpdatesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "presence_updates_total",
				Help:        "Total number of presence transitions",
				ConstLabels: labels,
			},
			[]string{"status"},
		),
		presenceErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "presence_store_errors_total",
				Help:        "Presence writes that failed and were skipped",
				ConstLabels: labels,
			},
			[]string{"store"},
		),

		callsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "calls_total",
				Help:        "Total number of call sessions by terminal status",
				ConstLabels: labels,
			},
			[]string{"type", "status"},
		),
		callsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "calls_active",
				Help:        "Number of call sessions in the session table",
				ConstLabels: labels,
			},
		),
		callsDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "calls_duration_seconds",
				Help:        "Accepted call duration in seconds",
				ConstLabels: labels,
				Buckets:     []float64{10, 30, 60, 120, 300, 600, 1800, 2700},
			},
			[]string{"type"},
		),
		callsFailedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "calls_failed_total",
				Help:        "Total number of call attempts that could not ring",
				ConstLabels: labels,
			},
			[]string{"type", "reason"},
		),

		messagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "messages_total",
				Help:        "Total number of persisted messages",
				ConstLabels: labels,
			},
			[]string{"target", "type"},
		),
		messagesFailedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "messages_failed_total",
				Help:        "Total number of rejected or failed message sends",
				ConstLabels: labels,
			},
			[]string{"reason"},
		),

		authFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "auth_failures_total",
				Help:        "Total number of authentication failures",
				ConstLabels: labels,
			},
			[]string{"method", "reason"},
		),
	}

	return m
}

// HTTP Metrics Methods

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// IncrementHTTPRequestsInFlight increments the number of in-flight HTTP requests
func (m *Metrics) IncrementHTTPRequestsInFlight() {
	if m == nil {
		return
	}
	m.httpRequestsInFlight.Inc()
}

// DecrementHTTPRequestsInFlight decrements the number of in-flight HTTP requests
func (m *Metrics) DecrementHTTPRequestsInFlight() {
	if m == nil {
		return
	}
	m.httpRequestsInFlight.Dec()
}

// WebSocket Metrics Methods

// SetWebSocketConnections sets the number of registered WebSocket connections
func (m *Metrics) SetWebSocketConnections(count int) {
	if m == nil {
		return
	}
	m.websocketConnections.Set(float64(count))
}

// RecordWebSocketMessage records an inbound or outbound event
func (m *Metrics) RecordWebSocketMessage(event, direction string) {
	if m == nil {
		return
	}
	m.websocketMessagesTotal.WithLabelValues(event, direction).Inc()
}

// RecordWebSocketError records a WebSocket error
func (m *Metrics) RecordWebSocketError(err string) {
	if m == nil {
		return
	}
	m.websocketErrorsTotal.WithLabelValues(err).Inc()
}

// RecordDeliveryDropped records an outbound event that was not queued
func (m *Metrics) RecordDeliveryDropped(event string) {
	if m == nil {
		return
	}
	m.deliveriesDropped.WithLabelValues(event).Inc()
}

// Presence Metrics Methods

// RecordPresenceUpdate records an online/offline transition
func (m *Metrics) RecordPresenceUpdate(status string) {
	if m == nil {
		return
	}
	m.presenceUpdatesTotal.WithLabelValues(status).Inc()
}

// RecordPresenceError records a failed presence write
func (m *Metrics) RecordPresenceError(store string) {
	if m == nil {
		return
	}
	m.presenceErrorsTotal.WithLabelValues(store).Inc()
}

// Call Metrics Methods

// RecordCall records a call reaching a terminal status
func (m *Metrics) RecordCall(callType, status string) {
	if m == nil {
		return
	}
	m.callsTotal.WithLabelValues(callType, status).Inc()
}

// SetActiveCalls sets the number of active calls
func (m *Metrics) SetActiveCalls(count int) {
	if m == nil {
		return
	}
	m.callsActive.Set(float64(count))
}

// RecordCallDuration records the duration of a call
func (m *Metrics) RecordCallDuration(callType string, duration time.Duration) {
	if m == nil {
		return
	}
	m.callsDuration.WithLabelValues(callType).Observe(duration.Seconds())
}

// RecordCallFailure records a failed call
func (m *Metrics) RecordCallFailure(callType, reason string) {
	if m == nil {
		return
	}
	m.callsFailedTotal.WithLabelValues(callType, reason).Inc()
}

// Message Metrics Methods

// RecordMessage records a persisted message
func (m *Metrics) RecordMessage(target, msgType string) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(target, msgType).Inc()
}

// RecordMessageFailure records a send that did not persist
func (m *Metrics) RecordMessageFailure(reason string) {
	if m == nil {
		return
	}
	m.messagesFailedTotal.WithLabelValues(reason).Inc()
}

// Auth Metrics Methods

// RecordAuthFailure records an authentication failure
func (m *Metrics) RecordAuthFailure(method, reason string) {
	if m == nil {
		return
	}
	m.authFailuresTotal.WithLabelValues(method, reason).Inc()
}
