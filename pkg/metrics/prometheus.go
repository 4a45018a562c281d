package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
// All record methods are safe on a nil receiver so collaborators may run without metrics.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP Request Metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Call Metrics
	callsTotal        *prometheus.CounterVec
	callTransitions   *prometheus.CounterVec
	callErrorsTotal   *prometheus.CounterVec
	speakingTurnTime  prometheus.Histogram
	lockWaitDuration  *prometheus.HistogramVec
	announcementTotal *prometheus.CounterVec
	breakerState      *prometheus.GaugeVec
	degradedDeps      *prometheus.GaugeVec

	// WebSocket Metrics
	websocketConnections   prometheus.Gauge
	websocketMessagesTotal *prometheus.CounterVec

	// Discipline Metrics
	disciplineResults *prometheus.CounterVec

	// Store Metrics
	storeQueriesTotal  *prometheus.CounterVec
	storeQueryDuration *prometheus.HistogramVec
}

// NewMetrics creates all metrics on a registry owned by this instance
func NewMetrics(serviceName string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	factory := promauto.With(reg)
	labels := prometheus.Labels{"service": serviceName}

	return &Metrics{
		registry: reg,

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

		callsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "calls_total",
				Help:        "Total number of calls created",
				ConstLabels: labels,
			},
			[]string{"scope", "mode"},
		),
		callTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "call_transitions_total",
				Help:        "Call state transitions by operation",
				ConstLabels: labels,
			},
			[]string{"operation"},
		),
		callErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "call_errors_total",
				Help:        "Rejected call operations by error code",
				ConstLabels: labels,
			},
			[]string{"operation", "code"},
		),
		speakingTurnTime: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:        "circle_speaking_turn_seconds",
				Help:        "Length of completed circle-talking turns",
				ConstLabels: labels,
				Buckets:     []float64{10, 30, 60, 120, 300, 600, 1200},
			},
		),
		lockWaitDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "call_lock_wait_seconds",
				Help:        "Time spent acquiring the per-call lock",
				ConstLabels: labels,
				Buckets:     []float64{.001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"result"},
		),
		announcementTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "moderator_announcements_total",
				Help:        "Moderator announcements by kind and source",
				ConstLabels: labels,
			},
			[]string{"kind", "source"},
		),
		breakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name:        "circuit_breaker_state",
				Help:        "State of a circuit breaker (0=closed, 1=half_open, 2=open)",
				ConstLabels: labels,
			},
			[]string{"name"},
		),
		degradedDeps: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name:        "dependency_degraded",
				Help:        "Indicates if a dependency runs in degraded mode (1 = degraded, 0 = healthy)",
				ConstLabels: labels,
			},
			[]string{"dependency"},
		),

		websocketConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "websocket_connections",
				Help:        "Number of active call event WebSocket connections",
				ConstLabels: labels,
			},
		),
		websocketMessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "websocket_messages_total",
				Help:        "Total number of call events written to sockets",
				ConstLabels: labels,
			},
			[]string{"type"},
		),

		disciplineResults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "discipline_evaluations_total",
				Help:        "Discipline evaluations by result",
				ConstLabels: labels,
			},
			[]string{"variant", "result"},
		),

		storeQueriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "store_queries_total",
				Help:        "Queries against CockroachDB and Cassandra by outcome",
				ConstLabels: labels,
			},
			[]string{"store", "operation", "status"},
		),
		storeQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "store_query_duration_seconds",
				Help:        "Store query latency in seconds",
				ConstLabels: labels,
				Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"store", "operation"},
		),
	}
}

// GetRegistry returns the registry served on /metrics
func (m *Metrics) GetRegistry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
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

func (m *Metrics) IncrementHTTPRequestsInFlight() {
	if m == nil {
		return
	}
	m.httpRequestsInFlight.Inc()
}

func (m *Metrics) DecrementHTTPRequestsInFlight() {
	if m == nil {
		return
	}
	m.httpRequestsInFlight.Dec()
}

// Call Metrics Methods

// RecordCall records a created call
func (m *Metrics) RecordCall(scope, mode string) {
	if m == nil {
		return
	}
	m.callsTotal.WithLabelValues(scope, mode).Inc()
}

// RecordTransition records a successful call operation
func (m *Metrics) RecordTransition(operation string) {
	if m == nil {
		return
	}
	m.callTransitions.WithLabelValues(operation).Inc()
}

// RecordCallError records a rejected call operation
func (m *Metrics) RecordCallError(operation, code string) {
	if m == nil {
		return
	}
	m.callErrorsTotal.WithLabelValues(operation, code).Inc()
}

// ObserveSpeakingTurn records the length of a finished turn
func (m *Metrics) ObserveSpeakingTurn(d time.Duration) {
	if m == nil {
		return
	}
	m.speakingTurnTime.Observe(d.Seconds())
}

// ObserveLockWait records lock acquisition latency; result is acquired or timeout
func (m *Metrics) ObserveLockWait(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.lockWaitDuration.WithLabelValues(result).Observe(d.Seconds())
}

// RecordAnnouncement records where an announcement came from (generated, disabled, fallback)
func (m *Metrics) RecordAnnouncement(kind, source string) {
	if m == nil {
		return
	}
	m.announcementTotal.WithLabelValues(kind, source).Inc()
}

// SetBreakerState records a circuit breaker state
func (m *Metrics) SetBreakerState(name string, state float64) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(name).Set(state)
}

// SetDegraded records whether a dependency runs in degraded mode
func (m *Metrics) SetDegraded(dependency string, degraded bool) {
	if m == nil {
		return
	}
	v := 0.0
	if degraded {
		v = 1
	}
	m.degradedDeps.WithLabelValues(dependency).Set(v)
}

// WebSocket Metrics Methods

func (m *Metrics) SetWebSocketConnections(count int) {
	if m == nil {
		return
	}
	m.websocketConnections.Set(float64(count))
}

func (m *Metrics) RecordWebSocketMessage(eventType string) {
	if m == nil {
		return
	}
	m.websocketMessagesTotal.WithLabelValues(eventType).Inc()
}

// Discipline Metrics Methods

// RecordDiscipline records an evaluation result; variant is "threshold" or "recommend"
func (m *Metrics) RecordDiscipline(variant, result string) {
	if m == nil {
		return
	}
	m.disciplineResults.WithLabelValues(variant, result).Inc()
}

// Store Metrics Methods

// ObserveStoreQuery records one query; a non-nil err counts as an error
func (m *Metrics) ObserveStoreQuery(store, operation string, err error, d time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.storeQueriesTotal.WithLabelValues(store, operation, status).Inc()
	m.storeQueryDuration.WithLabelValues(store, operation).Observe(d.Seconds())
}
