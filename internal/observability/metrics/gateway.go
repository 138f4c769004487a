package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/pdfqa-gateway/internal/core/domain"
)

// GatewayMetrics owns one registry per process. It implements the lifecycle,
// backend call and resilience observers, and the HTTP middleware in http.go
// records into the same registry.
type GatewayMetrics struct {
	service  string
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	transitionsTotal *prometheus.CounterVec
	sessionState     *prometheus.GaugeVec
	cleanupsTotal    *prometheus.CounterVec

	backendCallsTotal    *prometheus.CounterVec
	backendCallDuration  *prometheus.HistogramVec
	backendRetriesTotal  *prometheus.CounterVec
	breakerStateChanges  *prometheus.CounterVec
	uploadsRejectedTotal *prometheus.CounterVec
}

func NewGatewayMetrics(service string) *GatewayMetrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "pdfqa",
			Subsystem:   "http",
			Name:        "requests_total",
			Help:        "Total HTTP requests processed.",
			ConstLabels: constLabels,
		},
		[]string{"method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   "pdfqa",
			Subsystem:   "http",
			Name:        "request_duration_seconds",
			Help:        "HTTP request duration in seconds.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		},
		[]string{"method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   "pdfqa",
			Subsystem:   "http",
			Name:        "in_flight_requests",
			Help:        "Number of in-flight HTTP requests.",
			ConstLabels: constLabels,
		},
	)
	transitionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "pdfqa",
			Subsystem:   "session",
			Name:        "transitions_total",
			Help:        "Lifecycle state transitions.",
			ConstLabels: constLabels,
		},
		[]string{"from", "to"},
	)
	sessionState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   "pdfqa",
			Subsystem:   "session",
			Name:        "state",
			Help:        "1 for the current lifecycle state, 0 otherwise.",
			ConstLabels: constLabels,
		},
		[]string{"state"},
	)
	cleanupsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "pdfqa",
			Subsystem:   "session",
			Name:        "cleanups_total",
			Help:        "Cleanup runs by outcome.",
			ConstLabels: constLabels,
		},
		[]string{"outcome"},
	)
	backendCallsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "pdfqa",
			Subsystem:   "backend",
			Name:        "calls_total",
			Help:        "Backend calls by operation and outcome.",
			ConstLabels: constLabels,
		},
		[]string{"operation", "outcome"},
	)
	backendCallDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   "pdfqa",
			Subsystem:   "backend",
			Name:        "call_duration_seconds",
			Help:        "Backend call duration including retries.",
			Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
			ConstLabels: constLabels,
		},
		[]string{"operation"},
	)
	backendRetriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "pdfqa",
			Subsystem:   "backend",
			Name:        "retries_total",
			Help:        "Retried backend attempts.",
			ConstLabels: constLabels,
		},
		[]string{"operation"},
	)
	breakerStateChanges := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "pdfqa",
			Subsystem:   "backend",
			Name:        "breaker_state_changes_total",
			Help:        "Circuit breaker transitions by target state.",
			ConstLabels: constLabels,
		},
		[]string{"operation", "state"},
	)
	uploadsRejectedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "pdfqa",
			Subsystem:   "upload",
			Name:        "rejected_total",
			Help:        "Upload candidates rejected by error kind.",
			ConstLabels: constLabels,
		},
		[]string{"kind"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		transitionsTotal,
		sessionState,
		cleanupsTotal,
		backendCallsTotal,
		backendCallDuration,
		backendRetriesTotal,
		breakerStateChanges,
		uploadsRejectedTotal,
	)

	m := &GatewayMetrics{
		service:              service,
		registry:             registry,
		requestTotal:         requestTotal,
		requestDuration:      requestDuration,
		requestInFlight:      requestInFlight,
		transitionsTotal:     transitionsTotal,
		sessionState:         sessionState,
		cleanupsTotal:        cleanupsTotal,
		backendCallsTotal:    backendCallsTotal,
		backendCallDuration:  backendCallDuration,
		backendRetriesTotal:  backendRetriesTotal,
		breakerStateChanges:  breakerStateChanges,
		uploadsRejectedTotal: uploadsRejectedTotal,
	}
	m.setState(domain.StateEmpty)
	return m
}

func (m *GatewayMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *GatewayMetrics) ObserveTransition(from, to domain.LifecycleState) {
	m.transitionsTotal.WithLabelValues(string(from), string(to)).Inc()
	m.setState(to)
}

func (m *GatewayMetrics) ObserveCleanup(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.cleanupsTotal.WithLabelValues(outcome).Inc()
}

func (m *GatewayMetrics) ObserveBackendCall(operation, outcome string, duration time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.backendCallsTotal.WithLabelValues(operation, outcome).Inc()
	m.backendCallDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *GatewayMetrics) ObserveRetry(operation string) {
	m.backendRetriesTotal.WithLabelValues(operation).Inc()
}

func (m *GatewayMetrics) ObserveBreakerState(operation, state string) {
	m.breakerStateChanges.WithLabelValues(operation, state).Inc()
}

func (m *GatewayMetrics) ObserveUploadRejected(err error) {
	kind := domain.KindOf(err)
	if kind == "" {
		kind = "internal"
	}
	m.uploadsRejectedTotal.WithLabelValues(kind).Inc()
}

func (m *GatewayMetrics) setState(current domain.LifecycleState) {
	for _, state := range []domain.LifecycleState{domain.StateEmpty, domain.StateFilesAdmitted, domain.StateProcessed} {
		value := 0.0
		if state == current {
			value = 1
		}
		m.sessionState.WithLabelValues(string(state)).Set(value)
	}
}
