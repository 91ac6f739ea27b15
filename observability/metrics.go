package observability

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type gatewayMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	gatewayMetricsOnce sync.Once
	gatewayRegistry    *gatewayMetrics

	protocolMetricsOnce sync.Once
	protocolRegistry    *protocolMetrics
)

// GatewayMetrics returns the lazily-initialised registry used to record HTTP
// API activity.
func GatewayMetrics() *gatewayMetrics {
	gatewayMetricsOnce.Do(func() {
		gatewayRegistry = &gatewayMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftlend",
				Subsystem: "gateway",
				Name:      "requests_total",
				Help:      "Total API requests segmented by route, method, and outcome.",
			}, []string{"route", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftlend",
				Subsystem: "gateway",
				Name:      "errors_total",
				Help:      "Total API errors segmented by route, method, and status code.",
			}, []string{"route", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "nftlend",
				Subsystem: "gateway",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftlend",
				Subsystem: "gateway",
				Name:      "throttles_total",
				Help:      "Count of requests rejected by throttling policies.",
			}, []string{"route", "reason"}),
		}
		prometheus.MustRegister(
			gatewayRegistry.requests,
			gatewayRegistry.errors,
			gatewayRegistry.latency,
			gatewayRegistry.throttles,
		)
	})
	return gatewayRegistry
}

// Observe records the outcome of an API request. status is the HTTP status
// written to the client.
func (m *gatewayMetrics) Observe(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(route, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(route, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter. Reasons should be stable
// strings such as "rate_limit".
func (m *gatewayMetrics) RecordThrottle(route, reason string) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(route, reason).Inc()
}

type protocolMetrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	pending    prometheus.Gauge
}

// ProtocolMetrics returns the registry tracking state-mutating operations.
func ProtocolMetrics() *protocolMetrics {
	protocolMetricsOnce.Do(func() {
		protocolRegistry = &protocolMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftlend",
				Subsystem: "protocol",
				Name:      "operations_total",
				Help:      "Count of protocol operations segmented by operation and outcome.",
			}, []string{"op", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "nftlend",
				Subsystem: "protocol",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for protocol operations including commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"op"}),
			pending: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "nftlend",
				Subsystem: "protocol",
				Name:      "committed_keys",
				Help:      "Number of state keys written by the most recent commit.",
			}),
		}
		prometheus.MustRegister(protocolRegistry.operations, protocolRegistry.latency, protocolRegistry.pending)
	})
	return protocolRegistry
}

// ObserveOperation records one operation. A nil err counts as success.
func (m *protocolMetrics) ObserveOperation(op string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	op = strings.TrimSpace(op)
	if op == "" {
		op = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordCommit tracks the size of a state commit.
func (m *protocolMetrics) RecordCommit(keys int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(keys))
}
