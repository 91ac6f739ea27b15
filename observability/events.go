package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"nftlend/core/events"
)

type eventMetrics struct {
	emitted     *prometheus.CounterVec
	resolutions *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking committed protocol events. It
// doubles as an events.Emitter so the node can subscribe it directly.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftlend",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Count of committed events segmented by type.",
			}, []string{"type"}),
			resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftlend",
				Subsystem: "events",
				Name:      "loan_resolutions_total",
				Help:      "Count of resolved loans segmented by terminal status.",
			}, []string{"status"}),
		}
		prometheus.MustRegister(eventRegistry.emitted, eventRegistry.resolutions)
	})
	return eventRegistry
}

// Emit implements events.Emitter.
func (m *eventMetrics) Emit(evt *events.Event) {
	if m == nil || evt == nil {
		return
	}
	m.emitted.WithLabelValues(evt.Type).Inc()
	if evt.Type == "coordinator.loan.resolved" {
		m.RecordResolution(evt.Attr("status"))
	}
}

// RecordResolution increments the resolution counter for a terminal status.
func (m *eventMetrics) RecordResolution(status string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(strings.ToUpper(status))
	if normalized == "" {
		normalized = "UNKNOWN"
	}
	m.resolutions.WithLabelValues(normalized).Inc()
}
