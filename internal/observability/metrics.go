// Package observability exports Prometheus metrics for chore transitions.
package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dukerupert/choreflow/internal/model"
)

// ChoreMetrics counts engine events. It is an EventSink.
type ChoreMetrics struct {
	reg       *prometheus.Registry
	events    *prometheus.CounterVec
	awarded   *prometheus.CounterVec
	late      prometheus.Counter
	ticks     *prometheus.CounterVec
	tickTimes prometheus.Histogram
}

// NewChoreMetrics registers the chore collectors, plus the Go and process
// collectors, on a fresh registry.
func NewChoreMetrics() *ChoreMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &ChoreMetrics{
		reg: reg,
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "choreflow",
			Name:      "events_total",
			Help:      "Chore transitions by event type and chore.",
		}, []string{"type", "chore"}),
		awarded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "choreflow",
			Name:      "reward_awarded_total",
			Help:      "Sum of approved reward amounts by participant.",
		}, []string{"participant"}),
		late: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "choreflow",
			Name:      "late_approvals_total",
			Help:      "Approvals given after the due date.",
		}),
		ticks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "choreflow",
			Name:      "ticks_total",
			Help:      "Reset and overdue passes by result.",
		}, []string{"result"}),
		tickTimes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "choreflow",
			Name:      "tick_duration_seconds",
			Help:      "Duration of reset and overdue passes.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
	}
}

func (m *ChoreMetrics) Publish(_ context.Context, evt model.Event) error {
	m.events.WithLabelValues(string(evt.Type), evt.Chore).Inc()
	if evt.Type == model.EventApproved {
		m.awarded.WithLabelValues(evt.Participant).Add(evt.Amount)
		if evt.Late {
			m.late.Inc()
		}
	}
	return nil
}

// ObserveTick records one scheduler pass.
func (m *ChoreMetrics) ObserveTick(d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ticks.WithLabelValues(result).Inc()
	m.tickTimes.Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *ChoreMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
