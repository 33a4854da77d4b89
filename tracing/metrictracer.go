package tracing

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricTracer exports the number of port events per port and kind as a
// Prometheus counter.
type MetricTracer struct {
	filter TaskFilter
	events *prometheus.CounterVec
}

// NewMetricTracer creates a MetricTracer. A nil filter counts every event.
func NewMetricTracer(filter TaskFilter) *MetricTracer {
	return &MetricTracer{
		filter: filter,
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rsim",
				Name:      "port_events_total",
				Help:      "Number of port events by port and kind.",
			},
			[]string{"port", "kind"},
		),
	}
}

// Register adds the counter to a registry.
func (t *MetricTracer) Register(reg prometheus.Registerer) error {
	return reg.Register(t.events)
}

// Counter returns the counter of one port and kind.
func (t *MetricTracer) Counter(port, kind string) prometheus.Counter {
	return t.events.WithLabelValues(port, kind)
}

// StartTask counts a send.
func (t *MetricTracer) StartTask(task Task) {
	t.count(task)
}

// StepTask counts a commit or a receive.
func (t *MetricTracer) StepTask(task Task) {
	t.count(task)
}

// EndTask counts an acknowledgement or a supersession.
func (t *MetricTracer) EndTask(task Task) {
	t.count(task)
}

func (t *MetricTracer) count(task Task) {
	if t.filter != nil && !t.filter(task) {
		return
	}

	t.events.WithLabelValues(task.Where, task.Kind).Inc()
}
