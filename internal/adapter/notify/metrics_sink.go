package notify

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/inkwell/contractflow/internal/ports"
)

// MetricsSink counts committed contract events by action.
type MetricsSink struct {
	events *prometheus.CounterVec
}

// NewMetricsSink registers contractflow_events_total with reg.
func NewMetricsSink(reg prometheus.Registerer) (*MetricsSink, error) {
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "contractflow",
		Name:      "events_total",
		Help:      "Committed contract mutations by audit action.",
	}, []string{"action"})

	if err := reg.Register(events); err != nil {
		return nil, err
	}
	return &MetricsSink{events: events}, nil
}

// Deliver counts the event by action.
func (s *MetricsSink) Deliver(_ context.Context, event ports.Event) error {
	s.events.WithLabelValues(string(event.Action)).Inc()
	return nil
}
