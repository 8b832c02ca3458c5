package sinks

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/insight-curator/internal/notify"
)

// PrometheusSink counts change events by kind and status transitions by
// target status.
type PrometheusSink struct {
	events      *prometheus.CounterVec
	transitions *prometheus.CounterVec
}

// NewPrometheusSink registers the collectors against the provided registry.
// Collectors already registered by an earlier sink are shared.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	events, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "curator_change_events_total",
		Help: "Change notifications partitioned by kind.",
	}, []string{"kind"}))
	if err != nil {
		return nil, err
	}
	transitions, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "curator_source_transitions_total",
		Help: "Source status changes partitioned by target status.",
	}, []string{"status"}))
	if err != nil {
		return nil, err
	}
	return &PrometheusSink{events: events, transitions: transitions}, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("register notify collector: %w", err)
	}
	return vec, nil
}

// Consume updates the counters from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []notify.Event) error {
	for _, evt := range batch {
		s.events.WithLabelValues(string(evt.Kind)).Inc()
		if evt.Status != "" && evt.Kind != notify.KindSourceDeleted {
			s.transitions.WithLabelValues(string(evt.Status)).Inc()
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
