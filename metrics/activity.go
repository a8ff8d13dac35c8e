// Package metrics exports lifecycle activity as Prometheus metrics.
package metrics

import (
	"context"

	"github.com/goliatone/go-accounts"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "accounts"

// Activity is an accounts.ActivitySink counting lifecycle events and state
// transitions.
type Activity struct {
	events      *prometheus.CounterVec
	transitions *prometheus.CounterVec
}

var _ accounts.ActivitySink = (*Activity)(nil)

// NewActivity creates the collectors and registers them with reg
func NewActivity(reg prometheus.Registerer) (*Activity, error) {
	a := &Activity{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lifecycle_events_total",
			Help:      "Account lifecycle events by type.",
		}, []string{"event"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Account state transitions by source and target state.",
		}, []string{"from", "to"}),
	}
	if reg == nil {
		return a, nil
	}
	for _, c := range []prometheus.Collector{a.events, a.transitions} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// MustNewActivity is NewActivity that panics on registration errors
func MustNewActivity(reg prometheus.Registerer) *Activity {
	a, err := NewActivity(reg)
	if err != nil {
		panic(err)
	}
	return a
}

// Record implements accounts.ActivitySink
func (a *Activity) Record(_ context.Context, event accounts.ActivityEvent) error {
	a.events.WithLabelValues(string(event.EventType)).Inc()
	if event.EventType == accounts.ActivityEventStateChanged {
		a.transitions.WithLabelValues(string(event.FromState), string(event.ToState)).Inc()
	}
	return nil
}
