package observability

import (
	"context"
	"strconv"

	"github.com/aretw0/canvas/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service collectors.
type Metrics struct {
	HTTPRequests *prometheus.CounterVec
	Turns        *prometheus.CounterVec
	StepReached  *prometheus.CounterVec
	TurnDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canvas_http_requests_total",
				Help: "Total number of HTTP requests by route and status code",
			},
			[]string{"route", "code"},
		),
		Turns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canvas_turns_total",
				Help: "Total number of conversation turns by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		StepReached: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canvas_step_reached_total",
				Help: "Number of times a wizard step became the active one",
			},
			[]string{"step"},
		),
		TurnDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "canvas_turn_duration_seconds",
				Help:    "Duration of conversation turns",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.HTTPRequests, m.Turns, m.StepReached, m.TurnDuration)
	}
	return m
}

// Hooks records advances and turns.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnAdvance: func(_ context.Context, e *domain.AdvanceEvent) {
			m.StepReached.WithLabelValues(e.Step.StepName).Inc()
		},
		OnTurn: func(_ context.Context, e *domain.TurnEvent) {
			m.Turns.WithLabelValues(e.Kind, e.Outcome).Inc()
			m.TurnDuration.WithLabelValues(e.Kind).Observe(e.Duration.Seconds())
		},
	}
}

// ObserveHTTP counts one finished request.
func (m *Metrics) ObserveHTTP(route string, code int) {
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}
