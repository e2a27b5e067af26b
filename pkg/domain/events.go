package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventAdvance EventType = "advance"
	EventRender  EventType = "render"
	EventTurn    EventType = "turn"
)

// Turn kinds.
const (
	TurnMessage = "message"
	TurnAction  = "action"
)

// Turn outcomes.
const (
	OutcomeAdvanced = "advanced"
	OutcomeRendered = "rendered"
	OutcomeIgnored  = "ignored"
	OutcomeError    = "error"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	ThreadID  string    `json:"thread_id"`
}

// AdvanceEvent is emitted after an answer was recorded and the step index moved.
type AdvanceEvent struct {
	EventBase
	AnswerKey string           `json:"answer_key"`
	FromStep  int              `json:"from_step"`
	ToStep    int              `json:"to_step"`
	Step      PresentationStep `json:"step"`
}

// RenderEvent is emitted whenever a widget is built for a thread.
type RenderEvent struct {
	EventBase
	Widget string `json:"widget"` // "intro" or "steps"
	Step   int    `json:"step"`   // one-based, 0 for the intro widget
}

// TurnEvent is emitted once per message or action turn, after its last event.
type TurnEvent struct {
	EventBase
	Kind       string        `json:"kind"`                  // TurnMessage or TurnAction
	ActionType string        `json:"action_type,omitempty"` // for TurnAction
	Outcome    string        `json:"outcome"`
	Duration   time.Duration `json:"duration"`
	Err        error         `json:"-"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnAdvance func(context.Context, *AdvanceEvent)
	OnRender  func(context.Context, *RenderEvent)
	OnTurn    func(context.Context, *TurnEvent)
}

// Merge returns hooks that call h first and then other.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnAdvance: chain(h.OnAdvance, other.OnAdvance),
		OnRender:  chain(h.OnRender, other.OnRender),
		OnTurn:    chain(h.OnTurn, other.OnTurn),
	}
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
