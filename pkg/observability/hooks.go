package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/canvas/pkg/domain"
	"github.com/aretw0/canvas/pkg/ports"
)

// LoggingHooks logs every lifecycle event with key/value pairs.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnAdvance: func(ctx context.Context, e *domain.AdvanceEvent) {
			logger.InfoContext(ctx, "wizard_advance",
				"thread_id", e.ThreadID,
				"answer_key", e.AnswerKey,
				"from", e.FromStep,
				"to", e.ToStep,
			)
		},
		OnRender: func(ctx context.Context, e *domain.RenderEvent) {
			logger.DebugContext(ctx, "widget_render",
				"thread_id", e.ThreadID,
				"widget", e.Widget,
				"step", e.Step,
			)
		},
		OnTurn: func(ctx context.Context, e *domain.TurnEvent) {
			attrs := []any{
				"thread_id", e.ThreadID,
				"kind", e.Kind,
				"outcome", e.Outcome,
				"duration", e.Duration,
			}
			if e.ActionType != "" {
				attrs = append(attrs, "action", e.ActionType)
			}
			if e.Err != nil {
				logger.ErrorContext(ctx, "turn_failed", append(attrs, "err", e.Err)...)
				return
			}
			logger.InfoContext(ctx, "turn", attrs...)
		},
	}
}

// PublisherHooks forwards advances to pub. Failures are logged and never
// reach the turn that produced the event.
func PublisherHooks(pub ports.EventPublisher, logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnAdvance: func(ctx context.Context, e *domain.AdvanceEvent) {
			if err := pub.Publish(ctx, e); err != nil {
				logger.WarnContext(ctx, "publishing advance failed", "thread_id", e.ThreadID, "err", err)
			}
		},
	}
}
