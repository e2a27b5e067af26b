package ports

import (
	"context"

	"github.com/aretw0/canvas/pkg/domain"
)

// EventPublisher forwards wizard events to an external sink (e.g. a message broker).
// Publish failures never fail a turn; callers log and move on.
type EventPublisher interface {
	Publish(ctx context.Context, event *domain.AdvanceEvent) error
	Close() error
}
