package ports

import (
	"context"

	"github.com/aretw0/canvas/pkg/domain"
)

// StateStore defines the interface for persisting wizard state.
// Swapping implementations (memory, file, redis, sqlite) never touches the sequencer.
type StateStore interface {
	// Save persists the state for a given thread ID.
	Save(ctx context.Context, threadID string, state *domain.WizardState) error

	// Load retrieves the state for a given thread ID.
	// Returns domain.ErrThreadNotFound if the thread does not exist.
	Load(ctx context.Context, threadID string) (*domain.WizardState, error)

	// Delete removes the state for a given thread ID.
	Delete(ctx context.Context, threadID string) error

	// List returns the IDs of all stored threads.
	List(ctx context.Context) ([]string, error)
}
