package middleware_test

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/aretw0/canvas/pkg/domain"
	"github.com/aretw0/canvas/pkg/ports"
)

// rawStore records exactly what a middleware hands down, without copying,
// so tests can look at the persisted form of a state.
type rawStore struct {
	mu     sync.Mutex
	states map[string]*domain.WizardState
}

func newRawStore() *rawStore {
	return &rawStore{states: make(map[string]*domain.WizardState)}
}

func (s *rawStore) Save(_ context.Context, threadID string, state *domain.WizardState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[threadID] = state
	return nil
}

func (s *rawStore) Load(_ context.Context, threadID string) (*domain.WizardState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.states[threadID]; ok {
		return state, nil
	}
	return nil, domain.ErrThreadNotFound
}

func (s *rawStore) Delete(_ context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, threadID)
	return nil
}

func (s *rawStore) List(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.states)), nil
}

// move re-files a persisted state under another thread id.
func (s *rawStore) move(from, to string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[to] = s.states[from]
	delete(s.states, from)
}

var _ ports.StateStore = (*rawStore)(nil)
