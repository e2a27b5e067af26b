package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/canvas/pkg/domain"
	"github.com/aretw0/canvas/pkg/ports"
)

// Mask replaces the value of every answer whose key matches a PII pattern.
const Mask = "***"

type piiMiddleware struct {
	next     ports.StateStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks answers whose step name
// matches one of the patterns. The in-memory state is left untouched; only
// the persisted copy is masked.
func NewPIIMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid PII pattern %q: %w", p, err)
		}
		patterns[i] = re
	}
	return func(next ports.StateStore) ports.StateStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}, nil
}

func (m *piiMiddleware) Save(ctx context.Context, threadID string, state *domain.WizardState) error {
	// 1. Clone to avoid side effects on the state used by the engine.
	cloned := state.Snapshot()

	// 2. Mask PII
	for k := range cloned.Answers {
		for _, p := range m.patterns {
			if p.MatchString(k) {
				cloned.Answers[k] = Mask
				break
			}
		}
	}

	return m.next.Save(ctx, threadID, cloned)
}

func (m *piiMiddleware) Load(ctx context.Context, threadID string) (*domain.WizardState, error) {
	return m.next.Load(ctx, threadID)
}

func (m *piiMiddleware) Delete(ctx context.Context, threadID string) error {
	return m.next.Delete(ctx, threadID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}
