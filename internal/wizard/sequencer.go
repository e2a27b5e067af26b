// Package wizard walks a thread through the fixed list of canvas steps.
//
// The walk is linear: the first answer is stored under domain.CompanyKey and
// moves the thread to step 0; every later answer is stored under the name of
// the active step and moves one step forward, stopping at the last step.
// There is no validation, branching or going back.
package wizard

import (
	"context"

	"github.com/aretw0/canvas/internal/input"
	"github.com/aretw0/canvas/pkg/domain"
	"github.com/aretw0/canvas/pkg/session"
)

// Transition describes what one Advance did.
type Transition struct {
	AnswerKey string
	Answer    string
	FromStep  int
	ToStep    int
	Step      domain.PresentationStep
}

// CommitFunc runs after the state was advanced in memory and before it is saved.
// Returning an error discards the advance.
type CommitFunc func(ctx context.Context, t Transition, state *domain.WizardState) error

// Sequencer advances wizard states stored behind a session.Manager.
type Sequencer struct {
	script   domain.Script
	sessions *session.Manager
}

// Option configures the Sequencer.
type Option func(*Sequencer)

// WithScript replaces the default script.
func WithScript(script domain.Script) Option {
	return func(s *Sequencer) {
		s.script = script
	}
}

// New creates a Sequencer. The script is validated once, here.
func New(sessions *session.Manager, opts ...Option) (*Sequencer, error) {
	s := &Sequencer{
		script:   domain.DefaultScript(),
		sessions: sessions,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.script.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Script returns the script being walked.
func (s *Sequencer) Script() domain.Script {
	return s.script
}

// Advance records answer for the thread's active step and moves forward.
// Any string is accepted; the only errors are store or lock failures.
func (s *Sequencer) Advance(ctx context.Context, threadID, answer string) (Transition, error) {
	return s.AdvanceWith(ctx, threadID, answer, nil)
}

// AdvanceWith is Advance with a hook that runs inside the thread's critical
// section before the new state is saved.
func (s *Sequencer) AdvanceWith(ctx context.Context, threadID, answer string, commit CommitFunc) (Transition, error) {
	var t Transition
	_, err := s.sessions.Update(ctx, threadID, func(ctx context.Context, state *domain.WizardState) error {
		t = s.Apply(state, answer)
		if commit != nil {
			return commit(ctx, t, state)
		}
		return nil
	})
	if err != nil {
		return Transition{}, err
	}
	return t, nil
}

// Apply advances state in place. The stored answer is the trimmed input.
func (s *Sequencer) Apply(state *domain.WizardState, answer string) Transition {
	answer = input.Normalize(answer)
	if state.Answers == nil {
		state.Answers = make(map[string]string)
	}
	if state.StepTotal == 0 {
		state.StepTotal = s.script.Len()
	}

	t := Transition{Answer: answer, FromStep: state.CurrentStep}
	if state.CurrentStep < 0 {
		t.AnswerKey = domain.CompanyKey
		state.CurrentStep = 0
	} else {
		idx := s.clamp(state.CurrentStep)
		t.AnswerKey = s.script[idx].Name
		state.CurrentStep = min(idx+1, s.script.Last())
	}
	state.Answers[t.AnswerKey] = answer

	t.ToStep = state.CurrentStep
	t.Step = s.script.Present(state.CurrentStep)
	return t
}

// Step returns the presentation of the state's active step.
// ok is false for a thread that has not started.
func (s *Sequencer) Step(state *domain.WizardState) (step domain.PresentationStep, ok bool) {
	if state == nil || !state.Started() {
		return domain.PresentationStep{}, false
	}
	return s.script.Present(s.clamp(state.CurrentStep)), true
}

// Current returns the thread's state without changing or persisting anything.
func (s *Sequencer) Current(ctx context.Context, threadID string) (*domain.WizardState, error) {
	return s.sessions.Peek(ctx, threadID)
}

// clamp keeps a stored index valid when the script shrank between restarts.
func (s *Sequencer) clamp(idx int) int {
	return max(0, min(idx, s.script.Last()))
}
