package domain

import (
	"maps"
	"time"
)

// WizardState represents the current snapshot of one thread's wizard.
type WizardState struct {
	// ThreadID is the conversation the state belongs to.
	ThreadID string `json:"thread_id"`

	// CurrentStep is the zero-based index of the active step, or NotStarted.
	// It never decreases and saturates at StepTotal-1.
	CurrentStep int `json:"current_step"`

	// Answers maps a step name (or CompanyKey) to the free text given for it.
	Answers map[string]string `json:"answers"`

	// StepTotal is the number of steps in the script, fixed for the thread's lifetime.
	StepTotal int `json:"step_total"`

	// UpdatedAt is the time of the last mutation.
	UpdatedAt time.Time `json:"updated_at"`
}

// NewWizardState creates a clean, not-yet-started state.
func NewWizardState(threadID string, stepTotal int) *WizardState {
	return &WizardState{
		ThreadID:    threadID,
		CurrentStep: NotStarted,
		Answers:     make(map[string]string),
		StepTotal:   stepTotal,
		UpdatedAt:   time.Now().UTC(),
	}
}

// Started reports whether the first answer was recorded.
func (s *WizardState) Started() bool {
	return s.CurrentStep != NotStarted
}

// Completed reports whether the absorbing last step is active.
func (s *WizardState) Completed() bool {
	return s.StepTotal > 0 && s.CurrentStep == s.StepTotal-1
}

// Snapshot returns a deep copy of the state.
func (s *WizardState) Snapshot() *WizardState {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Answers = maps.Clone(s.Answers)
	if cp.Answers == nil {
		cp.Answers = make(map[string]string)
	}
	return &cp
}
