package domain

import (
	"fmt"
	"strings"
)

// MaxChoices is the number of quick-reply buttons the steps widget can show.
const MaxChoices = 3

// StepDefinition is one scripted question of the wizard.
type StepDefinition struct {
	Name    string   `json:"name" yaml:"name"`
	Prompt  string   `json:"prompt" yaml:"prompt"`
	Choices []string `json:"choices,omitempty" yaml:"choices,omitempty"`
}

// Script is the ordered list of steps. Order is significant and fixed.
type Script []StepDefinition

// DefaultScript returns the canonical Business Canvas script.
// A fresh slice is returned on every call so callers can't mutate the original.
func DefaultScript() Script {
	return Script{
		{Name: "Dream", Prompt: "What is your dream for this business in 3 years?"},
		{Name: "Purpose", Prompt: "Why does this business exist? What is the larger purpose?"},
		{Name: "Audience", Prompt: "Who is it for? Who is your ideal customer or audience?", Choices: []string{"B2B", "B2C", "Both"}},
		{Name: "Problem", Prompt: "What problem do you solve (in your customer's words)?"},
		{Name: "Value", Prompt: "What is your value proposition in 1 sentence + 2 bullets?"},
		{Name: "Channels", Prompt: "Which channels reach customers (top 3)?", Choices: []string{"Online", "Offline", "Partnerships"}},
		{Name: "Revenue", Prompt: "How do you make money (pricing / revenue model)?"},
		{Name: "Costs", Prompt: "What are your main costs and risks?"},
		{Name: "Next actions", Prompt: "What are 3 concrete actions for the next 2 weeks?"},
	}
}

// Len returns the number of steps (N).
func (s Script) Len() int {
	return len(s)
}

// Last returns the index of the absorbing last step (N-1).
func (s Script) Last() int {
	return len(s) - 1
}

// Present builds the presentation record for the step at idx (zero-based).
// idx must be within [0, N-1].
func (s Script) Present(idx int) PresentationStep {
	step := s[idx]
	choices := make([]string, len(step.Choices))
	copy(choices, step.Choices)
	return PresentationStep{
		StepIndex:    idx + 1,
		StepTotal:    len(s),
		StepName:     step.Name,
		AgentMessage: step.Prompt,
		Choices:      choices,
	}
}

// Validate checks the structural rules of a script.
func (s Script) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("%w: no steps defined", ErrInvalidScript)
	}

	seen := make(map[string]int, len(s))
	for i, step := range s {
		name := strings.TrimSpace(step.Name)
		if name == "" {
			return fmt.Errorf("%w: step %d has an empty name", ErrInvalidScript, i+1)
		}
		if name == CompanyKey {
			return fmt.Errorf("%w: step %d uses the reserved name %q", ErrInvalidScript, i+1, CompanyKey)
		}
		if prev, dup := seen[name]; dup {
			return fmt.Errorf("%w: step %d repeats the name %q of step %d", ErrInvalidScript, i+1, name, prev)
		}
		seen[name] = i + 1

		if strings.TrimSpace(step.Prompt) == "" {
			return fmt.Errorf("%w: step %q has an empty prompt", ErrInvalidScript, name)
		}
		if len(step.Choices) > MaxChoices {
			return fmt.Errorf("%w: step %q has %d choices (max %d)", ErrInvalidScript, name, len(step.Choices), MaxChoices)
		}
		for _, c := range step.Choices {
			if strings.TrimSpace(c) == "" {
				return fmt.Errorf("%w: step %q has an empty choice", ErrInvalidScript, name)
			}
		}
	}
	return nil
}

// PresentationStep is what the host renders for the current question.
type PresentationStep struct {
	StepIndex    int      `json:"stepIndex"` // one-based
	StepTotal    int      `json:"stepTotal"`
	StepName     string   `json:"stepName"`
	AgentMessage string   `json:"agentMessage"`
	Choices      []string `json:"choices"`
}

// Choice returns the i-th choice (zero-based) or "" when absent.
func (p PresentationStep) Choice(i int) string {
	if i < 0 || i >= len(p.Choices) {
		return ""
	}
	return p.Choices[i]
}
