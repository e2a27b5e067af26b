package tui

import (
	"fmt"
	"slices"
	"strings"

	"github.com/aretw0/canvas/pkg/domain"
)

const unanswered = "_not answered yet_"

// CanvasMarkdown lays out a thread's answers as a Markdown document in
// script order. Answers stored under keys the script no longer has are
// listed at the end.
func CanvasMarkdown(script domain.Script, state *domain.WizardState) string {
	var b strings.Builder

	company := strings.TrimSpace(state.Answers[domain.CompanyKey])
	if company == "" {
		company = "Untitled company"
	}
	fmt.Fprintf(&b, "# %s\n\n", company)
	fmt.Fprintf(&b, "Thread `%s` · %s\n\n", state.ThreadID, progress(state))

	known := map[string]bool{domain.CompanyKey: true}
	for _, step := range script {
		known[step.Name] = true
		fmt.Fprintf(&b, "## %s\n\n", step.Name)
		if answer, ok := state.Answers[step.Name]; ok && strings.TrimSpace(answer) != "" {
			b.WriteString(answer)
		} else {
			b.WriteString(unanswered)
		}
		b.WriteString("\n\n")
	}

	var extra []string
	for k := range state.Answers {
		if !known[k] {
			extra = append(extra, k)
		}
	}
	if len(extra) > 0 {
		slices.Sort(extra)
		b.WriteString("## Other answers\n\n")
		for _, k := range extra {
			fmt.Fprintf(&b, "- **%s**: %s\n", k, state.Answers[k])
		}
		b.WriteString("\n")
	}

	return b.String()
}

func progress(state *domain.WizardState) string {
	switch {
	case !state.Started():
		return "not started"
	case state.Completed():
		return fmt.Sprintf("step %d of %d (last step)", state.CurrentStep+1, state.StepTotal)
	default:
		return fmt.Sprintf("step %d of %d", state.CurrentStep+1, state.StepTotal)
	}
}
