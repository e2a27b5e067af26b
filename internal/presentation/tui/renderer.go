package tui

import (
	"github.com/charmbracelet/glamour"

	"github.com/aretw0/canvas/pkg/domain"
)

// DefaultWordWrap is the column at which rendered canvases wrap.
const DefaultWordWrap = 100

// Renderer turns a thread's canvas into styled terminal output.
type Renderer struct {
	term *glamour.TermRenderer
}

// NewRenderer builds a Renderer that picks a light or dark style from the
// terminal background. A non-positive wrap uses DefaultWordWrap.
func NewRenderer(wrap int) *Renderer {
	if wrap <= 0 {
		wrap = DefaultWordWrap
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		// Plain markdown is still readable.
		return &Renderer{}
	}
	return &Renderer{term: r}
}

// Render styles arbitrary markdown.
func (r *Renderer) Render(markdown string) (string, error) {
	if r.term == nil {
		return markdown, nil
	}
	return r.term.Render(markdown)
}

// Canvas renders the answers of state in script order.
func (r *Renderer) Canvas(script domain.Script, state *domain.WizardState) (string, error) {
	return r.Render(CanvasMarkdown(script, state))
}
