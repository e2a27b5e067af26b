// Package widget renders the two wizard widgets from JSON templates.
//
// Templates are text/template documents whose output must be valid JSON.
// The steps template receives the keys stepIndex, stepTotal, stepName,
// agentMessage and choice1..choice3. Two helpers are available: json encodes
// a value as a JSON literal and choices drops empty strings from its arguments.
package widget

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"text/template"

	"github.com/aretw0/canvas/pkg/domain"
)

// Template file names, looked up in the embedded set or in a custom directory.
const (
	IntroFile = "intro.widget"
	StepsFile = "steps.widget"
)

// ErrInvalidWidget is returned when a template renders something that is not JSON.
var ErrInvalidWidget = errors.New("widget template produced invalid JSON")

//go:embed templates/*.widget
var embedded embed.FS

// Renderer builds widget documents. It is safe for concurrent use.
type Renderer struct {
	intro *template.Template
	steps *template.Template
}

// Option configures the Renderer.
type Option func(*config)

type config struct {
	fsys fs.FS
}

// WithDir loads the templates from dir instead of the embedded defaults.
func WithDir(dir string) Option {
	return func(c *config) {
		if dir != "" {
			c.fsys = os.DirFS(dir)
		}
	}
}

// WithFS loads the templates from fsys.
func WithFS(fsys fs.FS) Option {
	return func(c *config) {
		if fsys != nil {
			c.fsys = fsys
		}
	}
}

// New parses both templates. Parse errors surface here, not on the first turn.
func New(opts ...Option) (*Renderer, error) {
	sub, err := fs.Sub(embedded, "templates")
	if err != nil {
		return nil, err
	}
	cfg := &config{fsys: sub}
	for _, opt := range opts {
		opt(cfg)
	}

	intro, err := parse(cfg.fsys, IntroFile)
	if err != nil {
		return nil, err
	}
	steps, err := parse(cfg.fsys, StepsFile)
	if err != nil {
		return nil, err
	}
	return &Renderer{intro: intro, steps: steps}, nil
}

// BuildIntro renders the intro widget. It takes no inputs.
func (r *Renderer) BuildIntro() (json.RawMessage, error) {
	return execute(r.intro, map[string]any{})
}

// BuildSteps renders the steps widget for p. Missing choices become "".
func (r *Renderer) BuildSteps(p domain.PresentationStep) (json.RawMessage, error) {
	return execute(r.steps, StepsData(p))
}

// StepsData is the template input for the steps widget.
func StepsData(p domain.PresentationStep) map[string]any {
	return map[string]any{
		"stepIndex":    p.StepIndex,
		"stepTotal":    p.StepTotal,
		"stepName":     p.StepName,
		"agentMessage": p.AgentMessage,
		"choice1":      p.Choice(0),
		"choice2":      p.Choice(1),
		"choice3":      p.Choice(2),
	}
}

var funcs = template.FuncMap{
	"json": func(v any) (string, error) {
		b, err := json.Marshal(v)
		return string(b), err
	},
	"choices": func(cs ...string) []string {
		out := make([]string, 0, len(cs))
		for _, c := range cs {
			if c != "" {
				out = append(out, c)
			}
		}
		return out
	},
}

func parse(fsys fs.FS, name string) (*template.Template, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("reading widget template %s: %w", name, err)
	}
	tpl, err := template.New(name).Funcs(funcs).Option("missingkey=error").Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parsing widget template %s: %w", name, err)
	}
	return tpl, nil
}

func execute(tpl *template.Template, data map[string]any) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("rendering widget %s: %w", tpl.Name(), err)
	}

	// Compact doubles as validation.
	var out bytes.Buffer
	if err := json.Compact(&out, buf.Bytes()); err != nil {
		return nil, fmt.Errorf("%w (%s): %v", ErrInvalidWidget, tpl.Name(), err)
	}
	return out.Bytes(), nil
}
