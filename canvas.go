package canvas

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/canvas/internal/logging"
	"github.com/aretw0/canvas/internal/wizard"
	"github.com/aretw0/canvas/pkg/adapters/memory"
	"github.com/aretw0/canvas/pkg/chatkit"
	"github.com/aretw0/canvas/pkg/domain"
	"github.com/aretw0/canvas/pkg/ports"
	"github.com/aretw0/canvas/pkg/session"
	"github.com/aretw0/canvas/pkg/widget"
)

// Widget names reported in render events.
const (
	WidgetIntro = "intro"
	WidgetSteps = "steps"
)

// Engine drives the wizard through the chatkit protocol.
// It is safe for concurrent use; turns of the same thread are serialised.
type Engine struct {
	store           ports.StateStore
	locker          ports.DistributedLocker
	lockTTL         time.Duration
	script          domain.Script
	renderer        *widget.Renderer
	hooks           domain.LifecycleHooks
	logger          *slog.Logger
	messageAdvances bool

	sessions  *session.Manager
	sequencer *wizard.Sequencer
}

var (
	_ chatkit.Handler       = (*Engine)(nil)
	_ chatkit.ThreadDeleter = (*Engine)(nil)
)

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithStore sets the thread state store. Defaults to an in-memory store.
func WithStore(store ports.StateStore) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithLocker enables distributed locking of threads across replicas.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.locker = locker
	}
}

// WithLockTTL sets how long a distributed lock outlives a crashed holder.
func WithLockTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		e.lockTTL = ttl
	}
}

// WithScript replaces the default nine-step script.
func WithScript(script domain.Script) Option {
	return func(e *Engine) {
		e.script = script
	}
}

// WithRenderer sets the widget renderer. Defaults to the embedded templates.
func WithRenderer(r *widget.Renderer) Option {
	return func(e *Engine) {
		e.renderer = r
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = e.hooks.Merge(hooks)
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMessageAdvances makes a non-empty user message count as an answer: on a
// fresh thread it is the company name, like bc.intro.submit, and afterwards
// the answer to the active step, like bc.step.submit. By default messages only
// render the intro or the active step.
func WithMessageAdvances(enabled bool) Option {
	return func(e *Engine) {
		e.messageAdvances = enabled
	}
}

// New initializes an Engine.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{script: domain.DefaultScript()}
	for _, opt := range opts {
		opt(e)
	}

	if e.logger == nil {
		e.logger = logging.NewNop()
	}
	if e.store == nil {
		e.store = memory.NewStore()
	}
	if e.renderer == nil {
		r, err := widget.New()
		if err != nil {
			return nil, fmt.Errorf("loading widget templates: %w", err)
		}
		e.renderer = r
	}

	sessionOpts := []session.Option{
		session.WithLogger(e.logger),
		session.WithStepTotal(e.script.Len()),
	}
	if e.locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(e.locker), session.WithLockTTL(e.lockTTL))
	}
	e.sessions = session.NewManager(e.store, sessionOpts...)

	seq, err := wizard.New(e.sessions, wizard.WithScript(e.script))
	if err != nil {
		return nil, err
	}
	e.sequencer = seq
	return e, nil
}

// Script returns the script the engine walks.
func (e *Engine) Script() domain.Script {
	return e.sequencer.Script()
}

// Sessions returns the session manager guarding the state store.
func (e *Engine) Sessions() *session.Manager {
	return e.sessions
}

// Respond handles a user message. A thread that has not started gets the
// intro widget; a started thread gets its active step again. With
// WithMessageAdvances a non-empty message is taken as the answer instead.
func (e *Engine) Respond(ctx context.Context, thread chatkit.ThreadMetadata, item *chatkit.ThreadItem) iter.Seq2[chatkit.Event, error] {
	return func(yield func(chatkit.Event, error) bool) {
		start := time.Now()
		turn := &domain.TurnEvent{Kind: domain.TurnMessage}
		defer func() { e.finishTurn(ctx, thread.ID, turn, start) }()

		if text := messageText(item); e.messageAdvances && text != "" {
			e.advance(ctx, thread, text, turn, yield)
			return
		}

		state, err := e.sequencer.Current(ctx, thread.ID)
		if err != nil {
			turn.Outcome, turn.Err = domain.OutcomeError, err
			yield(chatkit.Event{}, err)
			return
		}

		raw, widgetName, stepIndex, err := e.renderCurrent(state)
		if err != nil {
			turn.Outcome, turn.Err = domain.OutcomeError, err
			yield(chatkit.Event{}, err)
			return
		}
		turn.Outcome = domain.OutcomeRendered
		e.emitRender(ctx, thread.ID, widgetName, stepIndex)
		emit(thread, raw, yield)
	}
}

// Action handles a widget action.
func (e *Engine) Action(ctx context.Context, thread chatkit.ThreadMetadata, action chatkit.Action, sender *chatkit.ThreadItem) iter.Seq2[chatkit.Event, error] {
	return func(yield func(chatkit.Event, error) bool) {
		start := time.Now()
		turn := &domain.TurnEvent{Kind: domain.TurnAction, ActionType: domain.NormalizeActionType(action.Type)}
		defer func() { e.finishTurn(ctx, thread.ID, turn, start) }()

		parsed, err := domain.ParseAction(action.Type, action.Payload)
		if err != nil {
			turn.Outcome, turn.Err = domain.OutcomeError, err
			yield(chatkit.Event{}, err)
			return
		}

		switch a := parsed.(type) {
		case domain.IntroSubmit:
			e.advance(ctx, thread, a.Answer, turn, yield)
		case domain.StepSubmit:
			e.advance(ctx, thread, a.Answer, turn, yield)
		case domain.StepChoice:
			if a.Label == "" {
				turn.Outcome = domain.OutcomeIgnored
				return
			}
			e.advance(ctx, thread, a.Label, turn, yield)
		case domain.UnknownAction:
			e.logger.DebugContext(ctx, "ignoring unknown action", "thread_id", thread.ID, "action", a.Tag)
			turn.Outcome = domain.OutcomeIgnored
		}
	}
}

// ThreadDeleted drops the wizard state of a deleted thread.
func (e *Engine) ThreadDeleted(ctx context.Context, threadID string) error {
	return e.sessions.Delete(ctx, threadID)
}

// Advance records answer for the thread's active step outside of a chat turn.
// It returns the new active step and the committed state.
func (e *Engine) Advance(ctx context.Context, threadID, answer string) (domain.PresentationStep, *domain.WizardState, error) {
	var committed *domain.WizardState
	t, err := e.sequencer.AdvanceWith(ctx, threadID, answer, func(_ context.Context, _ wizard.Transition, state *domain.WizardState) error {
		committed = state.Snapshot()
		return nil
	})
	if err != nil {
		return domain.PresentationStep{}, nil, err
	}
	e.emitAdvance(ctx, threadID, t)
	return t.Step, committed, nil
}

// State returns the thread's state without modifying it.
func (e *Engine) State(ctx context.Context, threadID string) (*domain.WizardState, error) {
	return e.sequencer.Current(ctx, threadID)
}

// Step returns the active step of state; ok is false before the first answer.
func (e *Engine) Step(state *domain.WizardState) (domain.PresentationStep, bool) {
	return e.sequencer.Step(state)
}

// advance renders the next widget inside the thread's critical section, so a
// render failure leaves the stored state untouched.
func (e *Engine) advance(ctx context.Context, thread chatkit.ThreadMetadata, answer string, turn *domain.TurnEvent, yield func(chatkit.Event, error) bool) {
	var raw json.RawMessage
	t, err := e.sequencer.AdvanceWith(ctx, thread.ID, answer, func(_ context.Context, t wizard.Transition, _ *domain.WizardState) error {
		var err error
		raw, err = e.renderer.BuildSteps(t.Step)
		return err
	})
	if err != nil {
		turn.Outcome, turn.Err = domain.OutcomeError, err
		yield(chatkit.Event{}, err)
		return
	}

	turn.Outcome = domain.OutcomeAdvanced
	e.emitAdvance(ctx, thread.ID, t)
	e.emitRender(ctx, thread.ID, WidgetSteps, t.Step.StepIndex)
	emit(thread, raw, yield)
}

func (e *Engine) renderCurrent(state *domain.WizardState) (json.RawMessage, string, int, error) {
	step, ok := e.sequencer.Step(state)
	if !ok {
		raw, err := e.renderer.BuildIntro()
		return raw, WidgetIntro, 0, err
	}
	raw, err := e.renderer.BuildSteps(step)
	return raw, WidgetSteps, step.StepIndex, err
}

func (e *Engine) emitAdvance(ctx context.Context, threadID string, t wizard.Transition) {
	if e.hooks.OnAdvance == nil {
		return
	}
	e.hooks.OnAdvance(ctx, &domain.AdvanceEvent{
		EventBase: domain.EventBase{Timestamp: time.Now().UTC(), Type: domain.EventAdvance, ThreadID: threadID},
		AnswerKey: t.AnswerKey,
		FromStep:  t.FromStep,
		ToStep:    t.ToStep,
		Step:      t.Step,
	})
}

func (e *Engine) emitRender(ctx context.Context, threadID, widgetName string, step int) {
	if e.hooks.OnRender == nil {
		return
	}
	e.hooks.OnRender(ctx, &domain.RenderEvent{
		EventBase: domain.EventBase{Timestamp: time.Now().UTC(), Type: domain.EventRender, ThreadID: threadID},
		Widget:    widgetName,
		Step:      step,
	})
}

func (e *Engine) finishTurn(ctx context.Context, threadID string, turn *domain.TurnEvent, start time.Time) {
	if turn.Outcome == "" {
		// The consumer stopped pulling before the turn resolved.
		turn.Outcome = domain.OutcomeIgnored
	}
	if e.hooks.OnTurn == nil {
		return
	}
	turn.EventBase = domain.EventBase{Timestamp: time.Now().UTC(), Type: domain.EventTurn, ThreadID: threadID}
	turn.Duration = time.Since(start)
	e.hooks.OnTurn(ctx, turn)
}

func messageText(item *chatkit.ThreadItem) string {
	if item == nil {
		return ""
	}
	return strings.TrimSpace(item.Text())
}

func emit(thread chatkit.ThreadMetadata, raw json.RawMessage, yield func(chatkit.Event, error) bool) {
	for _, ev := range chatkit.WidgetEvents(thread, raw) {
		if !yield(ev, nil) {
			return
		}
	}
}
