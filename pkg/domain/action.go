package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// ErrInvalidPayload is returned when an action payload cannot be decoded at all.
var ErrInvalidPayload = errors.New("invalid action payload")

// Action is a structured event sent back by a widget (e.g. a button click).
// The set of variants is closed: IntroSubmit, StepSubmit, StepChoice and UnknownAction.
type Action interface {
	// Type returns the wire tag the action was parsed from.
	Type() string
	isAction()
}

// IntroSubmit carries the company name typed into the intro widget.
type IntroSubmit struct {
	Answer string
}

// StepSubmit carries a free-text answer typed into the steps widget.
type StepSubmit struct {
	Answer string
}

// StepChoice carries the label of a quick-reply button.
type StepChoice struct {
	Label string
}

// UnknownAction is any tag the wizard does not handle. It is not an error.
type UnknownAction struct {
	Tag string
}

func (IntroSubmit) Type() string     { return ActionIntroSubmit }
func (StepSubmit) Type() string      { return ActionStepSubmit }
func (StepChoice) Type() string      { return ActionStepChoice }
func (a UnknownAction) Type() string { return a.Tag }

func (IntroSubmit) isAction()   {}
func (StepSubmit) isAction()    {}
func (StepChoice) isAction()    {}
func (UnknownAction) isAction() {}

// actionPayload mirrors the payload fields the wizard reads.
type actionPayload struct {
	Answer string `mapstructure:"answer"`
	Label  string `mapstructure:"label"`
}

// aliases maps the unprefixed tags onto the canonical ones.
var aliases = map[string]string{
	"intro.submit": ActionIntroSubmit,
	"step.submit":  ActionStepSubmit,
	"step.choice":  ActionStepChoice,
}

// NormalizeActionType resolves aliases to the canonical wire tag.
func NormalizeActionType(actionType string) string {
	t := strings.TrimSpace(actionType)
	if canonical, ok := aliases[t]; ok {
		return canonical
	}
	return t
}

// ParseAction turns a wire tag and its payload into a typed Action.
// Text fields default to "" and are trimmed. Any other value is read as text
// (see PayloadText), so a payload never fails a turn by its shape.
func ParseAction(actionType string, payload map[string]any) (Action, error) {
	tag := NormalizeActionType(actionType)

	var p actionPayload
	if len(payload) > 0 {
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			DecodeHook: textHook,
			Result:     &p,
		})
		if err != nil {
			return nil, err
		}
		if err := decoder.Decode(payload); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
	}

	switch tag {
	case ActionIntroSubmit:
		return IntroSubmit{Answer: strings.TrimSpace(p.Answer)}, nil
	case ActionStepSubmit:
		return StepSubmit{Answer: strings.TrimSpace(p.Answer)}, nil
	case ActionStepChoice:
		return StepChoice{Label: strings.TrimSpace(p.Label)}, nil
	default:
		return UnknownAction{Tag: tag}, nil
	}
}

// PayloadText reads a decoded JSON value as answer text. Empty values (null,
// false, zero, "", {} and []) read as ""; other strings are kept as they are
// and everything else is written back as compact JSON, so true reads "true",
// 42 reads "42" and {"a":1} reads {"a":1}.
func PayloadText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		if rv.Len() == 0 {
			return ""
		}
	default:
		if rv.IsZero() {
			return ""
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// textHook feeds every value bound for a string field through PayloadText.
func textHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to.Kind() != reflect.String {
		return data, nil
	}
	return PayloadText(data), nil
}
