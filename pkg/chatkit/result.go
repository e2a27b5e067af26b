package chatkit

import (
	"encoding/json"
	"fmt"
	"iter"
)

// Result is what Server.Process returns: *StreamingResult, *NonStreamingResult
// or *ObjectResult.
type Result interface {
	isResult()
}

// StreamingResult is a lazy event stream. Events are produced as they are pulled.
type StreamingResult struct {
	events iter.Seq2[Event, error]
}

// NewStreamingResult wraps an event sequence.
func NewStreamingResult(events iter.Seq2[Event, error]) *StreamingResult {
	return &StreamingResult{events: events}
}

// Events returns the underlying sequence. It must be consumed at most once.
func (r *StreamingResult) Events() iter.Seq2[Event, error] {
	return r.events
}

// Frames encodes each event as a Server-Sent Events frame ("data: <json>\n\n").
func (r *StreamingResult) Frames() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for ev, err := range r.events {
			if err != nil {
				yield(nil, err)
				return
			}
			frame, err := EncodeFrame(ev)
			if !yield(frame, err) || err != nil {
				return
			}
		}
	}
}

// EncodeFrame renders one SSE frame.
func EncodeFrame(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encoding %s event: %w", ev.Type, err)
	}
	frame := make([]byte, 0, len(data)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, data...)
	frame = append(frame, '\n', '\n')
	return frame, nil
}

// NonStreamingResult holds a pre-serialized JSON body.
type NonStreamingResult struct {
	JSON []byte
}

// ObjectResult is a finished value the transport serializes itself.
type ObjectResult struct {
	Value any
}

func newJSONResult(v any) (*NonStreamingResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	return &NonStreamingResult{JSON: data}, nil
}

func (*StreamingResult) isResult()    {}
func (*NonStreamingResult) isResult() {}
func (*ObjectResult) isResult()       {}
