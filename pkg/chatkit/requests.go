package chatkit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Request types.
const (
	RequestThreadsCreate         = "threads.create"
	RequestThreadsAddUserMessage = "threads.add_user_message"
	RequestThreadsCustomAction   = "threads.custom_action"
	RequestThreadsGetByID        = "threads.get_by_id"
	RequestThreadsList           = "threads.list"
	RequestThreadsUpdate         = "threads.update"
	RequestThreadsDelete         = "threads.delete"
	RequestItemsList             = "items.list"
)

// Request is the protocol envelope.
type Request struct {
	Type     string          `json:"type"`
	Params   json.RawMessage `json:"params,omitempty"`
	Metadata map[string]any  `json:"metadata,omitempty"`
}

// Streaming reports whether the request type produces an event stream.
func (r Request) Streaming() bool {
	switch r.Type {
	case RequestThreadsCreate, RequestThreadsAddUserMessage, RequestThreadsCustomAction:
		return true
	default:
		return false
	}
}

// UserMessageInput is the message a user typed.
type UserMessageInput struct {
	Content []Content `json:"content"`
}

// CreateThreadParams are the params of threads.create.
type CreateThreadParams struct {
	Input UserMessageInput `json:"input"`
}

// AddUserMessageParams are the params of threads.add_user_message.
type AddUserMessageParams struct {
	ThreadID string           `json:"thread_id"`
	Input    UserMessageInput `json:"input"`
}

// CustomActionParams are the params of threads.custom_action.
type CustomActionParams struct {
	ThreadID string  `json:"thread_id"`
	ItemID   string  `json:"item_id,omitempty"`
	Action   *Action `json:"action"`
}

// ThreadParams are the params of requests addressing one thread.
type ThreadParams struct {
	ThreadID string `json:"thread_id"`
}

// UpdateThreadParams are the params of threads.update.
type UpdateThreadParams struct {
	ThreadID string `json:"thread_id"`
	Title    string `json:"title"`
}

// ListThreadsParams are the params of threads.list.
type ListThreadsParams struct {
	ListOptions
}

// ListItemsParams are the params of items.list.
type ListItemsParams struct {
	ThreadID string `json:"thread_id"`
	ListOptions
}

// DecodeRequest parses the envelope. It does not decode params.
func DecodeRequest(body []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	req.Type = strings.TrimSpace(req.Type)
	if req.Type == "" {
		return Request{}, fmt.Errorf("%w: missing type", ErrInvalidRequest)
	}
	return req, nil
}

// decodeParams decodes raw into v. Fields the server does not use
// (attachments, inference options) are ignored.
func decodeParams(raw json.RawMessage, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return nil
}

func requireThreadID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: thread_id is required", ErrInvalidParams)
	}
	return nil
}
