package chatkit

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Item types.
const (
	ItemUserMessage      = "user_message"
	ItemAssistantMessage = "assistant_message"
	ItemWidget           = "widget"
)

// Content part types.
const (
	ContentInputText  = "input_text"
	ContentOutputText = "output_text"
)

// ThreadMetadata describes a conversation without its items.
type ThreadMetadata struct {
	ID        string         `json:"id"`
	Title     string         `json:"title,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Thread is a conversation with its first page of items.
type Thread struct {
	ThreadMetadata
	Items Page[ThreadItem] `json:"items"`
}

// Content is one part of a message.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ThreadItem is a single entry of a thread. Which fields are set depends on Type.
type ThreadItem struct {
	ID        string          `json:"id"`
	ThreadID  string          `json:"thread_id"`
	CreatedAt time.Time       `json:"created_at"`
	Type      string          `json:"type"`
	Content   []Content       `json:"content,omitempty"`
	Widget    json.RawMessage `json:"widget,omitempty"`
}

// Text joins the text parts of a message item.
func (i ThreadItem) Text() string {
	parts := make([]string, 0, len(i.Content))
	for _, c := range i.Content {
		if c.Text != "" {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Action is a structured event raised by a widget, e.g. a button click.
type Action struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Page is one page of a cursor-paginated listing.
type Page[T any] struct {
	Data    []T    `json:"data"`
	HasMore bool   `json:"has_more"`
	After   string `json:"after,omitempty"`
}

// NewThreadID returns a fresh thread id.
func NewThreadID() string {
	return newID("thr")
}

// NewItemID returns a fresh item id for the given item type.
func NewItemID(itemType string) string {
	switch itemType {
	case ItemWidget:
		return newID("wid")
	default:
		return newID("msg")
	}
}

// NewWidgetItem wraps a rendered widget into a thread item.
func NewWidgetItem(threadID string, widget json.RawMessage) ThreadItem {
	return ThreadItem{
		ID:        NewItemID(ItemWidget),
		ThreadID:  threadID,
		CreatedAt: time.Now().UTC(),
		Type:      ItemWidget,
		Widget:    widget,
	}
}

// NewAssistantMessage wraps plain text into an assistant item.
func NewAssistantMessage(threadID, text string) ThreadItem {
	return ThreadItem{
		ID:        NewItemID(ItemAssistantMessage),
		ThreadID:  threadID,
		CreatedAt: time.Now().UTC(),
		Type:      ItemAssistantMessage,
		Content:   []Content{{Type: ContentOutputText, Text: text}},
	}
}

func newID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
