package chatkit_test

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"strings"
	"testing"

	"github.com/aretw0/canvas/pkg/chatkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoHandler answers every message with a widget echoing the text and
// records every action it receives.
type echoHandler struct {
	actions []chatkit.Action
	senders []*chatkit.ThreadItem
	deleted []string
	fail    error
}

func (h *echoHandler) Respond(ctx context.Context, thread chatkit.ThreadMetadata, item *chatkit.ThreadItem) iter.Seq2[chatkit.Event, error] {
	return func(yield func(chatkit.Event, error) bool) {
		if h.fail != nil {
			yield(chatkit.Event{}, h.fail)
			return
		}
		widget, _ := json.Marshal(map[string]string{"type": "Text", "value": item.Text()})
		for _, ev := range chatkit.WidgetEvents(thread, widget) {
			if !yield(ev, nil) {
				return
			}
		}
	}
}

func (h *echoHandler) Action(ctx context.Context, thread chatkit.ThreadMetadata, action chatkit.Action, sender *chatkit.ThreadItem) iter.Seq2[chatkit.Event, error] {
	return func(yield func(chatkit.Event, error) bool) {
		h.actions = append(h.actions, action)
		h.senders = append(h.senders, sender)
	}
}

func (h *echoHandler) ThreadDeleted(ctx context.Context, threadID string) error {
	h.deleted = append(h.deleted, threadID)
	return nil
}

func collect(t *testing.T, res chatkit.Result) []chatkit.Event {
	t.Helper()
	stream, ok := res.(*chatkit.StreamingResult)
	require.True(t, ok, "expected a streaming result, got %T", res)

	var events []chatkit.Event
	for ev, err := range stream.Events() {
		require.NoError(t, err)
		events = append(events, ev)
	}
	return events
}

func jsonBody(t *testing.T, res chatkit.Result) []byte {
	t.Helper()
	switch r := res.(type) {
	case *chatkit.NonStreamingResult:
		return r.JSON
	case *chatkit.ObjectResult:
		data, err := json.Marshal(r.Value)
		require.NoError(t, err)
		return data
	}
	require.Failf(t, "expected a JSON result", "got %T", res)
	return nil
}

func createThread(t *testing.T, srv *chatkit.Server, text string) (string, []chatkit.Event) {
	t.Helper()
	body := `{"type":"threads.create","params":{"input":{"content":[{"type":"input_text","text":` + mustJSON(t, text) + `}],"attachments":[]}}}`
	res, err := srv.Process(context.Background(), []byte(body))
	require.NoError(t, err)
	events := collect(t, res)
	require.NotEmpty(t, events)
	require.Equal(t, chatkit.EventThreadCreated, events[0].Type)
	return events[0].Thread.ID, events
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestServer_CreateThread(t *testing.T) {
	srv := chatkit.NewServer(&echoHandler{})

	threadID, events := createThread(t, srv, "hello")
	require.Len(t, events, 3)

	assert.True(t, strings.HasPrefix(threadID, "thr_"))
	assert.Equal(t, chatkit.EventThreadItemDone, events[1].Type)
	assert.Equal(t, chatkit.ItemUserMessage, events[1].Item.Type)
	assert.Equal(t, "hello", events[1].Item.Text())

	assert.Equal(t, chatkit.EventThreadItemDone, events[2].Type)
	assert.Equal(t, chatkit.ItemWidget, events[2].Item.Type)
	assert.True(t, strings.HasPrefix(events[2].Item.ID, "wid_"))
	assert.JSONEq(t, `{"type":"Text","value":"hello"}`, string(events[2].Item.Widget))

	// Both items are persisted.
	page, err := srv.Store().ListItems(context.Background(), threadID, chatkit.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, page.Data, 2)
}

func TestServer_AddUserMessage(t *testing.T) {
	srv := chatkit.NewServer(&echoHandler{})
	threadID, _ := createThread(t, srv, "first")

	body := `{"type":"threads.add_user_message","params":{"thread_id":"` + threadID + `","input":{"content":[{"type":"input_text","text":"second"}]}}}`
	res, err := srv.Process(context.Background(), []byte(body))
	require.NoError(t, err)

	events := collect(t, res)
	require.Len(t, events, 2)
	assert.Equal(t, "second", events[0].Item.Text())
	assert.Equal(t, chatkit.ItemWidget, events[1].Item.Type)
}

func TestServer_CustomAction(t *testing.T) {
	h := &echoHandler{}
	srv := chatkit.NewServer(h)
	threadID, events := createThread(t, srv, "hi")
	widgetID := events[2].Item.ID

	body := `{"type":"threads.custom_action","params":{"thread_id":"` + threadID + `","item_id":"` + widgetID + `","action":{"type":"bc.step.choice","payload":{"label":"B2B"}}}}`
	res, err := srv.Process(context.Background(), []byte(body))
	require.NoError(t, err)
	assert.Empty(t, collect(t, res))

	require.Len(t, h.actions, 1)
	assert.Equal(t, "bc.step.choice", h.actions[0].Type)
	assert.Equal(t, "B2B", h.actions[0].Payload["label"])
	require.NotNil(t, h.senders[0])
	assert.Equal(t, widgetID, h.senders[0].ID)
}

func TestServer_CustomActionUnknownSender(t *testing.T) {
	h := &echoHandler{}
	srv := chatkit.NewServer(h)
	threadID, _ := createThread(t, srv, "hi")

	body := `{"type":"threads.custom_action","params":{"thread_id":"` + threadID + `","item_id":"wid_gone","action":{"type":"x"}}}`
	res, err := srv.Process(context.Background(), []byte(body))
	require.NoError(t, err)
	collect(t, res)

	require.Len(t, h.senders, 1)
	assert.Nil(t, h.senders[0])
}

func TestServer_HandlerErrorBecomesErrorEvent(t *testing.T) {
	srv := chatkit.NewServer(&echoHandler{fail: errors.New("store down")})

	_, events := createThread(t, srv, "hi")
	require.Len(t, events, 3)
	last := events[2]
	assert.Equal(t, chatkit.EventError, last.Type)
	assert.NotContains(t, last.Error.Message, "store down")
}

func TestServer_Rejections(t *testing.T) {
	srv := chatkit.NewServer(&echoHandler{})
	ctx := context.Background()

	tests := []struct {
		name string
		body string
		want error
	}{
		{"not json", `hello`, chatkit.ErrInvalidRequest},
		{"missing type", `{"params":{}}`, chatkit.ErrInvalidRequest},
		{"unknown type", `{"type":"threads.teleport"}`, chatkit.ErrUnknownRequest},
		{"bad params", `{"type":"threads.add_user_message","params":{"thread_id":42}}`, chatkit.ErrInvalidParams},
		{"missing thread id", `{"type":"threads.get_by_id","params":{}}`, chatkit.ErrInvalidParams},
		{"unknown thread", `{"type":"threads.add_user_message","params":{"thread_id":"thr_nope","input":{"content":[]}}}`, chatkit.ErrThreadNotFound},
		{"action without type", `{"type":"threads.custom_action","params":{"thread_id":"thr_x","action":{}}}`, chatkit.ErrInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := srv.Process(ctx, []byte(tt.body))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestServer_ThreadLifecycle(t *testing.T) {
	h := &echoHandler{}
	srv := chatkit.NewServer(h)
	ctx := context.Background()
	threadID, _ := createThread(t, srv, "hi")

	// Get
	res, err := srv.Process(ctx, []byte(`{"type":"threads.get_by_id","params":{"thread_id":"`+threadID+`"}}`))
	require.NoError(t, err)
	var thread chatkit.Thread
	require.NoError(t, json.Unmarshal(jsonBody(t, res), &thread))
	assert.Equal(t, threadID, thread.ID)
	assert.Len(t, thread.Items.Data, 2)

	// Update
	res, err = srv.Process(ctx, []byte(`{"type":"threads.update","params":{"thread_id":"`+threadID+`","title":" Acme canvas "}}`))
	require.NoError(t, err)
	assert.Contains(t, string(jsonBody(t, res)), `"title":"Acme canvas"`)

	// List
	res, err = srv.Process(ctx, []byte(`{"type":"threads.list","params":{"limit":10}}`))
	require.NoError(t, err)
	var page chatkit.Page[chatkit.ThreadMetadata]
	require.NoError(t, json.Unmarshal(jsonBody(t, res), &page))
	require.Len(t, page.Data, 1)
	assert.Equal(t, "Acme canvas", page.Data[0].Title)

	// Items
	res, err = srv.Process(ctx, []byte(`{"type":"items.list","params":{"thread_id":"`+threadID+`","limit":1}}`))
	require.NoError(t, err)
	var items chatkit.Page[chatkit.ThreadItem]
	require.NoError(t, json.Unmarshal(jsonBody(t, res), &items))
	assert.Len(t, items.Data, 1)
	assert.True(t, items.HasMore)

	// Delete
	res, err = srv.Process(ctx, []byte(`{"type":"threads.delete","params":{"thread_id":"`+threadID+`"}}`))
	require.NoError(t, err)
	assert.IsType(t, &chatkit.ObjectResult{}, res)
	assert.JSONEq(t, `{}`, string(jsonBody(t, res)))
	assert.Equal(t, []string{threadID}, h.deleted)

	_, err = srv.Process(ctx, []byte(`{"type":"threads.get_by_id","params":{"thread_id":"`+threadID+`"}}`))
	assert.ErrorIs(t, err, chatkit.ErrThreadNotFound)
}

func TestStreamingResult_Frames(t *testing.T) {
	res := chatkit.NewStreamingResult(func(yield func(chatkit.Event, error) bool) {
		yield(chatkit.ErrorEvent("x", "boom"), nil)
	})

	var frames []string
	for frame, err := range res.Frames() {
		require.NoError(t, err)
		frames = append(frames, string(frame))
	}
	require.Len(t, frames, 1)
	assert.True(t, strings.HasPrefix(frames[0], "data: {"))
	assert.True(t, strings.HasSuffix(frames[0], "}\n\n"))
	assert.Contains(t, frames[0], `"type":"error"`)
}
