package chatkit

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/canvas/internal/logging"
)

// Handler produces the events of a turn.
type Handler interface {
	// Respond is called after a user message was stored on the thread.
	Respond(ctx context.Context, thread ThreadMetadata, item *ThreadItem) iter.Seq2[Event, error]
	// Action is called for a widget action. sender is the widget item that raised it, if known.
	Action(ctx context.Context, thread ThreadMetadata, action Action, sender *ThreadItem) iter.Seq2[Event, error]
}

// ThreadDeleter is implemented by handlers that keep per-thread state of their own.
type ThreadDeleter interface {
	ThreadDeleted(ctx context.Context, threadID string) error
}

// Server decodes protocol requests and dispatches turns to a Handler.
type Server struct {
	handler Handler
	store   ThreadStore
	logger  *slog.Logger
	now     func() time.Time
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithStore sets the thread store. Defaults to an unbounded MemoryStore.
func WithStore(store ThreadStore) ServerOption {
	return func(s *Server) {
		if store != nil {
			s.store = store
		}
	}
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a Server for handler.
func NewServer(handler Handler, opts ...ServerOption) *Server {
	s := &Server{
		handler: handler,
		store:   NewMemoryStore(),
		logger:  logging.NewNop(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the thread store.
func (s *Server) Store() ThreadStore {
	return s.store
}

// Process handles one request body. Errors returned here happen before any
// output was produced; failures inside a stream become an error event.
func (s *Server) Process(ctx context.Context, body []byte) (Result, error) {
	req, err := DecodeRequest(body)
	if err != nil {
		return nil, err
	}

	switch req.Type {
	case RequestThreadsCreate:
		var p CreateThreadParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return s.createThread(ctx, p, req.Metadata)

	case RequestThreadsAddUserMessage:
		var p AddUserMessageParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return s.addUserMessage(ctx, p)

	case RequestThreadsCustomAction:
		var p CustomActionParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return s.customAction(ctx, p)

	case RequestThreadsGetByID:
		var p ThreadParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return s.getThread(ctx, p.ThreadID)

	case RequestThreadsList:
		var p ListThreadsParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		page, err := s.store.ListThreads(ctx, p.ListOptions)
		if err != nil {
			return nil, err
		}
		return newJSONResult(page)

	case RequestThreadsUpdate:
		var p UpdateThreadParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return s.updateThread(ctx, p)

	case RequestThreadsDelete:
		var p ThreadParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return s.deleteThread(ctx, p.ThreadID)

	case RequestItemsList:
		var p ListItemsParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		if err := requireThreadID(p.ThreadID); err != nil {
			return nil, err
		}
		page, err := s.store.ListItems(ctx, p.ThreadID, p.ListOptions)
		if err != nil {
			return nil, err
		}
		return newJSONResult(page)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRequest, req.Type)
	}
}

func (s *Server) createThread(ctx context.Context, p CreateThreadParams, metadata map[string]any) (Result, error) {
	thread := ThreadMetadata{
		ID:        NewThreadID(),
		CreatedAt: s.now(),
		Metadata:  metadata,
	}
	if err := s.store.SaveThread(ctx, thread); err != nil {
		return nil, fmt.Errorf("saving thread: %w", err)
	}
	item, err := s.storeUserMessage(ctx, thread.ID, p.Input)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("thread created", "thread_id", thread.ID)

	return NewStreamingResult(func(yield func(Event, error) bool) {
		if !yield(ThreadCreated(thread), nil) {
			return
		}
		if !yield(ItemDone(item), nil) {
			return
		}
		s.pump(ctx, thread, s.handler.Respond(ctx, thread, &item), yield)
	}), nil
}

func (s *Server) addUserMessage(ctx context.Context, p AddUserMessageParams) (Result, error) {
	thread, err := s.loadThread(ctx, p.ThreadID)
	if err != nil {
		return nil, err
	}
	item, err := s.storeUserMessage(ctx, thread.ID, p.Input)
	if err != nil {
		return nil, err
	}

	return NewStreamingResult(func(yield func(Event, error) bool) {
		if !yield(ItemDone(item), nil) {
			return
		}
		s.pump(ctx, thread, s.handler.Respond(ctx, thread, &item), yield)
	}), nil
}

func (s *Server) customAction(ctx context.Context, p CustomActionParams) (Result, error) {
	if p.Action == nil || strings.TrimSpace(p.Action.Type) == "" {
		return nil, fmt.Errorf("%w: action.type is required", ErrInvalidParams)
	}
	thread, err := s.loadThread(ctx, p.ThreadID)
	if err != nil {
		return nil, err
	}

	var sender *ThreadItem
	if p.ItemID != "" {
		item, err := s.store.LoadItem(ctx, thread.ID, p.ItemID)
		switch {
		case err == nil:
			sender = &item
		case errors.Is(err, ErrItemNotFound):
			s.logger.Warn("action sender not found", "thread_id", thread.ID, "item_id", p.ItemID)
		default:
			return nil, fmt.Errorf("loading sender item: %w", err)
		}
	}

	action := *p.Action
	return NewStreamingResult(func(yield func(Event, error) bool) {
		s.pump(ctx, thread, s.handler.Action(ctx, thread, action, sender), yield)
	}), nil
}

func (s *Server) getThread(ctx context.Context, threadID string) (Result, error) {
	thread, err := s.loadThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	items, err := s.store.ListItems(ctx, thread.ID, ListOptions{})
	if err != nil {
		return nil, err
	}
	return newJSONResult(Thread{ThreadMetadata: thread, Items: items})
}

func (s *Server) updateThread(ctx context.Context, p UpdateThreadParams) (Result, error) {
	thread, err := s.loadThread(ctx, p.ThreadID)
	if err != nil {
		return nil, err
	}
	thread.Title = strings.TrimSpace(p.Title)
	if err := s.store.SaveThread(ctx, thread); err != nil {
		return nil, fmt.Errorf("saving thread: %w", err)
	}
	return newJSONResult(thread)
}

func (s *Server) deleteThread(ctx context.Context, threadID string) (Result, error) {
	if err := requireThreadID(threadID); err != nil {
		return nil, err
	}
	if err := s.store.DeleteThread(ctx, threadID); err != nil {
		return nil, fmt.Errorf("deleting thread: %w", err)
	}
	if d, ok := s.handler.(ThreadDeleter); ok {
		if err := d.ThreadDeleted(ctx, threadID); err != nil {
			return nil, fmt.Errorf("deleting thread state: %w", err)
		}
	}
	return &ObjectResult{Value: struct{}{}}, nil
}

func (s *Server) loadThread(ctx context.Context, threadID string) (ThreadMetadata, error) {
	if err := requireThreadID(threadID); err != nil {
		return ThreadMetadata{}, err
	}
	thread, err := s.store.LoadThread(ctx, threadID)
	if err != nil {
		return ThreadMetadata{}, fmt.Errorf("loading thread %q: %w", threadID, err)
	}
	return thread, nil
}

func (s *Server) storeUserMessage(ctx context.Context, threadID string, input UserMessageInput) (ThreadItem, error) {
	item := ThreadItem{
		ID:        NewItemID(ItemUserMessage),
		ThreadID:  threadID,
		CreatedAt: s.now(),
		Type:      ItemUserMessage,
		Content:   input.Content,
	}
	if err := s.store.AddItem(ctx, threadID, item); err != nil {
		return ThreadItem{}, fmt.Errorf("saving user message: %w", err)
	}
	return item, nil
}

// pump forwards handler events, storing completed items. A handler error is
// logged and replaced by a generic error event that ends the stream.
func (s *Server) pump(ctx context.Context, thread ThreadMetadata, events iter.Seq2[Event, error], yield func(Event, error) bool) {
	for ev, err := range events {
		if err != nil {
			s.logger.Error("turn failed", "thread_id", thread.ID, "err", err)
			yield(ErrorEvent("stream.error", "An error occurred while processing your request."), nil)
			return
		}
		if ev.Type == EventThreadItemDone && ev.Item != nil {
			if ev.Item.ThreadID == "" {
				ev.Item.ThreadID = thread.ID
			}
			if err := s.store.AddItem(ctx, thread.ID, *ev.Item); err != nil {
				s.logger.Error("saving item failed", "thread_id", thread.ID, "item_id", ev.Item.ID, "err", err)
				yield(ErrorEvent("stream.error", "An error occurred while processing your request."), nil)
				return
			}
		}
		if !yield(ev, nil) {
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}
