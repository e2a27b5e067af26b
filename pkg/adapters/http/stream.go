package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/aretw0/canvas/internal/logging"
	"github.com/aretw0/canvas/pkg/domain"
)

const subscriberBuffer = 16

// StreamManager fans wizard advances out to the SSE subscribers of each thread.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan []byte]struct{} // thread id -> set of channels
	logger      *slog.Logger
}

// NewStreamManager creates an empty manager. A nil logger discards output.
func NewStreamManager(logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StreamManager{
		subscribers: make(map[string]map[chan []byte]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a channel for threadID. The returned func unregisters
// and closes it; calling it twice is safe.
func (sm *StreamManager) Subscribe(threadID string) (<-chan []byte, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan []byte, subscriberBuffer)
	if _, ok := sm.subscribers[threadID]; !ok {
		sm.subscribers[threadID] = make(map[chan []byte]struct{})
	}
	sm.subscribers[threadID][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		subs, ok := sm.subscribers[threadID]
		if !ok {
			return
		}
		if _, ok := subs[ch]; !ok {
			return
		}
		delete(subs, ch)
		close(ch)
		if len(subs) == 0 {
			delete(sm.subscribers, threadID)
		}
	}
}

// Subscribers reports how many channels listen on threadID.
func (sm *StreamManager) Subscribers(threadID string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[threadID])
}

// Broadcast delivers msg to every subscriber of threadID.
// Slow subscribers with a full buffer miss the message.
func (sm *StreamManager) Broadcast(threadID string, msg []byte) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[threadID] {
		select {
		case ch <- msg:
		default:
			sm.logger.Warn("sse client buffer full, dropping message", "thread_id", threadID)
		}
	}
}

// Hooks broadcasts every advance as JSON to the thread's subscribers.
func (sm *StreamManager) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnAdvance: func(_ context.Context, e *domain.AdvanceEvent) {
			data, err := json.Marshal(e)
			if err != nil {
				sm.logger.Error("encoding advance event", "thread_id", e.ThreadID, "err", err)
				return
			}
			sm.Broadcast(e.ThreadID, data)
		},
	}
}

// subscribeEvents handles GET /events?thread_id=...
func (s *Server) subscribeEvents(w http.ResponseWriter, r *http.Request) {
	threadID := r.URL.Query().Get("thread_id")
	if threadID == "" {
		writeError(w, http.StatusBadRequest, "thread_id is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming not supported")
		s.logger.Error("sse: streaming not supported by response writer")
		return
	}

	ch, cancel := s.streams.Subscribe(threadID)
	defer cancel()

	setStreamHeaders(w)
	fmt.Fprint(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()
	s.logger.Debug("sse client subscribed", "thread_id", threadID)

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("sse client disconnected", "thread_id", threadID)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "event: advance\ndata: %s\n\n", msg); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func setStreamHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}
