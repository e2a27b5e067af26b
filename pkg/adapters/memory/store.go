package memory

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/aretw0/canvas/pkg/domain"
)

// entry stores a thread's state and its position in the recency list.
type entry struct {
	state   *domain.WizardState
	touched time.Time
	element *list.Element
}

// Store implements ports.StateStore in memory.
// Safe for concurrent use.
//
// The store is bounded: when Capacity is reached the least recently used
// thread is evicted, and threads idle for longer than TTL are dropped.
// A zero capacity or TTL disables the respective limit.
type Store struct {
	mu       sync.Mutex
	data     map[string]*entry
	order    *list.List // thread IDs, least recently used at front
	capacity int
	ttl      time.Duration
	now      func() time.Time

	onEvict func(threadID string)
}

// Option configures the Store.
type Option func(*Store)

// WithCapacity bounds the number of threads kept in memory.
func WithCapacity(n int) Option {
	return func(s *Store) {
		s.capacity = n
	}
}

// WithTTL drops threads that have not been touched for d.
func WithTTL(d time.Duration) Option {
	return func(s *Store) {
		s.ttl = d
	}
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithEvictHook registers a callback invoked (under the store lock) for every evicted thread.
func WithEvictHook(fn func(threadID string)) Option {
	return func(s *Store) {
		s.onEvict = fn
	}
}

// NewStore creates a new in-memory store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		data:  make(map[string]*entry),
		order: list.New(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save persists the state in memory.
func (s *Store) Save(ctx context.Context, threadID string, state *domain.WizardState) error {
	// Deep copy to ensure isolation, similar to serialization
	copied := state.Snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.data[threadID]; ok {
		e.state = copied
		e.touched = now
		s.order.MoveToBack(e.element)
		return nil
	}

	s.pruneLocked(now)
	if s.capacity > 0 {
		for len(s.data) >= s.capacity {
			s.evictOldestLocked()
		}
	}

	s.data[threadID] = &entry{
		state:   copied,
		touched: now,
		element: s.order.PushBack(threadID),
	}
	return nil
}

// Load retrieves the state from memory.
func (s *Store) Load(ctx context.Context, threadID string) (*domain.WizardState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[threadID]
	if !ok {
		return nil, domain.ErrThreadNotFound
	}

	now := s.now()
	if s.expired(e, now) {
		s.removeLocked(threadID, e)
		return nil, domain.ErrThreadNotFound
	}
	e.touched = now
	s.order.MoveToBack(e.element)

	// Create a copy on read so caller can't mutate store state directly by pointer
	return e.state.Snapshot(), nil
}

// Delete removes the state.
func (s *Store) Delete(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.data[threadID]; ok {
		s.order.Remove(e.element)
		delete(s.data, threadID)
	}
	return nil
}

// List returns the live threads, least recently used first.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(s.now())

	threads := make([]string, 0, len(s.data))
	for el := s.order.Front(); el != nil; el = el.Next() {
		threads = append(threads, el.Value.(string))
	}
	return threads, nil
}

// Len returns the number of threads currently held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

func (s *Store) expired(e *entry, now time.Time) bool {
	return s.ttl > 0 && now.Sub(e.touched) >= s.ttl
}

// pruneLocked drops expired entries. Must be called with mu held.
// The recency list is ordered by touch time, so the scan stops at the first live entry.
func (s *Store) pruneLocked(now time.Time) {
	if s.ttl <= 0 {
		return
	}
	for el := s.order.Front(); el != nil; {
		id := el.Value.(string)
		e := s.data[id]
		if !s.expired(e, now) {
			return
		}
		next := el.Next()
		s.removeLocked(id, e)
		el = next
	}
}

// evictOldestLocked removes the least recently used entry. Must be called with mu held.
func (s *Store) evictOldestLocked() {
	front := s.order.Front()
	if front == nil {
		return
	}
	id := front.Value.(string)
	s.removeLocked(id, s.data[id])
}

func (s *Store) removeLocked(id string, e *entry) {
	s.order.Remove(e.element)
	delete(s.data, id)
	if s.onEvict != nil {
		s.onEvict(id)
	}
}
