package chatkit

import (
	"context"
	"slices"
	"sync"
)

// Sort orders for listings.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// DefaultPageSize is used when a listing request has no limit.
const DefaultPageSize = 20

// ListOptions selects one page of a listing.
type ListOptions struct {
	Limit int    `json:"limit,omitempty"`
	After string `json:"after,omitempty"`
	Order string `json:"order,omitempty"`
}

// ThreadStore persists thread metadata and items.
type ThreadStore interface {
	SaveThread(ctx context.Context, thread ThreadMetadata) error
	LoadThread(ctx context.Context, threadID string) (ThreadMetadata, error)
	DeleteThread(ctx context.Context, threadID string) error
	ListThreads(ctx context.Context, opts ListOptions) (Page[ThreadMetadata], error)

	AddItem(ctx context.Context, threadID string, item ThreadItem) error
	LoadItem(ctx context.Context, threadID, itemID string) (ThreadItem, error)
	ListItems(ctx context.Context, threadID string, opts ListOptions) (Page[ThreadItem], error)
}

type threadEntry struct {
	meta  ThreadMetadata
	items []ThreadItem
}

// MemoryStore is an in-process ThreadStore. With a capacity set, the oldest
// thread is dropped when a new one would exceed it.
type MemoryStore struct {
	mu       sync.RWMutex
	threads  map[string]*threadEntry
	order    []string // creation order, oldest first
	capacity int
	onEvict  func(threadID string)
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithThreadCapacity bounds the number of threads kept.
func WithThreadCapacity(n int) MemoryOption {
	return func(s *MemoryStore) {
		s.capacity = n
	}
}

// WithThreadEvictHook is called (outside the store lock) for every evicted thread.
func WithThreadEvictHook(fn func(threadID string)) MemoryOption {
	return func(s *MemoryStore) {
		s.onEvict = fn
	}
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{threads: make(map[string]*threadEntry)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ ThreadStore = (*MemoryStore)(nil)

func (s *MemoryStore) SaveThread(ctx context.Context, thread ThreadMetadata) error {
	var evicted []string

	s.mu.Lock()
	if entry, ok := s.threads[thread.ID]; ok {
		entry.meta = thread
	} else {
		s.threads[thread.ID] = &threadEntry{meta: thread}
		s.order = append(s.order, thread.ID)
		for s.capacity > 0 && len(s.order) > s.capacity {
			oldest := s.order[0]
			s.order = s.order[1:]
			delete(s.threads, oldest)
			evicted = append(evicted, oldest)
		}
	}
	s.mu.Unlock()

	if s.onEvict != nil {
		for _, id := range evicted {
			s.onEvict(id)
		}
	}
	return nil
}

func (s *MemoryStore) LoadThread(ctx context.Context, threadID string) (ThreadMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.threads[threadID]
	if !ok {
		return ThreadMetadata{}, ErrThreadNotFound
	}
	return entry.meta, nil
}

func (s *MemoryStore) DeleteThread(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.threads[threadID]; !ok {
		return nil
	}
	delete(s.threads, threadID)
	s.order = slices.DeleteFunc(s.order, func(id string) bool { return id == threadID })
	return nil
}

func (s *MemoryStore) ListThreads(ctx context.Context, opts ListOptions) (Page[ThreadMetadata], error) {
	s.mu.RLock()
	metas := make([]ThreadMetadata, 0, len(s.order))
	for _, id := range s.order {
		metas = append(metas, s.threads[id].meta)
	}
	s.mu.RUnlock()

	return paginate(metas, func(m ThreadMetadata) string { return m.ID }, opts), nil
}

func (s *MemoryStore) AddItem(ctx context.Context, threadID string, item ThreadItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.threads[threadID]
	if !ok {
		return ErrThreadNotFound
	}
	for i := range entry.items {
		if entry.items[i].ID == item.ID {
			entry.items[i] = item
			return nil
		}
	}
	entry.items = append(entry.items, item)
	return nil
}

func (s *MemoryStore) LoadItem(ctx context.Context, threadID, itemID string) (ThreadItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.threads[threadID]
	if !ok {
		return ThreadItem{}, ErrThreadNotFound
	}
	for _, item := range entry.items {
		if item.ID == itemID {
			return item, nil
		}
	}
	return ThreadItem{}, ErrItemNotFound
}

func (s *MemoryStore) ListItems(ctx context.Context, threadID string, opts ListOptions) (Page[ThreadItem], error) {
	s.mu.RLock()
	entry, ok := s.threads[threadID]
	if !ok {
		s.mu.RUnlock()
		return Page[ThreadItem]{}, ErrThreadNotFound
	}
	items := slices.Clone(entry.items)
	s.mu.RUnlock()

	return paginate(items, func(i ThreadItem) string { return i.ID }, opts), nil
}

// paginate slices all (oldest first) according to opts.
func paginate[T any](all []T, id func(T) string, opts ListOptions) Page[T] {
	if opts.Order == OrderDesc {
		slices.Reverse(all)
	}

	start := 0
	if opts.After != "" {
		for i, v := range all {
			if id(v) == opts.After {
				start = i + 1
				break
			}
		}
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	end := min(start+limit, len(all))

	page := Page[T]{Data: all[start:end], HasMore: end < len(all)}
	if page.Data == nil {
		page.Data = []T{}
	}
	if page.HasMore && len(page.Data) > 0 {
		page.After = id(page.Data[len(page.Data)-1])
	}
	return page
}
