package chatkit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"slices"
	"strings"
	"sync"
)

// Documents keeps one opaque document per thread.
// Get returns ErrThreadNotFound for an unknown thread.
type Documents interface {
	Get(ctx context.Context, threadID string) ([]byte, error)
	Put(ctx context.Context, threadID string, doc []byte) error
	Delete(ctx context.Context, threadID string) error
	List(ctx context.Context) ([]string, error)
}

// document is the stored form of a thread.
type document struct {
	Thread ThreadMetadata `json:"thread"`
	Items  []ThreadItem   `json:"items"`
}

const documentStripes = 64

// DocumentStore is a ThreadStore that keeps each thread and its items as a
// single JSON document, so any shared Documents backend makes threads visible
// to every process using it. Writes to one thread are serialised within the
// process; concurrent writers in different processes may lose an item.
type DocumentStore struct {
	docs    Documents
	stripes [documentStripes]sync.Mutex
}

var _ ThreadStore = (*DocumentStore)(nil)

// NewDocumentStore creates a DocumentStore on top of docs.
func NewDocumentStore(docs Documents) *DocumentStore {
	return &DocumentStore{docs: docs}
}

func (s *DocumentStore) lock(threadID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(threadID))
	mu := &s.stripes[h.Sum32()%documentStripes]
	mu.Lock()
	return mu.Unlock
}

func (s *DocumentStore) load(ctx context.Context, threadID string) (*document, error) {
	data, err := s.docs.Get(ctx, threadID)
	if err != nil {
		return nil, err
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding thread %s: %w", threadID, err)
	}
	return &doc, nil
}

func (s *DocumentStore) save(ctx context.Context, doc *document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding thread %s: %w", doc.Thread.ID, err)
	}
	return s.docs.Put(ctx, doc.Thread.ID, data)
}

func (s *DocumentStore) SaveThread(ctx context.Context, thread ThreadMetadata) error {
	defer s.lock(thread.ID)()

	doc, err := s.load(ctx, thread.ID)
	if errors.Is(err, ErrThreadNotFound) {
		doc, err = &document{}, nil
	}
	if err != nil {
		return err
	}
	doc.Thread = thread
	return s.save(ctx, doc)
}

func (s *DocumentStore) LoadThread(ctx context.Context, threadID string) (ThreadMetadata, error) {
	doc, err := s.load(ctx, threadID)
	if err != nil {
		return ThreadMetadata{}, err
	}
	return doc.Thread, nil
}

func (s *DocumentStore) DeleteThread(ctx context.Context, threadID string) error {
	defer s.lock(threadID)()
	return s.docs.Delete(ctx, threadID)
}

// ListThreads loads every document; threads are ordered by creation time.
func (s *DocumentStore) ListThreads(ctx context.Context, opts ListOptions) (Page[ThreadMetadata], error) {
	ids, err := s.docs.List(ctx)
	if err != nil {
		return Page[ThreadMetadata]{}, err
	}

	metas := make([]ThreadMetadata, 0, len(ids))
	for _, id := range ids {
		doc, err := s.load(ctx, id)
		if errors.Is(err, ErrThreadNotFound) {
			continue // deleted or expired since List
		}
		if err != nil {
			return Page[ThreadMetadata]{}, err
		}
		metas = append(metas, doc.Thread)
	}
	slices.SortStableFunc(metas, func(a, b ThreadMetadata) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	return paginate(metas, func(m ThreadMetadata) string { return m.ID }, opts), nil
}

func (s *DocumentStore) AddItem(ctx context.Context, threadID string, item ThreadItem) error {
	defer s.lock(threadID)()

	doc, err := s.load(ctx, threadID)
	if err != nil {
		return err
	}
	if i := slices.IndexFunc(doc.Items, func(it ThreadItem) bool { return it.ID == item.ID }); i >= 0 {
		doc.Items[i] = item
	} else {
		doc.Items = append(doc.Items, item)
	}
	return s.save(ctx, doc)
}

func (s *DocumentStore) LoadItem(ctx context.Context, threadID, itemID string) (ThreadItem, error) {
	doc, err := s.load(ctx, threadID)
	if err != nil {
		return ThreadItem{}, err
	}
	for _, item := range doc.Items {
		if item.ID == itemID {
			return item, nil
		}
	}
	return ThreadItem{}, ErrItemNotFound
}

func (s *DocumentStore) ListItems(ctx context.Context, threadID string, opts ListOptions) (Page[ThreadItem], error) {
	doc, err := s.load(ctx, threadID)
	if err != nil {
		return Page[ThreadItem]{}, err
	}
	return paginate(doc.Items, func(i ThreadItem) string { return i.ID }, opts), nil
}
