package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/canvas/internal/logging"
	"github.com/aretw0/canvas/pkg/domain"
	"github.com/aretw0/canvas/pkg/ports"
)

// DefaultLockTTL bounds how long a distributed lock survives a crashed holder.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the per-thread semaphore and the reference count.
// A buffered channel is used instead of sync.Mutex so waiting honours ctx.
type lockEntry struct {
	sem  chan struct{}
	refs int
}

// Manager orchestrates thread state access, ensuring at most one turn per
// thread id is in flight. It uses Reference Counting to garbage collect unused locks.
type Manager struct {
	store     ports.StateStore
	stepTotal int

	mu    sync.Mutex            // Global lock for the map
	locks map[string]*lockEntry // Map of active locks

	locker  ports.DistributedLocker // Optional distributed locker
	lockTTL time.Duration
	logger  *slog.Logger // Logger for internal events (like deferred errors)
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the expiry of distributed locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithStepTotal sets the StepTotal of freshly initialised states.
func WithStepTotal(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.stepTotal = n
		}
	}
}

// NewManager creates a new Manager with the given persistence store.
func NewManager(store ports.StateStore, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		stepTotal: domain.DefaultScript().Len(),
		locks:     make(map[string]*lockEntry),
		lockTTL:   DefaultLockTTL,
		logger:    logging.NewNop(), // Default to no-op
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST call release(threadID) when done with the entry.
func (m *Manager) acquire(threadID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[threadID]
	if !exists {
		entry = &lockEntry{sem: make(chan struct{}, 1)}
		m.locks[threadID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(threadID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[threadID]
	if !exists {
		return // Should not happen if paired correctly
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, threadID)
	}
}

// ActiveLocks returns the number of thread ids that currently hold or wait for a lock.
func (m *Manager) ActiveLocks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

// Load retrieves an existing state from the store.
func (m *Manager) Load(ctx context.Context, threadID string) (*domain.WizardState, error) {
	var state *domain.WizardState
	err := m.WithLock(ctx, threadID, func(ctx context.Context) error {
		var err error
		state, err = m.store.Load(ctx, threadID)
		return err
	})
	return state, err
}

// LoadOrInit returns the stored state or creates, persists and returns a fresh one.
func (m *Manager) LoadOrInit(ctx context.Context, threadID string) (*domain.WizardState, error) {
	var state *domain.WizardState
	err := m.WithLock(ctx, threadID, func(ctx context.Context) error {
		var created bool
		var err error
		state, created, err = m.loadOrNew(ctx, threadID)
		if err != nil || !created {
			return err
		}

		// Persist immediately to reserve the ID
		if err := m.store.Save(ctx, threadID, state); err != nil {
			return fmt.Errorf("failed to initialize thread: %w", err)
		}
		return nil
	})
	return state, err
}

// Peek returns the stored state, or a fresh unsaved one when the thread is unknown.
// It never writes to the store.
func (m *Manager) Peek(ctx context.Context, threadID string) (*domain.WizardState, error) {
	var state *domain.WizardState
	err := m.WithLock(ctx, threadID, func(ctx context.Context) error {
		var err error
		state, _, err = m.loadOrNew(ctx, threadID)
		return err
	})
	return state, err
}

// Update runs load-or-init, fn and save as one critical section.
// If fn returns an error nothing is saved and the error is returned unchanged.
// The returned state is the one that was committed.
func (m *Manager) Update(ctx context.Context, threadID string, fn func(ctx context.Context, state *domain.WizardState) error) (*domain.WizardState, error) {
	var committed *domain.WizardState
	err := m.WithLock(ctx, threadID, func(ctx context.Context) error {
		current, _, err := m.loadOrNew(ctx, threadID)
		if err != nil {
			return err
		}

		// 1. Mutate a private copy so a failed fn leaves nothing behind
		draft := current.Snapshot()
		if err := fn(ctx, draft); err != nil {
			return err
		}

		// 2. Commit
		draft.UpdatedAt = time.Now().UTC()
		if err := m.store.Save(ctx, threadID, draft); err != nil {
			return fmt.Errorf("failed to save thread state: %w", err)
		}
		committed = draft
		return nil
	})
	return committed, err
}

// Save persists the thread state.
func (m *Manager) Save(ctx context.Context, threadID string, state *domain.WizardState) error {
	return m.WithLock(ctx, threadID, func(ctx context.Context) error {
		return m.store.Save(ctx, threadID, state)
	})
}

// Delete removes the thread from the store.
func (m *Manager) Delete(ctx context.Context, threadID string) error {
	return m.WithLock(ctx, threadID, func(ctx context.Context) error {
		return m.store.Delete(ctx, threadID)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying state store.
func (m *Manager) Store() ports.StateStore {
	return m.store
}

// WithLock executes a function while holding the lock for the thread.
// Waiting for the lock is abandoned when ctx is done.
func (m *Manager) WithLock(ctx context.Context, threadID string, fn func(context.Context) error) error {
	entry := m.acquire(threadID)
	defer m.release(threadID)

	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-entry.sem }()

	// Distributed Locking
	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, threadID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			// The turn's ctx may already be cancelled; release with a fresh one.
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := unlock(releaseCtx); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"thread_id", threadID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

func (m *Manager) loadOrNew(ctx context.Context, threadID string) (*domain.WizardState, bool, error) {
	state, err := m.store.Load(ctx, threadID)
	if err == nil {
		if state.Answers == nil {
			state.Answers = make(map[string]string)
		}
		return state, false, nil
	}
	if !errors.Is(err, domain.ErrThreadNotFound) {
		return nil, false, fmt.Errorf("failed to check thread existence: %w", err)
	}
	return domain.NewWizardState(threadID, m.stepTotal), true, nil
}
