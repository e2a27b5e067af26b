// Package sqlite persists wizard states in a single SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aretw0/canvas/internal/logging"
	"github.com/aretw0/canvas/pkg/domain"
	"github.com/aretw0/canvas/pkg/ports"

	_ "modernc.org/sqlite"
)

const schema = `
	CREATE TABLE IF NOT EXISTS wizard_states (
		thread_id TEXT PRIMARY KEY,
		state BLOB NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_wizard_states_updated
		ON wizard_states(updated_at);

	CREATE TABLE IF NOT EXISTS chatkit_threads (
		thread_id TEXT PRIMARY KEY,
		doc BLOB NOT NULL,
		updated_at DATETIME NOT NULL
	);
`

// Store implements ports.StateStore on top of modernc.org/sqlite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ ports.StateStore = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger used by the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New opens (or creates) the database at path.
// The schema is created if it doesn't exist and parent directories are created if needed.
func New(path string, opts ...Option) (*Store, error) {
	s := &Store{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY under concurrent turns.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	s.db = db
	s.logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// Save upserts the state for threadID.
func (s *Store) Save(ctx context.Context, threadID string, state *domain.WizardState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	const query = `
		INSERT OR REPLACE INTO wizard_states (thread_id, state, updated_at)
		VALUES (?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, threadID, data, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("saving wizard state: %w", err)
	}

	s.logger.Debug("saved wizard state", "thread_id", threadID, "size", len(data))
	return nil
}

// Load returns the state for threadID or domain.ErrThreadNotFound.
func (s *Store) Load(ctx context.Context, threadID string) (*domain.WizardState, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT state FROM wizard_states WHERE thread_id = ?`, threadID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrThreadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying wizard state: %w", err)
	}

	var state domain.WizardState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	if state.Answers == nil {
		state.Answers = make(map[string]string)
	}
	return &state, nil
}

// Delete removes the state for threadID. Missing rows are not an error.
func (s *Store) Delete(ctx context.Context, threadID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM wizard_states WHERE thread_id = ?`, threadID); err != nil {
		return fmt.Errorf("deleting wizard state: %w", err)
	}
	return nil
}

// List returns thread ids, most recently updated first.
func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT thread_id FROM wizard_states ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing wizard states: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning thread id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
