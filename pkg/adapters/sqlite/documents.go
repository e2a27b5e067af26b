package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/canvas/pkg/chatkit"
)

// Documents implements chatkit.Documents in the chatkit_threads table of the
// store's database.
type Documents struct {
	db *sql.DB
}

var _ chatkit.Documents = (*Documents)(nil)

// Threads returns the ChatKit thread documents sharing this database.
func (s *Store) Threads() *Documents {
	return &Documents{db: s.db}
}

func (d *Documents) Get(ctx context.Context, threadID string) ([]byte, error) {
	var doc []byte
	err := d.db.QueryRowContext(ctx, `SELECT doc FROM chatkit_threads WHERE thread_id = ?`, threadID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, chatkit.ErrThreadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying thread document: %w", err)
	}
	return doc, nil
}

func (d *Documents) Put(ctx context.Context, threadID string, doc []byte) error {
	const query = `
		INSERT OR REPLACE INTO chatkit_threads (thread_id, doc, updated_at)
		VALUES (?, ?, ?)
	`
	if _, err := d.db.ExecContext(ctx, query, threadID, doc, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("saving thread document: %w", err)
	}
	return nil
}

func (d *Documents) Delete(ctx context.Context, threadID string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM chatkit_threads WHERE thread_id = ?`, threadID); err != nil {
		return fmt.Errorf("deleting thread document: %w", err)
	}
	return nil
}

func (d *Documents) List(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT thread_id FROM chatkit_threads`)
	if err != nil {
		return nil, fmt.Errorf("listing thread documents: %w", err)
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
