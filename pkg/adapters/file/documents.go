package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aretw0/canvas/pkg/chatkit"
)

// Documents implements chatkit.Documents with one file per thread.
type Documents struct {
	BasePath string
}

var _ chatkit.Documents = (*Documents)(nil)

// NewDocuments creates Documents rooted at basePath.
func NewDocuments(basePath string) *Documents {
	return &Documents{BasePath: basePath}
}

// Threads returns the ChatKit thread documents kept next to the states,
// under a "chatkit" subdirectory that List ignores.
func (s *Store) Threads() *Documents {
	return NewDocuments(filepath.Join(s.BasePath, "chatkit"))
}

func (d *Documents) Get(ctx context.Context, threadID string) ([]byte, error) {
	path, err := threadPath(d.BasePath, threadID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, chatkit.ErrThreadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read thread document: %w", err)
	}
	return data, nil
}

func (d *Documents) Put(ctx context.Context, threadID string, doc []byte) error {
	path, err := threadPath(d.BasePath, threadID)
	if err != nil {
		return err
	}
	return writeAtomic(path, doc)
}

func (d *Documents) Delete(ctx context.Context, threadID string) error {
	path, err := threadPath(d.BasePath, threadID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete thread document: %w", err)
	}
	return nil
}

func (d *Documents) List(ctx context.Context) ([]string, error) {
	return listThreads(d.BasePath)
}
