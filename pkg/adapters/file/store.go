package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/canvas/pkg/domain"
)

// ErrInvalidThreadID is returned for IDs that cannot be used as a file name.
var ErrInvalidThreadID = errors.New("invalid thread id")

// Store implements ports.StateStore using the local filesystem.
// It stores threads as JSON files in a configured directory.
type Store struct {
	BasePath string
}

// New creates a new Store with the given base path.
// If basePath is empty, it defaults to ".canvas/threads".
func New(basePath string) *Store {
	if basePath == "" {
		basePath = filepath.Join(".canvas", "threads")
	}
	return &Store{BasePath: basePath}
}

func (s *Store) path(threadID string) (string, error) {
	return threadPath(s.BasePath, threadID)
}

func threadPath(dir, threadID string) (string, error) {
	if threadID == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidThreadID)
	}
	if strings.ContainsAny(threadID, `/\`) || threadID == "." || threadID == ".." || strings.HasPrefix(threadID, "tmp-") {
		return "", fmt.Errorf("%w: %q", ErrInvalidThreadID, threadID)
	}
	return filepath.Join(dir, threadID+".json"), nil
}

// Save persists the thread state to a JSON file atomically.
func (s *Store) Save(ctx context.Context, threadID string, state *domain.WizardState) error {
	destPath, err := s.path(threadID)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	return writeAtomic(destPath, data)
}

// writeAtomic writes to a temporary file first, syncs via fsync, and then
// renames it to destPath.
func writeAtomic(destPath string, data []byte) error {
	dir := filepath.Dir(destPath)

	// Ensure directory exists
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to ensure thread directory: %w", err)
	}

	// 1. Create Temp File
	// Same directory, so the rename stays on one filesystem.
	tmpFile, err := os.CreateTemp(dir, "tmp-"+strings.TrimSuffix(filepath.Base(destPath), ".json")+"-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath) // no-op once renamed
	}()

	// 2. Write Data
	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}

	// 3. Fsync to ensure durability
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}

	// 4. Close File (cannot rename open file on Windows)
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// 5. Atomic Rename
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file to thread file: %w", err)
	}

	return nil
}

// Load retrieves the thread state from a JSON file.
func (s *Store) Load(ctx context.Context, threadID string) (*domain.WizardState, error) {
	filePath, err := s.path(threadID)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrThreadNotFound
		}
		return nil, fmt.Errorf("failed to read thread file: %w", err)
	}

	var state domain.WizardState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal thread state: %w", err)
	}
	if state.Answers == nil {
		state.Answers = make(map[string]string)
	}

	return &state, nil
}

// Delete removes the thread file.
func (s *Store) Delete(ctx context.Context, threadID string) error {
	filePath, err := s.path(threadID)
	if err != nil {
		return err
	}

	err = os.Remove(filePath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete thread file: %w", err)
	}

	return nil
}

// List returns all stored thread IDs.
func (s *Store) List(ctx context.Context) ([]string, error) {
	return listThreads(s.BasePath)
}

func listThreads(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}

	threads := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" || strings.HasPrefix(name, "tmp-") {
			continue
		}
		threads = append(threads, strings.TrimSuffix(name, ".json"))
	}

	return threads, nil
}
