package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/canvas/internal/config"
	"github.com/aretw0/canvas/internal/logging"
	"github.com/aretw0/canvas/pkg/adapters/sqlite"
	"github.com/aretw0/canvas/pkg/chatkit"
	"github.com/aretw0/canvas/pkg/domain"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		_ = threadsShowCmd.Flags().Set("json", "false")
		_ = scriptCmd.Flags().Set("json", "false")
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

// useSQLite points the commands at a fresh database seeded with states.
func useSQLite(t *testing.T, states ...*domain.WizardState) {
	t.Helper()
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "canvas.db")
	t.Setenv("CANVAS_STORE_DRIVER", "sqlite")
	t.Setenv("CANVAS_STORE_SQLITE_PATH", path)

	st, err := sqlite.New(path)
	require.NoError(t, err)
	for _, s := range states {
		require.NoError(t, st.Save(context.Background(), s.ThreadID, s))
	}
	require.NoError(t, st.Close())
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "canvas version "))
}

func TestScriptCommand(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Run("default script as yaml", func(t *testing.T) {
		out, err := run(t, "script")
		require.NoError(t, err)

		var doc struct {
			Steps domain.Script `yaml:"steps"`
		}
		require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
		assert.Equal(t, domain.DefaultScript(), doc.Steps)
	})

	t.Run("json", func(t *testing.T) {
		out, err := run(t, "script", "--json")
		require.NoError(t, err)

		var script domain.Script
		require.NoError(t, json.Unmarshal([]byte(out), &script))
		assert.Len(t, script, len(domain.DefaultScript()))
	})

	t.Run("invalid file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("steps: 12\n"), 0o600))
		_, err := run(t, "script", path)
		assert.Error(t, err)
	})
}

func TestThreadsCommands(t *testing.T) {
	first := domain.NewWizardState("thr_b", 9)
	first.CurrentStep = 1
	first.Answers[domain.CompanyKey] = "Acme"
	second := domain.NewWizardState("thr_a", 9)
	useSQLite(t, first, second)

	out, err := run(t, "threads", "ls")
	require.NoError(t, err)
	assert.Equal(t, "Stored Threads:\n- thr_a\n- thr_b\n", out)

	out, err = run(t, "threads", "show", "thr_b")
	require.NoError(t, err)
	var shown domain.WizardState
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.Equal(t, 1, shown.CurrentStep)
	assert.Equal(t, "Acme", shown.Answers[domain.CompanyKey])

	_, err = run(t, "threads", "show", "thr_missing")
	assert.ErrorContains(t, err, "thread 'thr_missing' not found")

	out, err = run(t, "threads", "rm", "thr_a", "thr_b")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed thread 'thr_a'")

	out, err = run(t, "threads", "ls")
	require.NoError(t, err)
	assert.Equal(t, "No stored threads found.\n", out)
}

func TestThreadStore_FollowsDriver(t *testing.T) {
	logger := logging.NewNop()

	t.Run("memory", func(t *testing.T) {
		c := config.Default()
		b, err := openBackend(context.Background(), c, logger)
		require.NoError(t, err)
		defer b.Close()
		engine, err := newEngine(c, b, logger, domain.LifecycleHooks{})
		require.NoError(t, err)

		assert.IsType(t, &chatkit.MemoryStore{}, threadStore(c, b, engine, logger))
	})

	t.Run("sqlite", func(t *testing.T) {
		c := config.Default()
		c.Store.Driver = config.DriverSQLite
		c.Store.SQLite.Path = filepath.Join(t.TempDir(), "canvas.db")
		c.Store.EncryptionKey = strings.Repeat("ab", 32)
		b, err := openBackend(context.Background(), c, logger)
		require.NoError(t, err)
		defer b.Close()
		engine, err := newEngine(c, b, logger, domain.LifecycleHooks{})
		require.NoError(t, err)

		threads := threadStore(c, b, engine, logger)
		require.IsType(t, &chatkit.DocumentStore{}, threads)
		require.NoError(t, threads.SaveThread(context.Background(), chatkit.ThreadMetadata{ID: "thr_1"}))

		raw, err := sqlite.New(c.Store.SQLite.Path)
		require.NoError(t, err)
		defer raw.Close()
		doc, err := raw.Threads().Get(context.Background(), "thr_1")
		require.NoError(t, err)
		assert.Contains(t, string(doc), "__encrypted__")
	})
}

func TestThreadsRm_RemovesThreadDocument(t *testing.T) {
	useSQLite(t, domain.NewWizardState("thr_1", 9))
	path := os.Getenv("CANVAS_STORE_SQLITE_PATH")

	st, err := sqlite.New(path)
	require.NoError(t, err)
	require.NoError(t, st.Threads().Put(context.Background(), "thr_1", []byte(`{}`)))
	require.NoError(t, st.Close())

	_, err = run(t, "threads", "rm", "thr_1")
	require.NoError(t, err)

	st, err = sqlite.New(path)
	require.NoError(t, err)
	defer st.Close()
	_, err = st.Threads().Get(context.Background(), "thr_1")
	assert.ErrorIs(t, err, chatkit.ErrThreadNotFound)
}

func TestOpenBackend_RejectsBadPIIPattern(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CANVAS_STORE_PII_KEYS", "(unclosed")

	_, err := run(t, "threads", "ls")
	assert.Error(t, err)
}
