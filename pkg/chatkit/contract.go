package chatkit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunThreadStoreContract verifies that a ThreadStore implementation behaves
// like the MemoryStore. The store must start empty.
func RunThreadStoreContract(t *testing.T, store ThreadStore) {
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("Missing thread", func(t *testing.T) {
		_, err := store.LoadThread(ctx, "thr_missing")
		assert.ErrorIs(t, err, ErrThreadNotFound)

		_, err = store.ListItems(ctx, "thr_missing", ListOptions{})
		assert.ErrorIs(t, err, ErrThreadNotFound)

		err = store.AddItem(ctx, "thr_missing", NewAssistantMessage("thr_missing", "hi"))
		assert.ErrorIs(t, err, ErrThreadNotFound)
	})

	t.Run("Save and Load", func(t *testing.T) {
		thread := ThreadMetadata{ID: "thr_one", CreatedAt: base, Metadata: map[string]any{"source": "web"}}
		require.NoError(t, store.SaveThread(ctx, thread))

		got, err := store.LoadThread(ctx, "thr_one")
		require.NoError(t, err)
		assert.Equal(t, "thr_one", got.ID)
		assert.True(t, base.Equal(got.CreatedAt))
		assert.Equal(t, "web", got.Metadata["source"])
	})

	t.Run("Items keep order and are replaced by id", func(t *testing.T) {
		first := NewAssistantMessage("thr_one", "first")
		second := NewAssistantMessage("thr_one", "second")
		require.NoError(t, store.AddItem(ctx, "thr_one", first))
		require.NoError(t, store.AddItem(ctx, "thr_one", second))

		first.Content[0].Text = "first, edited"
		require.NoError(t, store.AddItem(ctx, "thr_one", first))

		page, err := store.ListItems(ctx, "thr_one", ListOptions{})
		require.NoError(t, err)
		require.Len(t, page.Data, 2)
		assert.Equal(t, "first, edited", page.Data[0].Text())
		assert.Equal(t, "second", page.Data[1].Text())

		got, err := store.LoadItem(ctx, "thr_one", second.ID)
		require.NoError(t, err)
		assert.Equal(t, "second", got.Text())

		_, err = store.LoadItem(ctx, "thr_one", "msg_missing")
		assert.ErrorIs(t, err, ErrItemNotFound)
	})

	t.Run("Saving metadata keeps items", func(t *testing.T) {
		thread, err := store.LoadThread(ctx, "thr_one")
		require.NoError(t, err)
		thread.Title = "Acme canvas"
		require.NoError(t, store.SaveThread(ctx, thread))

		got, err := store.LoadThread(ctx, "thr_one")
		require.NoError(t, err)
		assert.Equal(t, "Acme canvas", got.Title)

		page, err := store.ListItems(ctx, "thr_one", ListOptions{})
		require.NoError(t, err)
		assert.Len(t, page.Data, 2)
	})

	t.Run("List in creation order", func(t *testing.T) {
		require.NoError(t, store.SaveThread(ctx, ThreadMetadata{ID: "thr_two", CreatedAt: base.Add(time.Minute)}))
		require.NoError(t, store.SaveThread(ctx, ThreadMetadata{ID: "thr_three", CreatedAt: base.Add(2 * time.Minute)}))

		page, err := store.ListThreads(ctx, ListOptions{Limit: 2})
		require.NoError(t, err)
		require.Len(t, page.Data, 2)
		assert.Equal(t, "thr_one", page.Data[0].ID)
		assert.Equal(t, "thr_two", page.Data[1].ID)
		assert.True(t, page.HasMore)

		page, err = store.ListThreads(ctx, ListOptions{After: page.After})
		require.NoError(t, err)
		require.Len(t, page.Data, 1)
		assert.Equal(t, "thr_three", page.Data[0].ID)
		assert.False(t, page.HasMore)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.DeleteThread(ctx, "thr_one"))
		require.NoError(t, store.DeleteThread(ctx, "thr_one"), "deleting twice is not an error")

		_, err := store.LoadThread(ctx, "thr_one")
		assert.ErrorIs(t, err, ErrThreadNotFound)

		page, err := store.ListThreads(ctx, ListOptions{})
		require.NoError(t, err)
		assert.Len(t, page.Data, 2)
	})
}
