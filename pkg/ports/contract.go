package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/canvas/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStateStoreContract runs a suite of tests to verify that a StateStore implementation
// adheres to the defined interface contract.
func RunStateStoreContract(t *testing.T, store StateStore) {
	ctx := context.Background()
	threadID := "contract-test-thread-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		// 1. Create a state
		state := domain.NewWizardState(threadID, 9)
		state.CurrentStep = 2
		state.Answers[domain.CompanyKey] = "Acme Inc"
		state.Answers["Dream"] = "Grow to $1M ARR"

		// 2. Save
		err := store.Save(ctx, threadID, state)
		require.NoError(t, err, "Save should not return error")

		// 3. Load
		loaded, err := store.Load(ctx, threadID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, threadID, loaded.ThreadID)
		assert.Equal(t, 2, loaded.CurrentStep)
		assert.Equal(t, 9, loaded.StepTotal)
		assert.Equal(t, "Acme Inc", loaded.Answers[domain.CompanyKey])
		assert.Equal(t, "Grow to $1M ARR", loaded.Answers["Dream"])
	})

	t.Run("Overwrite", func(t *testing.T) {
		state := domain.NewWizardState(threadID, 9)
		state.CurrentStep = 3
		state.Answers["Audience"] = "B2B"
		require.NoError(t, store.Save(ctx, threadID, state))

		loaded, err := store.Load(ctx, threadID)
		require.NoError(t, err)
		assert.Equal(t, 3, loaded.CurrentStep)
		assert.Equal(t, map[string]string{"Audience": "B2B"}, loaded.Answers)
	})

	t.Run("Isolation", func(t *testing.T) {
		state := domain.NewWizardState(threadID, 9)
		state.Answers["Dream"] = "original"
		require.NoError(t, store.Save(ctx, threadID, state))

		// Mutating the saved pointer must not leak into the store.
		state.Answers["Dream"] = "mutated"

		loaded, err := store.Load(ctx, threadID)
		require.NoError(t, err)
		assert.Equal(t, "original", loaded.Answers["Dream"])
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+threadID)
		assert.ErrorIs(t, err, domain.ErrThreadNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		// Setup
		err := store.Save(ctx, threadID, domain.NewWizardState(threadID, 9))
		require.NoError(t, err)

		// Delete
		err = store.Delete(ctx, threadID)
		require.NoError(t, err, "Delete should not return error")

		// Verify gone
		_, err = store.Load(ctx, threadID)
		assert.ErrorIs(t, err, domain.ErrThreadNotFound, "Load after Delete should return ErrThreadNotFound")

		// Deleting twice is not an error
		assert.NoError(t, store.Delete(ctx, threadID))
	})

	t.Run("List", func(t *testing.T) {
		// Setup: Create 2 threads
		id1 := threadID + "-1"
		id2 := threadID + "-2"
		_ = store.Save(ctx, id1, domain.NewWizardState(id1, 9))
		_ = store.Save(ctx, id2, domain.NewWizardState(id2, 9))

		// Ensure cleanup
		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		// List
		threads, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, threads, id1)
		assert.Contains(t, threads, id2)
	})
}
