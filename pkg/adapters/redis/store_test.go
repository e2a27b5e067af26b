package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/canvas/pkg/adapters/redis"
	"github.com/aretw0/canvas/pkg/chatkit"
	"github.com/aretw0/canvas/pkg/domain"
	"github.com/aretw0/canvas/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err, "Failed to start miniredis")
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore_Contract(t *testing.T) {
	_, client := newTestClient(t)

	store := redis.NewFromClient(client)
	ports.RunStateStoreContract(t, store)
}

func TestRedisStore_TTL_Expiration(t *testing.T) {
	mr, client := newTestClient(t)

	// Create store with 1s TTL
	store := redis.NewFromClient(client, redis.WithTTL(1*time.Second))
	ctx := context.Background()
	threadID := "thread-ttl"
	state := domain.NewWizardState(threadID, 9)
	state.Answers[domain.CompanyKey] = "Acme"

	// 1. Save
	require.NoError(t, store.Save(ctx, threadID, state))

	// 2. Verify List (immediately)
	threads, err := store.List(ctx)
	assert.NoError(t, err)
	assert.Contains(t, threads, threadID)

	// 3. Fast Forward time in miniredis (for Key Expiration)
	mr.FastForward(2 * time.Second)

	// 4. Verify Load (should fail)
	_, err = store.Load(ctx, threadID)
	assert.ErrorIs(t, err, domain.ErrThreadNotFound)

	// 5. Verify List (lazily cleaned up)
	// The index score is wall-clock based, so wait until it is in the past.
	time.Sleep(1200 * time.Millisecond)

	threads, err = store.List(ctx)
	assert.NoError(t, err)
	assert.Empty(t, threads)
}

func TestRedisStore_Prefix(t *testing.T) {
	mr, client := newTestClient(t)

	// Custom Prefix
	store := redis.NewFromClient(client, redis.WithPrefix("custom:app:"))
	ctx := context.Background()
	threadID := "my-thread"

	err := store.Save(ctx, threadID, domain.NewWizardState(threadID, 9))
	assert.NoError(t, err)

	assert.True(t, mr.Exists("custom:app:my-thread"), "Expected key with custom prefix to exist")
	assert.True(t, mr.Exists("custom:app:index"), "Expected index with custom prefix to exist")

	list, err := store.List(ctx)
	assert.NoError(t, err)
	assert.Contains(t, list, threadID)

	assert.NoError(t, store.Ping(ctx))
}

func TestRedisDocuments_ThreadStoreContract(t *testing.T) {
	_, client := newTestClient(t)

	store := redis.NewFromClient(client)
	chatkit.RunThreadStoreContract(t, chatkit.NewDocumentStore(store.Threads()))
}

func TestRedisDocuments_ExpireWithStore(t *testing.T) {
	mr, client := newTestClient(t)

	store := redis.NewFromClient(client, redis.WithTTL(time.Second), redis.WithPrefix("app:"))
	docs := store.Threads()
	ctx := context.Background()

	require.NoError(t, docs.Put(ctx, "thr_1", []byte(`{}`)))
	assert.True(t, mr.Exists("app:chatkit:thr_1"))
	assert.True(t, mr.Exists("app:chatkit:index"))

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids, "thread documents are not wizard states")

	mr.FastForward(2 * time.Second)
	_, err = docs.Get(ctx, "thr_1")
	assert.ErrorIs(t, err, chatkit.ErrThreadNotFound)
}
