package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/canvas/pkg/chatkit"
	backend "github.com/redis/go-redis/v9"
)

// Documents implements chatkit.Documents with one string key per thread and a
// sorted-set index, mirroring the layout of the state store.
type Documents struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

var _ chatkit.Documents = (*Documents)(nil)

// Threads returns the ChatKit thread documents sharing this store's client,
// prefix and TTL, so a thread expires together with its wizard state.
func (s *Store) Threads() *Documents {
	return &Documents{client: s.client, prefix: s.prefix + "chatkit:", ttl: s.ttl}
}

func (d *Documents) key(threadID string) string {
	return d.prefix + threadID
}

func (d *Documents) indexKey() string {
	return d.prefix + "index"
}

func (d *Documents) Get(ctx context.Context, threadID string) ([]byte, error) {
	val, err := d.client.Get(ctx, d.key(threadID)).Bytes()
	if errors.Is(err, backend.Nil) {
		return nil, chatkit.ErrThreadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get thread document from redis: %w", err)
	}
	return val, nil
}

func (d *Documents) Put(ctx context.Context, threadID string, doc []byte) error {
	score := float64(time.Now().Add(d.ttl).Unix())
	if d.ttl == 0 {
		score = farFuture
	}

	pipe := d.client.TxPipeline()
	pipe.Set(ctx, d.key(threadID), doc, d.ttl)
	pipe.ZAdd(ctx, d.indexKey(), backend.Z{Score: score, Member: threadID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save thread document to redis: %w", err)
	}
	return nil
}

func (d *Documents) Delete(ctx context.Context, threadID string) error {
	pipe := d.client.TxPipeline()
	pipe.Del(ctx, d.key(threadID))
	pipe.ZRem(ctx, d.indexKey(), threadID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete thread document from redis: %w", err)
	}
	return nil
}

// List prunes expired members from the index before reading it.
func (d *Documents) List(ctx context.Context) ([]string, error) {
	now := fmt.Sprintf("%f", float64(time.Now().Unix()))
	if err := d.client.ZRemRangeByScore(ctx, d.indexKey(), "-inf", now).Err(); err != nil {
		return nil, fmt.Errorf("failed to prune expired thread documents: %w", err)
	}
	ids, err := d.client.ZRange(ctx, d.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list thread documents: %w", err)
	}
	return ids, nil
}
