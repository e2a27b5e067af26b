package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/canvas"
	"github.com/aretw0/canvas/internal/config"
	"github.com/aretw0/canvas/pkg/adapters/file"
	"github.com/aretw0/canvas/pkg/adapters/memory"
	"github.com/aretw0/canvas/pkg/adapters/redis"
	"github.com/aretw0/canvas/pkg/adapters/sqlite"
	"github.com/aretw0/canvas/pkg/chatkit"
	"github.com/aretw0/canvas/pkg/domain"
	"github.com/aretw0/canvas/pkg/persistence/middleware"
	"github.com/aretw0/canvas/pkg/ports"
	"github.com/aretw0/canvas/pkg/widget"
)

// backend is an opened state store plus what it takes to release it.
// threads is nil for the memory driver.
type backend struct {
	store   ports.StateStore
	threads chatkit.Documents
	locker  ports.DistributedLocker
	closer  func() error
}

func (b *backend) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer()
}

// openBackend builds the configured store and wraps it in the PII and
// encryption middlewares. PII masking runs before encryption.
func openBackend(ctx context.Context, c *config.Config, logger *slog.Logger) (*backend, error) {
	b := &backend{}

	// 1. Driver
	switch c.Store.Driver {
	case config.DriverMemory:
		b.store = memory.NewStore(
			memory.WithCapacity(c.Store.Memory.Capacity),
			memory.WithTTL(c.Store.TTL),
			memory.WithEvictHook(func(threadID string) {
				logger.Debug("thread state evicted", "thread_id", threadID)
			}),
		)
	case config.DriverFile:
		st := file.New(c.Store.File.Dir)
		b.store, b.threads = st, st.Threads()
	case config.DriverRedis:
		rc := c.Store.Redis
		st := redis.New(rc.Addr, rc.Password, rc.DB, redis.WithTTL(c.Store.TTL), redis.WithPrefix(rc.Prefix))
		if err := st.Ping(ctx); err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("connecting to redis at %s: %w", rc.Addr, err)
		}
		b.store, b.threads, b.closer = st, st.Threads(), st.Close
		if rc.DistributedLock {
			b.locker = redis.NewLocker(st.Client(), st.Prefix())
		}
	case config.DriverSQLite:
		st, err := sqlite.New(c.Store.SQLite.Path, sqlite.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		b.store, b.threads, b.closer = st, st.Threads(), st.Close
	default:
		return nil, fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	// 2. Middlewares
	var mws []middleware.Middleware
	if len(c.Store.PIIKeys) > 0 {
		pii, err := middleware.NewPIIMiddleware(c.Store.PIIKeys)
		if err != nil {
			return nil, errors.Join(err, b.Close())
		}
		mws = append(mws, pii)
	}
	if c.Store.EncryptionKey != "" {
		ec, err := encryptionConfig(c.Store)
		if err != nil {
			return nil, errors.Join(err, b.Close())
		}
		enc, err := middleware.NewEncryptionMiddleware(ec)
		if err != nil {
			return nil, errors.Join(err, b.Close())
		}
		mws = append(mws, enc)
		if b.threads != nil {
			if b.threads, err = middleware.EncryptDocuments(b.threads, ec); err != nil {
				return nil, errors.Join(err, b.Close())
			}
		}
	}
	b.store = middleware.Chain(b.store, mws...)

	logger.Debug("state store ready",
		"driver", c.Store.Driver,
		"encrypted", c.Store.EncryptionKey != "",
		"pii_patterns", len(c.Store.PIIKeys),
		"distributed_lock", b.locker != nil,
	)
	return b, nil
}

func encryptionConfig(sc config.StoreConfig) (middleware.EncryptionConfig, error) {
	active, err := middleware.DecodeKey(sc.EncryptionKey)
	if err != nil {
		return middleware.EncryptionConfig{}, fmt.Errorf("store.encryption_key: %w", err)
	}
	ec := middleware.EncryptionConfig{ActiveKey: active}
	for _, k := range sc.EncryptionFallbackKeys {
		key, err := middleware.DecodeKey(k)
		if err != nil {
			return middleware.EncryptionConfig{}, fmt.Errorf("store.encryption_fallback_keys: %w", err)
		}
		ec.FallbackKeys = append(ec.FallbackKeys, key)
	}
	return ec, nil
}

// threadStore returns the ChatKit thread store matching the backend. Durable
// drivers share thread documents across restarts and replicas; the memory
// driver keeps them in process with the same capacity as the states.
func threadStore(c *config.Config, b *backend, engine *canvas.Engine, logger *slog.Logger) chatkit.ThreadStore {
	if b.threads != nil {
		return chatkit.NewDocumentStore(b.threads)
	}
	return chatkit.NewMemoryStore(
		chatkit.WithThreadCapacity(c.Store.Memory.Capacity),
		chatkit.WithThreadEvictHook(func(threadID string) {
			if err := engine.ThreadDeleted(context.Background(), threadID); err != nil {
				logger.Warn("dropping state of evicted thread", "thread_id", threadID, "err", err)
			}
		}),
	)
}

// loadScript returns the configured script or the default one.
func loadScript(c *config.Config) (domain.Script, error) {
	if c.Wizard.ScriptPath == "" {
		return domain.DefaultScript(), nil
	}
	return config.LoadScript(c.Wizard.ScriptPath)
}

// newEngine wires the conversation engine on top of an opened backend.
func newEngine(c *config.Config, b *backend, logger *slog.Logger, hooks domain.LifecycleHooks) (*canvas.Engine, error) {
	script, err := loadScript(c)
	if err != nil {
		return nil, err
	}

	opts := []canvas.Option{
		canvas.WithStore(b.store),
		canvas.WithScript(script),
		canvas.WithLogger(logger),
		canvas.WithLifecycleHooks(hooks),
		canvas.WithMessageAdvances(c.Wizard.MessageAdvances),
	}
	if b.locker != nil {
		opts = append(opts, canvas.WithLocker(b.locker), canvas.WithLockTTL(c.Store.Redis.LockTTL))
	}
	if c.Wizard.WidgetsDir != "" {
		r, err := widget.New(widget.WithDir(c.Wizard.WidgetsDir))
		if err != nil {
			return nil, fmt.Errorf("loading widgets from %s: %w", c.Wizard.WidgetsDir, err)
		}
		opts = append(opts, canvas.WithRenderer(r))
	}
	return canvas.New(opts...)
}
