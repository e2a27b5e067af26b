// Package config loads the service configuration from defaults, an optional
// config file, CANVAS_* environment variables and bound command flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/aretw0/canvas/internal/logging"
	"github.com/aretw0/canvas/pkg/persistence/middleware"
)

// EnvPrefix is the prefix of every environment override (CANVAS_SERVER_ADDR, ...).
const EnvPrefix = "CANVAS"

// Store drivers.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverRedis  = "redis"
	DriverSQLite = "sqlite"
)

// Config is the full service configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Store   StoreConfig   `mapstructure:"store"`
	Wizard  WizardConfig  `mapstructure:"wizard"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Events  EventsConfig  `mapstructure:"events"`
}

// ServerConfig controls the HTTP gateway.
type ServerConfig struct {
	Addr            string          `mapstructure:"addr"`
	CORSOrigins     []string        `mapstructure:"cors_origins"`
	MaxBodyBytes    int64           `mapstructure:"max_body_bytes"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
}

// RateLimitConfig is the per-client token bucket. Zero requests disables it.
type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	Burst             int `mapstructure:"burst"`
}

// StoreConfig selects and tunes the state backend.
type StoreConfig struct {
	Driver string        `mapstructure:"driver"`
	TTL    time.Duration `mapstructure:"ttl"`

	Memory MemoryConfig `mapstructure:"memory"`
	File   FileConfig   `mapstructure:"file"`
	Redis  RedisConfig  `mapstructure:"redis"`
	SQLite SQLiteConfig `mapstructure:"sqlite"`

	// EncryptionKey enables AES-GCM encryption at rest (hex or base64, 32 bytes).
	EncryptionKey string `mapstructure:"encryption_key"`
	// EncryptionFallbackKeys are older keys still accepted for decryption.
	EncryptionFallbackKeys []string `mapstructure:"encryption_fallback_keys"`
	// PIIKeys are regular expressions over answer keys whose values are masked before storage.
	PIIKeys []string `mapstructure:"pii_keys"`
}

type MemoryConfig struct {
	Capacity int `mapstructure:"capacity"`
}

type FileConfig struct {
	Dir string `mapstructure:"dir"`
}

type RedisConfig struct {
	Addr            string        `mapstructure:"addr"`
	Password        string        `mapstructure:"password"`
	DB              int           `mapstructure:"db"`
	Prefix          string        `mapstructure:"prefix"`
	DistributedLock bool          `mapstructure:"distributed_lock"`
	LockTTL         time.Duration `mapstructure:"lock_ttl"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// WizardConfig tunes the conversation engine.
type WizardConfig struct {
	MessageAdvances bool   `mapstructure:"message_advances"`
	ScriptPath      string `mapstructure:"script_path"`
	WidgetsDir      string `mapstructure:"widgets_dir"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// EventsConfig enables the NATS publisher when NatsURL is set.
type EventsConfig struct {
	NatsURL       string `mapstructure:"nats_url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8080",
			CORSOrigins:  []string{"*"},
			MaxBodyBytes: 1 << 20, // 1 MiB
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 60,
				Burst:             20,
			},
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Driver: DriverMemory,
			TTL:    24 * time.Hour,
			Memory: MemoryConfig{Capacity: 10000},
			File:   FileConfig{Dir: ".canvas/threads"},
			Redis: RedisConfig{
				Addr:    "localhost:6379",
				Prefix:  "canvas:thread:",
				LockTTL: 30 * time.Second,
			},
			SQLite:                 SQLiteConfig{Path: ".canvas/canvas.db"},
			EncryptionFallbackKeys: []string{},
			PIIKeys:                []string{},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: logging.FormatText,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Events: EventsConfig{
			SubjectPrefix: "canvas.advance",
		},
	}
}

// SetDefaults registers every key on v so env overrides and Unmarshal see them.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.cors_origins", d.Server.CORSOrigins)
	v.SetDefault("server.max_body_bytes", d.Server.MaxBodyBytes)
	v.SetDefault("server.rate_limit.requests_per_minute", d.Server.RateLimit.RequestsPerMinute)
	v.SetDefault("server.rate_limit.burst", d.Server.RateLimit.Burst)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.ttl", d.Store.TTL)
	v.SetDefault("store.memory.capacity", d.Store.Memory.Capacity)
	v.SetDefault("store.file.dir", d.Store.File.Dir)
	v.SetDefault("store.redis.addr", d.Store.Redis.Addr)
	v.SetDefault("store.redis.password", d.Store.Redis.Password)
	v.SetDefault("store.redis.db", d.Store.Redis.DB)
	v.SetDefault("store.redis.prefix", d.Store.Redis.Prefix)
	v.SetDefault("store.redis.distributed_lock", d.Store.Redis.DistributedLock)
	v.SetDefault("store.redis.lock_ttl", d.Store.Redis.LockTTL)
	v.SetDefault("store.sqlite.path", d.Store.SQLite.Path)
	v.SetDefault("store.encryption_key", d.Store.EncryptionKey)
	v.SetDefault("store.encryption_fallback_keys", d.Store.EncryptionFallbackKeys)
	v.SetDefault("store.pii_keys", d.Store.PIIKeys)

	v.SetDefault("wizard.message_advances", d.Wizard.MessageAdvances)
	v.SetDefault("wizard.script_path", d.Wizard.ScriptPath)
	v.SetDefault("wizard.widgets_dir", d.Wizard.WidgetsDir)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)

	v.SetDefault("events.nats_url", d.Events.NatsURL)
	v.SetDefault("events.subject_prefix", d.Events.SubjectPrefix)
}

// New returns a viper instance with defaults and environment overrides wired.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configFile (or canvas.yaml in the working directory when empty)
// into v and returns the validated configuration. A missing default file is
// not an error; a missing explicit file is.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("canvas")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate returns the first problem found.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr must not be empty")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive, got %d", c.Server.MaxBodyBytes)
	}
	if c.Server.RateLimit.RequestsPerMinute < 0 || c.Server.RateLimit.Burst < 0 {
		return errors.New("server.rate_limit values must not be negative")
	}
	if c.Server.ShutdownTimeout < 0 {
		return errors.New("server.shutdown_timeout must not be negative")
	}

	switch c.Store.Driver {
	case DriverMemory:
		if c.Store.Memory.Capacity < 0 {
			return errors.New("store.memory.capacity must not be negative")
		}
	case DriverFile:
		if c.Store.File.Dir == "" {
			return errors.New("store.file.dir is required for the file driver")
		}
	case DriverRedis:
		if c.Store.Redis.Addr == "" {
			return errors.New("store.redis.addr is required for the redis driver")
		}
	case DriverSQLite:
		if c.Store.SQLite.Path == "" {
			return errors.New("store.sqlite.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown store.driver %q (memory, file, redis, sqlite)", c.Store.Driver)
	}
	if c.Store.TTL < 0 {
		return errors.New("store.ttl must not be negative")
	}
	if c.Store.Redis.DistributedLock && c.Store.Driver != DriverRedis {
		return errors.New("store.redis.distributed_lock requires the redis driver")
	}
	if c.Store.Redis.DistributedLock && c.Store.Redis.LockTTL <= 0 {
		return errors.New("store.redis.lock_ttl must be positive")
	}
	if c.Store.EncryptionKey != "" {
		if _, err := middleware.DecodeKey(c.Store.EncryptionKey); err != nil {
			return fmt.Errorf("store.encryption_key: %w", err)
		}
	}
	for i, k := range c.Store.EncryptionFallbackKeys {
		if _, err := middleware.DecodeKey(k); err != nil {
			return fmt.Errorf("store.encryption_fallback_keys[%d]: %w", i, err)
		}
	}
	if len(c.Store.EncryptionFallbackKeys) > 0 && c.Store.EncryptionKey == "" {
		return errors.New("store.encryption_fallback_keys requires store.encryption_key")
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if c.Logging.Format != logging.FormatText && c.Logging.Format != logging.FormatJSON {
		return fmt.Errorf("logging.format must be %q or %q, got %q", logging.FormatText, logging.FormatJSON, c.Logging.Format)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/', got %q", c.Metrics.Path)
	}
	if c.Events.NatsURL != "" && strings.TrimSpace(c.Events.SubjectPrefix) == "" {
		return errors.New("events.subject_prefix is required when events.nats_url is set")
	}
	return nil
}
