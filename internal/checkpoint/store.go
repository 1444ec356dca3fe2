// Package checkpoint persists opaque session snapshots between interview
// suspensions. Stores are plain key/value blob stores with last-writer-wins
// semantics; they know nothing about what the blobs contain.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrNotFound is returned by Get when no snapshot exists for the key.
var ErrNotFound = errors.New("checkpoint not found")

// Store maps a session id to its latest snapshot.
type Store interface {
	// Put unconditionally overwrites the snapshot stored under key.
	Put(ctx context.Context, key string, blob []byte) error
	// Get returns the snapshot stored under key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Ping reports whether the backing storage is reachable.
	Ping(ctx context.Context) error
	Close() error
}

const (
	KindMemory   = "memory"
	KindRedis    = "redis"
	KindPostgres = "postgres"
	KindBolt     = "bolt"
)

// Kinds lists the supported store kinds.
var Kinds = []string{KindMemory, KindRedis, KindPostgres, KindBolt}

// Config selects and configures a store.
type Config struct {
	Kind     string          `mapstructure:"kind" json:"kind"`
	Redis    *RedisConfig    `mapstructure:"redis" json:"redis"`
	Postgres *PostgresConfig `mapstructure:"postgres" json:"postgres"`
	Bolt     *BoltConfig     `mapstructure:"bolt" json:"bolt"`
}

// RedisConfig configures the Redis store.
type RedisConfig struct {
	URL    string        `mapstructure:"url" json:"url"`
	Prefix string        `mapstructure:"prefix" json:"prefix"`
	TTL    time.Duration `mapstructure:"ttl" json:"ttl"`
}

// PostgresConfig configures the Postgres store.
type PostgresConfig struct {
	URL   string `mapstructure:"url" json:"url"`
	Table string `mapstructure:"table" json:"table"`
}

// BoltConfig configures the bbolt file store.
type BoltConfig struct {
	Path   string `mapstructure:"path" json:"path"`
	Bucket string `mapstructure:"bucket" json:"bucket"`
}

// Open builds the store selected by cfg.Kind. An empty kind selects memory.
func Open(ctx context.Context, cfg *Config, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	kind := KindMemory
	if cfg != nil && strings.TrimSpace(cfg.Kind) != "" {
		kind = strings.ToLower(strings.TrimSpace(cfg.Kind))
	}

	switch kind {
	case KindMemory:
		logger.Info("using in-memory checkpoint store", zap.String("hint", "sessions are lost on restart"))
		return NewMemory(), nil
	case KindRedis:
		if cfg.Redis == nil {
			return nil, errors.New("store.redis section is required for the redis store")
		}
		return NewRedis(ctx, *cfg.Redis, logger)
	case KindPostgres:
		if cfg.Postgres == nil {
			return nil, errors.New("store.postgres section is required for the postgres store")
		}
		return NewPostgres(ctx, *cfg.Postgres, logger)
	case KindBolt:
		if cfg.Bolt == nil {
			return nil, errors.New("store.bolt section is required for the bolt store")
		}
		return NewBolt(*cfg.Bolt, logger)
	default:
		return nil, fmt.Errorf("unsupported checkpoint store: %s", kind)
	}
}
