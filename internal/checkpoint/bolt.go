package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

const defaultBoltBucket = "interviews"

// Bolt keeps snapshots in a single bbolt file. Only one process may open the
// file at a time.
type Bolt struct {
	db     *bolt.DB
	bucket []byte
}

// NewBolt opens or creates the database file at cfg.Path.
func NewBolt(cfg BoltConfig, logger *zap.Logger) (*Bolt, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("store.bolt.path is required")
	}

	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		bucket = defaultBoltBucket
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create bolt directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt file %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bolt bucket: %w", err)
	}

	logger.Info("using bolt checkpoint store", zap.String("path", path), zap.String("bucket", bucket))

	return &Bolt{db: db, bucket: []byte(bucket)}, nil
}

func (b *Bolt) Put(_ context.Context, key string, blob []byte) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(b.bucket).Put([]byte(key), blob)
	})
	if err != nil {
		return fmt.Errorf("bolt put %s: %w", key, err)
	}
	return nil
}

func (b *Bolt) Get(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(b.bucket).Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		// v is only valid inside the transaction.
		out = append([]byte(nil), v...)
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("bolt get %s: %w", key, err)
	}
	return out, nil
}

// Ping checks that the file is still open and the bucket is readable.
func (b *Bolt) Ping(context.Context) error {
	return b.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(b.bucket) == nil {
			return fmt.Errorf("bolt bucket %s is missing", b.bucket)
		}
		return nil
	})
}

func (b *Bolt) Close() error {
	return b.db.Close()
}
