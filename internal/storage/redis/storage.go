package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/worldrelay/internal/model"
	"github.com/mcoot/worldrelay/internal/storage"
)

// Storage is a Redis-backed blob backend
type Storage struct {
	client *redis.Client
	cfg    Config
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	timeout := cfg.DialTimeout
	if timeout == 0 {
		timeout = DefaultConfig().DialTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Storage{
		client: client,
		cfg:    cfg,
	}, nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	return &Storage{
		client: client,
		cfg:    cfg,
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ensure Storage implements the interface
var _ storage.Backend = (*Storage)(nil)

func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, blobKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrBlobNotFound
		}
		return nil, err
	}
	return data, nil
}

// Set stores the blob and its write time in one pipeline
func (s *Storage) Set(ctx context.Context, key string, blob []byte) error {
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, blobKey(key), blob, 0)
	pipe.Set(ctx, savedAtKey(key), time.Now().UTC().Format(time.RFC3339Nano), 0)
	_, err := pipe.Exec(ctx)
	return err
}

// SavedAt returns when the blob was last written
func (s *Storage) SavedAt(ctx context.Context, key string) (time.Time, error) {
	raw, err := s.client.Get(ctx, savedAtKey(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, model.ErrBlobNotFound
		}
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, raw)
}
