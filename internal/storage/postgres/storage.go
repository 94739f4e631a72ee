package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcoot/worldrelay/internal/model"
	"github.com/mcoot/worldrelay/internal/storage"
	"github.com/mcoot/worldrelay/internal/storage/migrations"
)

const (
	selectBlob = `SELECT data FROM jsondata WHERE id = $1`
	upsertBlob = `
		INSERT INTO jsondata (id, data, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`
)

// Storage keeps blobs as rows of the jsondata table
type Storage struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Ensure Storage implements the interface
var _ storage.Backend = (*Storage)(nil)

// New migrates the schema and opens a connection pool
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Storage, error) {
	logger = logger.With(slog.String("component", "postgres"))

	if !cfg.SkipMigrations {
		if err := migrations.Postgres(cfg.URL, logger); err != nil {
			return nil, err
		}
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	timeout := cfg.ConnectTimeout
	if timeout == 0 {
		timeout = DefaultConfig().ConnectTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	var database, user string
	if err := pool.QueryRow(pingCtx, "SELECT current_database(), current_user").Scan(&database, &user); err == nil {
		logger.Info("connected to postgres", slog.String("database", database), slog.String("user", user))
	}

	return &Storage{pool: pool, logger: logger}, nil
}

// NewWithPool wraps an existing pool. The schema must already exist.
func NewWithPool(pool *pgxpool.Pool, logger *slog.Logger) *Storage {
	return &Storage{pool: pool, logger: logger.With(slog.String("component", "postgres"))}
}

func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	if err := s.pool.QueryRow(ctx, selectBlob, key).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrBlobNotFound
		}
		return nil, fmt.Errorf("select %s: %w", key, err)
	}
	return data, nil
}

func (s *Storage) Set(ctx context.Context, key string, blob []byte) error {
	if _, err := s.pool.Exec(ctx, upsertBlob, key, blob); err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}

func (s *Storage) Close() error {
	s.pool.Close()
	return nil
}
