package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mcoot/worldrelay/internal/model"
	"github.com/mcoot/worldrelay/internal/storage"
	"github.com/mcoot/worldrelay/internal/storage/migrations"
)

// Storage keeps blobs in a single-file sqlite database
type Storage struct {
	db     *sql.DB
	logger *slog.Logger
}

// Ensure Storage implements the interface
var _ storage.Backend = (*Storage)(nil)

// New opens (creating if needed) the database at path and migrates it
func New(ctx context.Context, path string, logger *slog.Logger) (*Storage, error) {
	logger = logger.With(slog.String("component", "sqlite"), slog.String("path", path))

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if err := migrations.SQLite(db, logger); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Storage{db: db, logger: logger}, nil
}

func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM jsondata WHERE id = ?`, key).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrBlobNotFound
		}
		return nil, fmt.Errorf("select %s: %w", key, err)
	}
	return data, nil
}

func (s *Storage) Set(ctx context.Context, key string, blob []byte) error {
	q := `
	INSERT INTO jsondata (id, data, updated_at) VALUES (?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at;
	`
	if _, err := s.db.ExecContext(ctx, q, key, blob, time.Now().Unix()); err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}
