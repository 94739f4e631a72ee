// Package migrations applies the embedded schema for the SQL blob backends.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed postgres/*.sql sqlite/*.sql
var migrationsFS embed.FS

// Postgres migrates the database at databaseURL to the latest schema
func Postgres(databaseURL string, logger *slog.Logger) error {
	source, err := iofs.New(migrationsFS, "postgres")
	if err != nil {
		return fmt.Errorf("open postgres migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, pgx5URL(databaseURL))
	if err != nil {
		return fmt.Errorf("create postgres migrator: %w", err)
	}
	return up(m, logger.With(slog.String("dialect", "postgres")))
}

// SQLite migrates an open sqlite database to the latest schema.
// The database handle is left open.
func SQLite(db *sql.DB, logger *slog.Logger) error {
	source, err := iofs.New(migrationsFS, "sqlite")
	if err != nil {
		return fmt.Errorf("open sqlite migrations: %w", err)
	}

	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("create sqlite migrator: %w", err)
	}
	// m.Close would close the shared *sql.DB through the driver
	return apply(m, logger.With(slog.String("dialect", "sqlite")))
}

func up(m *migrate.Migrate, logger *slog.Logger) error {
	defer func() {
		sourceErr, dbErr := m.Close()
		if sourceErr != nil || dbErr != nil {
			logger.Warn("closing migrator", slog.Any("source_error", sourceErr), slog.Any("db_error", dbErr))
		}
	}()
	return apply(m, logger)
}

func apply(m *migrate.Migrate, logger *slog.Logger) error {
	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read schema version: %w", err)
	}
	if dirty {
		logger.Warn("schema is dirty, forcing version", slog.Uint64("version", uint64(version)))
		if err := m.Force(int(version)); err != nil {
			return fmt.Errorf("force schema version: %w", err)
		}
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Debug("schema up to date", slog.Uint64("version", uint64(version)))
			return nil
		}
		return fmt.Errorf("apply migrations: %w", err)
	}

	newVersion, _, _ := m.Version()
	logger.Info("schema migrated", slog.Uint64("version", uint64(newVersion)))
	return nil
}

// pgx5URL rewrites a postgres:// URL to the scheme the pgx/v5 migrate driver registers
func pgx5URL(databaseURL string) string {
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if rest, ok := strings.CutPrefix(databaseURL, scheme); ok {
			return "pgx5://" + rest
		}
	}
	return databaseURL
}
