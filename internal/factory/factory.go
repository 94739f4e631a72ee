package factory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/mcoot/worldrelay/internal/config"
	"github.com/mcoot/worldrelay/internal/dependencies/clock"
	"github.com/mcoot/worldrelay/internal/dependencies/random"
	"github.com/mcoot/worldrelay/internal/services/auth"
	"github.com/mcoot/worldrelay/internal/services/coordinator"
	"github.com/mcoot/worldrelay/internal/services/persistence"
	"github.com/mcoot/worldrelay/internal/services/registry"
	"github.com/mcoot/worldrelay/internal/services/sessions"
	"github.com/mcoot/worldrelay/internal/storage"
	filestorage "github.com/mcoot/worldrelay/internal/storage/file"
	"github.com/mcoot/worldrelay/internal/storage/memory"
	pgstorage "github.com/mcoot/worldrelay/internal/storage/postgres"
	redisstorage "github.com/mcoot/worldrelay/internal/storage/redis"
	sqlitestorage "github.com/mcoot/worldrelay/internal/storage/sqlite"
	"github.com/mcoot/worldrelay/internal/transport/ws"
)

// App contains all wired application components
type App struct {
	// Storage
	Backend storage.Backend

	// External dependencies
	Clock  clock.Clock
	Random random.Random

	// Services
	AuthService *auth.Service
	Registry    *registry.Registry
	Sessions    *sessions.Table
	Persistence *persistence.Scheduler
	Coordinator *coordinator.Coordinator

	// Transport
	WebSocket *ws.Server

	logger  *slog.Logger
	cancel  context.CancelFunc
	running sync.WaitGroup
}

// Options tunes the wired services. Zero values fall back to each service's defaults.
type Options struct {
	Persistence persistence.Config
	Coordinator coordinator.Config
	WebSocket   ws.Config
}

// New creates a new application with all dependencies wired from configuration
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	// Use no-op logger if not provided
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg == nil {
		cfg = config.Default()
	}

	backend, err := NewBackend(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	opts := Options{
		Persistence: persistence.Config{
			SnapshotInterval: cfg.Persistence.SnapshotInterval,
			WriteTimeout:     cfg.Persistence.WriteTimeout,
		},
		Coordinator: coordinator.Config{
			EventBuffer:        cfg.Coordinator.EventBuffer,
			PendingJoinTimeout: cfg.Coordinator.PendingJoinTimeout,
		},
		WebSocket: ws.DefaultConfig(),
	}
	hasher := auth.NewBcryptHasher(cfg.Auth.BcryptCost)

	return newWithDependencies(backend, clock.New(), random.New(), hasher, opts, logger), nil
}

// NewBackend opens the configured storage backend
func NewBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Backend, error) {
	var (
		backend storage.Backend
		err     error
	)

	switch cfg.Storage.Type {
	case config.StorageMemory, "":
		backend = memory.New()
	case config.StorageRedis:
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = cfg.Storage.Redis.URL
		if cfg.Storage.Redis.PoolSize > 0 {
			redisCfg.PoolSize = cfg.Storage.Redis.PoolSize
		}
		backend, err = redisstorage.New(redisCfg)
	case config.StoragePostgres:
		pgCfg := pgstorage.DefaultConfig()
		pgCfg.URL = cfg.Storage.Postgres.URL
		if cfg.Storage.Postgres.MaxConns > 0 {
			pgCfg.MaxConns = cfg.Storage.Postgres.MaxConns
		}
		backend, err = pgstorage.New(ctx, pgCfg, logger)
	case config.StorageSQLite:
		backend, err = sqlitestorage.New(ctx, cfg.Storage.SQLite.Path, logger)
	case config.StorageFile:
		backend, err = filestorage.New(cfg.Storage.File.Dir)
	default:
		return nil, fmt.Errorf("invalid storage type %q", cfg.Storage.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Type, err)
	}

	if cfg.Storage.Compress {
		compressed, err := storage.NewCompressed(backend)
		if err != nil {
			_ = backend.Close()
			return nil, err
		}
		backend = compressed
	}

	logger.Info("storage opened",
		slog.String("type", cfg.Storage.Type),
		slog.Bool("compress", cfg.Storage.Compress))
	return backend, nil
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(
	backend storage.Backend,
	clk clock.Clock,
	rnd random.Random,
	hasher auth.Hasher,
	opts Options,
	logger *slog.Logger,
) *App {
	authService := auth.New(hasher, logger)
	reg := registry.New(clk, rnd, logger)
	table := sessions.New()
	scheduler := persistence.New(backend, clk, opts.Persistence, logger,
		coordinator.PersistedTables(authService, reg)...)
	coord := coordinator.New(opts.Coordinator, authService, reg, table, scheduler, clk, logger)
	wsServer := ws.NewServer(coord, opts.WebSocket, logger)

	return &App{
		Backend:     backend,
		Clock:       clk,
		Random:      rnd,
		AuthService: authService,
		Registry:    reg,
		Sessions:    table,
		Persistence: scheduler,
		Coordinator: coord,
		WebSocket:   wsServer,
		logger:      logger,
	}
}

// Start loads saved tables and starts the coordinator and persistence writer.
// A table that fails to load is logged and the relay starts without it.
func (a *App) Start(ctx context.Context) error {
	if a.cancel != nil {
		return errors.New("app already started")
	}

	if err := a.Persistence.Load(ctx); err != nil {
		a.logger.Error("failed to load saved state", slog.Any("error", err))
	}
	a.logger.Info("saved state loaded",
		slog.Int("identities", a.AuthService.Len()),
		slog.Int("worlds", a.Registry.Len()))

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel

	a.running.Add(2)
	go func() {
		defer a.running.Done()
		a.Coordinator.Run(runCtx)
	}()
	go func() {
		defer a.running.Done()
		a.Persistence.Run(runCtx)
	}()
	return nil
}

// Shutdown closes every connection, stops the background loops, writes a
// final snapshot and closes the backend
func (a *App) Shutdown(ctx context.Context) error {
	a.WebSocket.Close()

	if a.cancel != nil {
		a.cancel()
		a.running.Wait()
		a.cancel = nil
	}

	var errs []error
	if err := a.Persistence.Flush(ctx); err != nil {
		errs = append(errs, fmt.Errorf("final snapshot: %w", err))
	}
	if err := a.Backend.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close storage: %w", err))
	}
	return errors.Join(errs...)
}
