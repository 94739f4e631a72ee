package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mcoot/worldrelay/internal/dependencies/clock"
	"github.com/mcoot/worldrelay/internal/model"
	"github.com/mcoot/worldrelay/internal/storage"
)

// Config holds configuration for the persistence scheduler
type Config struct {
	// SnapshotInterval is how often a full snapshot is written while sessions are active
	SnapshotInterval time.Duration
	// WriteTimeout bounds a single backend write
	WriteTimeout time.Duration
}

// DefaultConfig returns default scheduler configuration
func DefaultConfig() Config {
	return Config{
		SnapshotInterval: 60 * time.Second,
		WriteTimeout:     10 * time.Second,
	}
}

// Table is an in-memory structure persisted as one blob
type Table struct {
	Key       string
	Marshal   func() ([]byte, error)
	Unmarshal func([]byte) error
}

// Scheduler serializes in-memory mutations of persisted tables against
// snapshot encoding, and writes dirty tables to the backend in the background.
//
// Writes are idempotent upserts keyed by table, so a table marked dirty
// several times before the writer runs is written once. A failed write
// leaves the table dirty for the next wake-up.
type Scheduler struct {
	// gate guards every persisted table while it is mutated or encoded
	gate sync.Mutex

	backend storage.Backend
	clock   clock.Clock
	cfg     Config
	logger  *slog.Logger
	tables  []Table

	// writeMu keeps Run and Flush from writing at the same time
	writeMu sync.Mutex

	mu        sync.Mutex
	dirty     map[string]bool
	ticker    clock.Ticker
	stopTick  chan struct{}
	lastSaved time.Time
	failures  int

	wake chan struct{}
}

// New creates a Scheduler for the given tables
func New(backend storage.Backend, clk clock.Clock, cfg Config, logger *slog.Logger, tables ...Table) *Scheduler {
	if cfg.SnapshotInterval <= 0 {
		cfg.SnapshotInterval = DefaultConfig().SnapshotInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultConfig().WriteTimeout
	}
	return &Scheduler{
		backend: backend,
		clock:   clk,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "persistence")),
		tables:  tables,
		dirty:   make(map[string]bool),
		wake:    make(chan struct{}, 1),
	}
}

// WithGate runs fn while holding the persistence gate.
// Every mutation of a persisted table goes through here.
func (s *Scheduler) WithGate(fn func()) {
	s.gate.Lock()
	defer s.gate.Unlock()
	fn()
}

// Schedule marks tables dirty and wakes the writer. It never blocks.
func (s *Scheduler) Schedule(keys ...string) {
	s.mu.Lock()
	for _, key := range keys {
		s.dirty[key] = true
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// ScheduleAll marks every table dirty
func (s *Scheduler) ScheduleAll() {
	keys := make([]string, 0, len(s.tables))
	for _, t := range s.tables {
		keys = append(keys, t.Key)
	}
	s.Schedule(keys...)
}

// Run writes dirty tables whenever the scheduler is woken, until ctx is done
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("persistence writer started")
	defer s.logger.Info("persistence writer stopped")

	for {
		select {
		case <-ctx.Done():
			s.Disarm()
			return
		case <-s.wake:
			_ = s.writeDirty(ctx)
		}
	}
}

// Flush synchronously writes every table. Used at shutdown.
func (s *Scheduler) Flush(ctx context.Context) error {
	s.mu.Lock()
	for _, t := range s.tables {
		s.dirty[t.Key] = true
	}
	s.mu.Unlock()
	return s.writeDirty(ctx)
}

// Arm starts the periodic snapshot timer if it is not already running
func (s *Scheduler) Arm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticker != nil {
		return
	}

	ticker := s.clock.NewTicker(s.cfg.SnapshotInterval)
	stop := make(chan struct{})
	s.ticker = ticker
	s.stopTick = stop

	go func() {
		for {
			select {
			case <-stop:
				return
			case <-ticker.C():
				s.logger.Debug("periodic snapshot")
				s.ScheduleAll()
			}
		}
	}()
	s.logger.Debug("snapshot timer armed", slog.Duration("interval", s.cfg.SnapshotInterval))
}

// Disarm stops the periodic snapshot timer
func (s *Scheduler) Disarm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stopTick)
	s.ticker = nil
	s.stopTick = nil
	s.logger.Debug("snapshot timer disarmed")
}

// Armed reports whether the periodic snapshot timer is running
func (s *Scheduler) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticker != nil
}

// LastSaved returns when a table was last written successfully
func (s *Scheduler) LastSaved() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSaved
}

// Failures returns the number of failed writes since startup
func (s *Scheduler) Failures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}

// Load reads every table from the backend. Missing blobs leave the table empty.
// Tables that fail to load are reported together and the rest still load.
func (s *Scheduler) Load(ctx context.Context) error {
	var errs []error
	for _, t := range s.tables {
		blob, err := s.backend.Get(ctx, t.Key)
		if err != nil {
			if errors.Is(err, model.ErrBlobNotFound) {
				s.logger.Info("no saved table", slog.String("table", t.Key))
				continue
			}
			errs = append(errs, fmt.Errorf("load %s: %w", t.Key, err))
			continue
		}

		var decodeErr error
		s.WithGate(func() {
			decodeErr = t.Unmarshal(blob)
		})
		if decodeErr != nil {
			errs = append(errs, fmt.Errorf("load %s: %w", t.Key, decodeErr))
		}
	}
	return errors.Join(errs...)
}

func (s *Scheduler) writeDirty(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	var pending []Table
	for _, t := range s.tables {
		if s.dirty[t.Key] {
			pending = append(pending, t)
			delete(s.dirty, t.Key)
		}
	}
	s.mu.Unlock()

	var errs []error
	for _, t := range pending {
		if err := s.write(ctx, t); err != nil {
			s.logger.Error("failed to save table",
				slog.String("table", t.Key),
				slog.Any("error", err))
			s.mu.Lock()
			s.dirty[t.Key] = true
			s.failures++
			s.mu.Unlock()
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Scheduler) write(ctx context.Context, t Table) error {
	var (
		blob []byte
		err  error
	)
	s.WithGate(func() {
		blob, err = t.Marshal()
	})
	if err != nil {
		return fmt.Errorf("encode %s: %w", t.Key, err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()
	if err := s.backend.Set(writeCtx, t.Key, blob); err != nil {
		return fmt.Errorf("write %s: %w", t.Key, err)
	}

	now := s.clock.Now()
	s.mu.Lock()
	s.lastSaved = now
	s.mu.Unlock()
	s.logger.Debug("table saved", slog.String("table", t.Key), slog.Int("bytes", len(blob)))
	return nil
}
