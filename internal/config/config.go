package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backend names
const (
	StorageMemory   = "memory"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
	StorageFile     = "file"
)

// Config is the relay server configuration
type Config struct {
	Server struct {
		Host              string        `yaml:"host"`
		Port              int           `yaml:"port"`
		ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
		ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Storage struct {
		Type     string `yaml:"type"`
		Compress bool   `yaml:"compress"`

		Redis struct {
			URL      string `yaml:"url"`
			PoolSize int    `yaml:"pool_size"`
		} `yaml:"redis"`

		Postgres struct {
			URL      string `yaml:"url"`
			MaxConns int32  `yaml:"max_conns"`
		} `yaml:"postgres"`

		SQLite struct {
			Path string `yaml:"path"`
		} `yaml:"sqlite"`

		File struct {
			Dir string `yaml:"dir"`
		} `yaml:"file"`
	} `yaml:"storage"`

	Persistence struct {
		SnapshotInterval time.Duration `yaml:"snapshot_interval"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
	} `yaml:"persistence"`

	Auth struct {
		BcryptCost int `yaml:"bcrypt_cost"`
	} `yaml:"auth"`

	Coordinator struct {
		EventBuffer        int           `yaml:"event_buffer"`
		PendingJoinTimeout time.Duration `yaml:"pending_join_timeout"`
	} `yaml:"coordinator"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	var c Config
	c.Server.Port = 3000
	c.Server.ReadHeaderTimeout = 10 * time.Second
	c.Server.ShutdownTimeout = 30 * time.Second
	c.Storage.Type = StorageMemory
	c.Storage.Redis.URL = "redis://localhost:6379"
	c.Storage.Redis.PoolSize = 10
	c.Storage.Postgres.URL = "postgres://localhost:5432/worldrelay?sslmode=disable"
	c.Storage.Postgres.MaxConns = 4
	c.Storage.SQLite.Path = "data/worldrelay.db"
	c.Storage.File.Dir = "data/snapshots"
	c.Persistence.SnapshotInterval = 60 * time.Second
	c.Persistence.WriteTimeout = 10 * time.Second
	c.Auth.BcryptCost = 8
	c.Coordinator.EventBuffer = 256
	c.Log.Level = "info"
	c.Log.Format = "json"
	return &c
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	c := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := c.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("RELAY_HOST", &c.Server.Host)
	num("PORT", &c.Server.Port)
	str("STORAGE_TYPE", &c.Storage.Type)
	flag("STORAGE_COMPRESS", &c.Storage.Compress)
	str("REDIS_URL", &c.Storage.Redis.URL)
	str("DATABASE_URL", &c.Storage.Postgres.URL)
	str("SQLITE_PATH", &c.Storage.SQLite.Path)
	str("SNAPSHOT_PATH", &c.Storage.File.Dir)
	dur("SNAPSHOT_INTERVAL", &c.Persistence.SnapshotInterval)
	num("BCRYPT_COST", &c.Auth.BcryptCost)
	dur("PENDING_JOIN_TIMEOUT", &c.Coordinator.PendingJoinTimeout)
	str("LOG_LEVEL", &c.Log.Level)

	return errors.Join(errs...)
}

// Validate reports every invalid setting
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Storage.Type {
	case StorageMemory:
	case StorageRedis:
		if c.Storage.Redis.URL == "" {
			errs = append(errs, errors.New("storage.redis.url is required for redis storage"))
		}
	case StoragePostgres:
		if c.Storage.Postgres.URL == "" {
			errs = append(errs, errors.New("storage.postgres.url is required for postgres storage"))
		}
	case StorageSQLite:
		if c.Storage.SQLite.Path == "" {
			errs = append(errs, errors.New("storage.sqlite.path is required for sqlite storage"))
		}
	case StorageFile:
		if c.Storage.File.Dir == "" {
			errs = append(errs, errors.New("storage.file.dir is required for file storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage type %q", c.Storage.Type))
	}
	if c.Persistence.SnapshotInterval <= 0 {
		errs = append(errs, errors.New("persistence.snapshot_interval must be positive"))
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("auth.bcrypt_cost %d must be between 4 and 31", c.Auth.BcryptCost))
	}
	if c.Coordinator.PendingJoinTimeout < 0 {
		errs = append(errs, errors.New("coordinator.pending_join_timeout must not be negative"))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// ParseLevel maps a level name onto a slog.Level
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// NewLogger builds the process logger from the log settings
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, _ := ParseLevel(c.Log.Level)
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
