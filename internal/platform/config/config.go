// Package config loads application configuration from environment variables.
// All variables use the EF_ prefix. A .env file, when present, is read first;
// variables already set in the environment win.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Config holds all application configuration.
type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	Cache          CacheConfig
	Storage        StorageConfig
	Report         ReportConfig
	Log            LogConfig
	CurriculumPath string
	RosterPath     string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int
	Host string
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string
	MaxConns int
	MinConns int
}

// CacheConfig holds Dragonfly/Redis connection settings.
type CacheConfig struct {
	URL string
	// Prefix namespaces every key written by this service.
	Prefix string
}

// StorageConfig selects where the progress store is persisted.
type StorageConfig struct {
	Driver     string // memory, sqlite, postgres or redis
	SQLitePath string
	Key        string
	Reconcile  string // merge or reset
	// PostgresEvents also writes progress events to the database when a
	// database URL is configured.
	PostgresEvents bool
}

// ReportConfig holds class report settings.
type ReportConfig struct {
	ExportDir   string
	ExportCron  string // empty disables scheduled export
	Concurrency int
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables with EF_ prefix.
func Load() (*Config, error) {
	if err := loadDotEnv(envStr("EF_ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("EF_SERVER_PORT", 8080),
			Host: envStr("EF_SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			URL:      envStr("EF_DATABASE_URL", ""),
			MaxConns: envInt("EF_DATABASE_MAX_CONNS", 10),
			MinConns: envInt("EF_DATABASE_MIN_CONNS", 1),
		},
		Cache: CacheConfig{
			URL:    envStr("EF_CACHE_URL", ""),
			Prefix: envStr("EF_CACHE_PREFIX", "ef:"),
		},
		Storage: StorageConfig{
			Driver:         envStr("EF_STORAGE_DRIVER", DriverSQLite),
			SQLitePath:     envStr("EF_STORAGE_SQLITE_PATH", "./data/progress.db"),
			Key:            envStr("EF_STORAGE_KEY", "englishfamily.progress"),
			Reconcile:      envStr("EF_STORAGE_RECONCILE", "merge"),
			PostgresEvents: envBool("EF_STORAGE_POSTGRES_EVENTS", false),
		},
		Report: ReportConfig{
			ExportDir:   envStr("EF_REPORT_EXPORT_DIR", ""),
			ExportCron:  envStr("EF_REPORT_EXPORT_CRON", ""),
			Concurrency: envInt("EF_REPORT_CONCURRENCY", 8),
		},
		Log: LogConfig{
			Level:  envStr("EF_LOG_LEVEL", "info"),
			Format: envStr("EF_LOG_FORMAT", "json"),
		},
		CurriculumPath: envStr("EF_CURRICULUM_PATH", "./content/units"),
		RosterPath:     envStr("EF_ROSTER_PATH", "./content/roster.yaml"),
	}

	return cfg, nil
}

// Validate checks that required configuration is present and consistent.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("EF_SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("EF_STORAGE_SQLITE_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("EF_DATABASE_URL is required for the postgres driver")
		}
	case DriverRedis:
		if c.Cache.URL == "" {
			return fmt.Errorf("EF_CACHE_URL is required for the redis driver")
		}
	default:
		return fmt.Errorf("EF_STORAGE_DRIVER must be one of memory, sqlite, postgres, redis, got %q", c.Storage.Driver)
	}

	if c.Storage.Key == "" {
		return fmt.Errorf("EF_STORAGE_KEY must not be empty")
	}
	if c.Storage.Reconcile != "merge" && c.Storage.Reconcile != "reset" {
		return fmt.Errorf("EF_STORAGE_RECONCILE must be 'merge' or 'reset', got %q", c.Storage.Reconcile)
	}
	if c.Storage.PostgresEvents && c.Database.URL == "" {
		return fmt.Errorf("EF_STORAGE_POSTGRES_EVENTS requires EF_DATABASE_URL")
	}

	if c.Report.ExportCron != "" && c.Report.ExportDir == "" {
		return fmt.Errorf("EF_REPORT_EXPORT_DIR is required when EF_REPORT_EXPORT_CRON is set")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("EF_LOG_LEVEL must be debug, info, warn or error, got %q", c.Log.Level)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("EF_LOG_FORMAT must be 'json' or 'text', got %q", c.Log.Format)
	}

	if c.CurriculumPath == "" {
		return fmt.Errorf("EF_CURRICULUM_PATH is required")
	}
	if c.RosterPath == "" {
		return fmt.Errorf("EF_ROSTER_PATH is required")
	}

	return nil
}

// NeedsDatabase reports whether a PostgreSQL connection is required.
func (c *Config) NeedsDatabase() bool {
	return c.Storage.Driver == DriverPostgres || c.Storage.PostgresEvents
}

func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return strings.EqualFold(v, "true") || v == "1"
	}
	return fallback
}
