package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/Vladislav15-maker/English-family-app-sub000/internal/curriculum"
	"github.com/Vladislav15-maker/English-family-app-sub000/internal/grading"
	"github.com/Vladislav15-maker/English-family-app-sub000/internal/platform/cache"
	"github.com/Vladislav15-maker/English-family-app-sub000/internal/platform/config"
	"github.com/Vladislav15-maker/English-family-app-sub000/internal/platform/database"
	"github.com/Vladislav15-maker/English-family-app-sub000/internal/progress"
	"github.com/Vladislav15-maker/English-family-app-sub000/internal/report"
	"github.com/Vladislav15-maker/English-family-app-sub000/internal/roster"
	"github.com/Vladislav15-maker/English-family-app-sub000/internal/server"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(os.Stdout, cfg.Log))

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if cfg.Report.ExportCron != "" {
		exporter := report.NewExporter(a.reporter, cfg.Report.ExportDir)
		if err := exporter.Start(cfg.Report.ExportCron); err != nil {
			slog.Error("failed to schedule report export", "error", err)
			os.Exit(1)
		}
		defer exporter.Stop()
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      a.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr, "storage", cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// app is the wired service.
type app struct {
	handler  http.Handler
	reporter *report.Reporter
	closers  []func()
}

// Close releases storage connections in reverse order of opening.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	catalog, err := curriculum.NewLoader(cfg.CurriculumPath)
	if err != nil {
		return nil, fmt.Errorf("loading curriculum: %w", err)
	}
	students, err := roster.Load(cfg.RosterPath)
	if err != nil {
		return nil, fmt.Errorf("loading roster: %w", err)
	}
	slog.Info("content loaded", "units", len(catalog.Units()), "students", len(students.StudentIDs()))

	var db *database.DB
	if cfg.NeedsDatabase() {
		db, err = database.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		if err := progress.MigratePostgres(ctx, db.Pool); err != nil {
			return nil, err
		}
	}

	m, err := a.openStorage(ctx, cfg, db)
	if err != nil {
		return nil, err
	}

	hub := server.NewHub()
	var events progress.EventLogger = hub
	if cfg.Storage.PostgresEvents {
		events = progress.MultiEventLogger{hub, progress.NewPostgresEventLogger(db.Pool)}
	}

	store, err := progress.NewStore(progress.StoreConfig{
		Catalog:   catalog,
		Roster:    students,
		Storage:   m.storage,
		Events:    events,
		Key:       m.key,
		Reconcile: progress.ReconcileMode(cfg.Storage.Reconcile),
	})
	if err != nil {
		return nil, err
	}
	if err := store.Load(ctx); err != nil {
		return nil, err
	}

	reporter := report.New(report.Config{
		Progress:    store,
		Students:    students,
		Units:       catalog,
		Concurrency: cfg.Report.Concurrency,
	})

	a.reporter = reporter
	a.handler = server.New(server.Config{
		Progress: store,
		Catalog:  catalog,
		Grader:   grading.NewGrader(store),
		Reporter: reporter,
		Hub:      hub,
		Checks:   m.checks,
	})
	return a, nil
}

// medium is the opened progress storage and the key the store is kept under.
type medium struct {
	storage progress.Storage
	key     string
	checks  []server.HealthChecker
}

func (a *app) openStorage(ctx context.Context, cfg *config.Config, db *database.DB) (medium, error) {
	m := medium{key: cfg.Storage.Key}

	switch cfg.Storage.Driver {
	case config.DriverMemory:
		slog.Warn("using in-memory progress storage, progress is lost on restart")
		m.storage = progress.NewMemoryStorage()
		return m, nil

	case config.DriverSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
			return m, fmt.Errorf("creating sqlite dir: %w", err)
		}
		s, err := progress.OpenSQLite(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return m, err
		}
		a.closers = append(a.closers, func() { s.Close() })
		m.storage = s
		m.checks = []server.HealthChecker{s}
		return m, nil

	case config.DriverPostgres:
		s, err := progress.NewPostgresStorage(ctx, db.Pool)
		if err != nil {
			return m, err
		}
		m.storage = s
		m.checks = []server.HealthChecker{db}
		return m, nil

	case config.DriverRedis:
		c, err := cache.Open(ctx, cfg.Cache)
		if err != nil {
			return m, err
		}
		a.closers = append(a.closers, func() { c.Close() })
		s, err := progress.NewRedisStorage(c.Client)
		if err != nil {
			return m, err
		}
		m.storage = s
		m.key = c.Key(cfg.Storage.Key)
		m.checks = []server.HealthChecker{c}
		return m, nil
	}
	return m, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}
