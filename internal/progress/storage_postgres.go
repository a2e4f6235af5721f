package progress

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStorage is a PostgreSQL-backed Storage implementation.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage creates the progress tables if needed and returns a medium
// backed by pool.
func NewPostgresStorage(ctx context.Context, pool *pgxpool.Pool) (*PostgresStorage, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	if err := MigratePostgres(ctx, pool); err != nil {
		return nil, err
	}
	return &PostgresStorage{pool: pool}, nil
}

// MigratePostgres creates the blob and event tables.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS progress_blobs (
		   key        TEXT PRIMARY KEY,
		   data       BYTEA NOT NULL,
		   updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		 )`,
		`CREATE TABLE IF NOT EXISTS progress_events (
		   id         BIGSERIAL PRIMARY KEY,
		   student_id TEXT,
		   unit_id    TEXT,
		   event_type TEXT NOT NULL,
		   data       JSONB NOT NULL DEFAULT '{}'::jsonb,
		   created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		 )`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate progress tables: %w", err)
		}
	}
	return nil
}

func (s *PostgresStorage) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM progress_blobs WHERE key = $1`,
		key,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get blob: %w", err)
	}
	return data, nil
}

func (s *PostgresStorage) Set(ctx context.Context, key string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO progress_blobs (key, data, updated_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`,
		key,
		data,
	)
	if err != nil {
		return fmt.Errorf("set blob: %w", err)
	}
	return nil
}

// HealthCheck verifies the database connection is alive.
func (s *PostgresStorage) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
