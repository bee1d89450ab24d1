package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultPostgresMaxConns = 10

// postgresStorage implements Storage for PostgreSQL
type postgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgreSQL creates a pgx connection pool from the configured URL and
// verifies it with a ping. The pool is shared by the event store and the
// summary reader, so MaxConns bounds the whole service's connection use.
func NewPostgreSQL(ctx context.Context, cfg PostgreSQLConfig) (Storage, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("PostgreSQL URL is required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PostgreSQL URL: %w", err)
	}

	poolCfg.MaxConns = defaultPostgresMaxConns
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create PostgreSQL connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	return &postgresStorage{pool: pool}, nil
}

func (s *postgresStorage) Type() string {
	return TypePostgreSQL
}

func (s *postgresStorage) SQLiteDB() *sql.DB {
	return nil
}

func (s *postgresStorage) PostgreSQLPool() interface{} {
	return s.pool
}

func (s *postgresStorage) MongoDatabase() interface{} {
	return nil
}

func (s *postgresStorage) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
