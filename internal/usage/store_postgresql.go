package usage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQLStore implements EventStore for PostgreSQL databases.
type PostgreSQLStore struct {
	pool          *pgxpool.Pool
	retentionDays int
	stopCleanup   chan struct{}
	closeOnce     sync.Once
}

// NewPostgreSQLStore creates a new PostgreSQL usage event store.
// It creates the usage_events table if it doesn't exist and starts
// a background cleanup goroutine if retention is configured.
func NewPostgreSQLStore(pool *pgxpool.Pool, retentionDays int) (*PostgreSQLStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}

	ctx := context.Background()

	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS usage_events (
			id UUID PRIMARY KEY,
			request_id TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL,
			model TEXT NOT NULL,
			account_id TEXT NOT NULL,
			credential_id TEXT NOT NULL DEFAULT '',
			prompt_tokens INTEGER NOT NULL DEFAULT 0,
			completion_tokens INTEGER NOT NULL DEFAULT 0,
			total_tokens INTEGER NOT NULL DEFAULT 0,
			prompt_cost_cents DOUBLE PRECISION NOT NULL DEFAULT 0,
			completion_cost_cents DOUBLE PRECISION NOT NULL DEFAULT 0,
			total_cost_cents DOUBLE PRECISION NOT NULL DEFAULT 0,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			succeeded BOOLEAN NOT NULL DEFAULT TRUE,
			error_text TEXT NOT NULL DEFAULT '',
			raw_data JSONB
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create usage_events table: %w", err)
	}

	// Create indexes for common queries
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_usage_events_timestamp ON usage_events(timestamp)",
		"CREATE INDEX IF NOT EXISTS idx_usage_events_request_id ON usage_events(request_id)",
		"CREATE INDEX IF NOT EXISTS idx_usage_events_account_id ON usage_events(account_id)",
		"CREATE INDEX IF NOT EXISTS idx_usage_events_model ON usage_events(model)",
		"CREATE INDEX IF NOT EXISTS idx_usage_events_raw_data_gin ON usage_events USING GIN (raw_data)",
	}
	for _, idx := range indexes {
		if _, err := pool.Exec(ctx, idx); err != nil {
			slog.Warn("failed to create index", "error", err)
		}
	}

	store := &PostgreSQLStore{
		pool:          pool,
		retentionDays: retentionDays,
		stopCleanup:   make(chan struct{}),
	}

	// Start background cleanup if retention is configured
	if retentionDays > 0 {
		go RunCleanupLoop(store.stopCleanup, CleanupInterval, store.cleanup)
	}

	return store, nil
}

// WriteBatch writes multiple usage events to PostgreSQL using batch insert.
func (s *PostgreSQLStore) WriteBatch(ctx context.Context, events []*UsageEvent) error {
	if len(events) == 0 {
		return nil
	}

	// For larger batches, use a transaction to ensure atomicity
	// For smaller batches, use individual inserts without transaction overhead
	if len(events) < 10 {
		return s.writeBatchSmall(ctx, events)
	}

	return s.writeBatchLarge(ctx, events)
}

const insertEventSQL = `
	INSERT INTO usage_events (id, request_id, endpoint, timestamp, model,
		account_id, credential_id, prompt_tokens, completion_tokens, total_tokens,
		prompt_cost_cents, completion_cost_cents, total_cost_cents,
		duration_ms, succeeded, error_text, raw_data)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	ON CONFLICT (id) DO NOTHING
`

func eventInsertArgs(e *UsageEvent) []any {
	rawDataJSON := marshalRawData(e.RawData, e.ID)
	return []any{
		e.ID, e.RequestID, e.Endpoint, e.Timestamp, e.Model,
		e.AccountID, e.CredentialID, e.PromptTokens, e.CompletionTokens, e.TotalTokens,
		e.PromptCostCents, e.CompletionCostCents, e.TotalCostCents,
		e.DurationMs, e.Succeeded, e.ErrorText, rawDataJSON,
	}
}

// writeBatchSmall uses INSERT for small batches
func (s *PostgreSQLStore) writeBatchSmall(ctx context.Context, events []*UsageEvent) error {
	var errs []error

	for _, e := range events {
		if _, err := s.pool.Exec(ctx, insertEventSQL, eventInsertArgs(e)...); err != nil {
			slog.Warn("failed to insert usage event", "error", err, "id", e.ID)
			errs = append(errs, fmt.Errorf("insert %s: %w", e.ID, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("failed to insert %d of %d usage events: %w", len(errs), len(events), errors.Join(errs...))
	}
	return nil
}

// writeBatchLarge uses a transaction for larger batches
func (s *PostgreSQLStore) writeBatchLarge(ctx context.Context, events []*UsageEvent) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var errs []error

	for _, e := range events {
		if _, err := tx.Exec(ctx, insertEventSQL, eventInsertArgs(e)...); err != nil {
			slog.Warn("failed to insert usage event in batch", "error", err, "id", e.ID)
			errs = append(errs, fmt.Errorf("insert %s: %w", e.ID, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("failed to insert %d of %d usage events: %w", len(errs), len(events), errors.Join(errs...))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Flush is a no-op for PostgreSQL as writes are synchronous.
func (s *PostgreSQLStore) Flush(_ context.Context) error {
	return nil
}

// Close stops the cleanup goroutine.
// Note: We don't close the pool here as it's managed by the storage layer.
// Safe to call multiple times.
func (s *PostgreSQLStore) Close() error {
	if s.retentionDays > 0 && s.stopCleanup != nil {
		s.closeOnce.Do(func() {
			close(s.stopCleanup)
		})
	}
	return nil
}

// cleanup deletes usage events older than the retention period.
func (s *PostgreSQLStore) cleanup() {
	if s.retentionDays <= 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)

	result, err := s.pool.Exec(ctx, "DELETE FROM usage_events WHERE timestamp < $1", cutoff)
	if err != nil {
		slog.Error("failed to cleanup old usage events", "error", err)
		return
	}

	if result.RowsAffected() > 0 {
		slog.Info("cleaned up old usage events", "deleted", result.RowsAffected())
	}
}
