package usage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// SQLite has a default limit of 999 bindable parameters per query (SQLITE_MAX_VARIABLE_NUMBER).
// With 17 columns per usage event, we can safely insert up to 58 events per batch (58 * 17 = 986).
const (
	maxSQLiteParams      = 999
	columnsPerUsageEvent = 17
	maxEventsPerBatch    = maxSQLiteParams / columnsPerUsageEvent // 58 events
)

// SQLiteStore implements EventStore for SQLite databases.
type SQLiteStore struct {
	db            *sql.DB
	retentionDays int
	stopCleanup   chan struct{}
	closeOnce     sync.Once
}

// NewSQLiteStore creates a new SQLite usage event store.
// It creates the usage_events table if it doesn't exist and starts
// a background cleanup goroutine if retention is configured.
func NewSQLiteStore(db *sql.DB, retentionDays int) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS usage_events (
			id TEXT PRIMARY KEY,
			request_id TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			timestamp DATETIME NOT NULL,
			model TEXT NOT NULL,
			account_id TEXT NOT NULL,
			credential_id TEXT NOT NULL DEFAULT '',
			prompt_tokens INTEGER NOT NULL DEFAULT 0,
			completion_tokens INTEGER NOT NULL DEFAULT 0,
			total_tokens INTEGER NOT NULL DEFAULT 0,
			prompt_cost_cents REAL NOT NULL DEFAULT 0,
			completion_cost_cents REAL NOT NULL DEFAULT 0,
			total_cost_cents REAL NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			succeeded INTEGER NOT NULL DEFAULT 1,
			error_text TEXT NOT NULL DEFAULT '',
			raw_data JSON
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
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			slog.Warn("failed to create index", "error", err)
		}
	}

	store := &SQLiteStore{
		db:            db,
		retentionDays: retentionDays,
		stopCleanup:   make(chan struct{}),
	}

	// Start background cleanup if retention is configured
	if retentionDays > 0 {
		go RunCleanupLoop(store.stopCleanup, CleanupInterval, store.cleanup)
	}

	return store, nil
}

// WriteBatch writes multiple usage events to SQLite using batch insert.
// Events are chunked to stay within SQLite's parameter limit.
func (s *SQLiteStore) WriteBatch(ctx context.Context, events []*UsageEvent) error {
	if len(events) == 0 {
		return nil
	}

	for i := 0; i < len(events); i += maxEventsPerBatch {
		end := i + maxEventsPerBatch
		if end > len(events) {
			end = len(events)
		}
		chunk := events[i:end]

		placeholders := make([]string, len(chunk))
		values := make([]interface{}, 0, len(chunk)*columnsPerUsageEvent)

		for j, e := range chunk {
			placeholders[j] = "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"

			rawDataJSON := marshalRawData(e.RawData, e.ID)

			// Handle NULL for raw_data field
			var rawDataValue interface{}
			if rawDataJSON != nil {
				rawDataValue = string(rawDataJSON)
			}

			values = append(values,
				e.ID,
				e.RequestID,
				e.Endpoint,
				e.Timestamp.UTC().Format(time.RFC3339Nano),
				e.Model,
				e.AccountID,
				e.CredentialID,
				e.PromptTokens,
				e.CompletionTokens,
				e.TotalTokens,
				e.PromptCostCents,
				e.CompletionCostCents,
				e.TotalCostCents,
				e.DurationMs,
				boolToInt(e.Succeeded),
				e.ErrorText,
				rawDataValue,
			)
		}

		query := `INSERT OR IGNORE INTO usage_events (id, request_id, endpoint, timestamp, model,
			account_id, credential_id, prompt_tokens, completion_tokens, total_tokens,
			prompt_cost_cents, completion_cost_cents, total_cost_cents,
			duration_ms, succeeded, error_text, raw_data) VALUES ` +
			strings.Join(placeholders, ",")

		if _, err := s.db.ExecContext(ctx, query, values...); err != nil {
			return fmt.Errorf("failed to insert usage event batch %d: %w", i/maxEventsPerBatch, err)
		}
	}

	return nil
}

// Flush is a no-op for SQLite as writes are synchronous.
func (s *SQLiteStore) Flush(_ context.Context) error {
	return nil
}

// Close stops the cleanup goroutine.
// Note: We don't close the DB here as it's managed by the storage layer.
// Safe to call multiple times.
func (s *SQLiteStore) Close() error {
	if s.retentionDays > 0 && s.stopCleanup != nil {
		s.closeOnce.Do(func() {
			close(s.stopCleanup)
		})
	}
	return nil
}

// cleanup deletes usage events older than the retention period.
func (s *SQLiteStore) cleanup() {
	if s.retentionDays <= 0 {
		return
	}

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays).UTC().Format(time.RFC3339Nano)

	result, err := s.db.Exec("DELETE FROM usage_events WHERE timestamp < ?", cutoff)
	if err != nil {
		slog.Error("failed to cleanup old usage events", "error", err)
		return
	}

	if rowsAffected, err := result.RowsAffected(); err == nil && rowsAffected > 0 {
		slog.Info("cleaned up old usage events", "deleted", rowsAffected)
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// marshalRawData marshals raw_data to JSON for SQL storage.
// Returns nil if data is nil or empty, or "{}" if marshaling fails.
func marshalRawData(data map[string]any, eventID string) []byte {
	if len(data) == 0 {
		return nil
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		slog.Warn("failed to marshal usage raw_data", "error", err, "id", eventID)
		return []byte("{}")
	}
	return dataJSON
}
