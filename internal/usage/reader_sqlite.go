package usage

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLiteReader implements Reader for SQLite databases.
type SQLiteReader struct {
	db *sql.DB
}

// NewSQLiteReader creates a new SQLite usage reader.
func NewSQLiteReader(db *sql.DB) (*SQLiteReader, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &SQLiteReader{db: db}, nil
}

func (r *SQLiteReader) GetSummary(ctx context.Context, q SummaryQuery) (*Summary, error) {
	conditions, args := sqlFilters(q, questionPlaceholders())

	query := `SELECT COUNT(*),
			COALESCE(SUM(prompt_tokens), 0), COALESCE(SUM(completion_tokens), 0), COALESCE(SUM(total_tokens), 0),
			COALESCE(SUM(total_cost_cents), 0),
			COALESCE(SUM(CASE WHEN succeeded = 0 THEN 1 ELSE 0 END), 0)
		FROM usage_events` + buildWhereClause(conditions)

	summary := &Summary{}
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&summary.TotalRequests, &summary.TotalPrompt, &summary.TotalCompletion,
		&summary.TotalTokens, &summary.TotalCostCents, &summary.FailedRequests,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage summary: %w", err)
	}

	return summary, nil
}

func sqliteGroupExpr(interval string) string {
	switch interval {
	case "weekly":
		return `strftime('%G-W%V', timestamp)`
	case "monthly":
		return `strftime('%Y-%m', timestamp)`
	case "yearly":
		return `strftime('%Y', timestamp)`
	default:
		return `DATE(timestamp)`
	}
}

func (r *SQLiteReader) GetPeriodUsage(ctx context.Context, q SummaryQuery) ([]PeriodUsage, error) {
	interval := q.Interval
	if interval == "" {
		interval = "daily"
	}
	groupExpr := sqliteGroupExpr(interval)

	conditions, args := sqlFilters(q, questionPlaceholders())

	query := fmt.Sprintf(`SELECT %s as period, COUNT(*),
			COALESCE(SUM(prompt_tokens), 0), COALESCE(SUM(completion_tokens), 0), COALESCE(SUM(total_tokens), 0),
			COALESCE(SUM(total_cost_cents), 0)
		FROM usage_events%s GROUP BY %s ORDER BY period`, groupExpr, buildWhereClause(conditions), groupExpr)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query period usage: %w", err)
	}
	defer rows.Close()

	result := make([]PeriodUsage, 0)
	for rows.Next() {
		var p PeriodUsage
		if err := rows.Scan(&p.Date, &p.Requests, &p.PromptTokens, &p.CompletionTokens, &p.TotalTokens, &p.CostCents); err != nil {
			return nil, fmt.Errorf("failed to scan period usage row: %w", err)
		}
		result = append(result, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating period usage rows: %w", err)
	}

	return result, nil
}
