package usage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQLReader implements Reader for PostgreSQL databases.
type PostgreSQLReader struct {
	pool *pgxpool.Pool
}

// NewPostgreSQLReader creates a new PostgreSQL usage reader.
func NewPostgreSQLReader(pool *pgxpool.Pool) (*PostgreSQLReader, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}
	return &PostgreSQLReader{pool: pool}, nil
}

func (r *PostgreSQLReader) GetSummary(ctx context.Context, q SummaryQuery) (*Summary, error) {
	conditions, args := sqlFilters(q, dollarPlaceholders())

	query := `SELECT COUNT(*),
			COALESCE(SUM(prompt_tokens), 0), COALESCE(SUM(completion_tokens), 0), COALESCE(SUM(total_tokens), 0),
			COALESCE(SUM(total_cost_cents), 0),
			COALESCE(SUM(CASE WHEN succeeded THEN 0 ELSE 1 END), 0)
		FROM usage_events` + buildWhereClause(conditions)

	summary := &Summary{}
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&summary.TotalRequests, &summary.TotalPrompt, &summary.TotalCompletion,
		&summary.TotalTokens, &summary.TotalCostCents, &summary.FailedRequests,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage summary: %w", err)
	}

	return summary, nil
}

func postgresGroupExpr(interval string) string {
	switch interval {
	case "weekly":
		return `to_char(timestamp AT TIME ZONE 'UTC', 'IYYY-"W"IW')`
	case "monthly":
		return `to_char(timestamp AT TIME ZONE 'UTC', 'YYYY-MM')`
	case "yearly":
		return `to_char(timestamp AT TIME ZONE 'UTC', 'YYYY')`
	default:
		return `to_char(timestamp AT TIME ZONE 'UTC', 'YYYY-MM-DD')`
	}
}

func (r *PostgreSQLReader) GetPeriodUsage(ctx context.Context, q SummaryQuery) ([]PeriodUsage, error) {
	interval := q.Interval
	if interval == "" {
		interval = "daily"
	}
	groupExpr := postgresGroupExpr(interval)

	conditions, args := sqlFilters(q, dollarPlaceholders())

	query := fmt.Sprintf(`SELECT %s as period, COUNT(*),
			COALESCE(SUM(prompt_tokens), 0), COALESCE(SUM(completion_tokens), 0), COALESCE(SUM(total_tokens), 0),
			COALESCE(SUM(total_cost_cents), 0)
		FROM usage_events%s GROUP BY %s ORDER BY period`, groupExpr, buildWhereClause(conditions), groupExpr)

	rows, err := r.pool.Query(ctx, query, args...)
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
