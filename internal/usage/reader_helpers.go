package usage

import (
	"strconv"
	"strings"
)

// buildWhereClause joins condition strings into a SQL WHERE clause.
// Returns an empty string when conditions is empty.
func buildWhereClause(conditions []string) string {
	if len(conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conditions, " AND ")
}

// sqlFilters translates a SummaryQuery into WHERE conditions and bind
// arguments. next yields the placeholder for each argument, letting the
// same logic serve both SQLite (?) and PostgreSQL ($n) syntax.
func sqlFilters(q SummaryQuery, next func() string) ([]string, []interface{}) {
	var conditions []string
	var args []interface{}

	if q.AccountID != "" {
		conditions = append(conditions, "account_id = "+next())
		args = append(args, q.AccountID)
	}
	if q.Model != "" {
		conditions = append(conditions, "model = "+next())
		args = append(args, q.Model)
	}
	if !q.StartDate.IsZero() {
		conditions = append(conditions, "timestamp >= "+next())
		args = append(args, q.StartDate.UTC().Format("2006-01-02"))
	}
	if !q.EndDate.IsZero() {
		conditions = append(conditions, "timestamp < "+next())
		args = append(args, q.EndDate.AddDate(0, 0, 1).UTC().Format("2006-01-02"))
	}

	return conditions, args
}

// questionPlaceholders returns a placeholder generator for SQLite.
func questionPlaceholders() func() string {
	return func() string { return "?" }
}

// dollarPlaceholders returns a numbered placeholder generator for PostgreSQL.
func dollarPlaceholders() func() string {
	n := 0
	return func() string {
		n++
		return "$" + strconv.Itoa(n)
	}
}
