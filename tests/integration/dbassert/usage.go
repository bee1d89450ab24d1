//go:build integration

package dbassert

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// UsageEvent mirrors the persisted usage event for test assertions.
type UsageEvent struct {
	ID                  string
	RequestID           string
	Endpoint            string
	Timestamp           time.Time
	Model               string
	AccountID           string
	CredentialID        string
	PromptTokens        int
	CompletionTokens    int
	TotalTokens         int
	PromptCostCents     float64
	CompletionCostCents float64
	TotalCostCents      float64
	DurationMs          int64
	Succeeded           bool
	ErrorText           string
	RawData             map[string]any
}

// QueryEventsByRequestID queries usage events by request ID from PostgreSQL.
func QueryEventsByRequestID(t *testing.T, pool *pgxpool.Pool, requestID string) []UsageEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	query := `
		SELECT id, request_id, endpoint, timestamp, model, account_id, credential_id,
		       prompt_tokens, completion_tokens, total_tokens,
		       prompt_cost_cents, completion_cost_cents, total_cost_cents,
		       duration_ms, succeeded, error_text, raw_data
		FROM usage_events
		WHERE request_id = $1
		ORDER BY timestamp ASC
	`

	rows, err := pool.Query(ctx, query, requestID)
	require.NoError(t, err, "failed to query usage events")
	defer rows.Close()

	var events []UsageEvent
	for rows.Next() {
		var event UsageEvent
		var credentialID, errorText *string
		var rawDataJSON []byte
		err := rows.Scan(
			&event.ID, &event.RequestID, &event.Endpoint, &event.Timestamp,
			&event.Model, &event.AccountID, &credentialID,
			&event.PromptTokens, &event.CompletionTokens, &event.TotalTokens,
			&event.PromptCostCents, &event.CompletionCostCents, &event.TotalCostCents,
			&event.DurationMs, &event.Succeeded, &errorText, &rawDataJSON,
		)
		require.NoError(t, err, "failed to scan usage event row")

		if credentialID != nil {
			event.CredentialID = *credentialID
		}
		if errorText != nil {
			event.ErrorText = *errorText
		}
		if rawDataJSON != nil {
			event.RawData = unmarshalRawData(t, rawDataJSON)
		}
		events = append(events, event)
	}
	require.NoError(t, rows.Err(), "error iterating usage event rows")

	return events
}

// QueryEventsByRequestIDMongo queries usage events by request ID from MongoDB.
func QueryEventsByRequestIDMongo(t *testing.T, db *mongo.Database, requestID string) []UsageEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	collection := db.Collection("usage_events")
	filter := bson.M{"request_id": requestID}

	cursor, err := collection.Find(ctx, filter)
	require.NoError(t, err, "failed to query usage events from MongoDB")
	defer cursor.Close(ctx)

	var events []UsageEvent
	for cursor.Next(ctx) {
		var doc bson.M
		err := cursor.Decode(&doc)
		require.NoError(t, err, "failed to decode usage event document")

		events = append(events, bsonToUsageEvent(t, doc))
	}
	require.NoError(t, cursor.Err(), "error iterating usage event cursor")

	return events
}

// CountEvents returns the total count of usage events in PostgreSQL.
func CountEvents(t *testing.T, pool *pgxpool.Pool) int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var count int
	err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM usage_events").Scan(&count)
	require.NoError(t, err, "failed to count usage events")

	return count
}

// ClearEvents deletes all usage events from PostgreSQL.
func ClearEvents(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := pool.Exec(ctx, "DELETE FROM usage_events")
	require.NoError(t, err, "failed to clear usage events")
}

// ClearEventsMongo deletes all usage events from MongoDB.
func ClearEventsMongo(t *testing.T, db *mongo.Database) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := db.Collection("usage_events").DeleteMany(ctx, bson.M{})
	require.NoError(t, err, "failed to clear usage events from MongoDB")
}

// SumTokensByModel returns total token usage grouped by model from PostgreSQL.
func SumTokensByModel(t *testing.T, pool *pgxpool.Pool) map[string]TokenSummary {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	query := `
		SELECT model, SUM(prompt_tokens), SUM(completion_tokens), SUM(total_tokens),
		       SUM(total_cost_cents), COUNT(*)
		FROM usage_events
		GROUP BY model
	`

	rows, err := pool.Query(ctx, query)
	require.NoError(t, err, "failed to query token summary")
	defer rows.Close()

	results := make(map[string]TokenSummary)
	for rows.Next() {
		var model string
		var summary TokenSummary
		err := rows.Scan(&model, &summary.PromptTokens, &summary.CompletionTokens,
			&summary.TotalTokens, &summary.CostCents, &summary.RequestCount)
		require.NoError(t, err, "failed to scan token summary row")
		results[model] = summary
	}
	require.NoError(t, rows.Err(), "error iterating token summary rows")

	return results
}

// TokenSummary holds aggregated token usage statistics.
type TokenSummary struct {
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
	CostCents        float64
	RequestCount     int64
}

// bsonToUsageEvent converts a BSON document to a UsageEvent.
func bsonToUsageEvent(t *testing.T, doc bson.M) UsageEvent {
	t.Helper()
	event := UsageEvent{}

	if v, ok := doc["_id"].(string); ok {
		event.ID = v
	}
	if v, ok := doc["request_id"].(string); ok {
		event.RequestID = v
	}
	if v, ok := doc["endpoint"].(string); ok {
		event.Endpoint = v
	}
	if v, ok := doc["timestamp"].(time.Time); ok {
		event.Timestamp = v
	} else if v, ok := doc["timestamp"].(bson.DateTime); ok {
		event.Timestamp = v.Time()
	}
	if v, ok := doc["model"].(string); ok {
		event.Model = v
	}
	if v, ok := doc["account_id"].(string); ok {
		event.AccountID = v
	}
	if v, ok := doc["credential_id"].(string); ok {
		event.CredentialID = v
	}
	event.PromptTokens = bsonInt(doc["prompt_tokens"])
	event.CompletionTokens = bsonInt(doc["completion_tokens"])
	event.TotalTokens = bsonInt(doc["total_tokens"])
	event.PromptCostCents = bsonFloat(doc["prompt_cost_cents"])
	event.CompletionCostCents = bsonFloat(doc["completion_cost_cents"])
	event.TotalCostCents = bsonFloat(doc["total_cost_cents"])
	event.DurationMs = int64(bsonInt(doc["duration_ms"]))
	if v, ok := doc["succeeded"].(bool); ok {
		event.Succeeded = v
	}
	if v, ok := doc["error_text"].(string); ok {
		event.ErrorText = v
	}
	if v, ok := doc["raw_data"].(bson.M); ok {
		event.RawData = bsonToMap(v)
	}

	return event
}

// bsonInt coerces the BSON numeric encodings to an int.
func bsonInt(v any) int {
	switch n := v.(type) {
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

// bsonFloat coerces the BSON numeric encodings to a float64.
func bsonFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

// bsonToMap converts a bson.M to a map[string]any recursively.
func bsonToMap(m bson.M) map[string]any {
	result := make(map[string]any, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case bson.M:
			result[k] = bsonToMap(val)
		case bson.A:
			result[k] = bsonArrayToSlice(val)
		default:
			result[k] = v
		}
	}
	return result
}

// bsonArrayToSlice converts a bson.A to []any.
func bsonArrayToSlice(a bson.A) []any {
	result := make([]any, len(a))
	for i, v := range a {
		switch val := v.(type) {
		case bson.M:
			result[i] = bsonToMap(val)
		case bson.A:
			result[i] = bsonArrayToSlice(val)
		default:
			result[i] = v
		}
	}
	return result
}
