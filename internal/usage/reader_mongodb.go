package usage

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// MongoDBReader implements Reader for MongoDB.
type MongoDBReader struct {
	collection *mongo.Collection
}

// NewMongoDBReader creates a new MongoDB usage reader.
func NewMongoDBReader(database *mongo.Database) (*MongoDBReader, error) {
	if database == nil {
		return nil, fmt.Errorf("database is required")
	}
	return &MongoDBReader{collection: database.Collection("usage_events")}, nil
}

// mongoMatchStage builds the $match stage for a SummaryQuery.
// Returns nil when the query has no filters.
func mongoMatchStage(q SummaryQuery) bson.D {
	match := bson.D{}

	if q.AccountID != "" {
		match = append(match, bson.E{Key: "account_id", Value: q.AccountID})
	}
	if q.Model != "" {
		match = append(match, bson.E{Key: "model", Value: q.Model})
	}

	timeFilter := bson.D{}
	if !q.StartDate.IsZero() {
		timeFilter = append(timeFilter, bson.E{Key: "$gte", Value: q.StartDate.UTC()})
	}
	if !q.EndDate.IsZero() {
		timeFilter = append(timeFilter, bson.E{Key: "$lt", Value: q.EndDate.AddDate(0, 0, 1).UTC()})
	}
	if len(timeFilter) > 0 {
		match = append(match, bson.E{Key: "timestamp", Value: timeFilter})
	}

	if len(match) == 0 {
		return nil
	}
	return bson.D{{Key: "$match", Value: match}}
}

func (r *MongoDBReader) GetSummary(ctx context.Context, q SummaryQuery) (*Summary, error) {
	pipeline := bson.A{}

	if match := mongoMatchStage(q); match != nil {
		pipeline = append(pipeline, match)
	}

	pipeline = append(pipeline, bson.D{{Key: "$group", Value: bson.D{
		{Key: "_id", Value: nil},
		{Key: "total_requests", Value: bson.D{{Key: "$sum", Value: 1}}},
		{Key: "total_prompt", Value: bson.D{{Key: "$sum", Value: "$prompt_tokens"}}},
		{Key: "total_completion", Value: bson.D{{Key: "$sum", Value: "$completion_tokens"}}},
		{Key: "total_tokens", Value: bson.D{{Key: "$sum", Value: "$total_tokens"}}},
		{Key: "total_cost_cents", Value: bson.D{{Key: "$sum", Value: "$total_cost_cents"}}},
		{Key: "failed_requests", Value: bson.D{{Key: "$sum", Value: bson.D{
			{Key: "$cond", Value: bson.A{"$succeeded", 0, 1}},
		}}}},
	}}})

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate usage summary: %w", err)
	}
	defer cursor.Close(ctx)

	summary := &Summary{}
	if cursor.Next(ctx) {
		var result struct {
			TotalRequests  int     `bson:"total_requests"`
			TotalPrompt    int64   `bson:"total_prompt"`
			TotalCompl     int64   `bson:"total_completion"`
			TotalTokens    int64   `bson:"total_tokens"`
			TotalCostCents float64 `bson:"total_cost_cents"`
			FailedRequests int     `bson:"failed_requests"`
		}
		if err := cursor.Decode(&result); err != nil {
			return nil, fmt.Errorf("failed to decode usage summary: %w", err)
		}
		summary.TotalRequests = result.TotalRequests
		summary.TotalPrompt = result.TotalPrompt
		summary.TotalCompletion = result.TotalCompl
		summary.TotalTokens = result.TotalTokens
		summary.TotalCostCents = result.TotalCostCents
		summary.FailedRequests = result.FailedRequests
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("error iterating usage summary cursor: %w", err)
	}

	return summary, nil
}

func mongoDateFormat(interval string) string {
	switch interval {
	case "weekly":
		return "%G-W%V"
	case "monthly":
		return "%Y-%m"
	case "yearly":
		return "%Y"
	default:
		return "%Y-%m-%d"
	}
}

func (r *MongoDBReader) GetPeriodUsage(ctx context.Context, q SummaryQuery) ([]PeriodUsage, error) {
	interval := q.Interval
	if interval == "" {
		interval = "daily"
	}

	pipeline := bson.A{}

	if match := mongoMatchStage(q); match != nil {
		pipeline = append(pipeline, match)
	}

	dateFormat := mongoDateFormat(interval)

	pipeline = append(pipeline,
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{{Key: "$dateToString", Value: bson.D{
				{Key: "format", Value: dateFormat},
				{Key: "date", Value: "$timestamp"},
			}}}},
			{Key: "requests", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "prompt_tokens", Value: bson.D{{Key: "$sum", Value: "$prompt_tokens"}}},
			{Key: "completion_tokens", Value: bson.D{{Key: "$sum", Value: "$completion_tokens"}}},
			{Key: "total_tokens", Value: bson.D{{Key: "$sum", Value: "$total_tokens"}}},
			{Key: "cost_cents", Value: bson.D{{Key: "$sum", Value: "$total_cost_cents"}}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	)

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate period usage: %w", err)
	}
	defer cursor.Close(ctx)

	result := make([]PeriodUsage, 0)
	for cursor.Next(ctx) {
		var row struct {
			Date             string  `bson:"_id"`
			Requests         int     `bson:"requests"`
			PromptTokens     int64   `bson:"prompt_tokens"`
			CompletionTokens int64   `bson:"completion_tokens"`
			TotalTokens      int64   `bson:"total_tokens"`
			CostCents        float64 `bson:"cost_cents"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, fmt.Errorf("failed to decode period usage row: %w", err)
		}
		result = append(result, PeriodUsage{
			Date:             row.Date,
			Requests:         row.Requests,
			PromptTokens:     row.PromptTokens,
			CompletionTokens: row.CompletionTokens,
			TotalTokens:      row.TotalTokens,
			CostCents:        row.CostCents,
		})
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("error iterating period usage cursor: %w", err)
	}

	return result, nil
}
