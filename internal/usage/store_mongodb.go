package usage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"gometer/internal/metrics"
)

// ErrPartialWrite marks a batch insert where some events landed and some did
// not. Callers match it with errors.Is.
var ErrPartialWrite = errors.New("partial write failure")

// PartialWriteError carries the failure counts of a partial batch insert.
type PartialWriteError struct {
	TotalEvents int
	FailedCount int
	Cause       mongo.BulkWriteException
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("partial usage insert: %d of %d events failed: %v",
		e.FailedCount, e.TotalEvents, e.Cause.Error())
}

func (e *PartialWriteError) Unwrap() error {
	return ErrPartialWrite
}

// MongoDBStore implements EventStore for MongoDB. Retention is delegated to
// a TTL index on timestamp, so there is no cleanup goroutine here.
type MongoDBStore struct {
	collection    *mongo.Collection
	retentionDays int
}

// eventIndexes returns the index set for the usage_events collection. When
// retention is configured the timestamp index doubles as the TTL index;
// MongoDB rejects a second index on the same field, so there is exactly one
// timestamp index either way.
func eventIndexes(retentionDays int) []mongo.IndexModel {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "request_id", Value: 1}}},
		{Keys: bson.D{{Key: "account_id", Value: 1}}},
		{Keys: bson.D{{Key: "model", Value: 1}}},
		{Keys: bson.D{{Key: "endpoint", Value: 1}}},
	}

	timestamp := mongo.IndexModel{Keys: bson.D{{Key: "timestamp", Value: -1}}}
	if retentionDays > 0 {
		ttl := int32(int64(retentionDays) * 24 * 60 * 60)
		timestamp.Options = options.Index().SetExpireAfterSeconds(ttl)
	}
	return append(indexes, timestamp)
}

// NewMongoDBStore creates the usage_events collection indexes and returns a
// store writing to it.
func NewMongoDBStore(database *mongo.Database, retentionDays int) (*MongoDBStore, error) {
	if database == nil {
		return nil, fmt.Errorf("database is required")
	}

	collection := database.Collection("usage_events")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := collection.Indexes().CreateMany(ctx, eventIndexes(retentionDays)); err != nil {
		// Indexes may already exist from a previous run
		slog.Warn("failed to create some MongoDB indexes for usage events", "error", err)
	}

	return &MongoDBStore{
		collection:    collection,
		retentionDays: retentionDays,
	}, nil
}

// WriteBatch inserts events with an unordered InsertMany, so one bad document
// does not block the rest of the batch. A partial failure is surfaced as a
// PartialWriteError and counted so operators can detect data loss.
func (s *MongoDBStore) WriteBatch(ctx context.Context, events []*UsageEvent) error {
	if len(events) == 0 {
		return nil
	}

	docs := make([]interface{}, len(events))
	for i, e := range events {
		docs[i] = e
	}

	_, err := s.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err == nil {
		return nil
	}

	// InsertMany surfaces write errors as a BulkWriteException value, not a
	// pointer to one
	var bulkErr mongo.BulkWriteException
	if !errors.As(err, &bulkErr) {
		return fmt.Errorf("failed to insert usage events: %w", err)
	}

	failed := len(bulkErr.WriteErrors)
	slog.Warn("partial usage insert failure",
		"total", len(events),
		"failed", failed,
		"succeeded", len(events)-failed,
	)
	metrics.UsagePartialWrites.Inc()
	return &PartialWriteError{
		TotalEvents: len(events),
		FailedCount: failed,
		Cause:       bulkErr,
	}
}

// Flush is a no-op, MongoDB writes are synchronous.
func (s *MongoDBStore) Flush(_ context.Context) error {
	return nil
}

// Close is a no-op, the client belongs to the storage layer.
func (s *MongoDBStore) Close() error {
	return nil
}
