package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces window keys in Redis so quota state can share a
// database with other features.
const DefaultKeyPrefix = "ratelimit:"

// RedisConfig holds Redis window store configuration.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379" or "redis://:password@host:6379/0")
	URL string

	// KeyPrefix namespaces all window keys (defaults to "ratelimit:")
	KeyPrefix string
}

// RedisStore implements WindowStore on a Redis sorted set per quota key.
// This is the backend for multi-instance deployments: every gateway process
// sharing the same Redis observes the same window state.
type RedisStore struct {
	client     *redis.Client
	prefix     string
	ownsClient bool
}

// NewRedisStore creates a Redis-backed window store and verifies the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	return &RedisStore{client: client, prefix: prefix, ownsClient: true}, nil
}

// NewRedisStoreWithClient wraps an existing client whose lifecycle the caller
// manages. Close on the returned store is then a no-op for the connection.
func NewRedisStoreWithClient(client *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: keyPrefix}
}

// Slide runs the evict/insert/count/expire sequence as one MULTI/EXEC
// transaction against the sorted set for key.
func (s *RedisStore) Slide(ctx context.Context, key string, now time.Time, window time.Duration, member string) (SlideResult, error) {
	k := s.prefix + key
	nowMs := now.UnixMilli()
	cutoff := nowMs - window.Milliseconds()

	pipe := s.client.TxPipeline()

	// Evict entries with score in [0, now-window]. The upper bound is
	// inclusive: an entry recorded exactly one window ago no longer counts.
	pipe.ZRemRangeByScore(ctx, k, "0", strconv.FormatInt(cutoff, 10))

	pipe.ZAdd(ctx, k, redis.Z{Score: float64(nowMs), Member: member})

	countCmd := pipe.ZCard(ctx, k)
	oldestCmd := pipe.ZRangeWithScores(ctx, k, 0, 0)

	// Abandoned keys self-expire once no checks arrive for a full window.
	pipe.Expire(ctx, k, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return SlideResult{}, fmt.Errorf("window transaction for %q: %w", key, err)
	}

	res := SlideResult{Count: countCmd.Val()}
	if oldest := oldestCmd.Val(); len(oldest) > 0 {
		res.OldestUnixMilli = int64(oldest[0].Score)
	}
	return res, nil
}

// Close closes the Redis connection if this store opened it.
func (s *RedisStore) Close() error {
	if s.ownsClient && s.client != nil {
		return s.client.Close()
	}
	return nil
}
