package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"gometer/config"
	"gometer/internal/storage"
)

// Result holds the initialized usage logger and its dependencies.
// The caller is responsible for calling Close() to release resources.
type Result struct {
	Logger  LoggerInterface
	Reader  Reader
	Storage storage.Storage
}

// Close releases all resources held by the usage logger.
// Safe to call multiple times.
func (r *Result) Close() error {
	var errs []error
	if r.Logger != nil {
		if err := r.Logger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("logger close: %w", err))
		}
	}
	if r.Storage != nil {
		if err := r.Storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage close: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %w", errors.Join(errs...))
	}
	return nil
}

// New creates a usage logger from configuration.
// Returns a Result containing the logger, reader and storage for lifecycle
// management. The caller must call Result.Close() during shutdown.
//
// If usage tracking is disabled in the config, returns a NoopLogger with nil
// reader and storage.
func New(ctx context.Context, cfg *config.Config) (*Result, error) {
	// Return noop if usage tracking is disabled
	if !cfg.Usage.Enabled {
		return &Result{
			Logger:  &NoopLogger{},
			Storage: nil,
		}, nil
	}

	// Create storage configuration - reuse the shared storage backend settings
	storageCfg := buildStorageConfig(cfg)

	// Create storage connection
	store, err := storage.New(ctx, storageCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	// Create the event store based on storage type
	eventStore, err := createEventStore(store, cfg.Usage.RetentionDays)
	if err != nil {
		store.Close()
		return nil, err
	}

	reader, err := createReader(store)
	if err != nil {
		eventStore.Close()
		store.Close()
		return nil, err
	}

	// Create logger configuration
	logCfg := buildLoggerConfig(cfg.Usage)

	return &Result{
		Logger:  NewLogger(eventStore, logCfg),
		Reader:  reader,
		Storage: store,
	}, nil
}

// NewWithSharedStorage creates a usage logger using a shared storage connection.
// The caller is responsible for closing the storage separately.
func NewWithSharedStorage(ctx context.Context, cfg *config.Config, store storage.Storage) (*Result, error) {
	// Return noop if usage tracking is disabled
	if !cfg.Usage.Enabled {
		return &Result{
			Logger:  &NoopLogger{},
			Storage: nil,
		}, nil
	}

	if store == nil {
		return nil, fmt.Errorf("storage is required when usage tracking is enabled")
	}

	// Create the event store based on storage type
	eventStore, err := createEventStore(store, cfg.Usage.RetentionDays)
	if err != nil {
		return nil, err
	}

	reader, err := createReader(store)
	if err != nil {
		eventStore.Close()
		return nil, err
	}

	// Create logger configuration
	logCfg := buildLoggerConfig(cfg.Usage)

	return &Result{
		Logger:  NewLogger(eventStore, logCfg),
		Reader:  reader,
		Storage: nil, // Don't set storage since it's shared
	}, nil
}

// buildStorageConfig creates a storage.Config from the application config.
func buildStorageConfig(cfg *config.Config) storage.Config {
	storageCfg := storage.Config{
		Type: cfg.Storage.Type,
		SQLite: storage.SQLiteConfig{
			Path: cfg.Storage.SQLite.Path,
		},
		PostgreSQL: storage.PostgreSQLConfig{
			URL:      cfg.Storage.PostgreSQL.URL,
			MaxConns: cfg.Storage.PostgreSQL.MaxConns,
		},
		MongoDB: storage.MongoDBConfig{
			URL:      cfg.Storage.MongoDB.URL,
			Database: cfg.Storage.MongoDB.Database,
		},
	}

	// Apply defaults
	if storageCfg.Type == "" {
		storageCfg.Type = storage.TypeSQLite
	}
	if storageCfg.SQLite.Path == "" {
		storageCfg.SQLite.Path = ".cache/gometer.db"
	}
	if storageCfg.MongoDB.Database == "" {
		storageCfg.MongoDB.Database = "gometer"
	}

	return storageCfg
}

// createEventStore creates the appropriate EventStore for the given storage backend.
func createEventStore(store storage.Storage, retentionDays int) (EventStore, error) {
	switch store.Type() {
	case storage.TypeSQLite:
		return NewSQLiteStore(store.SQLiteDB(), retentionDays)

	case storage.TypePostgreSQL:
		pool, err := postgresPool(store)
		if err != nil {
			return nil, err
		}
		return NewPostgreSQLStore(pool, retentionDays)

	case storage.TypeMongoDB:
		db, err := mongoDatabase(store)
		if err != nil {
			return nil, err
		}
		return NewMongoDBStore(db, retentionDays)

	default:
		return nil, fmt.Errorf("unknown storage type: %s", store.Type())
	}
}

// createReader creates the appropriate Reader for the given storage backend.
func createReader(store storage.Storage) (Reader, error) {
	switch store.Type() {
	case storage.TypeSQLite:
		return NewSQLiteReader(store.SQLiteDB())

	case storage.TypePostgreSQL:
		pool, err := postgresPool(store)
		if err != nil {
			return nil, err
		}
		return NewPostgreSQLReader(pool)

	case storage.TypeMongoDB:
		db, err := mongoDatabase(store)
		if err != nil {
			return nil, err
		}
		return NewMongoDBReader(db)

	default:
		return nil, fmt.Errorf("unknown storage type: %s", store.Type())
	}
}

func postgresPool(store storage.Storage) (*pgxpool.Pool, error) {
	pool := store.PostgreSQLPool()
	if pool == nil {
		return nil, fmt.Errorf("PostgreSQL pool is nil")
	}
	pgxPool, ok := pool.(*pgxpool.Pool)
	if !ok {
		return nil, fmt.Errorf("invalid PostgreSQL pool type: %T", pool)
	}
	return pgxPool, nil
}

func mongoDatabase(store storage.Storage) (*mongo.Database, error) {
	db := store.MongoDatabase()
	if db == nil {
		return nil, fmt.Errorf("MongoDB database is nil")
	}
	mongoDB, ok := db.(*mongo.Database)
	if !ok {
		return nil, fmt.Errorf("invalid MongoDB database type: %T", db)
	}
	return mongoDB, nil
}

// buildLoggerConfig creates a usage.Config from config.UsageConfig.
func buildLoggerConfig(usageCfg config.UsageConfig) Config {
	cfg := Config{
		Enabled:       usageCfg.Enabled,
		BufferSize:    usageCfg.BufferSize,
		FlushInterval: time.Duration(usageCfg.FlushInterval) * time.Second,
		RetentionDays: usageCfg.RetentionDays,
	}

	// Apply defaults
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}

	return cfg
}
