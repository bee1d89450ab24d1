//go:build integration

package integration

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"gometer/config"
	"gometer/internal/app"
)

// TestServerConfig configures how the test server is set up.
type TestServerConfig struct {
	// DBType is either "postgresql" or "mongodb"
	DBType string

	// RateLimitStore is either "memory" or "redis" (default "memory")
	RateLimitStore string

	// FailurePolicy is either "closed" or "open" (default "closed")
	FailurePolicy string

	// KeyPrefix namespaces Redis window keys so tests don't collide
	KeyPrefix string

	// UsageEnabled enables usage event recording
	UsageEnabled bool

	// MasterKey sets the authentication master key (empty = unsafe mode)
	MasterKey string
}

// TestServerFixture holds test server resources.
type TestServerFixture struct {
	// ServerURL is the base URL of the test server
	ServerURL string

	// App is the running application
	App *app.App

	// PgPool is the PostgreSQL connection pool (for DB assertions)
	PgPool *pgxpool.Pool

	// MongoDb is the MongoDB database (for DB assertions)
	MongoDb *mongo.Database

	// DBType is the configured database type
	DBType string

	cancelFunc context.CancelFunc
}

// SetupTestServer creates a test server with the specified configuration.
func SetupTestServer(t *testing.T, cfg TestServerConfig) *TestServerFixture {
	t.Helper()

	ctx, cancel := context.WithCancel(GetTestContext())

	// Find available port
	port, err := findAvailablePort()
	require.NoError(t, err, "failed to find available port")

	// Build app config
	appCfg := buildAppConfig(t, cfg)
	appCfg.Server.Port = fmt.Sprintf("%d", port)

	// Create app
	application, err := app.New(ctx, appCfg)
	require.NoError(t, err, "failed to create app")

	// Start server in background
	serverURL := fmt.Sprintf("http://127.0.0.1:%d", port)
	go func() {
		addr := fmt.Sprintf("127.0.0.1:%d", port)
		_ = application.Start(addr)
	}()

	// Wait for server to be healthy
	err = waitForServer(serverURL + "/health")
	require.NoError(t, err, "server failed to become healthy")

	fixture := &TestServerFixture{
		ServerURL:  serverURL,
		App:        application,
		DBType:     cfg.DBType,
		cancelFunc: cancel,
	}

	// Set database references for assertions
	switch cfg.DBType {
	case "postgresql":
		fixture.PgPool = GetPostgreSQLPool()
	case "mongodb":
		fixture.MongoDb = GetMongoDatabase()
	}

	return fixture
}

// FlushAndClose flushes all pending usage events and closes loggers.
// CRITICAL: Call this before making any DB assertions.
func (f *TestServerFixture) FlushAndClose(t *testing.T) {
	t.Helper()

	// Shutting down the app flushes the usage logger
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if f.App != nil {
		err := f.App.Shutdown(ctx)
		require.NoError(t, err, "failed to shutdown app")
	}
}

// Shutdown gracefully shuts down the test server.
func (f *TestServerFixture) Shutdown(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if f.App != nil {
		_ = f.App.Shutdown(ctx)
	}

	if f.cancelFunc != nil {
		f.cancelFunc()
	}
}

// buildAppConfig creates an application config for testing.
func buildAppConfig(t *testing.T, cfg TestServerConfig) *config.Config {
	t.Helper()

	store := cfg.RateLimitStore
	if store == "" {
		store = "memory"
	}
	policy := cfg.FailurePolicy
	if policy == "" {
		policy = "closed"
	}

	appCfg := &config.Config{
		Server: config.ServerConfig{
			MasterKey: cfg.MasterKey,
		},
		RateLimit: config.RateLimitConfig{
			Store:         store,
			RedisURL:      GetRedisURL(),
			KeyPrefix:     cfg.KeyPrefix,
			FailurePolicy: policy,
			TimeoutMs:     2000,
		},
		Usage: config.UsageConfig{
			Enabled:       cfg.UsageEnabled,
			BufferSize:    100,
			FlushInterval: 1,
			RetentionDays: 0,
		},
		Pricing: config.PricingConfig{
			CatalogPath: writePricingCatalog(t),
		},
		Plans: config.PlansConfig{
			CatalogPath: writePlanCatalog(t),
		},
		Metrics: config.MetricsConfig{
			Enabled: false,
		},
		Logging: config.LoggingConfig{
			Level:  "error",
			Format: "json",
		},
	}

	// Configure storage based on DBType
	switch cfg.DBType {
	case "postgresql":
		appCfg.Storage = config.StorageConfig{
			Type: "postgresql",
			PostgreSQL: config.PostgreSQLConfig{
				URL:      GetPostgreSQLURL(),
				MaxConns: 5,
			},
		}
	case "mongodb":
		appCfg.Storage = config.StorageConfig{
			Type: "mongodb",
			MongoDB: config.MongoDBConfig{
				URL:      GetMongoURL(),
				Database: "gometer_test",
			},
		}
	default:
		t.Fatalf("unsupported DB type: %s", cfg.DBType)
	}

	return appCfg
}

// writePricingCatalog writes a pricing catalog with known rates to a temp file.
func writePricingCatalog(t *testing.T) string {
	t.Helper()

	catalog := `default:
  kind: external
  prompt_cost_per_k_token_cents: 0.1
  completion_cost_per_k_token_cents: 0.2
models:
  gpt-4o:
    kind: external
    prompt_cost_per_k_token_cents: 0.25
    completion_cost_per_k_token_cents: 1.0
  internal-small:
    kind: system
    base_prompt_cost_per_k_token_cents: 0.1
    base_completion_cost_per_k_token_cents: 0.4
    markup_percent: 20
`
	return writeTempFile(t, "pricing.yaml", catalog)
}

// writePlanCatalog writes a plan catalog with a small default plan.
func writePlanCatalog(t *testing.T) string {
	t.Helper()

	plans := `default: free
plans:
  - id: free
    name: Free
    limit: 3
    window_ms: 60000
  - id: pro
    name: Pro
    limit: 100
    window_ms: 60000
accounts:
  acct-pro: pro
`
	return writeTempFile(t, "plans.yaml", plans)
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	err := os.WriteFile(path, []byte(content), 0o600)
	require.NoError(t, err, "failed to write %s", name)
	return path
}

// waitForServer waits for the server to become healthy.
func waitForServer(healthURL string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	for i := 0; i < 50; i++ {
		resp, err := client.Get(healthURL)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("server did not become healthy within timeout")
}

// findAvailablePort finds an available TCP port on loopback.
func findAvailablePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer func() { _ = listener.Close() }()
	return listener.Addr().(*net.TCPAddr).Port, nil
}
