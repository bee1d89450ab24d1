// Package app provides the main application struct for centralized dependency
// management and lifecycle control of the metering server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"gometer/config"
	"gometer/internal/plan"
	"gometer/internal/pricing"
	"gometer/internal/ratelimit"
	"gometer/internal/server"
	"gometer/internal/tokencount"
	"gometer/internal/usage"
)

// App represents the main application with all its dependencies.
// It provides centralized lifecycle management for all components.
type App struct {
	config      *config.Config
	windowStore ratelimit.WindowStore
	usage       *usage.Result
	server      *server.Server

	shutdownMu sync.Mutex
	shutdown   bool
}

// New creates a new App with all dependencies initialized.
// The caller must call Shutdown to release resources.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	app := &App{config: cfg}

	// Window store for admission control
	store, err := buildWindowStore(cfg.RateLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize window store: %w", err)
	}
	app.windowStore = store

	limiter := ratelimit.NewLimiter(store, ratelimit.Options{
		Policy:  ratelimit.FailurePolicy(cfg.RateLimit.FailurePolicy),
		Timeout: time.Duration(cfg.RateLimit.TimeoutMs) * time.Millisecond,
	})

	// Pricing catalog
	var pricingResolver pricing.Resolver
	if cfg.Pricing.CatalogPath != "" {
		catalog, err := pricing.LoadCatalog(cfg.Pricing.CatalogPath)
		if err != nil {
			closeErr := store.Close()
			if closeErr != nil {
				return nil, fmt.Errorf("failed to load pricing catalog: %w (also: store close error: %v)", err, closeErr)
			}
			return nil, fmt.Errorf("failed to load pricing catalog: %w", err)
		}
		pricingResolver = catalog
		slog.Info("pricing catalog loaded", "path", cfg.Pricing.CatalogPath, "models", catalog.Len())
	} else {
		pricingResolver = pricing.NewCatalog(nil, nil)
		slog.Warn("no pricing catalog configured, all models will be unpriced")
	}

	// Plan catalog
	var planResolver plan.Resolver
	if cfg.Plans.CatalogPath != "" {
		resolver, err := plan.Load(cfg.Plans.CatalogPath)
		if err != nil {
			closeErr := store.Close()
			if closeErr != nil {
				return nil, fmt.Errorf("failed to load plan catalog: %w (also: store close error: %v)", err, closeErr)
			}
			return nil, fmt.Errorf("failed to load plan catalog: %w", err)
		}
		planResolver = resolver
		slog.Info("plan catalog loaded", "path", cfg.Plans.CatalogPath, "plans", resolver.Len())
	}

	// Initialize usage tracking
	usageResult, err := usage.New(ctx, cfg)
	if err != nil {
		closeErr := store.Close()
		if closeErr != nil {
			return nil, fmt.Errorf("failed to initialize usage tracking: %w (also: store close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize usage tracking: %w", err)
	}
	app.usage = usageResult

	// Log configuration status
	app.logStartupInfo()

	counter := tokencount.NewCounter(tokencount.NewCachedEstimator(tokencount.HeuristicEstimator{}, 0))

	handler := server.NewHandler(limiter, planResolver, counter, pricingResolver,
		usageResult.Logger, usageResult.Reader)

	app.server = server.New(handler, &server.Config{
		MasterKey:       cfg.Server.MasterKey,
		MetricsEnabled:  cfg.Metrics.Enabled,
		MetricsEndpoint: cfg.Metrics.Endpoint,
		BodySizeLimit:   cfg.Server.BodySizeLimit,
	})

	return app, nil
}

// UsageLogger returns the usage logger interface.
func (a *App) UsageLogger() usage.LoggerInterface {
	if a.usage == nil {
		return nil
	}
	return a.usage.Logger
}

// Start starts the HTTP server on the given address.
// This is a blocking call that returns when the server stops.
func (a *App) Start(addr string) error {
	if a.server == nil {
		return fmt.Errorf("server is not initialized")
	}
	slog.Info("starting server", "address", addr)
	if err := a.server.Start(addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			slog.Info("server stopped gracefully")
			return nil
		}
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Shutdown gracefully tears down app components in dependency order.
// Order:
// 1. HTTP server shutdown via server.Shutdown(ctx), honoring the passed context.
// 2. Usage logger close (flushes pending usage events).
// 3. Window store close.
//
// Shutdown is idempotent and safe for repeated calls; after the first call,
// subsequent calls are no-ops. It attempts every close step, aggregates
// failures, and returns a joined error if any step fails.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownMu.Lock()
	if a.shutdown {
		a.shutdownMu.Unlock()
		return nil
	}
	a.shutdown = true
	a.shutdownMu.Unlock()

	slog.Info("shutting down application...")

	var errs []error

	// 1. Shutdown HTTP server first (stop accepting new requests)
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "error", err)
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
	}

	// 2. Close usage tracking (flushes pending events)
	if a.usage != nil {
		if err := a.usage.Close(); err != nil {
			slog.Error("usage logger close error", "error", err)
			errs = append(errs, fmt.Errorf("usage close: %w", err))
		}
	}

	// 3. Close the window store
	if a.windowStore != nil {
		if err := a.windowStore.Close(); err != nil {
			slog.Error("window store close error", "error", err)
			errs = append(errs, fmt.Errorf("window store close: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	slog.Info("application shutdown complete")
	return nil
}

// buildWindowStore creates the configured WindowStore backend.
func buildWindowStore(cfg config.RateLimitConfig) (ratelimit.WindowStore, error) {
	switch cfg.Store {
	case "redis":
		return ratelimit.NewRedisStore(ratelimit.RedisConfig{
			URL:       cfg.RedisURL,
			KeyPrefix: cfg.KeyPrefix,
		})
	case "memory", "":
		return ratelimit.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown rate limit store: %s (valid: redis, memory)", cfg.Store)
	}
}

// logStartupInfo logs the application configuration on startup.
func (a *App) logStartupInfo() {
	cfg := a.config

	// Security warnings
	if cfg.Server.MasterKey == "" {
		slog.Warn("SECURITY WARNING: MASTER_KEY not set - server running in UNSAFE MODE",
			"security_risk", "unauthenticated access allowed",
			"recommendation", "set MASTER_KEY environment variable to secure this service")
	} else {
		slog.Info("authentication enabled", "mode", "master_key")
	}

	// Metrics configuration
	if cfg.Metrics.Enabled {
		slog.Info("prometheus metrics enabled", "endpoint", cfg.Metrics.Endpoint)
	} else {
		slog.Info("prometheus metrics disabled")
	}

	// Admission control configuration
	slog.Info("admission control configured",
		"store", cfg.RateLimit.Store,
		"failure_policy", cfg.RateLimit.FailurePolicy,
		"timeout_ms", cfg.RateLimit.TimeoutMs,
	)

	// Usage tracking configuration
	if cfg.Usage.Enabled {
		slog.Info("usage tracking enabled",
			"storage", cfg.Storage.Type,
			"buffer_size", cfg.Usage.BufferSize,
			"flush_interval", cfg.Usage.FlushInterval,
			"retention_days", cfg.Usage.RetentionDays,
		)
	} else {
		slog.Info("usage tracking disabled")
	}
}
