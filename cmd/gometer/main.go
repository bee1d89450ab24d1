// Package main is the entry point for the metering server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"gometer/config"
	"gometer/internal/app"
	"gometer/internal/version"
)

func main() {
	versionFlag := flag.Bool("version", false, "Print version information")
	flag.Parse()

	if *versionFlag {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	// Bootstrap logging before config is available
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(buildLogHandler(cfg.Logging)))

	slog.Info("starting gometer",
		"version", version.Version,
		"commit", version.Commit,
		"build_date", version.Date,
	)

	// Initialize the application
	application, err := app.New(context.Background(), cfg)
	if err != nil {
		slog.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}

	// Handle graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		slog.Info("shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := application.Shutdown(ctx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	addr := ":" + cfg.Server.Port
	if err := application.Start(addr); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// buildLogHandler selects the slog handler from the logging config.
// "pretty" uses colorized tint output for local development, anything
// else is line-delimited JSON.
func buildLogHandler(cfg config.LoggingConfig) slog.Handler {
	level := parseLevel(cfg.Level)

	if cfg.Format == "pretty" {
		return tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
		})
	}
	return slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
