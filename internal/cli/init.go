// Package cli provides common CLI initialization utilities.
// This package consolidates repeated initialization patterns across
// cmd/traty and cmd/traty-notifier.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"traty/internal/backend"
	"traty/internal/config"
	"traty/internal/log"
	"traty/internal/notify"
	"traty/internal/prefs"
)

// SetupLogger initializes structured logging at the given LOG_LEVEL.
// Returns the configured logger and sets it as the default logger.
func SetupLogger(level string) *slog.Logger {
	lvl, ok := log.ParseLevel(level)
	logger := log.New(log.Config{
		Level:     lvl,
		Component: log.ComponentApp,
		Output:    os.Stdout,
	})
	log.SetDefault(logger)
	if !ok {
		logger.Warn("Unknown log level, using info", "level", level)
	}
	return logger.Logger
}

// LoadEnvFile loads the .env file for local development.
// A missing file is fine; a malformed one is reported but not fatal.
func LoadEnvFile(logger *slog.Logger) {
	if err := config.LoadEnvFile(); err != nil {
		logger.Warn("Ignoring .env file", "error", err)
	}
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *slog.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// InitStore builds the configured backend.
// Returns the backend or exits the process on failure.
func InitStore(ctx context.Context, logger *slog.Logger, cfg *config.Config) *backend.BackendResult {
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	return result
}

// InitPrefs returns the preference store: a JSON file next to the database
// for the sqlite backend, an in-process map for the memory backend.
func InitPrefs(logger *slog.Logger, cfg *config.Config) prefs.Store {
	if cfg.DataBackend == string(backend.MemoryBackend) {
		return prefs.NewMemoryStore()
	}
	store, err := prefs.NewFileStore(cfg.PrefsPath)
	if err != nil {
		logger.Warn("Preferences unavailable, keeping them in memory", "error", err, "path", cfg.PrefsPath)
		return prefs.NewMemoryStore()
	}
	return store
}

// NotifySettings translates the notification part of the config.
func NotifySettings(cfg *config.Config) (notify.Settings, error) {
	at, err := notify.ParseClock(cfg.NotifyDailyTime)
	if err != nil {
		return notify.Settings{}, err
	}
	day, ok := config.ParseWeekday(cfg.NotifyWeeklyDay)
	if !ok {
		return notify.Settings{}, fmt.Errorf("invalid weekly summary day %q", cfg.NotifyWeeklyDay)
	}
	return notify.Settings{
		DailyReminder: cfg.NotifyDailyReminder,
		Daily:         notify.DailyReminder{At: at},
		WeeklySummary: cfg.NotifyWeeklySummary,
		Weekly:        notify.WeeklySummary{Day: day, At: at},
		BudgetAlerts:  cfg.NotifyBudgetAlerts,
		MonthlyBudget: cfg.MonthlyBudget,
	}, nil
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *slog.Logger, timeout time.Duration, cleanup func()) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		cancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup()
			}
			close(finished)
		}()

		select {
		case <-finished:
			logger.Info("Shutdown complete")
		case <-time.After(timeout):
			logger.Warn("Shutdown timeout reached")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
