package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"traty/internal/adapters"
	"traty/internal/cli"
	"traty/internal/core"
	apphttp "traty/internal/http"
	"traty/internal/log"
	"traty/internal/viewstate"
)

func main() {
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cli.LoadEnvFile(logger)

	cfg := cli.LoadAndValidateConfig(logger)
	// LOG_LEVEL may have come from .env
	logger = cli.SetupLogger(cfg.LogLevel)

	logger.Info("Starting traty", "backend", cfg.DataBackend)

	result := cli.InitStore(context.Background(), logger, cfg)
	prefsStore := cli.InitPrefs(logger, cfg)
	repo := adapters.NewRepository(result.Store)

	coord, err := viewstate.New(context.Background(), repo, prefsStore,
		viewstate.WithLogger(logger))
	if err != nil {
		logger.Error("Failed to open view state", "error", err)
		if cerr := result.Cleanup(); cerr != nil {
			logger.Error("Cleanup failed", "error", cerr)
		}
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 10*time.Second, func() {
		if err := coord.Close(); err != nil {
			logger.Error("Failed to close view state", "error", err)
		}
		if err := result.Cleanup(); err != nil {
			logger.Error("Failed to close store", "error", err)
		}
	})

	if cfg.LoadSampleData {
		n, err := coord.LoadSampleData(ctx)
		if err != nil {
			logger.Error("Failed to load sample data", "error", err)
		} else if n > 0 {
			logger.Info("Sample data loaded", log.FieldCount, n)
		}
	}

	logger.Info("traty ready",
		"events_enabled", result.EventsEnabled,
		"custom_categories", len(coord.CustomCategories()))

	g, gctx := errgroup.WithContext(ctx)
	if cfg.OpsAddr != "" {
		ops := apphttp.NewServer(cfg.OpsAddr, result.Store, nil, logger)
		g.Go(func() error { return ops.Run(gctx, 5*time.Second) })
	}
	g.Go(func() error { return logSnapshots(gctx, logger, coord) })
	g.Go(func() error { return logBreakdowns(gctx, logger, coord) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Stream logging stopped", "error", err)
	}
	cli.WaitForShutdown(ctx, done)
}

func logSnapshots(ctx context.Context, logger *slog.Logger, coord *viewstate.Coordinator) error {
	ch, stop := coord.WatchUnfiltered()
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap := <-ch:
			logger.InfoContext(ctx, "Expenses changed",
				log.FieldVersion, snap.Version,
				log.FieldCount, snap.Len(),
				log.FieldAmount, core.FormatAmount(snap.Total(), core.DefaultCurrency))
		}
	}
}

func logBreakdowns(ctx context.Context, logger *slog.Logger, coord *viewstate.Coordinator) error {
	ch, stop := coord.WatchBreakdown()
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b := <-ch:
			for _, s := range b.ByTotalDesc() {
				logger.DebugContext(ctx, "Category share",
					log.FieldCategory, s.Category,
					log.FieldAmount, core.FormatAmount(s.Total, core.DefaultCurrency),
					"share", s.PercentLabel(),
					"color", s.Color)
			}
		}
	}
}
