package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"traty/internal/amqp"
	"traty/internal/backend"
	"traty/internal/cli"
	apphttp "traty/internal/http"
	"traty/internal/notify"
	"traty/internal/prefs"
)

func main() {
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cli.LoadEnvFile(logger)

	cfg := cli.LoadAndValidateConfig(logger)
	logger = cli.SetupLogger(cfg.LogLevel)

	logger.Info("Starting traty-notifier")

	settings, err := cli.NotifySettings(cfg)
	if err != nil {
		logger.Error("Invalid notification settings", "error", err)
		os.Exit(1)
	}

	// The notifier only reads; it must not publish events of its own.
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	backendCfg.AMQPURL = ""
	result, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err)
		os.Exit(1)
	}
	defer result.Cleanup()

	statePath := filepath.Join(filepath.Dir(cfg.PrefsPath), "notifier_state.json")
	state, err := prefs.NewFileStore(statePath)
	if err != nil {
		logger.Error("Failed to open notifier state", "error", err, "path", statePath)
		os.Exit(1)
	}

	worker := notify.NewWorker(result.Store, notify.NewLogSender(logger), state, settings,
		notify.WithLogger(logger))

	var client *amqp.Client
	if cfg.AMQPURL != "" {
		client, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		client.WithLogger(logger)
		defer client.Close()
	} else {
		logger.Info("AMQP disabled, budget alerts will not fire")
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return worker.Run(gctx, cfg.NotifyTickInterval) })
	if cfg.OpsAddr != "" {
		ops := apphttp.NewServer(cfg.OpsAddr, result.Store, nil, logger)
		g.Go(func() error { return ops.Run(gctx, 5*time.Second) })
	}
	if client != nil {
		g.Go(func() error { return client.ConsumeExpenseEvents(gctx, worker.HandleEvent) })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Notifier stopped", "error", err)
		os.Exit(1)
	}
	cli.WaitForShutdown(ctx, done)
	logger.Info("Notifier shutdown complete")
}
