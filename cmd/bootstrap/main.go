// Command bootstrap reconciles the ledger with the factory once: it creates
// tokens the indexer never saw and backfills missing metrics, then exits.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"launchpad-indexer/internal/app"
	"launchpad-indexer/internal/bootstrap"
	"launchpad-indexer/internal/config"
	"launchpad-indexer/internal/logging"
)

func main() {
	envFile := ".env"
	if f := os.Getenv("ENV_FILE"); f != "" {
		envFile = f
	}
	cfg, err := config.Load(envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	cfg.BindFlags(flag.CommandLine)
	flag.Parse()

	logger, err := logging.New(cfg.LogLevel, cfg.LogEncoding)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	job, err := run(ctx, cfg, logger)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(job)
	if err != nil {
		logger.Error("bootstrap failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) (bootstrap.Job, error) {
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return bootstrap.Job{}, err
	}
	defer a.Close()

	svc := bootstrap.New(bootstrap.Options{
		Gateway:     a.Gateway,
		Tokens:      a.Ledger.Tokens,
		Metadata:    a.Metadata,
		Metrics:     a.Metrics,
		Concurrency: cfg.BootstrapConcurrency,
		Logger:      logger,
	})
	defer svc.Close()

	return svc.Run(ctx)
}
