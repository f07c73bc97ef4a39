// Command indexer runs the launchpad indexer: the block-range event loop,
// the tiered metrics scheduler and the admin HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"launchpad-indexer/internal/admin"
	"launchpad-indexer/internal/app"
	"launchpad-indexer/internal/bootstrap"
	"launchpad-indexer/internal/chain"
	"launchpad-indexer/internal/config"
	"launchpad-indexer/internal/indexer"
	"launchpad-indexer/internal/logging"
	"launchpad-indexer/internal/observability"
	"launchpad-indexer/internal/recompute"
)

func main() {
	cfg, err := config.Load(envFile())
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go handleSignals(logger, cancel, done)

	err = run(ctx, cfg, logger)
	close(done)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("indexer exited", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func envFile() string {
	if f := os.Getenv("ENV_FILE"); f != "" {
		return f
	}
	return ".env"
}

func handleSignals(logger *zap.Logger, cancel context.CancelFunc, done <-chan struct{}) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	case <-done:
		return
	}

	select {
	case sig := <-sigCh:
		logger.Warn("received second signal, forcing exit", zap.String("signal", sig.String()))
		os.Exit(1)
	case <-time.After(30 * time.Second):
		logger.Error("graceful shutdown timed out after 30s, forcing exit")
		os.Exit(1)
	case <-done:
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	g, gctx := errgroup.WithContext(ctx)

	var heads <-chan uint64
	if cfg.RPCWSURL != "" {
		sub := chain.NewHeadSubscriber(cfg.RPCWSURL, nil, logger)
		heads = sub.Heads()
		g.Go(func() error {
			if err := sub.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("head subscriber: %w", err)
			}
			return nil
		})
	}

	ix := indexer.New(indexer.Options{
		Gateway:       a.Gateway,
		Ledger:        a.Ledger,
		Metadata:      a.Metadata,
		Metrics:       a.Metrics,
		History:       a.History,
		Cache:         a.Cache,
		Heads:         heads,
		StartBlock:    cfg.StartBlock,
		Confirmations: cfg.Confirmations,
		BatchSize:     cfg.BatchSize,
		PollInterval:  cfg.PollInterval,
		RetryDelay:    cfg.RetryDelay,
		Logger:        logger,
	})

	scheduler := recompute.NewScheduler(a.Metrics, a.Ledger.Tokens, a.Ledger.Transactions, recompute.SchedulerOptions{
		Concurrency: cfg.RecomputeConcurrency,
		Logger:      logger,
	})
	if err := scheduler.Start(gctx); err != nil {
		return err
	}
	defer scheduler.Stop()

	boot := bootstrap.New(bootstrap.Options{
		Gateway:     a.Gateway,
		Tokens:      a.Ledger.Tokens,
		Metadata:    a.Metadata,
		Metrics:     a.Metrics,
		Concurrency: cfg.BootstrapConcurrency,
		Logger:      logger,
	})
	defer boot.Close()

	api := admin.New(gctx, admin.Options{
		Indexer:   ix,
		Bootstrap: boot,
		Tokens:    a.Ledger.Tokens,
		Cache:     a.Cache,
		Health:    a.Chain.Health,
		Logger:    logger,
	})

	g.Go(func() error {
		err := ix.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		ix.Stop()
		return nil
	})
	g.Go(func() error {
		return api.ListenAndServe(gctx, cfg.HTTPAddr)
	})
	if cfg.MetricsAddr != "" && cfg.MetricsAddr != cfg.HTTPAddr {
		g.Go(func() error {
			return serveMetrics(gctx, cfg.MetricsAddr, logger)
		})
	}

	return g.Wait()
}

func serveMetrics(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics server listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
