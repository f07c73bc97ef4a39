// Package app builds the shared service graph for the indexer binaries from
// a validated Config.
package app

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"launchpad-indexer/internal/cache"
	"launchpad-indexer/internal/chain"
	"launchpad-indexer/internal/config"
	"launchpad-indexer/internal/contracts"
	"launchpad-indexer/internal/metadata"
	"launchpad-indexer/internal/recompute"
	"launchpad-indexer/internal/storage"
	chstore "launchpad-indexer/internal/storage/clickhouse"
	"launchpad-indexer/internal/storage/memory"
	"launchpad-indexer/internal/storage/migrations"
	pgstore "launchpad-indexer/internal/storage/postgres"
)

// App holds the constructed services.
type App struct {
	Chain    *chain.Client
	Gateway  contracts.Gateway
	Ledger   storage.Ledger
	History  storage.TradeHistoryStore // nil without ClickHouse
	Cache    cache.Cache
	Metadata *metadata.Resolver
	Metrics  *recompute.Computer

	closers []func()
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// Build connects every backend named by cfg and runs migrations.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	client, err := chain.NewClient(cfg.RPCURLs,
		chain.WithMaxRetries(cfg.RPCMaxRetries),
		chain.WithStallTimeout(cfg.RPCStallTimeout),
		chain.WithRateLimit(cfg.RPCRateLimit),
		chain.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("chain client: %w", err)
	}
	a.Chain = client
	a.Gateway = contracts.NewClient(client, contracts.Options{
		Factory:     common.HexToAddress(cfg.FactoryAddress),
		Marketplace: common.HexToAddress(cfg.MarketplaceAddress),
		Logger:      logger,
	})

	if err := a.buildStorage(ctx, cfg, logger); err != nil {
		return nil, err
	}

	a.Cache = cache.Noop{}
	if cfg.RedisAddr != "" {
		r, err := cache.NewRedis(ctx, cache.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.Cache = r
		a.closers = append(a.closers, func() { _ = r.Close() })
	} else if cfg.UseMemory {
		a.Cache = cache.NewMemory()
	}

	a.Metadata = metadata.NewResolver(a.Ledger.Content, metadata.Options{
		Gateways: cfg.Gateways,
		Timeout:  cfg.MetadataTimeout,
		Logger:   logger,
	})
	a.Metrics = recompute.NewComputer(a.Gateway, a.Ledger, recompute.ComputerOptions{
		History: a.History,
		Cache:   a.Cache,
		Logger:  logger,
	})

	ok = true
	return a, nil
}

func (a *App) buildStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if cfg.UseMemory {
		logger.Info("using in-memory storage")
		a.Ledger = memory.NewLedger()
		if cfg.ClickHouseDSN == "" {
			return nil
		}
	} else {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool, logger); err != nil {
			return fmt.Errorf("postgres migrations: %w", err)
		}
		a.Ledger = pgstore.NewLedger(pool)
	}

	if cfg.ClickHouseDSN == "" {
		return nil
	}
	conn, err := chstore.NewConn(ctx, cfg.ClickHouseDSN)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() { _ = conn.Close() })
	if err := migrations.RunClickhouseMigrations(ctx, conn, logger); err != nil {
		return fmt.Errorf("clickhouse migrations: %w", err)
	}
	a.History = chstore.NewTradeHistoryStore(conn)
	return nil
}
