package recompute

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"launchpad-indexer/internal/cache"
	"launchpad-indexer/internal/contracts"
	"launchpad-indexer/internal/domain"
	"launchpad-indexer/internal/logging"
	"launchpad-indexer/internal/storage"
)

// baselineLookback is how far back trades are read to find the point
// nearest to 24h ago; a trade slightly older than 24h can be the closest.
const baselineLookback = 48 * time.Hour

// ComputerOptions configures Computer.
type ComputerOptions struct {
	// History, when set, supplies baseline price points from the
	// analytics store instead of the ledger.
	History storage.TradeHistoryStore
	Cache   cache.Cache
	Logger  *zap.Logger
}

// Computer refreshes the metrics block of one token.
type Computer struct {
	gateway contracts.Gateway
	ledger  storage.Ledger
	history storage.TradeHistoryStore
	cache   cache.Cache
	logger  *zap.Logger
	now     func() time.Time
}

// NewComputer creates a Computer.
func NewComputer(gateway contracts.Gateway, ledger storage.Ledger, opts ComputerOptions) *Computer {
	c := opts.Cache
	if c == nil {
		c = cache.Noop{}
	}
	return &Computer{
		gateway: gateway,
		ledger:  ledger,
		history: opts.History,
		cache:   c,
		logger:  logging.OrNop(opts.Logger).Named("recompute"),
		now:     time.Now,
	}
}

// RefreshToken recomputes and stores the metrics of address. On any chain
// read failure the stored metrics are left as they were.
func (c *Computer) RefreshToken(ctx context.Context, address string) (domain.TokenMetrics, error) {
	now := c.now().UTC()

	price, err := c.gateway.CurrentPrice(ctx, address)
	if err != nil {
		return domain.TokenMetrics{}, fmt.Errorf("current price: %w", err)
	}
	info, err := c.gateway.TokenInfo(ctx, address)
	if err != nil {
		return domain.TokenMetrics{}, fmt.Errorf("token info: %w", err)
	}

	holders, err := c.ledger.Holders.CountNonZero(ctx, address)
	if err != nil {
		return domain.TokenMetrics{}, fmt.Errorf("count holders: %w", err)
	}

	trades, err := c.ledger.Transactions.ListTradesSince(ctx, address, now.Add(-baselineLookback))
	if err != nil {
		return domain.TokenMetrics{}, fmt.Errorf("list trades: %w", err)
	}

	dayAgo := now.Add(-24 * time.Hour)
	change := 0.0
	if base, ok := Baseline(c.pricePoints(ctx, address, trades, now), dayAgo); ok {
		change = PriceChange(price, base)
	}

	supply := domain.BigString(info.CurrentSupply)
	m := domain.TokenMetrics{
		CurrentPrice:   price,
		MarketCap:      price * domain.WeiToEther(supply),
		CurrentSupply:  supply,
		ReserveBalance: domain.BigString(info.ReserveBalance),
		HolderCount:    holders,
		Volume24h:      Volume(trades, dayAgo),
		PriceChange24h: change,
		UpdatedAt:      &now,
	}
	m.Sanitize()

	if err := c.ledger.Tokens.UpdateMetrics(ctx, address, m); err != nil {
		return domain.TokenMetrics{}, fmt.Errorf("update metrics: %w", err)
	}
	if err := c.cache.Delete(ctx, cache.TokenKey(address)); err != nil {
		c.logger.Debug("cache invalidation failed", zap.String("address", address), zap.Error(err))
	}
	return m, nil
}

// InitialMetrics is the best-effort metrics block for a newly stored token:
// on-chain price and curve state, zero activity. A failed read yields zero
// values with UpdatedAt nil so the token is picked up for enrichment later.
func (c *Computer) InitialMetrics(ctx context.Context, address string) domain.TokenMetrics {
	var m domain.TokenMetrics
	price, err := c.gateway.CurrentPrice(ctx, address)
	if err == nil {
		var info contracts.TokenInfo
		if info, err = c.gateway.TokenInfo(ctx, address); err == nil {
			now := c.now().UTC()
			supply := domain.BigString(info.CurrentSupply)
			m = domain.TokenMetrics{
				CurrentPrice:   price,
				MarketCap:      price * domain.WeiToEther(supply),
				CurrentSupply:  supply,
				ReserveBalance: domain.BigString(info.ReserveBalance),
				UpdatedAt:      &now,
			}
		}
	}
	if err != nil {
		c.logger.Debug("initial metrics unavailable", zap.String("address", address), zap.Error(err))
	}
	m.Sanitize()
	return m
}

func (c *Computer) pricePoints(ctx context.Context, address string, trades []*domain.Transaction, now time.Time) []PricePoint {
	if c.history != nil {
		points, err := c.history.GetByTimeRange(ctx, address, now.Add(-baselineLookback), now)
		if err == nil {
			return pointsFromHistory(points)
		}
		c.logger.Warn("trade history unavailable, using ledger", zap.String("address", address), zap.Error(err))
	}
	return pointsFromTransactions(trades)
}
