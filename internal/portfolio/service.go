package portfolio

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"launchpad-indexer/internal/domain"
	"launchpad-indexer/internal/storage"
)

// Service rebuilds portfolio rows from the transaction ledger.
type Service struct {
	txs        storage.TransactionStore
	portfolios storage.PortfolioStore
	now        func() time.Time
}

// NewService creates a Service.
func NewService(txs storage.TransactionStore, portfolios storage.PortfolioStore) *Service {
	return &Service{txs: txs, portfolios: portfolios, now: time.Now}
}

// Recompute replays the full (user, token) history and replaces the stored
// row. balance is the authoritative on-chain balance.
func (s *Service) Recompute(ctx context.Context, user, token string, balance *big.Int, currentPrice float64) (*domain.Portfolio, error) {
	history, err := s.txs.ListByUserToken(ctx, user, token)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}

	pos := Compute(history)
	balanceWei := domain.BigString(balance)
	p := &domain.Portfolio{
		UserAddress:   user,
		TokenAddress:  token,
		Balance:       balanceWei,
		AveragePrice:  domain.NonNegative(pos.AveragePrice),
		TotalInvested: domain.NonNegative(pos.TotalInvested),
		RealizedPnL:   pos.RealizedPnL,
		UnrealizedPnL: pos.Unrealized(currentPrice, balanceWei),
		UpdatedAt:     s.now().UTC(),
	}
	if err := s.portfolios.Upsert(ctx, p); err != nil {
		return nil, fmt.Errorf("upsert portfolio: %w", err)
	}
	return p, nil
}
