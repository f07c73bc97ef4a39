package indexer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"launchpad-indexer/internal/cache"
	"launchpad-indexer/internal/domain"
)

// ResyncResult summarizes a holder resync.
type ResyncResult struct {
	Token   string `json:"token"`
	Holders int    `json:"holders"`
	Updated int    `json:"updated"`
	Failed  int    `json:"failed"`
}

// ResyncHolders re-reads the on-chain balance of every known holder of
// token, overwrites the stored rows and rebuilds their portfolios. Zero
// balances are kept so the holder stays known; HolderCount only counts
// non-zero rows.
func (ix *Indexer) ResyncHolders(ctx context.Context, token string) (ResyncResult, error) {
	token = domain.NormalizeAddress(token)
	res := ResyncResult{Token: token}

	holders, err := ix.ledger.Holders.ListByToken(ctx, token)
	if err != nil {
		return res, fmt.Errorf("list holders: %w", err)
	}
	res.Holders = len(holders)

	price, priceErr := ix.gateway.CurrentPrice(ctx, token)
	if priceErr != nil {
		ix.logger.Warn("current price unavailable, portfolios not rebuilt", zap.String("token", token), zap.Error(priceErr))
	}

	for _, h := range holders {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		balance, err := ix.gateway.BalanceOf(ctx, token, h.HolderAddress)
		if err != nil {
			ix.logger.Warn("holder balance read failed",
				zap.String("token", token),
				zap.String("holder", h.HolderAddress),
				zap.Error(err),
			)
			res.Failed++
			continue
		}
		h.Balance = balance.String()
		h.UpdatedAt = time.Now().UTC()
		if err := ix.ledger.Holders.Upsert(ctx, h); err != nil {
			ix.logger.Warn("holder upsert failed",
				zap.String("token", token),
				zap.String("holder", h.HolderAddress),
				zap.Error(err),
			)
			res.Failed++
			continue
		}
		if priceErr == nil {
			if _, err := ix.portfolios.Recompute(ctx, h.HolderAddress, token, balance, price); err != nil {
				ix.logger.Warn("portfolio rebuild failed",
					zap.String("token", token),
					zap.String("holder", h.HolderAddress),
					zap.Error(err),
				)
			}
		}
		res.Updated++
	}

	if _, err := ix.metrics.RefreshToken(ctx, token); err != nil {
		ix.logger.Warn("metrics refresh after resync failed", zap.String("token", token), zap.Error(err))
	}
	ix.invalidate(ctx, cache.TokenKey(token), cache.HoldersKey(token))
	for _, h := range holders {
		if err := ix.cache.DeletePattern(ctx, cache.PortfolioPrefix(h.HolderAddress)); err != nil {
			ix.logger.Debug("portfolio cache invalidation failed", zap.String("user", h.HolderAddress), zap.Error(err))
		}
	}

	ix.logger.Info("holders resynced",
		zap.String("token", token),
		zap.Int("holders", res.Holders),
		zap.Int("updated", res.Updated),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}
