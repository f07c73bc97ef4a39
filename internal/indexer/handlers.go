package indexer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"launchpad-indexer/internal/cache"
	"launchpad-indexer/internal/domain"
	"launchpad-indexer/internal/storage"
)

// trade is the side-independent view of TokensBought and TokensSold.
type trade struct {
	domain.EventMeta
	Token       string
	Trader      string
	Side        domain.TxType
	EthAmount   *big.Int
	TokenAmount *big.Int
}

func tradeFromBought(e domain.TokensBought) trade {
	return trade{e.EventMeta, e.Token, e.Buyer, domain.TxBuy, e.EthAmount, e.TokenAmount}
}

func tradeFromSold(e domain.TokensSold) trade {
	return trade{e.EventMeta, e.Token, e.Seller, domain.TxSell, e.EthAmount, e.TokenAmount}
}

// amounts returns (amountIn, amountOut): ETH in for a buy, tokens in for a sell.
func (t trade) amounts() (string, string) {
	if t.Side == domain.TxBuy {
		return domain.BigString(t.EthAmount), domain.BigString(t.TokenAmount)
	}
	return domain.BigString(t.TokenAmount), domain.BigString(t.EthAmount)
}

func (ix *Indexer) handleCreated(ctx context.Context, b *batch, e domain.TokenCreated) error {
	existing, err := ix.ledger.Tokens.Get(ctx, e.Token)
	switch {
	case err == nil && existing.CreationKnown():
		return nil
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("get token: %w", err)
	}

	tok := &domain.Token{
		Address:       e.Token,
		Name:          e.Name,
		Symbol:        e.Symbol,
		Creator:       e.Creator,
		TotalSupply:   domain.BigString(e.TotalSupply),
		ReserveRatio:  e.ReserveRatio,
		ContentURI:    e.ContentURI,
		CreatedBlock:  e.BlockNumber,
		CreatedTxHash: e.TxHash,
		CreatedAt:     e.Timestamp,
	}
	ix.applyMetadata(ctx, tok)

	inserted := false
	if existing == nil {
		if inserted, err = ix.insertToken(ctx, tok); err != nil {
			return err
		}
	}
	if !inserted {
		if err := ix.ledger.Tokens.CompleteCreation(ctx, tok); err != nil {
			return fmt.Errorf("complete creation: %w", err)
		}
	}
	b.written++

	if err := ix.ensureCreateTx(ctx, e.EventMeta, e.Creator, e.Token, tok.TotalSupply); err != nil {
		return err
	}
	ix.invalidate(ctx, cache.TokenKey(e.Token))
	return nil
}

func (ix *Indexer) handleListed(ctx context.Context, b *batch, e domain.TokenListed) error {
	exists, err := ix.ledger.Tokens.Exists(ctx, e.Token)
	if err != nil {
		return fmt.Errorf("token exists: %w", err)
	}
	if exists {
		changed, err := ix.ledger.Tokens.EnableTrading(ctx, e.Token)
		if err != nil {
			return fmt.Errorf("enable trading: %w", err)
		}
		if changed {
			b.written++
			ix.invalidate(ctx, cache.TokenKey(e.Token))
		}
		return nil
	}

	tok, err := ix.tokenFromContract(ctx, e.Token)
	if err != nil {
		return err
	}
	tok.Creator = e.Creator
	if _, err := ix.insertToken(ctx, tok); err != nil {
		return err
	}
	b.written++

	if err := ix.ensureCreateTx(ctx, e.EventMeta, e.Creator, e.Token, tok.TotalSupply); err != nil {
		return err
	}
	ix.invalidate(ctx, cache.TokenKey(e.Token))
	return nil
}

func (ix *Indexer) handleTrade(ctx context.Context, b *batch, t trade) error {
	exists, err := ix.ledger.Transactions.Exists(ctx, t.TxHash)
	if err != nil {
		return fmt.Errorf("tx exists: %w", err)
	}
	if exists {
		return nil
	}

	if err := ix.ensureTradingToken(ctx, t.Token); err != nil {
		return err
	}

	// Read the balance before the transaction row exists: once written, the
	// row makes a replay skip this trade.
	balance, balanceErr := ix.gateway.BalanceOf(ctx, t.Token, t.Trader)
	if balanceErr != nil && transient(balanceErr) {
		return fmt.Errorf("balance of %s: %w", t.Trader, balanceErr)
	}

	price := domain.TradePrice(t.EthAmount, t.TokenAmount)
	in, out := t.amounts()
	tx := &domain.Transaction{
		Hash:         t.TxHash,
		UserAddress:  t.Trader,
		TokenAddress: t.Token,
		Type:         t.Side,
		AmountIn:     in,
		AmountOut:    out,
		Price:        price,
		BlockNumber:  t.BlockNumber,
		Timestamp:    t.Timestamp,
		Status:       domain.TxStatusConfirmed,
	}
	if err := ix.ledger.Transactions.Insert(ctx, tx); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	b.written++
	b.points = append(b.points, domain.TradePoint{
		TokenAddress: t.Token,
		TxHash:       t.TxHash,
		Side:         t.Side,
		Trader:       t.Trader,
		EthAmount:    domain.BigToEther(t.EthAmount),
		TokenAmount:  domain.BigToEther(t.TokenAmount),
		Price:        price,
		BlockNumber:  t.BlockNumber,
		Timestamp:    t.Timestamp,
	})

	if balanceErr != nil {
		ix.logger.Warn("trader balance unavailable",
			zap.String("token", t.Token),
			zap.String("user", t.Trader),
			zap.String("tx", t.TxHash),
			zap.Error(balanceErr),
		)
		ix.registerHolder(ctx, t.Token, t.Trader, t.Timestamp)
	} else if err := ix.syncPosition(ctx, t.Token, t.Trader, balance, t.Timestamp, price); err != nil {
		ix.logger.Warn("position sync failed",
			zap.String("token", t.Token),
			zap.String("user", t.Trader),
			zap.String("tx", t.TxHash),
			zap.Error(err),
		)
	}
	if _, err := ix.metrics.RefreshToken(ctx, t.Token); err != nil {
		ix.logger.Warn("metrics refresh failed", zap.String("token", t.Token), zap.Error(err))
	}
	ix.invalidate(ctx, cache.TokenKey(t.Token), cache.HoldersKey(t.Token))
	if err := ix.cache.DeletePattern(ctx, cache.PortfolioPrefix(t.Trader)); err != nil {
		ix.logger.Debug("portfolio cache invalidation failed", zap.String("user", t.Trader), zap.Error(err))
	}
	return nil
}

// syncPosition upserts the holder row with the on-chain balance and
// rebuilds the trader's portfolio for the token.
func (ix *Indexer) syncPosition(ctx context.Context, token, user string, balance *big.Int, at time.Time, tradePrice float64) error {
	if err := ix.ledger.Holders.Upsert(ctx, &domain.Holder{
		TokenAddress:    token,
		HolderAddress:   user,
		Balance:         balance.String(),
		FirstAcquiredAt: at,
		UpdatedAt:       at,
	}); err != nil {
		return fmt.Errorf("upsert holder: %w", err)
	}

	price, err := ix.gateway.CurrentPrice(ctx, token)
	if err != nil {
		ix.logger.Debug("current price unavailable, using trade price", zap.String("token", token), zap.Error(err))
		price = tradePrice
	}
	if _, err := ix.portfolios.Recompute(ctx, user, token, balance, price); err != nil {
		return fmt.Errorf("recompute portfolio: %w", err)
	}
	return nil
}

// registerHolder records a trader whose balance could not be read with a
// zero balance, so holder resync can find it. An existing row is kept.
func (ix *Indexer) registerHolder(ctx context.Context, token, user string, at time.Time) {
	_, err := ix.ledger.Holders.Get(ctx, token, user)
	if err == nil {
		return
	}
	if !errors.Is(err, storage.ErrNotFound) {
		ix.logger.Warn("holder lookup failed", zap.String("token", token), zap.String("user", user), zap.Error(err))
		return
	}
	if err := ix.ledger.Holders.Upsert(ctx, &domain.Holder{
		TokenAddress:    token,
		HolderAddress:   user,
		Balance:         "0",
		FirstAcquiredAt: at,
		UpdatedAt:       at,
	}); err != nil {
		ix.logger.Warn("holder placeholder failed", zap.String("token", token), zap.String("user", user), zap.Error(err))
	}
}

// ensureTradingToken makes sure a traded token exists with trading enabled.
// A token first seen through a trade is created from its contract.
func (ix *Indexer) ensureTradingToken(ctx context.Context, address string) error {
	exists, err := ix.ledger.Tokens.Exists(ctx, address)
	if err != nil {
		return fmt.Errorf("token exists: %w", err)
	}
	if !exists {
		tok, err := ix.tokenFromContract(ctx, address)
		if err != nil {
			return err
		}
		_, err = ix.insertToken(ctx, tok)
		return err
	}
	if _, err := ix.ledger.Tokens.EnableTrading(ctx, address); err != nil {
		return fmt.Errorf("enable trading: %w", err)
	}
	return nil
}

// tokenFromContract builds a trading-enabled token from the token contract.
// A reverted read leaves the static fields empty; a transient failure is
// returned so the batch is retried.
func (ix *Indexer) tokenFromContract(ctx context.Context, address string) (*domain.Token, error) {
	tok := &domain.Token{Address: address, TradingEnabled: true}
	details, err := ix.gateway.TokenDetails(ctx, address)
	if err != nil {
		if transient(err) {
			return nil, fmt.Errorf("token details: %w", err)
		}
		ix.logger.Warn("token details unavailable", zap.String("token", address), zap.Error(err))
		return tok, nil
	}
	tok.Name = details.Name
	tok.Symbol = details.Symbol
	tok.TotalSupply = domain.BigString(details.TotalSupply)
	tok.ContentURI = details.ContentURI
	ix.applyMetadata(ctx, tok)
	return tok, nil
}

// insertToken stores tok with best-effort initial metrics. Losing a create
// race to another writer is success and reports inserted=false.
func (ix *Indexer) insertToken(ctx context.Context, tok *domain.Token) (bool, error) {
	tok.Metrics = ix.metrics.InitialMetrics(ctx, tok.Address)
	err := ix.ledger.Tokens.Insert(ctx, tok)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, storage.ErrDuplicateKey):
		if tok.TradingEnabled {
			if _, err := ix.ledger.Tokens.EnableTrading(ctx, tok.Address); err != nil {
				return false, fmt.Errorf("enable trading: %w", err)
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("insert token: %w", err)
	}
}

// ensureCreateTx writes the creator's synthetic CREATE allocation once per
// token, whichever event discovers the creation first.
func (ix *Indexer) ensureCreateTx(ctx context.Context, meta domain.EventMeta, creator, token, supply string) error {
	if creator == "" {
		return nil
	}
	hash := domain.CreateTxHash(meta.TxHash, meta.LogIndex)
	exists, err := ix.ledger.Transactions.Exists(ctx, hash)
	if err != nil {
		return fmt.Errorf("tx exists: %w", err)
	}
	if exists {
		return nil
	}
	history, err := ix.ledger.Transactions.ListByUserToken(ctx, creator, token)
	if err != nil {
		return fmt.Errorf("list creator history: %w", err)
	}
	for _, tx := range history {
		if tx.Type == domain.TxCreate {
			return nil
		}
	}

	err = ix.ledger.Transactions.Insert(ctx, &domain.Transaction{
		Hash:         hash,
		UserAddress:  creator,
		TokenAddress: token,
		Type:         domain.TxCreate,
		AmountIn:     "0",
		AmountOut:    supply,
		Price:        0,
		BlockNumber:  meta.BlockNumber,
		Timestamp:    meta.Timestamp,
		Status:       domain.TxStatusConfirmed,
	})
	if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		return fmt.Errorf("insert create tx: %w", err)
	}
	return nil
}

// applyMetadata resolves tok.ContentURI. Missing metadata leaves the
// metadata fields empty.
func (ix *Indexer) applyMetadata(ctx context.Context, tok *domain.Token) {
	if tok.ContentURI == "" || ix.metadata == nil {
		return
	}
	md, err := ix.metadata.Resolve(ctx, tok.ContentURI)
	if err != nil {
		ix.logger.Debug("metadata unavailable",
			zap.String("token", tok.Address),
			zap.String("uri", tok.ContentURI),
			zap.Error(err),
		)
		return
	}
	tok.Metadata = md
	tok.LogoURL = md.ImageURL
	tok.Description = md.Description
	tok.Links = md.Links
}
