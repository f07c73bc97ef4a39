// Package contracts decodes launchpad events and wraps the contract view
// calls the indexer needs, on top of a chain.Reader.
package contracts

import (
	"context"
	"math/big"

	"launchpad-indexer/internal/domain"
)

// TokenInfo is the marketplace's view of a token's bonding curve.
type TokenInfo struct {
	CurrentSupply  *big.Int
	ReserveBalance *big.Int
	ReserveRatio   uint32
	TradingEnabled bool
}

// TokenDetails are the static fields read from the token contract itself.
type TokenDetails struct {
	Name        string
	Symbol      string
	TotalSupply *big.Int
	ContentURI  string // empty when the token does not expose metadataURI
}

// Gateway is the typed contract surface. Event queries are inclusive of
// both block bounds and return events ordered by (block, log index).
type Gateway interface {
	BlockNumber(ctx context.Context) (uint64, error)

	TokenCreatedEvents(ctx context.Context, from, to uint64) ([]domain.TokenCreated, error)
	TokenListedEvents(ctx context.Context, from, to uint64) ([]domain.TokenListed, error)
	// TradeEvents returns TokensBought and TokensSold interleaved.
	TradeEvents(ctx context.Context, from, to uint64) ([]domain.Event, error)

	// CurrentPrice returns the spot price in ETH per whole token.
	CurrentPrice(ctx context.Context, token string) (float64, error)
	TokenInfo(ctx context.Context, token string) (TokenInfo, error)
	PurchaseReturn(ctx context.Context, token string, ethIn *big.Int) (*big.Int, error)
	SaleReturn(ctx context.Context, token string, tokensIn *big.Int) (*big.Int, error)

	BalanceOf(ctx context.Context, token, holder string) (*big.Int, error)
	TokenDetails(ctx context.Context, token string) (TokenDetails, error)
	AllTokens(ctx context.Context) ([]string, error)
}
