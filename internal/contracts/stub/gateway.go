package stub

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"launchpad-indexer/internal/contracts"
	"launchpad-indexer/internal/domain"
)

// ErrUnknownToken is returned by view calls for tokens the stub has no data for.
var ErrUnknownToken = errors.New("unknown token")

// Gateway implements contracts.Gateway in memory for testing.
// Events are returned for any block range that contains them.
type Gateway struct {
	mu sync.Mutex

	Height  uint64
	Created []domain.TokenCreated
	Listed  []domain.TokenListed
	Trades  []domain.Event

	Prices   map[string]float64
	Infos    map[string]contracts.TokenInfo
	Details  map[string]contracts.TokenDetails
	Balances map[string]map[string]*big.Int // token -> holder -> balance
	Tokens   []string

	// Errors forces a method, by name, to fail.
	Errors map[string]error
	// Calls counts invocations by method name.
	Calls map[string]int
}

// NewGateway creates an empty stub.
func NewGateway() *Gateway {
	return &Gateway{
		Prices:   make(map[string]float64),
		Infos:    make(map[string]contracts.TokenInfo),
		Details:  make(map[string]contracts.TokenDetails),
		Balances: make(map[string]map[string]*big.Int),
		Errors:   make(map[string]error),
		Calls:    make(map[string]int),
	}
}

// Fail makes method return err until cleared with Fail(method, nil).
func (g *Gateway) Fail(method string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		delete(g.Errors, method)
		return
	}
	g.Errors[method] = err
}

// SetBalance sets holder's balance of token.
func (g *Gateway) SetBalance(token, holder string, balance *big.Int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Balances[token] == nil {
		g.Balances[token] = make(map[string]*big.Int)
	}
	g.Balances[token][holder] = new(big.Int).Set(balance)
}

// SetHeight sets the reported chain height.
func (g *Gateway) SetHeight(h uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Height = h
}

// CallCount returns how many times method was invoked.
func (g *Gateway) CallCount(method string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Calls[method]
}

func (g *Gateway) enter(method string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls[method]++
	return g.Errors[method]
}

// BlockNumber returns Height.
func (g *Gateway) BlockNumber(_ context.Context) (uint64, error) {
	if err := g.enter("BlockNumber"); err != nil {
		return 0, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Height, nil
}

// TokenCreatedEvents returns Created events inside [from, to].
func (g *Gateway) TokenCreatedEvents(_ context.Context, from, to uint64) ([]domain.TokenCreated, error) {
	if err := g.enter("TokenCreatedEvents"); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []domain.TokenCreated
	for _, e := range g.Created {
		if inRange(e.BlockNumber, from, to) {
			out = append(out, e)
		}
	}
	return out, nil
}

// TokenListedEvents returns Listed events inside [from, to].
func (g *Gateway) TokenListedEvents(_ context.Context, from, to uint64) ([]domain.TokenListed, error) {
	if err := g.enter("TokenListedEvents"); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []domain.TokenListed
	for _, e := range g.Listed {
		if inRange(e.BlockNumber, from, to) {
			out = append(out, e)
		}
	}
	return out, nil
}

// TradeEvents returns Trades inside [from, to].
func (g *Gateway) TradeEvents(_ context.Context, from, to uint64) ([]domain.Event, error) {
	if err := g.enter("TradeEvents"); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []domain.Event
	for _, e := range g.Trades {
		if inRange(e.Meta().BlockNumber, from, to) {
			out = append(out, e)
		}
	}
	return out, nil
}

// CurrentPrice returns Prices[token], 0 when unset.
func (g *Gateway) CurrentPrice(_ context.Context, token string) (float64, error) {
	if err := g.enter("CurrentPrice"); err != nil {
		return 0, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Prices[token], nil
}

// TokenInfo returns Infos[token] with nil amounts replaced by zero.
func (g *Gateway) TokenInfo(_ context.Context, token string) (contracts.TokenInfo, error) {
	if err := g.enter("TokenInfo"); err != nil {
		return contracts.TokenInfo{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	info := g.Infos[token]
	if info.CurrentSupply == nil {
		info.CurrentSupply = new(big.Int)
	}
	if info.ReserveBalance == nil {
		info.ReserveBalance = new(big.Int)
	}
	return info, nil
}

// PurchaseReturn prices ethIn at the stub's current price.
func (g *Gateway) PurchaseReturn(_ context.Context, token string, ethIn *big.Int) (*big.Int, error) {
	if err := g.enter("PurchaseReturn"); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	price := g.Prices[token]
	if price == 0 {
		return new(big.Int), nil
	}
	out, _ := new(big.Float).Quo(new(big.Float).SetInt(ethIn), big.NewFloat(price)).Int(nil)
	return out, nil
}

// SaleReturn prices tokensIn at the stub's current price.
func (g *Gateway) SaleReturn(_ context.Context, token string, tokensIn *big.Int) (*big.Int, error) {
	if err := g.enter("SaleReturn"); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	out, _ := new(big.Float).Mul(new(big.Float).SetInt(tokensIn), big.NewFloat(g.Prices[token])).Int(nil)
	return out, nil
}

// BalanceOf returns the configured balance, 0 when unset.
func (g *Gateway) BalanceOf(_ context.Context, token, holder string) (*big.Int, error) {
	if err := g.enter("BalanceOf"); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if b, ok := g.Balances[token][holder]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

// TokenDetails returns Details[token] or ErrUnknownToken.
func (g *Gateway) TokenDetails(_ context.Context, token string) (contracts.TokenDetails, error) {
	if err := g.enter("TokenDetails"); err != nil {
		return contracts.TokenDetails{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	d, ok := g.Details[token]
	if !ok {
		return contracts.TokenDetails{}, ErrUnknownToken
	}
	return d, nil
}

// AllTokens returns Tokens.
func (g *Gateway) AllTokens(_ context.Context) ([]string, error) {
	if err := g.enter("AllTokens"); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.Tokens...), nil
}

func inRange(block, from, to uint64) bool {
	return block >= from && block <= to
}

var _ contracts.Gateway = (*Gateway)(nil)
