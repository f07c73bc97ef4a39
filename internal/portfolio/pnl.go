// Package portfolio computes weighted-average-cost PnL for a (user, token)
// position from its complete transaction history.
package portfolio

import (
	"sort"

	"launchpad-indexer/internal/domain"
)

// dustThreshold absorbs floating-point drift when a sell empties a position.
const dustThreshold = 1e-7

// Position is the result of replaying a history.
type Position struct {
	TokensHeld    float64 // whole tokens
	CostBasis     float64 // ETH attributed to TokensHeld
	RealizedPnL   float64 // ETH
	TotalInvested float64 // ETH ever spent on buys
	AveragePrice  float64 // CostBasis / TokensHeld, 0 when flat
}

// Compute replays history in timestamp order. CREATE allocations enter at
// zero cost; sells realize against the running average cost.
func Compute(history []*domain.Transaction) Position {
	txs := make([]*domain.Transaction, len(history))
	copy(txs, history)
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].Timestamp.Equal(txs[j].Timestamp) {
			return txs[i].Timestamp.Before(txs[j].Timestamp)
		}
		return txs[i].BlockNumber < txs[j].BlockNumber
	})

	var p Position
	for _, tx := range txs {
		switch tx.Type {
		case domain.TxCreate:
			p.TokensHeld += domain.WeiToEther(tx.AmountOut)

		case domain.TxBuy:
			ethSpent := domain.WeiToEther(tx.AmountIn)
			tokensBought := domain.WeiToEther(tx.AmountOut)
			p.CostBasis += ethSpent
			p.TokensHeld += tokensBought
			p.TotalInvested += ethSpent

		case domain.TxSell:
			tokensSold := domain.WeiToEther(tx.AmountIn)
			ethReceived := domain.WeiToEther(tx.AmountOut)
			avgCost := 0.0
			if p.TokensHeld > 0 {
				avgCost = p.CostBasis / p.TokensHeld
			}
			costBasisSold := avgCost * tokensSold
			p.RealizedPnL += ethReceived - costBasisSold
			p.TokensHeld -= tokensSold
			p.CostBasis -= costBasisSold
			if p.TokensHeld < dustThreshold {
				p.TokensHeld = 0
			}
			if p.CostBasis < dustThreshold {
				p.CostBasis = 0
			}
		}
	}

	if p.TokensHeld > 0 {
		p.AveragePrice = p.CostBasis / p.TokensHeld
	}
	p.RealizedPnL = domain.Finite(p.RealizedPnL)
	return p
}

// Unrealized values the on-chain balance at currentPrice against the cost
// basis. It is 0 for a flat position.
func (p Position) Unrealized(currentPrice float64, balanceWei string) float64 {
	if p.TokensHeld <= 0 {
		return 0
	}
	return domain.Finite(currentPrice*domain.WeiToEther(balanceWei) - p.CostBasis)
}
