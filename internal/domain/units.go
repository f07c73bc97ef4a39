package domain

import (
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

// Decimals of ETH and of every launchpad token.
const Decimals = 18

// WeiToEther converts a smallest-unit integer string into a whole-unit float.
// Malformed input yields 0.
func WeiToEther(wei string) float64 {
	if wei == "" {
		return 0
	}
	d, err := decimal.NewFromString(wei)
	if err != nil {
		return 0
	}
	return d.Shift(-Decimals).InexactFloat64()
}

// BigToEther converts a smallest-unit big integer into a whole-unit float.
func BigToEther(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	return decimal.NewFromBigInt(v, -Decimals).InexactFloat64()
}

// BigString renders v as a decimal string, "0" for nil.
func BigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// TradePrice returns ETH per token for a trade, 0 when tokenAmount is zero.
func TradePrice(ethAmount, tokenAmount *big.Int) float64 {
	if ethAmount == nil || tokenAmount == nil || tokenAmount.Sign() == 0 {
		return 0
	}
	eth := decimal.NewFromBigInt(ethAmount, 0)
	tokens := decimal.NewFromBigInt(tokenAmount, 0)
	return NonNegative(eth.DivRound(tokens, 36).InexactFloat64())
}

// NonNegative maps NaN, Inf and negatives to 0.
func NonNegative(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// Finite maps NaN and Inf to 0.
func Finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
