package domain

import (
	"strings"
	"time"
)

// Token is a launchpad token and its derived market metrics.
// Corresponds to tokens table in PostgreSQL.
type Token struct {
	Address        string // lower-case contract address, unique
	Name           string
	Symbol         string
	Creator        string // lower-case creator address
	TotalSupply    string // smallest-unit integer string
	ReserveRatio   uint32 // contract-defined, opaque
	ContentURI     string // off-chain metadata URI as emitted
	Metadata       *TokenMetadata
	LogoURL        string // gateway-backed display URL of Metadata.Image
	Description    string
	Links          SocialLinks
	CreatedBlock   uint64
	CreatedTxHash  string
	CreatedAt      time.Time
	TradingEnabled bool
	Metrics        TokenMetrics
}

// CreationKnown reports whether the creation event has been applied.
// Tokens first seen through a listing, a trade, or bootstrap have no creation tx.
func (t *Token) CreationKnown() bool {
	return t.CreatedTxHash != ""
}

// SocialLinks holds sanitized links taken from the metadata document.
type SocialLinks struct {
	Website  string `json:"website,omitempty"`
	Twitter  string `json:"twitter,omitempty"`
	Telegram string `json:"telegram,omitempty"`
	Discord  string `json:"discord,omitempty"`
}

// TokenMetrics is the derived metrics block of a token.
// All float fields are non-negative and finite; see Sanitize.
type TokenMetrics struct {
	CurrentPrice   float64    // ETH per whole token
	MarketCap      float64    // ETH
	CurrentSupply  string     // smallest-unit integer string
	ReserveBalance string     // wei
	HolderCount    int64
	Volume24h      float64    // ETH
	PriceChange24h float64    // percent, may be negative
	UpdatedAt      *time.Time // nil = never successfully enriched
}

// Sanitize replaces NaN, Inf and negative values with zero.
// PriceChange24h may legitimately be negative and only loses NaN/Inf.
func (m *TokenMetrics) Sanitize() {
	m.CurrentPrice = NonNegative(m.CurrentPrice)
	m.MarketCap = NonNegative(m.MarketCap)
	m.Volume24h = NonNegative(m.Volume24h)
	m.PriceChange24h = Finite(m.PriceChange24h)
	if m.HolderCount < 0 {
		m.HolderCount = 0
	}
	if m.CurrentSupply == "" {
		m.CurrentSupply = "0"
	}
	if m.ReserveBalance == "" {
		m.ReserveBalance = "0"
	}
}

// NormalizeAddress lower-cases and trims a hex address.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
