package domain

import "time"

// Portfolio is a user's position in one token, recomputed from full history.
// Corresponds to user_portfolios table in PostgreSQL.
type Portfolio struct {
	UserAddress   string
	TokenAddress  string
	Balance       string  // on-chain balance, smallest unit
	AveragePrice  float64 // ETH per token
	TotalInvested float64 // ETH
	RealizedPnL   float64 // ETH
	UnrealizedPnL float64 // ETH
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
