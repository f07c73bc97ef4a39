package domain

import "time"

// Holder is a (token, holder) balance re-read from the chain.
// Corresponds to holders table in PostgreSQL.
type Holder struct {
	TokenAddress    string
	HolderAddress   string
	Balance         string // smallest-unit string, authoritative on-chain value
	FirstAcquiredAt time.Time
	UpdatedAt       time.Time
}

// HasBalance reports whether the balance is non-zero.
func (h *Holder) HasBalance() bool {
	return h.Balance != "" && h.Balance != "0"
}
