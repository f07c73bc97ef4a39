package memory

import "launchpad-indexer/internal/storage"

// NewLedger returns a storage.Ledger backed entirely by memory stores.
func NewLedger() storage.Ledger {
	return storage.Ledger{
		Tokens:       NewTokenStore(),
		Transactions: NewTransactionStore(),
		Holders:      NewHolderStore(),
		Portfolios:   NewPortfolioStore(),
		Content:      NewContentCacheStore(),
	}
}
