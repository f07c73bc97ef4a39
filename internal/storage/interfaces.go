package storage

import (
	"context"
	"time"

	"launchpad-indexer/internal/domain"
)

// TokenStore provides access to tokens storage.
type TokenStore interface {
	// Insert adds a new token. Returns ErrDuplicateKey if the address exists;
	// the existing row is left untouched.
	Insert(ctx context.Context, t *domain.Token) error

	// Get retrieves a token by address. Returns ErrNotFound if not exists.
	Get(ctx context.Context, address string) (*domain.Token, error)

	// Exists reports whether a token row exists.
	Exists(ctx context.Context, address string) (bool, error)

	// EnableTrading sets trading_enabled=true if it is currently false.
	// Reports whether a write happened. Returns ErrNotFound if not exists.
	EnableTrading(ctx context.Context, address string) (bool, error)

	// CompleteCreation fills creation fields (creator, creation block/tx/time,
	// content URI, reserve ratio, total supply, metadata) on a token that was
	// first stored without its creation event. Fields already set are kept.
	// Returns ErrNotFound if not exists.
	CompleteCreation(ctx context.Context, t *domain.Token) error

	// UpdateMetrics replaces the metrics block. Returns ErrNotFound if not exists.
	UpdateMetrics(ctx context.Context, address string, m domain.TokenMetrics) error

	// ListAddresses returns every token address.
	ListAddresses(ctx context.Context) ([]string, error)

	// ListUnenriched returns up to limit addresses whose metrics were never
	// successfully computed, ordered by address.
	ListUnenriched(ctx context.Context, limit int) ([]string, error)

	// ListPage returns addresses ordered by address, skipping offset rows.
	ListPage(ctx context.Context, offset, limit int) ([]string, error)
}

// TransactionStore provides access to transactions storage.
type TransactionStore interface {
	// Insert adds a new transaction. Returns ErrDuplicateKey if the hash exists.
	Insert(ctx context.Context, tx *domain.Transaction) error

	// Exists reports whether a transaction with hash exists.
	Exists(ctx context.Context, hash string) (bool, error)

	// MaxBlock returns the highest block number written, ok=false when empty.
	MaxBlock(ctx context.Context) (block uint64, ok bool, err error)

	// ListByUserToken returns a user's transactions for a token ordered by
	// timestamp ASC, block ASC.
	ListByUserToken(ctx context.Context, user, token string) ([]*domain.Transaction, error)

	// ListTradesSince returns BUY/SELL rows for a token with timestamp >= since,
	// ordered by timestamp ASC.
	ListTradesSince(ctx context.Context, token string, since time.Time) ([]*domain.Transaction, error)

	// LastTradeTimes maps each token traded at or after since to its latest
	// BUY/SELL timestamp.
	LastTradeTimes(ctx context.Context, since time.Time) (map[string]time.Time, error)
}

// HolderStore provides access to holders storage.
type HolderStore interface {
	// Upsert writes the balance for (token, holder). FirstAcquiredAt is kept
	// from the existing row.
	Upsert(ctx context.Context, h *domain.Holder) error

	// Get retrieves one holder row. Returns ErrNotFound if not exists.
	Get(ctx context.Context, token, holder string) (*domain.Holder, error)

	// ListByToken returns every holder row of a token ordered by holder address.
	ListByToken(ctx context.Context, token string) ([]*domain.Holder, error)

	// CountNonZero counts holders of a token with a non-zero balance.
	CountNonZero(ctx context.Context, token string) (int64, error)
}

// PortfolioStore provides access to user_portfolios storage.
type PortfolioStore interface {
	// Upsert replaces the whole row for (user, token). CreatedAt is kept.
	Upsert(ctx context.Context, p *domain.Portfolio) error

	// Get retrieves one portfolio row. Returns ErrNotFound if not exists.
	Get(ctx context.Context, user, token string) (*domain.Portfolio, error)

	// ListByUser returns all positions of a user ordered by token address.
	ListByUser(ctx context.Context, user string) ([]*domain.Portfolio, error)
}

// ContentCacheStore provides access to content_cache storage.
type ContentCacheStore interface {
	// Get retrieves an entry by content hash. Returns ErrNotFound if not exists.
	Get(ctx context.Context, hash string) (*domain.ContentEntry, error)

	// Put inserts or replaces an entry.
	Put(ctx context.Context, e *domain.ContentEntry) error

	// Touch updates last_accessed_at. Missing entries are ignored.
	Touch(ctx context.Context, hash string, at time.Time) error
}

// TradeHistoryStore is the analytical append-only trade log.
type TradeHistoryStore interface {
	// InsertBulk appends trade points.
	InsertBulk(ctx context.Context, points []domain.TradePoint) error

	// GetByTimeRange returns points for token within [start, end] ordered by timestamp.
	GetByTimeRange(ctx context.Context, token string, start, end time.Time) ([]domain.TradePoint, error)
}

// Ledger bundles the relational stores the indexer writes through.
type Ledger struct {
	Tokens       TokenStore
	Transactions TransactionStore
	Holders      HolderStore
	Portfolios   PortfolioStore
	Content      ContentCacheStore
}
