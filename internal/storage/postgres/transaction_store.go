package postgres

import (
	"context"
	"fmt"
	"time"

	"launchpad-indexer/internal/domain"
	"launchpad-indexer/internal/storage"
)

// TransactionStore implements storage.TransactionStore using PostgreSQL.
type TransactionStore struct {
	pool *Pool
}

// NewTransactionStore creates a new TransactionStore.
func NewTransactionStore(pool *Pool) *TransactionStore {
	return &TransactionStore{pool: pool}
}

var _ storage.TransactionStore = (*TransactionStore)(nil)

const txColumns = `hash, user_address, token_address, type, amount_in, amount_out, price, block_number, timestamp, status`

// Insert adds a new transaction. Returns ErrDuplicateKey if the hash exists.
func (s *TransactionStore) Insert(ctx context.Context, tx *domain.Transaction) (err error) {
	defer observe("tx_insert", time.Now(), &err)
	if tx == nil || tx.Hash == "" {
		return storage.ErrInvalidInput
	}

	status := tx.Status
	if status == "" {
		status = domain.TxStatusConfirmed
	}

	query := `
		INSERT INTO transactions (` + txColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (hash) DO NOTHING
	`

	tag, err := s.pool.Exec(ctx, query,
		tx.Hash,
		tx.UserAddress,
		tx.TokenAddress,
		string(tx.Type),
		nonEmpty(tx.AmountIn),
		nonEmpty(tx.AmountOut),
		domain.NonNegative(tx.Price),
		int64(tx.BlockNumber),
		tx.Timestamp,
		status,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrDuplicateKey
	}
	return nil
}

// Exists reports whether a transaction with hash exists.
func (s *TransactionStore) Exists(ctx context.Context, hash string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM transactions WHERE hash = $1)`, hash).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("transaction exists: %w", err)
	}
	return exists, nil
}

// MaxBlock returns the highest block number written. This is the indexer cursor.
func (s *TransactionStore) MaxBlock(ctx context.Context) (uint64, bool, error) {
	var block *int64
	if err := s.pool.QueryRow(ctx, `SELECT MAX(block_number) FROM transactions`).Scan(&block); err != nil {
		return 0, false, fmt.Errorf("max transaction block: %w", err)
	}
	if block == nil {
		return 0, false, nil
	}
	return uint64(*block), true, nil
}

// ListByUserToken returns a user's transactions for a token in time order.
func (s *TransactionStore) ListByUserToken(ctx context.Context, user, token string) ([]*domain.Transaction, error) {
	query := `
		SELECT ` + txColumns + `
		FROM transactions
		WHERE user_address = $1 AND token_address = $2
		ORDER BY timestamp ASC, block_number ASC, hash ASC
	`
	return s.query(ctx, query, user, token)
}

// ListTradesSince returns BUY/SELL rows for token at or after since.
func (s *TransactionStore) ListTradesSince(ctx context.Context, token string, since time.Time) ([]*domain.Transaction, error) {
	query := `
		SELECT ` + txColumns + `
		FROM transactions
		WHERE token_address = $1 AND type IN ('BUY', 'SELL') AND timestamp >= $2
		ORDER BY timestamp ASC, block_number ASC, hash ASC
	`
	return s.query(ctx, query, token, since)
}

// LastTradeTimes maps tokens traded at or after since to their latest trade time.
func (s *TransactionStore) LastTradeTimes(ctx context.Context, since time.Time) (_ map[string]time.Time, err error) {
	defer observe("tx_last_trades", time.Now(), &err)
	query := `
		SELECT token_address, MAX(timestamp)
		FROM transactions
		WHERE type IN ('BUY', 'SELL') AND timestamp >= $1
		GROUP BY token_address
	`

	rows, err := s.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("last trade times: %w", err)
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var (
			token string
			last  time.Time
		)
		if err := rows.Scan(&token, &last); err != nil {
			return nil, fmt.Errorf("scan last trade time: %w", err)
		}
		out[token] = last
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate last trade times: %w", err)
	}
	return out, nil
}

func (s *TransactionStore) query(ctx context.Context, query string, args ...any) ([]*domain.Transaction, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.Transaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var (
		tx    domain.Transaction
		typ   string
		block int64
	)
	err := row.Scan(
		&tx.Hash,
		&tx.UserAddress,
		&tx.TokenAddress,
		&typ,
		&tx.AmountIn,
		&tx.AmountOut,
		&tx.Price,
		&block,
		&tx.Timestamp,
		&tx.Status,
	)
	if err != nil {
		return nil, err
	}
	tx.Type = domain.TxType(typ)
	tx.BlockNumber = uint64(block)
	return &tx, nil
}
