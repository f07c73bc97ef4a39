package postgres

import (
	"context"
	"fmt"
	"time"

	"launchpad-indexer/internal/domain"
	"launchpad-indexer/internal/storage"
)

// HolderStore implements storage.HolderStore using PostgreSQL.
type HolderStore struct {
	pool *Pool
}

// NewHolderStore creates a new HolderStore.
func NewHolderStore(pool *Pool) *HolderStore {
	return &HolderStore{pool: pool}
}

var _ storage.HolderStore = (*HolderStore)(nil)

// Upsert overwrites the balance with the value read from chain.
func (s *HolderStore) Upsert(ctx context.Context, h *domain.Holder) (err error) {
	defer observe("holder_upsert", time.Now(), &err)
	if h == nil || h.TokenAddress == "" || h.HolderAddress == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO holders (token_address, holder_address, balance, first_acquired_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (token_address, holder_address) DO UPDATE SET
			balance = EXCLUDED.balance,
			updated_at = EXCLUDED.updated_at
	`

	_, err = s.pool.Exec(ctx, query,
		h.TokenAddress,
		h.HolderAddress,
		nonEmpty(h.Balance),
		h.FirstAcquiredAt,
		h.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert holder: %w", err)
	}
	return nil
}

// Get retrieves one holder row.
func (s *HolderStore) Get(ctx context.Context, token, holder string) (*domain.Holder, error) {
	query := `
		SELECT token_address, holder_address, balance, first_acquired_at, updated_at
		FROM holders
		WHERE token_address = $1 AND holder_address = $2
	`

	var h domain.Holder
	err := s.pool.QueryRow(ctx, query, token, holder).Scan(
		&h.TokenAddress, &h.HolderAddress, &h.Balance, &h.FirstAcquiredAt, &h.UpdatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get holder: %w", err)
	}
	return &h, nil
}

// ListByToken returns every holder of token ordered by holder address.
func (s *HolderStore) ListByToken(ctx context.Context, token string) ([]*domain.Holder, error) {
	query := `
		SELECT token_address, holder_address, balance, first_acquired_at, updated_at
		FROM holders
		WHERE token_address = $1
		ORDER BY holder_address
	`

	rows, err := s.pool.Query(ctx, query, token)
	if err != nil {
		return nil, fmt.Errorf("list holders: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.Holder, 0)
	for rows.Next() {
		var h domain.Holder
		if err := rows.Scan(&h.TokenAddress, &h.HolderAddress, &h.Balance, &h.FirstAcquiredAt, &h.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan holder: %w", err)
		}
		out = append(out, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate holders: %w", err)
	}
	return out, nil
}

// CountNonZero counts holders of token with a non-zero balance.
func (s *HolderStore) CountNonZero(ctx context.Context, token string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM holders WHERE token_address = $1 AND balance NOT IN ('', '0')`,
		token,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count holders: %w", err)
	}
	return n, nil
}
