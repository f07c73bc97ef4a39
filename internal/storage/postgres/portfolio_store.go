package postgres

import (
	"context"
	"fmt"

	"launchpad-indexer/internal/domain"
	"launchpad-indexer/internal/storage"
)

// PortfolioStore implements storage.PortfolioStore using PostgreSQL.
type PortfolioStore struct {
	pool *Pool
}

// NewPortfolioStore creates a new PortfolioStore.
func NewPortfolioStore(pool *Pool) *PortfolioStore {
	return &PortfolioStore{pool: pool}
}

var _ storage.PortfolioStore = (*PortfolioStore)(nil)

const portfolioColumns = `user_address, token_address, balance, average_price, total_invested,
	realized_pnl, unrealized_pnl, created_at, updated_at`

// Upsert replaces every column except created_at.
func (s *PortfolioStore) Upsert(ctx context.Context, p *domain.Portfolio) error {
	if p == nil || p.UserAddress == "" || p.TokenAddress == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO user_portfolios (` + portfolioColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_address, token_address) DO UPDATE SET
			balance = EXCLUDED.balance,
			average_price = EXCLUDED.average_price,
			total_invested = EXCLUDED.total_invested,
			realized_pnl = EXCLUDED.realized_pnl,
			unrealized_pnl = EXCLUDED.unrealized_pnl,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.pool.Exec(ctx, query,
		p.UserAddress,
		p.TokenAddress,
		nonEmpty(p.Balance),
		domain.Finite(p.AveragePrice),
		domain.Finite(p.TotalInvested),
		domain.Finite(p.RealizedPnL),
		domain.Finite(p.UnrealizedPnL),
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert portfolio: %w", err)
	}
	return nil
}

// Get retrieves one portfolio row.
func (s *PortfolioStore) Get(ctx context.Context, user, token string) (*domain.Portfolio, error) {
	query := `SELECT ` + portfolioColumns + ` FROM user_portfolios WHERE user_address = $1 AND token_address = $2`

	p, err := scanPortfolio(s.pool.QueryRow(ctx, query, user, token))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get portfolio: %w", err)
	}
	return p, nil
}

// ListByUser returns every position of user ordered by token address.
func (s *PortfolioStore) ListByUser(ctx context.Context, user string) ([]*domain.Portfolio, error) {
	query := `SELECT ` + portfolioColumns + ` FROM user_portfolios WHERE user_address = $1 ORDER BY token_address`

	rows, err := s.pool.Query(ctx, query, user)
	if err != nil {
		return nil, fmt.Errorf("list portfolios: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.Portfolio, 0)
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, fmt.Errorf("scan portfolio: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate portfolios: %w", err)
	}
	return out, nil
}

func scanPortfolio(row rowScanner) (*domain.Portfolio, error) {
	var p domain.Portfolio
	err := row.Scan(
		&p.UserAddress,
		&p.TokenAddress,
		&p.Balance,
		&p.AveragePrice,
		&p.TotalInvested,
		&p.RealizedPnL,
		&p.UnrealizedPnL,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
