package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"launchpad-indexer/internal/domain"
	"launchpad-indexer/internal/storage"
)

// TokenStore implements storage.TokenStore using PostgreSQL.
type TokenStore struct {
	pool *Pool
}

// NewTokenStore creates a new TokenStore.
func NewTokenStore(pool *Pool) *TokenStore {
	return &TokenStore{pool: pool}
}

var _ storage.TokenStore = (*TokenStore)(nil)

const tokenColumns = `
	address, name, symbol, creator, total_supply, reserve_ratio, content_uri,
	metadata, logo_url, description, links, created_block, created_tx_hash, created_at,
	trading_enabled, current_price, market_cap, current_supply, reserve_balance,
	holder_count, volume_24h, price_change_24h, metrics_updated_at`

// Insert adds a new token. The existing row wins on conflict and
// ErrDuplicateKey is returned, so concurrent creators resolve atomically.
func (s *TokenStore) Insert(ctx context.Context, t *domain.Token) (err error) {
	defer observe("token_insert", time.Now(), &err)
	if t == nil || t.Address == "" {
		return storage.ErrInvalidInput
	}

	metadata, err := marshalMetadata(t.Metadata)
	if err != nil {
		return err
	}
	links, err := json.Marshal(t.Links)
	if err != nil {
		return fmt.Errorf("marshal links: %w", err)
	}

	m := t.Metrics
	m.Sanitize()

	query := `
		INSERT INTO tokens (` + tokenColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19, $20, $21, $22, $23)
		ON CONFLICT (address) DO NOTHING
	`

	tag, err := s.pool.Exec(ctx, query,
		t.Address,
		t.Name,
		t.Symbol,
		t.Creator,
		nonEmpty(t.TotalSupply),
		int64(t.ReserveRatio),
		t.ContentURI,
		metadata,
		t.LogoURL,
		t.Description,
		links,
		int64(t.CreatedBlock),
		t.CreatedTxHash,
		t.CreatedAt,
		t.TradingEnabled,
		m.CurrentPrice,
		m.MarketCap,
		m.CurrentSupply,
		m.ReserveBalance,
		m.HolderCount,
		m.Volume24h,
		m.PriceChange24h,
		m.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrDuplicateKey
	}
	return nil
}

// Get retrieves a token by address.
func (s *TokenStore) Get(ctx context.Context, address string) (*domain.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE address = $1`

	t, err := scanToken(s.pool.QueryRow(ctx, query, address))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token: %w", err)
	}
	return t, nil
}

// Exists reports whether a token row exists.
func (s *TokenStore) Exists(ctx context.Context, address string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tokens WHERE address = $1)`, address).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("token exists: %w", err)
	}
	return exists, nil
}

// EnableTrading flips trading_enabled only when it is false.
func (s *TokenStore) EnableTrading(ctx context.Context, address string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tokens SET trading_enabled = true WHERE address = $1 AND trading_enabled = false`,
		address,
	)
	if err != nil {
		return false, fmt.Errorf("enable trading: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	exists, err := s.Exists(ctx, address)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, storage.ErrNotFound
	}
	return false, nil
}

// CompleteCreation fills creation fields that are still empty. SET expressions
// read the pre-update row, so the created_tx_hash guard applies to all three
// creation columns.
func (s *TokenStore) CompleteCreation(ctx context.Context, t *domain.Token) error {
	if t == nil || t.Address == "" {
		return storage.ErrInvalidInput
	}

	metadata, err := marshalMetadata(t.Metadata)
	if err != nil {
		return err
	}
	links, err := json.Marshal(t.Links)
	if err != nil {
		return fmt.Errorf("marshal links: %w", err)
	}

	query := `
		UPDATE tokens SET
			name            = CASE WHEN name = '' THEN $2 ELSE name END,
			symbol          = CASE WHEN symbol = '' THEN $3 ELSE symbol END,
			creator         = CASE WHEN creator = '' THEN $4 ELSE creator END,
			total_supply    = CASE WHEN total_supply IN ('', '0') THEN $5 ELSE total_supply END,
			reserve_ratio   = CASE WHEN reserve_ratio = 0 THEN $6 ELSE reserve_ratio END,
			content_uri     = CASE WHEN content_uri = '' THEN $7 ELSE content_uri END,
			created_block   = CASE WHEN created_tx_hash = '' AND $9 <> '' THEN $8 ELSE created_block END,
			created_tx_hash = CASE WHEN created_tx_hash = '' AND $9 <> '' THEN $9 ELSE created_tx_hash END,
			created_at      = CASE WHEN created_tx_hash = '' AND $9 <> '' THEN $10 ELSE created_at END,
			logo_url        = CASE WHEN metadata IS NULL AND $11::jsonb IS NOT NULL THEN $12 ELSE logo_url END,
			description     = CASE WHEN metadata IS NULL AND $11::jsonb IS NOT NULL THEN $13 ELSE description END,
			links           = CASE WHEN metadata IS NULL AND $11::jsonb IS NOT NULL THEN $14 ELSE links END,
			metadata        = COALESCE(metadata, $11::jsonb)
		WHERE address = $1
	`

	tag, err := s.pool.Exec(ctx, query,
		t.Address,
		t.Name,
		t.Symbol,
		t.Creator,
		nonEmpty(t.TotalSupply),
		int64(t.ReserveRatio),
		t.ContentURI,
		int64(t.CreatedBlock),
		t.CreatedTxHash,
		t.CreatedAt,
		metadata,
		t.LogoURL,
		t.Description,
		links,
	)
	if err != nil {
		return fmt.Errorf("complete token creation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// UpdateMetrics replaces the metrics block.
func (s *TokenStore) UpdateMetrics(ctx context.Context, address string, m domain.TokenMetrics) (err error) {
	defer observe("token_update_metrics", time.Now(), &err)
	m.Sanitize()

	query := `
		UPDATE tokens SET
			current_price = $2, market_cap = $3, current_supply = $4, reserve_balance = $5,
			holder_count = $6, volume_24h = $7, price_change_24h = $8, metrics_updated_at = $9
		WHERE address = $1
	`

	tag, err := s.pool.Exec(ctx, query,
		address,
		m.CurrentPrice,
		m.MarketCap,
		m.CurrentSupply,
		m.ReserveBalance,
		m.HolderCount,
		m.Volume24h,
		m.PriceChange24h,
		m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update token metrics: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListAddresses returns every token address in address order.
func (s *TokenStore) ListAddresses(ctx context.Context) ([]string, error) {
	return s.queryAddresses(ctx, `SELECT address FROM tokens ORDER BY address`)
}

// ListUnenriched returns up to limit never-enriched addresses.
func (s *TokenStore) ListUnenriched(ctx context.Context, limit int) ([]string, error) {
	return s.queryAddresses(ctx,
		`SELECT address FROM tokens WHERE metrics_updated_at IS NULL ORDER BY address LIMIT $1`,
		limit,
	)
}

// ListPage returns addresses ordered by address.
func (s *TokenStore) ListPage(ctx context.Context, offset, limit int) ([]string, error) {
	return s.queryAddresses(ctx,
		`SELECT address FROM tokens ORDER BY address OFFSET $1 LIMIT $2`,
		offset, limit,
	)
}

func (s *TokenStore) queryAddresses(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list token addresses: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("scan token address: %w", err)
		}
		out = append(out, addr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate token addresses: %w", err)
	}
	return out, nil
}

func scanToken(row rowScanner) (*domain.Token, error) {
	var (
		t            domain.Token
		reserveRatio int64
		createdBlock int64
		metadata     []byte
		links        []byte
		updatedAt    *time.Time
	)

	err := row.Scan(
		&t.Address,
		&t.Name,
		&t.Symbol,
		&t.Creator,
		&t.TotalSupply,
		&reserveRatio,
		&t.ContentURI,
		&metadata,
		&t.LogoURL,
		&t.Description,
		&links,
		&createdBlock,
		&t.CreatedTxHash,
		&t.CreatedAt,
		&t.TradingEnabled,
		&t.Metrics.CurrentPrice,
		&t.Metrics.MarketCap,
		&t.Metrics.CurrentSupply,
		&t.Metrics.ReserveBalance,
		&t.Metrics.HolderCount,
		&t.Metrics.Volume24h,
		&t.Metrics.PriceChange24h,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.ReserveRatio = uint32(reserveRatio)
	t.CreatedBlock = uint64(createdBlock)
	t.Metrics.UpdatedAt = updatedAt

	if len(metadata) > 0 {
		var m domain.TokenMetadata
		if err := json.Unmarshal(metadata, &m); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
		t.Metadata = &m
	}
	if len(links) > 0 {
		if err := json.Unmarshal(links, &t.Links); err != nil {
			return nil, fmt.Errorf("unmarshal links: %w", err)
		}
	}
	return &t, nil
}

// marshalMetadata returns nil for a nil document so the column stays NULL.
func marshalMetadata(m *domain.TokenMetadata) (any, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return b, nil
}

func nonEmpty(amount string) string {
	if amount == "" {
		return "0"
	}
	return amount
}
