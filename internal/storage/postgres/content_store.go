package postgres

import (
	"context"
	"fmt"
	"time"

	"launchpad-indexer/internal/domain"
	"launchpad-indexer/internal/storage"
)

// ContentCacheStore implements storage.ContentCacheStore using PostgreSQL.
type ContentCacheStore struct {
	pool *Pool
}

// NewContentCacheStore creates a new ContentCacheStore.
func NewContentCacheStore(pool *Pool) *ContentCacheStore {
	return &ContentCacheStore{pool: pool}
}

var _ storage.ContentCacheStore = (*ContentCacheStore)(nil)

// Get retrieves an entry by content hash.
func (s *ContentCacheStore) Get(ctx context.Context, hash string) (*domain.ContentEntry, error) {
	query := `
		SELECT hash, content_type, payload, resolved_url, pinned, last_accessed_at, created_at
		FROM content_cache
		WHERE hash = $1
	`

	var (
		e       domain.ContentEntry
		payload []byte
	)
	err := s.pool.QueryRow(ctx, query, hash).Scan(
		&e.Hash, &e.ContentType, &payload, &e.ResolvedURL, &e.Pinned, &e.LastAccessedAt, &e.CreatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get content: %w", err)
	}
	e.Payload = payload
	return &e, nil
}

// Put inserts or replaces an entry, keeping the original created_at.
func (s *ContentCacheStore) Put(ctx context.Context, e *domain.ContentEntry) error {
	if e == nil || e.Hash == "" || len(e.Payload) == 0 {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO content_cache (hash, content_type, payload, resolved_url, pinned, last_accessed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (hash) DO UPDATE SET
			content_type = EXCLUDED.content_type,
			payload = EXCLUDED.payload,
			resolved_url = EXCLUDED.resolved_url,
			pinned = content_cache.pinned OR EXCLUDED.pinned,
			last_accessed_at = EXCLUDED.last_accessed_at
	`

	_, err := s.pool.Exec(ctx, query,
		e.Hash,
		e.ContentType,
		[]byte(e.Payload),
		e.ResolvedURL,
		e.Pinned,
		e.LastAccessedAt,
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("put content: %w", err)
	}
	return nil
}

// Touch updates last_accessed_at of an existing entry.
func (s *ContentCacheStore) Touch(ctx context.Context, hash string, at time.Time) error {
	if _, err := s.pool.Exec(ctx, `UPDATE content_cache SET last_accessed_at = $2 WHERE hash = $1`, hash, at); err != nil {
		return fmt.Errorf("touch content: %w", err)
	}
	return nil
}
