package memory

import (
	"context"
	"sync"
	"time"

	"launchpad-indexer/internal/domain"
	"launchpad-indexer/internal/storage"
)

// ContentCacheStore is an in-memory implementation of storage.ContentCacheStore.
type ContentCacheStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ContentEntry // keyed by content hash
}

// NewContentCacheStore creates a new in-memory content cache store.
func NewContentCacheStore() *ContentCacheStore {
	return &ContentCacheStore{data: make(map[string]*domain.ContentEntry)}
}

// Get retrieves an entry by hash.
func (s *ContentCacheStore) Get(_ context.Context, hash string) (*domain.ContentEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.data[hash]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneEntry(e), nil
}

// Put inserts or replaces an entry.
func (s *ContentCacheStore) Put(_ context.Context, e *domain.ContentEntry) error {
	if e == nil || e.Hash == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := cloneEntry(e)
	if cur, ok := s.data[e.Hash]; ok && !cur.CreatedAt.IsZero() {
		c.CreatedAt = cur.CreatedAt
	}
	s.data[e.Hash] = c
	return nil
}

// Touch updates the last access time of an existing entry.
func (s *ContentCacheStore) Touch(_ context.Context, hash string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.data[hash]; ok {
		e.LastAccessedAt = at
	}
	return nil
}

var _ storage.ContentCacheStore = (*ContentCacheStore)(nil)
