package memory

import (
	"context"
	"sort"
	"sync"

	"launchpad-indexer/internal/domain"
	"launchpad-indexer/internal/storage"
)

// PortfolioStore is an in-memory implementation of storage.PortfolioStore.
type PortfolioStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Portfolio // keyed by user|token
}

// NewPortfolioStore creates a new in-memory portfolio store.
func NewPortfolioStore() *PortfolioStore {
	return &PortfolioStore{data: make(map[string]*domain.Portfolio)}
}

// Upsert replaces the row for (user, token), keeping CreatedAt.
func (s *PortfolioStore) Upsert(_ context.Context, p *domain.Portfolio) error {
	if p == nil || p.UserAddress == "" || p.TokenAddress == "" {
		return storage.ErrInvalidInput
	}

	key := p.UserAddress + "|" + p.TokenAddress

	s.mu.Lock()
	defer s.mu.Unlock()

	c := *p
	if cur, ok := s.data[key]; ok {
		c.CreatedAt = cur.CreatedAt
	}
	s.data[key] = &c
	return nil
}

// Get retrieves one portfolio row.
func (s *PortfolioStore) Get(_ context.Context, user, token string) (*domain.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.data[user+"|"+token]
	if !ok {
		return nil, storage.ErrNotFound
	}
	c := *p
	return &c, nil
}

// ListByUser returns every position of user ordered by token address.
func (s *PortfolioStore) ListByUser(_ context.Context, user string) ([]*domain.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Portfolio, 0)
	for _, p := range s.data {
		if p.UserAddress == user {
			c := *p
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TokenAddress < out[j].TokenAddress })
	return out, nil
}

var _ storage.PortfolioStore = (*PortfolioStore)(nil)
