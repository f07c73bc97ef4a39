package memory

import (
	"context"
	"sort"
	"sync"

	"launchpad-indexer/internal/domain"
	"launchpad-indexer/internal/storage"
)

// TokenStore is an in-memory implementation of storage.TokenStore.
type TokenStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Token // keyed by address
}

// NewTokenStore creates a new in-memory token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{data: make(map[string]*domain.Token)}
}

// Insert adds a new token. Returns ErrDuplicateKey if the address exists.
func (s *TokenStore) Insert(_ context.Context, t *domain.Token) error {
	if t == nil || t.Address == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[t.Address]; exists {
		return storage.ErrDuplicateKey
	}
	c := cloneToken(t)
	c.Metrics.Sanitize()
	s.data[t.Address] = c
	return nil
}

// Get retrieves a token by address. Returns ErrNotFound if not exists.
func (s *TokenStore) Get(_ context.Context, address string) (*domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.data[address]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneToken(t), nil
}

// Exists reports whether a token row exists.
func (s *TokenStore) Exists(_ context.Context, address string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.data[address]
	return ok, nil
}

// EnableTrading flips trading on if it is off.
func (s *TokenStore) EnableTrading(_ context.Context, address string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.data[address]
	if !ok {
		return false, storage.ErrNotFound
	}
	if t.TradingEnabled {
		return false, nil
	}
	t.TradingEnabled = true
	return true, nil
}

// CompleteCreation fills empty creation fields from t.
func (s *TokenStore) CompleteCreation(_ context.Context, t *domain.Token) error {
	if t == nil || t.Address == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.data[t.Address]
	if !ok {
		return storage.ErrNotFound
	}

	if cur.Name == "" {
		cur.Name = t.Name
	}
	if cur.Symbol == "" {
		cur.Symbol = t.Symbol
	}
	if cur.Creator == "" {
		cur.Creator = t.Creator
	}
	if cur.TotalSupply == "" || cur.TotalSupply == "0" {
		cur.TotalSupply = t.TotalSupply
	}
	if cur.ReserveRatio == 0 {
		cur.ReserveRatio = t.ReserveRatio
	}
	if cur.ContentURI == "" {
		cur.ContentURI = t.ContentURI
	}
	if cur.CreatedTxHash == "" && t.CreatedTxHash != "" {
		cur.CreatedBlock = t.CreatedBlock
		cur.CreatedTxHash = t.CreatedTxHash
		cur.CreatedAt = t.CreatedAt
	}
	if cur.Metadata == nil && t.Metadata != nil {
		m := *t.Metadata
		cur.Metadata = &m
		cur.LogoURL = t.LogoURL
		cur.Description = t.Description
		cur.Links = t.Links
	}
	return nil
}

// UpdateMetrics replaces the metrics block.
func (s *TokenStore) UpdateMetrics(_ context.Context, address string, m domain.TokenMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.data[address]
	if !ok {
		return storage.ErrNotFound
	}
	m.Sanitize()
	if m.UpdatedAt != nil {
		at := *m.UpdatedAt
		m.UpdatedAt = &at
	}
	t.Metrics = m
	return nil
}

// ListAddresses returns every token address in address order.
func (s *TokenStore) ListAddresses(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sortedLocked(func(*domain.Token) bool { return true }), nil
}

// ListUnenriched returns up to limit never-enriched addresses.
func (s *TokenStore) ListUnenriched(_ context.Context, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.sortedLocked(func(t *domain.Token) bool { return t.Metrics.UpdatedAt == nil })
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListPage returns addresses ordered by address.
func (s *TokenStore) ListPage(_ context.Context, offset, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.sortedLocked(func(*domain.Token) bool { return true })
	if offset >= len(all) {
		return []string{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (s *TokenStore) sortedLocked(keep func(*domain.Token) bool) []string {
	out := make([]string, 0, len(s.data))
	for addr, t := range s.data {
		if keep(t) {
			out = append(out, addr)
		}
	}
	sort.Strings(out)
	return out
}

var _ storage.TokenStore = (*TokenStore)(nil)
