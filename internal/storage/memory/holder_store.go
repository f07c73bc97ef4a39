package memory

import (
	"context"
	"sort"
	"sync"

	"launchpad-indexer/internal/domain"
	"launchpad-indexer/internal/storage"
)

// HolderStore is an in-memory implementation of storage.HolderStore.
type HolderStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Holder // keyed by token|holder
}

// NewHolderStore creates a new in-memory holder store.
func NewHolderStore() *HolderStore {
	return &HolderStore{data: make(map[string]*domain.Holder)}
}

func holderKey(token, holder string) string {
	return token + "|" + holder
}

// Upsert overwrites the balance, keeping FirstAcquiredAt of an existing row.
func (s *HolderStore) Upsert(_ context.Context, h *domain.Holder) error {
	if h == nil || h.TokenAddress == "" || h.HolderAddress == "" {
		return storage.ErrInvalidInput
	}

	key := holderKey(h.TokenAddress, h.HolderAddress)

	s.mu.Lock()
	defer s.mu.Unlock()

	c := *h
	if cur, ok := s.data[key]; ok {
		c.FirstAcquiredAt = cur.FirstAcquiredAt
	}
	s.data[key] = &c
	return nil
}

// Get retrieves one holder row.
func (s *HolderStore) Get(_ context.Context, token, holder string) (*domain.Holder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.data[holderKey(token, holder)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	c := *h
	return &c, nil
}

// ListByToken returns every holder of token ordered by holder address.
func (s *HolderStore) ListByToken(_ context.Context, token string) ([]*domain.Holder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Holder, 0)
	for _, h := range s.data {
		if h.TokenAddress == token {
			c := *h
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HolderAddress < out[j].HolderAddress })
	return out, nil
}

// CountNonZero counts holders of token with a non-zero balance.
func (s *HolderStore) CountNonZero(_ context.Context, token string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, h := range s.data {
		if h.TokenAddress == token && h.HasBalance() {
			n++
		}
	}
	return n, nil
}

var _ storage.HolderStore = (*HolderStore)(nil)
