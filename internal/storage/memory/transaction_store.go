package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"launchpad-indexer/internal/domain"
	"launchpad-indexer/internal/storage"
)

// TransactionStore is an in-memory implementation of storage.TransactionStore.
type TransactionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Transaction // keyed by hash
}

// NewTransactionStore creates a new in-memory transaction store.
func NewTransactionStore() *TransactionStore {
	return &TransactionStore{data: make(map[string]*domain.Transaction)}
}

// Insert adds a new transaction. Returns ErrDuplicateKey if the hash exists.
func (s *TransactionStore) Insert(_ context.Context, tx *domain.Transaction) error {
	if tx == nil || tx.Hash == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[tx.Hash]; exists {
		return storage.ErrDuplicateKey
	}
	c := *tx
	s.data[tx.Hash] = &c
	return nil
}

// Exists reports whether a transaction with hash exists.
func (s *TransactionStore) Exists(_ context.Context, hash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.data[hash]
	return ok, nil
}

// MaxBlock returns the highest block number written.
func (s *TransactionStore) MaxBlock(_ context.Context) (uint64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var highest uint64
	for _, tx := range s.data {
		if tx.BlockNumber > highest {
			highest = tx.BlockNumber
		}
	}
	return highest, len(s.data) > 0, nil
}

// ListByUserToken returns a user's transactions for a token in time order.
func (s *TransactionStore) ListByUserToken(_ context.Context, user, token string) ([]*domain.Transaction, error) {
	return s.filter(func(tx *domain.Transaction) bool {
		return tx.UserAddress == user && tx.TokenAddress == token
	}), nil
}

// ListTradesSince returns BUY/SELL rows for token at or after since.
func (s *TransactionStore) ListTradesSince(_ context.Context, token string, since time.Time) ([]*domain.Transaction, error) {
	return s.filter(func(tx *domain.Transaction) bool {
		return tx.TokenAddress == token && tx.IsTrade() && !tx.Timestamp.Before(since)
	}), nil
}

// LastTradeTimes maps tokens traded at or after since to their latest trade time.
func (s *TransactionStore) LastTradeTimes(_ context.Context, since time.Time) (map[string]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]time.Time)
	for _, tx := range s.data {
		if !tx.IsTrade() || tx.Timestamp.Before(since) {
			continue
		}
		if last, ok := out[tx.TokenAddress]; !ok || tx.Timestamp.After(last) {
			out[tx.TokenAddress] = tx.Timestamp
		}
	}
	return out, nil
}

func (s *TransactionStore) filter(keep func(*domain.Transaction) bool) []*domain.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Transaction, 0)
	for _, tx := range s.data {
		if keep(tx) {
			c := *tx
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber < out[j].BlockNumber
		}
		return out[i].Hash < out[j].Hash
	})
	return out
}

var _ storage.TransactionStore = (*TransactionStore)(nil)
