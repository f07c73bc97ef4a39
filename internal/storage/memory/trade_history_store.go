package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"launchpad-indexer/internal/domain"
	"launchpad-indexer/internal/storage"
)

// TradeHistoryStore is an in-memory implementation of storage.TradeHistoryStore.
type TradeHistoryStore struct {
	mu     sync.RWMutex
	points []domain.TradePoint
}

// NewTradeHistoryStore creates a new in-memory trade history store.
func NewTradeHistoryStore() *TradeHistoryStore {
	return &TradeHistoryStore{}
}

// InsertBulk appends points.
func (s *TradeHistoryStore) InsertBulk(_ context.Context, points []domain.TradePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.points = append(s.points, points...)
	return nil
}

// GetByTimeRange returns points for token within [start, end] in time order.
func (s *TradeHistoryStore) GetByTimeRange(_ context.Context, token string, start, end time.Time) ([]domain.TradePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.TradePoint, 0)
	for _, p := range s.points {
		if p.TokenAddress == token && !p.Timestamp.Before(start) && !p.Timestamp.After(end) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

var _ storage.TradeHistoryStore = (*TradeHistoryStore)(nil)
