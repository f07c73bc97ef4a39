package cache

import (
	"context"
	"strings"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

type memoryItem struct {
	value     []byte
	expiresAt time.Time // zero = no expiry
}

// Memory is an in-process Cache for single-node deployments and tests.
type Memory struct {
	items *xsync.Map[string, memoryItem]
	now   func() time.Time
}

// NewMemory creates an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{
		items: xsync.NewMap[string, memoryItem](),
		now:   time.Now,
	}
}

// Get returns a copy of the value stored under key.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	item, ok := m.items.Load(key)
	if !ok {
		return nil, ErrMiss
	}
	if !item.expiresAt.IsZero() && !m.now().Before(item.expiresAt) {
		m.items.Delete(key)
		return nil, ErrMiss
	}
	return append([]byte(nil), item.value...), nil
}

// Set stores value under key; ttl <= 0 never expires.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	item := memoryItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		item.expiresAt = m.now().Add(ttl)
	}
	m.items.Store(key, item)
	return nil
}

// Delete removes keys.
func (m *Memory) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		m.items.Delete(k)
	}
	return nil
}

// DeletePattern removes every key starting with prefix.
func (m *Memory) DeletePattern(_ context.Context, prefix string) error {
	m.items.Range(func(key string, _ memoryItem) bool {
		if strings.HasPrefix(key, prefix) {
			m.items.Delete(key)
		}
		return true
	})
	return nil
}

// Len returns the number of stored keys, expired ones included.
func (m *Memory) Len() int {
	return m.items.Size()
}

var _ Cache = (*Memory)(nil)
