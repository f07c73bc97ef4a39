// Package cache is the optional key/value layer in front of hot ledger
// reads. Every caller must stay correct when the cache is absent, so
// failures are reported but never required for progress.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Cache is a string-keyed byte store with TTLs.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// DeletePattern removes every key starting with prefix.
	DeletePattern(ctx context.Context, prefix string) error
}

// TokenKey is the key of a cached token row.
func TokenKey(address string) string {
	return "token:" + address
}

// PortfolioKey is the key of one cached (user, token) portfolio.
func PortfolioKey(user, token string) string {
	return "portfolio:" + user + ":" + token
}

// PortfolioPrefix matches every cached portfolio of user.
func PortfolioPrefix(user string) string {
	return "portfolio:" + user + ":"
}

// HoldersKey is the key of a token's cached holder list.
func HoldersKey(token string) string {
	return "holders:" + token
}

// GetJSON decodes a cached JSON value into v.
func GetJSON(ctx context.Context, c Cache, key string, v interface{}) error {
	data, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, c Cache, key string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, data, ttl)
}

// Noop is a Cache that stores nothing.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, error) { return nil, ErrMiss }
func (Noop) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (Noop) Delete(context.Context, ...string) error { return nil }
func (Noop) DeletePattern(context.Context, string) error { return nil }

var _ Cache = Noop{}
