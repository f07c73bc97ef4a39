package memory

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"launchpad-indexer/internal/domain"
	"launchpad-indexer/internal/storage"
)

func TestPortfolioStore_UpsertReplacesRow(t *testing.T) {
	store := NewPortfolioStore()
	ctx := context.Background()

	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Upsert(ctx, &domain.Portfolio{
		UserAddress: "u", TokenAddress: "tok", Balance: "10", RealizedPnL: 1,
		CreatedAt: created, UpdatedAt: created,
	}))
	require.NoError(t, store.Upsert(ctx, &domain.Portfolio{
		UserAddress: "u", TokenAddress: "tok", Balance: "4",
		CreatedAt: created.Add(time.Hour), UpdatedAt: created.Add(time.Hour),
	}))

	got, err := store.Get(ctx, "u", "tok")
	require.NoError(t, err)
	assert.Equal(t, "4", got.Balance)
	assert.Equal(t, 0.0, got.RealizedPnL)
	assert.True(t, got.CreatedAt.Equal(created))

	require.NoError(t, store.Upsert(ctx, &domain.Portfolio{UserAddress: "u", TokenAddress: "abc"}))
	list, err := store.ListByUser(ctx, "u")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "abc", list[0].TokenAddress)

	_, err = store.Get(ctx, "u", "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestContentCacheStore_PutGetTouch(t *testing.T) {
	store := NewContentCacheStore()
	ctx := context.Background()

	_, err := store.Get(ctx, "Qm1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Put(ctx, &domain.ContentEntry{
		Hash:           "Qm1",
		ContentType:    "application/json",
		Payload:        json.RawMessage(`{"name":"x"}`),
		LastAccessedAt: now,
		CreatedAt:      now,
	}))

	require.NoError(t, store.Touch(ctx, "Qm1", now.Add(time.Minute)))
	require.NoError(t, store.Touch(ctx, "absent", now))

	got, err := store.Get(ctx, "Qm1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"x"}`, string(got.Payload))
	assert.True(t, got.LastAccessedAt.Equal(now.Add(time.Minute)))
}

func TestTradeHistoryStore_Range(t *testing.T) {
	store := NewTradeHistoryStore()
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.InsertBulk(ctx, []domain.TradePoint{
		{TokenAddress: "tok", TxHash: "2", Timestamp: base.Add(2 * time.Minute)},
		{TokenAddress: "tok", TxHash: "1", Timestamp: base.Add(time.Minute)},
		{TokenAddress: "other", TxHash: "3", Timestamp: base.Add(time.Minute)},
		{TokenAddress: "tok", TxHash: "4", Timestamp: base.Add(time.Hour)},
	}))

	got, err := store.GetByTimeRange(ctx, "tok", base, base.Add(10*time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].TxHash)
	assert.Equal(t, "2", got[1].TxHash)
}
