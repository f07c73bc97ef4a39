package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"launchpad-indexer/internal/domain"
	"launchpad-indexer/internal/storage"
)

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func tx(hash, user, token string, typ domain.TxType, block uint64, at time.Time) *domain.Transaction {
	return &domain.Transaction{
		Hash:         hash,
		UserAddress:  user,
		TokenAddress: token,
		Type:         typ,
		AmountIn:     "1",
		AmountOut:    "1",
		BlockNumber:  block,
		Timestamp:    at,
		Status:       domain.TxStatusConfirmed,
	}
}

func TestTransactionStore_InsertDuplicate(t *testing.T) {
	store := NewTransactionStore()
	ctx := context.Background()

	if err := store.Insert(ctx, tx("0x1", "u", "tok", domain.TxBuy, 1, t0)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	err := store.Insert(ctx, tx("0x1", "u", "tok", domain.TxBuy, 1, t0))
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}

	ok, err := store.Exists(ctx, "0x1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Exists(ctx, "0x2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTransactionStore_MaxBlock(t *testing.T) {
	store := NewTransactionStore()
	ctx := context.Background()

	_, ok, err := store.MaxBlock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Insert(ctx, tx("0x1", "u", "tok", domain.TxBuy, 7, t0)))
	require.NoError(t, store.Insert(ctx, tx("0x2", "u", "tok", domain.TxSell, 42, t0)))
	require.NoError(t, store.Insert(ctx, tx("0x3", "u", "tok", domain.TxCreate, 3, t0)))

	block, ok, err := store.MaxBlock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(42), block)
}

func TestTransactionStore_ListByUserTokenOrdered(t *testing.T) {
	store := NewTransactionStore()
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, tx("0x2", "u", "tok", domain.TxSell, 2, t0.Add(time.Minute))))
	require.NoError(t, store.Insert(ctx, tx("0x1", "u", "tok", domain.TxBuy, 1, t0)))
	require.NoError(t, store.Insert(ctx, tx("0x3", "other", "tok", domain.TxBuy, 1, t0)))
	require.NoError(t, store.Insert(ctx, tx("0x4", "u", "other", domain.TxBuy, 1, t0)))

	got, err := store.ListByUserToken(ctx, "u", "tok")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "0x1", got[0].Hash)
	assert.Equal(t, "0x2", got[1].Hash)
}

func TestTransactionStore_TradesSinceAndLastTradeTimes(t *testing.T) {
	store := NewTransactionStore()
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, tx("0xc", "u", "a", domain.TxCreate, 1, t0)))
	require.NoError(t, store.Insert(ctx, tx("0x1", "u", "a", domain.TxBuy, 2, t0.Add(-30*time.Hour))))
	require.NoError(t, store.Insert(ctx, tx("0x2", "u", "a", domain.TxBuy, 3, t0.Add(-2*time.Hour))))
	require.NoError(t, store.Insert(ctx, tx("0x3", "u", "a", domain.TxSell, 4, t0.Add(-time.Hour))))
	require.NoError(t, store.Insert(ctx, tx("0x4", "u", "b", domain.TxBuy, 5, t0.Add(-5*time.Minute))))

	trades, err := store.ListTradesSince(ctx, "a", t0.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "0x2", trades[0].Hash)
	assert.Equal(t, "0x3", trades[1].Hash)

	last, err := store.LastTradeTimes(ctx, t0.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, last, 2)
	assert.True(t, last["a"].Equal(t0.Add(-time.Hour)))
	assert.True(t, last["b"].Equal(t0.Add(-5*time.Minute)))
}
