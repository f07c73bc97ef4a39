package recompute

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"launchpad-indexer/internal/cache"
	"launchpad-indexer/internal/contracts"
	contractstub "launchpad-indexer/internal/contracts/stub"
	"launchpad-indexer/internal/domain"
	"launchpad-indexer/internal/storage"
	"launchpad-indexer/internal/storage/memory"
)

const token = "0x00000000000000000000000000000000000000aa"

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func seedPricedTrades(t *testing.T, ledger storage.Ledger, now time.Time) {
	t.Helper()
	ctx := context.Background()
	trades := []struct {
		hash  string
		ago   time.Duration
		price float64
		eth   string
	}{
		{"0x01", 30 * time.Hour, 0.001, "4000000000000000000"},
		{"0x02", 23 * time.Hour, 0.002, "1000000000000000000"},
		{"0x03", 1 * time.Hour, 0.003, "2000000000000000000"},
	}
	for _, tr := range trades {
		require.NoError(t, ledger.Transactions.Insert(ctx, &domain.Transaction{
			Hash:         tr.hash,
			UserAddress:  "0xuser",
			TokenAddress: token,
			Type:         domain.TxBuy,
			AmountIn:     tr.eth,
			AmountOut:    "1000",
			Price:        tr.price,
			Timestamp:    now.Add(-tr.ago),
			Status:       domain.TxStatusConfirmed,
		}))
	}
}

func newComputerFixture(t *testing.T) (*Computer, *contractstub.Gateway, storage.Ledger, *cache.Memory, time.Time) {
	t.Helper()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	gw := contractstub.NewGateway()
	gw.Prices[token] = 0.0035
	gw.Infos[token] = contracts.TokenInfo{CurrentSupply: ether(1000), ReserveBalance: ether(2)}

	ledger := memory.NewLedger()
	require.NoError(t, ledger.Tokens.Insert(context.Background(), &domain.Token{Address: token}))

	mc := cache.NewMemory()
	c := NewComputer(gw, ledger, ComputerOptions{Cache: mc})
	c.now = func() time.Time { return now }
	return c, gw, ledger, mc, now
}

func TestComputer_RefreshToken(t *testing.T) {
	ctx := context.Background()
	c, _, ledger, mc, now := newComputerFixture(t)
	seedPricedTrades(t, ledger, now)
	require.NoError(t, ledger.Holders.Upsert(ctx, &domain.Holder{TokenAddress: token, HolderAddress: "0x1", Balance: "5"}))
	require.NoError(t, ledger.Holders.Upsert(ctx, &domain.Holder{TokenAddress: token, HolderAddress: "0x2", Balance: "0"}))
	require.NoError(t, mc.Set(ctx, cache.TokenKey(token), []byte("stale"), 0))

	m, err := c.RefreshToken(ctx, token)
	require.NoError(t, err)

	assert.Equal(t, 0.0035, m.CurrentPrice)
	assert.InDelta(t, 3.5, m.MarketCap, 1e-9)
	assert.Equal(t, ether(1000).String(), m.CurrentSupply)
	assert.Equal(t, ether(2).String(), m.ReserveBalance)
	assert.Equal(t, int64(1), m.HolderCount)
	assert.InDelta(t, 3.0, m.Volume24h, 1e-9)
	assert.InDelta(t, 75.0, m.PriceChange24h, 1e-6)
	require.NotNil(t, m.UpdatedAt)

	stored, err := ledger.Tokens.Get(ctx, token)
	require.NoError(t, err)
	assert.InDelta(t, 75.0, stored.Metrics.PriceChange24h, 1e-6)

	_, err = mc.Get(ctx, cache.TokenKey(token))
	assert.ErrorIs(t, err, cache.ErrMiss)
}

func TestComputer_UsesTradeHistoryWhenConfigured(t *testing.T) {
	ctx := context.Background()
	c, _, _, _, now := newComputerFixture(t)
	history := memory.NewTradeHistoryStore()
	require.NoError(t, history.InsertBulk(ctx, []domain.TradePoint{
		{TokenAddress: token, Price: 0.005, Timestamp: now.Add(-24 * time.Hour)},
	}))
	c.history = history

	m, err := c.RefreshToken(ctx, token)
	require.NoError(t, err)
	assert.InDelta(t, -30.0, m.PriceChange24h, 1e-6)
}

func TestComputer_ChainFailureKeepsStaleMetrics(t *testing.T) {
	ctx := context.Background()
	c, gw, ledger, _, now := newComputerFixture(t)
	at := now.Add(-time.Hour)
	require.NoError(t, ledger.Tokens.UpdateMetrics(ctx, token, domain.TokenMetrics{CurrentPrice: 0.001, UpdatedAt: &at}))

	gw.Fail("TokenInfo", errors.New("execution reverted"))
	_, err := c.RefreshToken(ctx, token)
	require.Error(t, err)

	stored, err := ledger.Tokens.Get(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, 0.001, stored.Metrics.CurrentPrice)
	assert.True(t, stored.Metrics.UpdatedAt.Equal(at))
}

func TestComputer_NoTradesZeroChange(t *testing.T) {
	c, _, _, _, _ := newComputerFixture(t)
	m, err := c.RefreshToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, 0.0, m.PriceChange24h)
	assert.Equal(t, 0.0, m.Volume24h)
}

func TestComputer_InitialMetrics(t *testing.T) {
	ctx := context.Background()
	c, gw, _, _, _ := newComputerFixture(t)

	m := c.InitialMetrics(ctx, token)
	assert.Equal(t, 0.0035, m.CurrentPrice)
	assert.NotNil(t, m.UpdatedAt)

	gw.Fail("CurrentPrice", errors.New("timeout"))
	m = c.InitialMetrics(ctx, token)
	assert.Equal(t, 0.0, m.CurrentPrice)
	assert.Equal(t, "0", m.CurrentSupply)
	assert.Nil(t, m.UpdatedAt)
}
