package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"launchpad-indexer/internal/contracts"
	contractstub "launchpad-indexer/internal/contracts/stub"
	"launchpad-indexer/internal/domain"
	"launchpad-indexer/internal/recompute"
	"launchpad-indexer/internal/storage"
	"launchpad-indexer/internal/storage/memory"
)

func addr(i int) string {
	return fmt.Sprintf("0x%040x", i)
}

func newService(t *testing.T, gw contracts.Gateway, ledger storage.Ledger) *Service {
	t.Helper()
	s := New(Options{
		Gateway: gw,
		Tokens:  ledger.Tokens,
		Metrics: recompute.NewComputer(gw, ledger, recompute.ComputerOptions{}),
	})
	t.Cleanup(s.Close)
	return s
}

func TestRun_CreatesMissingAndBackfills(t *testing.T) {
	ctx := context.Background()
	gw := contractstub.NewGateway()
	ledger := memory.NewLedger()

	for i := 1; i <= 25; i++ {
		a := addr(i)
		gw.Tokens = append(gw.Tokens, a)
		gw.Details[a] = contracts.TokenDetails{Name: fmt.Sprintf("T%d", i), Symbol: "T", TotalSupply: big.NewInt(int64(i))}
		gw.Prices[a] = 0.001
		gw.Infos[a] = contracts.TokenInfo{CurrentSupply: big.NewInt(10), ReserveBalance: big.NewInt(1), ReserveRatio: 7, TradingEnabled: true}
	}
	// Stored and enriched.
	at := time.Now()
	require.NoError(t, ledger.Tokens.Insert(ctx, &domain.Token{Address: addr(1), Metrics: domain.TokenMetrics{UpdatedAt: &at}}))
	// Stored, never enriched.
	require.NoError(t, ledger.Tokens.Insert(ctx, &domain.Token{Address: addr(2), Name: "keep"}))
	// Contract read fails.
	delete(gw.Details, addr(3))

	s := newService(t, gw, ledger)
	job, err := s.Run(ctx)
	require.NoError(t, err)

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, StateCompleted, job.State)
	assert.Equal(t, 25, job.Total)
	assert.Equal(t, 2, job.Existing)
	assert.Equal(t, 22, job.Created)
	assert.Equal(t, 1, job.Backfilled)
	assert.Equal(t, 1, job.Failed)
	require.NotNil(t, job.FinishedAt)

	tok, err := ledger.Tokens.Get(ctx, addr(5))
	require.NoError(t, err)
	assert.Equal(t, "T5", tok.Name)
	assert.Equal(t, "5", tok.TotalSupply)
	assert.True(t, tok.TradingEnabled)
	assert.Equal(t, uint32(7), tok.ReserveRatio)
	assert.NotNil(t, tok.Metrics.UpdatedAt)

	backfilled, err := ledger.Tokens.Get(ctx, addr(2))
	require.NoError(t, err)
	assert.Equal(t, "keep", backfilled.Name)
	assert.NotNil(t, backfilled.Metrics.UpdatedAt)

	_, err = ledger.Tokens.Get(ctx, addr(3))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRun_ListFailureFailsJob(t *testing.T) {
	gw := contractstub.NewGateway()
	gw.Fail("AllTokens", errors.New("execution reverted"))
	s := newService(t, gw, memory.NewLedger())

	job, err := s.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateFailed, job.State)
	assert.Contains(t, job.Error, "execution reverted")
}

type blockingGateway struct {
	*contractstub.Gateway
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *blockingGateway) AllTokens(ctx context.Context) ([]string, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return g.Gateway.AllTokens(ctx)
}

func TestStart_AsyncSingleJob(t *testing.T) {
	gw := &blockingGateway{Gateway: contractstub.NewGateway(), entered: make(chan struct{}), release: make(chan struct{})}
	s := newService(t, gw, memory.NewLedger())
	assert.Equal(t, StateIdle, s.Status().State)

	job, err := s.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateRunning, job.State)
	<-gw.entered

	_, err = s.Start(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	close(gw.release)
	require.Eventually(t, func() bool { return s.Status().State == StateCompleted }, time.Second, 5*time.Millisecond)
	assert.Equal(t, job.ID, s.Status().ID)
}
