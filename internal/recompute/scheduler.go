package recompute

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"launchpad-indexer/internal/domain"
	"launchpad-indexer/internal/logging"
	"launchpad-indexer/internal/observability"
	"launchpad-indexer/internal/storage"
)

// DefaultConcurrency bounds parallel token refreshes within one tier run.
const DefaultConcurrency = 10

// Refresher recomputes the metrics of one token.
type Refresher interface {
	RefreshToken(ctx context.Context, address string) (domain.TokenMetrics, error)
}

// SchedulerOptions configures Scheduler.
type SchedulerOptions struct {
	Tiers       []TierConfig // DefaultTiers when empty
	Concurrency int
	Logger      *zap.Logger
}

// TierResult summarizes one tier run.
type TierResult struct {
	Tier      Tier
	Selected  int
	Refreshed int
	Failed    int
}

// Scheduler runs tier refreshes. Tick is single-flight: a tick that starts
// while another is in progress is skipped entirely.
type Scheduler struct {
	refresher Refresher
	tokens    storage.TokenStore
	txs       storage.TransactionStore
	tiers     []TierConfig
	pool      pond.Pool
	logger    *zap.Logger
	now       func() time.Time

	running atomic.Bool

	// guarded by running
	lastRun    map[Tier]time.Time
	coldOffset int

	mu   sync.Mutex
	cron *cron.Cron
}

// NewScheduler creates a Scheduler.
func NewScheduler(refresher Refresher, tokens storage.TokenStore, txs storage.TransactionStore, opts SchedulerOptions) *Scheduler {
	tiers := opts.Tiers
	if len(tiers) == 0 {
		tiers = DefaultTiers()
	}
	n := opts.Concurrency
	if n <= 0 {
		n = DefaultConcurrency
	}
	return &Scheduler{
		refresher: refresher,
		tokens:    tokens,
		txs:       txs,
		tiers:     tiers,
		pool:      pond.NewPool(n),
		logger:    logging.OrNop(opts.Logger).Named("scheduler"),
		now:       time.Now,
		lastRun:   make(map[Tier]time.Time),
	}
}

// Start ticks every shortest tier cadence until Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return errors.New("scheduler already started")
	}

	c := cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(logging.CronLogger(s.logger))))
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.interval()), func() {
		s.Tick(ctx)
	}); err != nil {
		return fmt.Errorf("schedule tick: %w", err)
	}
	c.Start()
	s.cron = c
	s.logger.Info("tier scheduler started", zap.Duration("interval", s.interval()))
	return nil
}

// Stop stops ticking and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
	s.pool.StopAndWait()
}

func (s *Scheduler) interval() time.Duration {
	shortest := s.tiers[0].Cadence
	for _, t := range s.tiers[1:] {
		if t.Cadence < shortest {
			shortest = t.Cadence
		}
	}
	return shortest
}

// Tick runs every tier whose cadence has elapsed. It returns nil results
// when skipped because a previous tick is still running.
func (s *Scheduler) Tick(ctx context.Context) []TierResult {
	if !s.running.CompareAndSwap(false, true) {
		observability.RecordTierSkipped("all")
		s.logger.Debug("tick skipped, previous still running")
		return nil
	}
	defer s.running.Store(false)

	now := s.now()
	var due []TierConfig
	for _, t := range s.tiers {
		if last, ok := s.lastRun[t.Tier]; !ok || now.Sub(last) >= t.Cadence {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}

	lastTrades, err := s.txs.LastTradeTimes(ctx, now.Add(-ActiveWindow))
	if err != nil {
		s.logger.Warn("list recent trades failed", zap.Error(err))
		return nil
	}

	results := make([]TierResult, 0, len(due))
	for _, t := range due {
		if ctx.Err() != nil {
			break
		}
		s.lastRun[t.Tier] = now
		res, err := s.runTier(ctx, t, lastTrades, now)
		if err != nil {
			s.logger.Warn("tier run failed", zap.String("tier", string(t.Tier)), zap.Error(err))
			observability.RecordTierRun(string(t.Tier), "error", 0, 0)
			continue
		}
		results = append(results, res)
	}
	return results
}

func (s *Scheduler) runTier(ctx context.Context, t TierConfig, lastTrades map[string]time.Time, now time.Time) (TierResult, error) {
	start := time.Now()
	addrs, err := s.selectTier(ctx, t, lastTrades, now)
	if err != nil {
		return TierResult{}, err
	}
	res := TierResult{Tier: t.Tier, Selected: len(addrs)}
	if len(addrs) == 0 {
		return res, nil
	}

	var refreshed, failed atomic.Int64
	group := s.pool.NewGroupContext(ctx)
	groupCtx := group.Context()
	for _, addr := range addrs {
		group.Submit(func() {
			if groupCtx.Err() != nil {
				return
			}
			if _, err := s.refresher.RefreshToken(groupCtx, addr); err != nil {
				s.logger.Warn("token refresh failed",
					zap.String("tier", string(t.Tier)),
					zap.String("address", addr),
					zap.Error(err),
				)
				failed.Add(1)
				return
			}
			refreshed.Add(1)
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		s.logger.Warn("tier group error", zap.String("tier", string(t.Tier)), zap.Error(err))
	}

	res.Refreshed = int(refreshed.Load())
	res.Failed = int(failed.Load())
	status := "ok"
	if res.Failed > 0 {
		status = "partial"
	}
	observability.RecordTierRun(string(t.Tier), status, time.Since(start).Seconds(), res.Refreshed)
	s.logger.Debug("tier refreshed",
		zap.String("tier", string(t.Tier)),
		zap.Int("selected", res.Selected),
		zap.Int("refreshed", res.Refreshed),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

// selectTier returns up to BatchCap addresses for t. Traded tiers take the
// most recently traded first.
func (s *Scheduler) selectTier(ctx context.Context, t TierConfig, lastTrades map[string]time.Time, now time.Time) ([]string, error) {
	if t.Tier == TierCold {
		return s.selectCold(ctx, t.BatchCap, lastTrades)
	}

	var addrs []string
	for addr, at := range lastTrades {
		if Classify(at, now) == t.Tier {
			addrs = append(addrs, addr)
		}
	}
	sort.Slice(addrs, func(i, j int) bool {
		ti, tj := lastTrades[addrs[i]], lastTrades[addrs[j]]
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return addrs[i] < addrs[j]
	})
	if len(addrs) > t.BatchCap {
		addrs = addrs[:t.BatchCap]
	}
	return addrs, nil
}

// selectCold gives never-enriched tokens at most half the batch and fills
// the rest from a page of all tokens at a rotating offset, so tokens that
// never enrich cannot stall the rotation. The offset advances every cycle
// and wraps after a short page. Spare capacity goes back to never-enriched
// tokens.
func (s *Scheduler) selectCold(ctx context.Context, limit int, lastTrades map[string]time.Time) ([]string, error) {
	seen := make(map[string]struct{}, limit)
	out := make([]string, 0, limit)
	add := func(addr string, capacity int) {
		if len(out) >= capacity {
			return
		}
		if _, traded := lastTrades[addr]; traded {
			return
		}
		if _, dup := seen[addr]; dup {
			return
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}

	unenriched, err := s.tokens.ListUnenriched(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list unenriched: %w", err)
	}
	share := limit / 2
	for _, a := range unenriched {
		add(a, share)
	}

	size := limit - len(out)
	page, err := s.tokens.ListPage(ctx, s.coldOffset, size)
	if err != nil {
		return nil, fmt.Errorf("list page: %w", err)
	}
	if len(page) < size {
		s.coldOffset = 0
	} else {
		s.coldOffset += len(page)
	}
	for _, a := range page {
		add(a, limit)
	}

	for _, a := range unenriched {
		add(a, limit)
	}
	return out, nil
}
