// Package indexer follows the launchpad contracts block range by block range
// and projects their events into the ledger.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"launchpad-indexer/internal/cache"
	"launchpad-indexer/internal/chain"
	"launchpad-indexer/internal/contracts"
	"launchpad-indexer/internal/domain"
	"launchpad-indexer/internal/logging"
	"launchpad-indexer/internal/observability"
	"launchpad-indexer/internal/portfolio"
	"launchpad-indexer/internal/storage"
)

// Defaults applied by New.
const (
	DefaultConfirmations = 3
	DefaultBatchSize     = 1000
	DefaultPollInterval  = 12 * time.Second
	DefaultRetryDelay    = 5 * time.Second
)

// ContentResolver resolves a content URI to sanitized token metadata.
type ContentResolver interface {
	Resolve(ctx context.Context, uri string) (*domain.TokenMetadata, error)
}

// MetricsComputer computes token metrics.
type MetricsComputer interface {
	RefreshToken(ctx context.Context, address string) (domain.TokenMetrics, error)
	InitialMetrics(ctx context.Context, address string) domain.TokenMetrics
}

// Options configures an Indexer.
type Options struct {
	Gateway  contracts.Gateway
	Ledger   storage.Ledger
	Metadata ContentResolver
	Metrics  MetricsComputer

	// History receives every indexed trade when set.
	History storage.TradeHistoryStore
	// Cache is invalidated after writes; nil disables it.
	Cache cache.Cache
	// Heads wakes the idle loop early when a new head arrives.
	Heads <-chan uint64

	StartBlock    uint64
	Confirmations uint64
	BatchSize     uint64
	PollInterval  time.Duration
	RetryDelay    time.Duration
	Logger        *zap.Logger
}

// Status is a point-in-time view of the indexer.
type Status struct {
	Running            bool      `json:"running"`
	Cursor             uint64    `json:"cursor"`
	LastProcessedBlock uint64    `json:"lastProcessedBlock"`
	ChainHead          uint64    `json:"chainHead"`
	BatchesProcessed   int64     `json:"batchesProcessed"`
	EventsProcessed    int64     `json:"eventsProcessed"`
	LastError          string    `json:"lastError,omitempty"`
	LastErrorAt        time.Time `json:"lastErrorAt,omitempty"`
	LastBatchAt        time.Time `json:"lastBatchAt,omitempty"`
}

// Indexer is the STOPPED -> RUNNING -> STOPPED batch loop.
type Indexer struct {
	gateway    contracts.Gateway
	ledger     storage.Ledger
	metadata   ContentResolver
	metrics    MetricsComputer
	portfolios *portfolio.Service
	history    storage.TradeHistoryStore
	cache      cache.Cache
	heads      <-chan uint64
	logger     *zap.Logger

	startBlock    uint64
	confirmations uint64
	batchSize     uint64
	pollInterval  time.Duration
	retryDelay    time.Duration

	mu          sync.Mutex
	status      Status
	initialized bool
	stop        chan struct{}
	stopOnce    sync.Once
}

// New creates an Indexer.
func New(opts Options) *Indexer {
	if opts.Confirmations == 0 {
		opts.Confirmations = DefaultConfirmations
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	c := opts.Cache
	if c == nil {
		c = cache.Noop{}
	}
	return &Indexer{
		gateway:       opts.Gateway,
		ledger:        opts.Ledger,
		metadata:      opts.Metadata,
		metrics:       opts.Metrics,
		portfolios:    portfolio.NewService(opts.Ledger.Transactions, opts.Ledger.Portfolios),
		history:       opts.History,
		cache:         c,
		heads:         opts.Heads,
		logger:        logging.OrNop(opts.Logger).Named("indexer"),
		startBlock:    opts.StartBlock,
		confirmations: opts.Confirmations,
		batchSize:     opts.BatchSize,
		pollInterval:  opts.PollInterval,
		retryDelay:    opts.RetryDelay,
		stop:          make(chan struct{}),
	}
}

// Status returns the current status.
func (ix *Indexer) Status() Status {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.status
}

// Stop asks Run to return after the batch in progress. Cancelling the
// context passed to Run has the same effect: a started batch always runs
// to completion.
func (ix *Indexer) Stop() {
	ix.stopOnce.Do(func() { close(ix.stop) })
}

// Run processes batches until Stop is called or ctx is cancelled.
// A failed batch is retried from the same cursor after RetryDelay.
func (ix *Indexer) Run(ctx context.Context) error {
	ix.setRunning(true)
	defer ix.setRunning(false)

	ix.logger.Info("indexer started",
		zap.Uint64("confirmations", ix.confirmations),
		zap.Uint64("batch_size", ix.batchSize),
		zap.Duration("poll_interval", ix.pollInterval),
	)

	for {
		select {
		case <-ix.stop:
			ix.logger.Info("indexer stopped")
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		processed, err := ix.Step(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			ix.logger.Warn("batch failed, retrying", zap.Duration("delay", ix.retryDelay), zap.Error(err))
			if !ix.wait(ctx, ix.retryDelay, false) {
				return ix.exitErr(ctx)
			}
		case !processed:
			if !ix.wait(ctx, ix.pollInterval, true) {
				return ix.exitErr(ctx)
			}
		}
	}
}

func (ix *Indexer) exitErr(ctx context.Context) error {
	select {
	case <-ix.stop:
		ix.logger.Info("indexer stopped")
		return nil
	default:
		return ctx.Err()
	}
}

// wait sleeps for d. A new head ends an idle wait early. It returns false
// when the loop must exit.
func (ix *Indexer) wait(ctx context.Context, d time.Duration, wakeOnHead bool) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	var heads <-chan uint64
	if wakeOnHead {
		heads = ix.heads
	}
	select {
	case <-ctx.Done():
		return false
	case <-ix.stop:
		return false
	case <-timer.C:
		return true
	case h := <-heads:
		ix.mu.Lock()
		if h > ix.status.ChainHead {
			ix.status.ChainHead = h
		}
		ix.mu.Unlock()
		return true
	}
}

// Step processes at most one batch. It reports false when no finalized
// block is pending. Once a batch starts, cancelling ctx no longer
// interrupts it.
func (ix *Indexer) Step(ctx context.Context) (bool, error) {
	if err := ix.init(ctx); err != nil {
		return false, ix.fail(err)
	}

	head, err := ix.gateway.BlockNumber(ctx)
	if err != nil {
		return false, ix.fail(fmt.Errorf("block number: %w", err))
	}

	ix.mu.Lock()
	ix.status.ChainHead = head
	cursor := ix.status.Cursor
	ix.mu.Unlock()
	observability.UpdateCursor(cursor, head)

	if head < ix.confirmations {
		return false, nil
	}
	target := head - ix.confirmations
	if cursor > target {
		return false, nil
	}

	to := cursor + ix.batchSize - 1
	if to > target {
		to = target
	}
	if err := ix.ProcessRange(context.WithoutCancel(ctx), cursor, to); err != nil {
		return false, ix.fail(err)
	}

	ix.mu.Lock()
	ix.status.Cursor = to + 1
	ix.status.LastProcessedBlock = to
	ix.status.BatchesProcessed++
	ix.status.LastBatchAt = time.Now().UTC()
	ix.mu.Unlock()
	observability.UpdateCursor(to+1, head)
	return true, nil
}

// init derives the cursor from the highest block in the transaction ledger.
// Events are handled in chain order, so every block below that one is fully
// processed. The highest block itself may be partial after an aborted batch
// and is processed again.
func (ix *Indexer) init(ctx context.Context) error {
	ix.mu.Lock()
	done := ix.initialized
	ix.mu.Unlock()
	if done {
		return nil
	}

	highest, ok, err := ix.ledger.Transactions.MaxBlock(ctx)
	if err != nil {
		return fmt.Errorf("read cursor: %w", err)
	}
	cursor := ix.startBlock
	if ok && highest > cursor {
		cursor = highest
	}

	ix.mu.Lock()
	ix.status.Cursor = cursor
	if cursor > 0 {
		ix.status.LastProcessedBlock = cursor - 1
	}
	ix.initialized = true
	ix.mu.Unlock()
	ix.logger.Info("cursor initialized", zap.Uint64("cursor", cursor))
	return nil
}

func (ix *Indexer) fail(err error) error {
	ix.mu.Lock()
	ix.status.LastError = err.Error()
	ix.status.LastErrorAt = time.Now().UTC()
	ix.mu.Unlock()
	return err
}

func (ix *Indexer) setRunning(running bool) {
	ix.mu.Lock()
	ix.status.Running = running
	ix.mu.Unlock()
}

// ProcessRange fetches and handles every event in [from, to]. Event kinds
// are fetched concurrently and handled in (block, log index) order, so the
// highest block in the ledger is a watermark. Per-event failures are logged
// and skipped unless the chain gave up retrying, which fails the range.
func (ix *Indexer) ProcessRange(ctx context.Context, from, to uint64) error {
	start := time.Now()

	var (
		created []domain.TokenCreated
		listed  []domain.TokenListed
		trades  []domain.Event
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		created, err = ix.gateway.TokenCreatedEvents(gctx, from, to)
		return err
	})
	g.Go(func() (err error) {
		listed, err = ix.gateway.TokenListedEvents(gctx, from, to)
		return err
	})
	g.Go(func() (err error) {
		trades, err = ix.gateway.TradeEvents(gctx, from, to)
		return err
	})
	if err := g.Wait(); err != nil {
		observability.RecordBatch("error", time.Since(start).Seconds(), 0)
		return fmt.Errorf("fetch events [%d, %d]: %w", from, to, err)
	}

	b := &batch{from: from, to: to}
	events := make([]domain.Event, 0, len(created)+len(listed)+len(trades))
	for _, e := range created {
		events = append(events, e)
	}
	for _, e := range listed {
		events = append(events, e)
	}
	events = append(events, trades...)
	sort.SliceStable(events, func(i, j int) bool {
		mi, mj := events[i].Meta(), events[j].Meta()
		if mi.BlockNumber != mj.BlockNumber {
			return mi.BlockNumber < mj.BlockNumber
		}
		return mi.LogIndex < mj.LogIndex
	})

	for _, e := range events {
		if err := ix.handle(ctx, b, e); err != nil {
			if abortsBatch(ctx, err) {
				// Trades already written are skipped on retry.
				ix.flushHistory(ctx, b)
				observability.RecordBatch("error", time.Since(start).Seconds(), 0)
				return fmt.Errorf("%s in tx %s: %w", e.Kind(), e.Meta().TxHash, err)
			}
			ix.logger.Warn("event skipped",
				zap.String("kind", string(e.Kind())),
				zap.String("token", domain.TokenAddress(e)),
				zap.String("tx", e.Meta().TxHash),
				zap.Uint64("block", e.Meta().BlockNumber),
				zap.Uint64("from", from),
				zap.Uint64("to", to),
				zap.Error(err),
			)
		}
	}

	ix.flushHistory(ctx, b)

	ix.mu.Lock()
	ix.status.EventsProcessed += int64(len(events))
	ix.mu.Unlock()

	observability.RecordBatch("ok", time.Since(start).Seconds(), time.Now().Unix())
	if len(events) > 0 {
		ix.logger.Info("batch processed",
			zap.Uint64("from", from),
			zap.Uint64("to", to),
			zap.Int("created", len(created)),
			zap.Int("listed", len(listed)),
			zap.Int("trades", len(trades)),
			zap.Int("written", b.written),
		)
	}
	return nil
}

func (ix *Indexer) handle(ctx context.Context, b *batch, e domain.Event) error {
	var err error
	switch ev := e.(type) {
	case domain.TokenCreated:
		err = ix.handleCreated(ctx, b, ev)
	case domain.TokenListed:
		err = ix.handleListed(ctx, b, ev)
	case domain.TokensBought:
		err = ix.handleTrade(ctx, b, tradeFromBought(ev))
	case domain.TokensSold:
		err = ix.handleTrade(ctx, b, tradeFromSold(ev))
	default:
		err = fmt.Errorf("unknown event %T", e)
	}
	observability.RecordEvent(string(e.Kind()), err)
	return err
}

// abortsBatch reports whether err must fail the whole range so it is retried.
func abortsBatch(ctx context.Context, err error) bool {
	return ctx.Err() != nil || transient(err)
}

// transient reports whether err may succeed on a later attempt.
func transient(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, chain.ErrRetriesExhausted)
}

// batch accumulates per-range side outputs.
type batch struct {
	from, to uint64
	written  int
	points   []domain.TradePoint
}

func (ix *Indexer) flushHistory(ctx context.Context, b *batch) {
	if ix.history == nil || len(b.points) == 0 {
		return
	}
	if err := ix.history.InsertBulk(ctx, b.points); err != nil {
		ix.logger.Warn("trade history write failed",
			zap.Uint64("from", b.from),
			zap.Uint64("to", b.to),
			zap.Int("points", len(b.points)),
			zap.Error(err),
		)
	}
}

func (ix *Indexer) invalidate(ctx context.Context, keys ...string) {
	if err := ix.cache.Delete(ctx, keys...); err != nil {
		ix.logger.Debug("cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}
