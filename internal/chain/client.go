package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"launchpad-indexer/internal/logging"
	"launchpad-indexer/internal/observability"
)

// Default resilience settings.
const (
	DefaultMaxRetries   = 2
	DefaultRetryDelay   = 1 * time.Second
	DefaultMaxDelay     = 5 * time.Second
	DefaultStallTimeout = 2 * time.Second
	DefaultRateLimit    = 100
)

// Client is a Reader over 1-3 endpoints. Each request passes the rate
// limiter, then races endpoints in priority order (the next endpoint starts
// when the previous fails or stalls), and is retried with exponential
// backoff when the failure is retryable.
type Client struct {
	endpoints    []*HTTPClient
	limiter      *SlidingWindow
	health       *Health
	maxRetries   int
	retryDelay   time.Duration
	maxDelay     time.Duration
	stallTimeout time.Duration
	httpClient   *http.Client
	logger       *zap.Logger
	sleep        func(ctx context.Context, d time.Duration) error
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithMaxRetries sets the number of retries after the first attempt.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets the initial backoff delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithMaxDelay caps the backoff delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.maxDelay = d
	}
}

// WithStallTimeout sets how long an endpoint may stay silent before the
// next one is started.
func WithStallTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.stallTimeout = d
	}
}

// WithRateLimit caps calls per DefaultRateWindow.
func WithRateLimit(n int) ClientOption {
	return func(c *Client) {
		c.limiter = NewSlidingWindow(n, DefaultRateWindow)
	}
}

// WithLimiter installs a preconfigured limiter.
func WithLimiter(l *SlidingWindow) ClientOption {
	return func(c *Client) {
		c.limiter = l
	}
}

// WithHTTPClient sets the http.Client used for every endpoint.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a Client over urls; the first URL is preferred.
func NewClient(urls []string, opts ...ClientOption) (*Client, error) {
	if len(urls) == 0 {
		return nil, ErrNoEndpoints
	}

	c := &Client{
		limiter:      NewSlidingWindow(DefaultRateLimit, DefaultRateWindow),
		health:       NewHealth(),
		maxRetries:   DefaultMaxRetries,
		retryDelay:   DefaultRetryDelay,
		maxDelay:     DefaultMaxDelay,
		stallTimeout: DefaultStallTimeout,
		sleep:        sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrNop(c.logger).Named("chain")

	for _, u := range urls {
		c.endpoints = append(c.endpoints, NewHTTPClient(u, c.httpClient))
	}
	return c, nil
}

// Health returns per-endpoint stats in configured order.
func (c *Client) Health() []EndpointStats {
	urls := make([]string, len(c.endpoints))
	for i, ep := range c.endpoints {
		urls[i] = ep.URL()
	}
	return c.health.Snapshot(urls)
}

// BlockNumber returns the current chain height.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var n hexutil.Uint64
	if err := c.do(ctx, "eth_blockNumber", nil, &n); err != nil {
		return 0, err
	}
	return uint64(n), nil
}

// rpcLog mirrors the eth_getLogs JSON shape.
type rpcLog struct {
	Address     common.Address `json:"address"`
	Topics      []common.Hash  `json:"topics"`
	Data        hexutil.Bytes  `json:"data"`
	BlockNumber hexutil.Uint64 `json:"blockNumber"`
	TxHash      common.Hash    `json:"transactionHash"`
	LogIndex    hexutil.Uint   `json:"logIndex"`
	Removed     bool           `json:"removed"`
}

// GetLogs returns logs matching q. Removed (reorged) logs are dropped.
func (c *Client) GetLogs(ctx context.Context, q FilterQuery) ([]Log, error) {
	filter := map[string]interface{}{
		"fromBlock": hexutil.EncodeUint64(q.FromBlock),
		"toBlock":   hexutil.EncodeUint64(q.ToBlock),
	}
	if len(q.Addresses) > 0 {
		filter["address"] = q.Addresses
	}
	if len(q.Topics) > 0 {
		filter["topics"] = q.Topics
	}

	var raw []rpcLog
	if err := c.do(ctx, "eth_getLogs", []interface{}{filter}, &raw); err != nil {
		return nil, err
	}

	logs := make([]Log, 0, len(raw))
	for _, l := range raw {
		if l.Removed {
			continue
		}
		logs = append(logs, Log{
			Address:     l.Address,
			Topics:      l.Topics,
			Data:        l.Data,
			BlockNumber: uint64(l.BlockNumber),
			TxHash:      l.TxHash,
			LogIndex:    uint(l.LogIndex),
		})
	}
	return logs, nil
}

// Call executes eth_call against the latest block.
func (c *Client) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	msg := map[string]interface{}{
		"to":   to,
		"data": hexutil.Bytes(data),
	}
	var out hexutil.Bytes
	if err := c.do(ctx, "eth_call", []interface{}{msg, "latest"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// BlockTime returns the timestamp of block number.
func (c *Client) BlockTime(ctx context.Context, number uint64) (time.Time, error) {
	var header *struct {
		Timestamp hexutil.Big `json:"timestamp"`
	}
	if err := c.do(ctx, "eth_getBlockByNumber", []interface{}{hexutil.EncodeUint64(number), false}, &header); err != nil {
		return time.Time{}, err
	}
	if header == nil {
		return time.Time{}, fmt.Errorf("block %d: %w", number, ErrBlockNotFound)
	}
	ts := (*big.Int)(&header.Timestamp)
	return time.Unix(ts.Int64(), 0).UTC(), nil
}

// do runs method with rate limiting, fallback and retry, decoding into result.
func (c *Client) do(ctx context.Context, method string, params []interface{}, result interface{}) error {
	start := time.Now()
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt)
			c.logger.Debug("retrying rpc call",
				zap.String("method", method),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			observability.RecordRPCRetry(method)
			if err := c.sleep(ctx, delay); err != nil {
				return err
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		raw, err := c.race(ctx, method, params)
		if err == nil {
			observability.RecordRPCCall(method, time.Since(start).Seconds(), nil)
			if result == nil || len(raw) == 0 {
				return nil
			}
			if err := json.Unmarshal(raw, result); err != nil {
				return fmt.Errorf("unmarshal %s result: %w", method, err)
			}
			return nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !IsRetryable(err) {
			observability.RecordRPCCall(method, time.Since(start).Seconds(), err)
			return err
		}
	}

	observability.RecordRPCCall(method, time.Since(start).Seconds(), lastErr)
	return fmt.Errorf("%s: %w: %w", method, ErrRetriesExhausted, lastErr)
}

// backoff returns retryDelay * 2^(attempt-1), capped at maxDelay.
func (c *Client) backoff(attempt int) time.Duration {
	d := c.retryDelay << (attempt - 1)
	if d <= 0 || d > c.maxDelay {
		d = c.maxDelay
	}
	return d
}

type attemptResult struct {
	idx int
	raw json.RawMessage
	err error
}

// race starts endpoints one at a time in priority order and returns the
// first success. A new endpoint starts when every running one has failed or
// the stall timeout passes without an answer. Deterministic failures end the
// race at once since every endpoint would return the same answer.
func (c *Client) race(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	eps := c.ordered()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan attemptResult, len(eps))
	next := 0
	launch := func() {
		i := next
		next++
		go func() {
			raw, err := eps[i].Call(ctx, method, params)
			results <- attemptResult{idx: i, raw: raw, err: err}
		}()
	}

	launch()
	inflight := 1

	stall := time.NewTimer(c.stallTimeout)
	defer stall.Stop()

	var lastErr error
	for inflight > 0 {
		select {
		case r := <-results:
			inflight--
			retryable := IsRetryable(r.err)
			c.health.Record(eps[r.idx].URL(), r.err != nil && retryable)
			if r.err == nil {
				return r.raw, nil
			}
			lastErr = r.err
			if !retryable {
				return nil, r.err
			}
			c.logger.Debug("endpoint failed",
				zap.String("endpoint", eps[r.idx].URL()),
				zap.String("method", method),
				zap.Error(r.err),
			)
			if next < len(eps) {
				launch()
				inflight++
				stall.Reset(c.stallTimeout)
			}
		case <-stall.C:
			if next < len(eps) {
				launch()
				inflight++
				stall.Reset(c.stallTimeout)
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

// ordered returns endpoints with healthy ones first, configured order kept
// within each group. Unhealthy endpoints stay reachable as a last resort.
func (c *Client) ordered() []*HTTPClient {
	eps := make([]*HTTPClient, len(c.endpoints))
	copy(eps, c.endpoints)
	sort.SliceStable(eps, func(i, j int) bool {
		return c.health.Healthy(eps[i].URL()) && !c.health.Healthy(eps[j].URL())
	})
	for _, ep := range eps {
		observability.SetEndpointHealthy(ep.URL(), c.health.Healthy(ep.URL()))
	}
	return eps
}

// Compile-time interface check.
var _ Reader = (*Client)(nil)
