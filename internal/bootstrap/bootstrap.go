// Package bootstrap fills the token table straight from the factory's token
// list instead of replaying history.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"launchpad-indexer/internal/contracts"
	"launchpad-indexer/internal/domain"
	"launchpad-indexer/internal/logging"
	"launchpad-indexer/internal/observability"
	"launchpad-indexer/internal/storage"
)

// DefaultConcurrency is the number of tokens fetched at a time.
const DefaultConcurrency = 10

// ErrAlreadyRunning is returned when a job is started while one is running.
var ErrAlreadyRunning = errors.New("bootstrap already running")

// State is the lifecycle of a bootstrap job.
type State string

// Job states.
const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Job is the status of the latest bootstrap run.
type Job struct {
	ID         string     `json:"id,omitempty"`
	State      State      `json:"state"`
	Total      int        `json:"total"`
	Existing   int        `json:"existing"`
	Created    int        `json:"created"`
	Backfilled int        `json:"backfilled"`
	Failed     int        `json:"failed"`
	Error      string     `json:"error,omitempty"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// ContentResolver resolves a content URI to sanitized token metadata.
type ContentResolver interface {
	Resolve(ctx context.Context, uri string) (*domain.TokenMetadata, error)
}

// MetricsComputer computes token metrics.
type MetricsComputer interface {
	RefreshToken(ctx context.Context, address string) (domain.TokenMetrics, error)
	InitialMetrics(ctx context.Context, address string) domain.TokenMetrics
}

// Options configures Service.
type Options struct {
	Gateway     contracts.Gateway
	Tokens      storage.TokenStore
	Metadata    ContentResolver
	Metrics     MetricsComputer
	Concurrency int
	Logger      *zap.Logger
}

// Service runs bootstrap jobs, one at a time.
type Service struct {
	gateway  contracts.Gateway
	tokens   storage.TokenStore
	metadata ContentResolver
	metrics  MetricsComputer
	pool     pond.Pool
	logger   *zap.Logger

	running atomic.Bool
	mu      sync.Mutex
	job     Job
}

// New creates a Service.
func New(opts Options) *Service {
	n := opts.Concurrency
	if n <= 0 {
		n = DefaultConcurrency
	}
	return &Service{
		gateway:  opts.Gateway,
		tokens:   opts.Tokens,
		metadata: opts.Metadata,
		metrics:  opts.Metrics,
		pool:     pond.NewPool(n),
		logger:   logging.OrNop(opts.Logger).Named("bootstrap"),
		job:      Job{State: StateIdle},
	}
}

// Status returns the latest job.
func (s *Service) Status() Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.job
}

// Close waits for running work and releases the worker pool.
func (s *Service) Close() {
	s.pool.StopAndWait()
}

// Start launches a job in the background and returns its initial status.
func (s *Service) Start(ctx context.Context) (Job, error) {
	if !s.running.CompareAndSwap(false, true) {
		return s.Status(), ErrAlreadyRunning
	}
	job := s.begin()
	go func() {
		defer s.running.Store(false)
		_ = s.run(ctx)
	}()
	return job, nil
}

// Run executes a job and blocks until it finishes.
func (s *Service) Run(ctx context.Context) (Job, error) {
	if !s.running.CompareAndSwap(false, true) {
		return s.Status(), ErrAlreadyRunning
	}
	defer s.running.Store(false)
	s.begin()
	err := s.run(ctx)
	return s.Status(), err
}

func (s *Service) begin() Job {
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.job = Job{ID: uuid.NewString(), State: StateRunning, StartedAt: &now}
	return s.job
}

func (s *Service) run(ctx context.Context) error {
	err := s.sync(ctx)

	now := time.Now().UTC()
	s.mu.Lock()
	s.job.FinishedAt = &now
	if err != nil {
		s.job.State = StateFailed
		s.job.Error = err.Error()
	} else {
		s.job.State = StateCompleted
	}
	job := s.job
	s.mu.Unlock()

	fields := []zap.Field{
		zap.String("job", job.ID),
		zap.String("state", string(job.State)),
		zap.Int("total", job.Total),
		zap.Int("existing", job.Existing),
		zap.Int("created", job.Created),
		zap.Int("backfilled", job.Backfilled),
		zap.Int("failed", job.Failed),
		zap.Duration("elapsed", now.Sub(*job.StartedAt)),
	}
	if err != nil {
		s.logger.Error("bootstrap failed", append(fields, zap.Error(err))...)
		return err
	}
	s.logger.Info("bootstrap completed", fields...)
	return nil
}

func (s *Service) sync(ctx context.Context) error {
	onChain, err := s.gateway.AllTokens(ctx)
	if err != nil {
		return fmt.Errorf("list on-chain tokens: %w", err)
	}
	known, err := s.tokens.ListAddresses(ctx)
	if err != nil {
		return fmt.Errorf("list stored tokens: %w", err)
	}
	stored := make(map[string]struct{}, len(known))
	for _, a := range known {
		stored[a] = struct{}{}
	}

	var missing []string
	for _, a := range onChain {
		a = domain.NormalizeAddress(a)
		if _, ok := stored[a]; !ok {
			missing = append(missing, a)
		}
	}

	unenriched, err := s.tokens.ListUnenriched(ctx, len(known))
	if err != nil {
		return fmt.Errorf("list unenriched tokens: %w", err)
	}

	s.update(func(j *Job) {
		j.Total = len(onChain)
		j.Existing = len(onChain) - len(missing)
	})
	s.logger.Info("bootstrap started",
		zap.Int("on_chain", len(onChain)),
		zap.Int("missing", len(missing)),
		zap.Int("unenriched", len(unenriched)),
	)

	group := s.pool.NewGroupContext(ctx)
	groupCtx := group.Context()
	for _, addr := range missing {
		group.Submit(func() {
			if groupCtx.Err() != nil {
				return
			}
			s.createToken(groupCtx, addr)
		})
	}
	for _, addr := range unenriched {
		group.Submit(func() {
			if groupCtx.Err() != nil {
				return
			}
			s.backfillMetrics(groupCtx, addr)
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		return err
	}
	return ctx.Err()
}

// createToken stores a token read directly from its contract.
func (s *Service) createToken(ctx context.Context, addr string) {
	details, err := s.gateway.TokenDetails(ctx, addr)
	if err != nil {
		s.failed(addr, "token details", err)
		return
	}

	tok := &domain.Token{
		Address:     addr,
		Name:        details.Name,
		Symbol:      details.Symbol,
		TotalSupply: domain.BigString(details.TotalSupply),
		ContentURI:  details.ContentURI,
	}
	if info, err := s.gateway.TokenInfo(ctx, addr); err == nil {
		tok.TradingEnabled = info.TradingEnabled
		tok.ReserveRatio = info.ReserveRatio
	}
	if tok.ContentURI != "" && s.metadata != nil {
		if md, err := s.metadata.Resolve(ctx, tok.ContentURI); err == nil {
			tok.Metadata = md
			tok.LogoURL = md.ImageURL
			tok.Description = md.Description
			tok.Links = md.Links
		}
	}
	tok.Metrics = s.metrics.InitialMetrics(ctx, addr)

	if err := s.tokens.Insert(ctx, tok); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			s.update(func(j *Job) { j.Existing++ })
			observability.RecordBootstrapToken("existing")
			return
		}
		s.failed(addr, "insert token", err)
		return
	}
	s.update(func(j *Job) { j.Created++ })
	observability.RecordBootstrapToken("created")
}

// backfillMetrics patches only the metrics of a stored, never-enriched token.
func (s *Service) backfillMetrics(ctx context.Context, addr string) {
	if _, err := s.metrics.RefreshToken(ctx, addr); err != nil {
		s.failed(addr, "backfill metrics", err)
		return
	}
	s.update(func(j *Job) { j.Backfilled++ })
	observability.RecordBootstrapToken("backfilled")
}

func (s *Service) failed(addr, step string, err error) {
	s.logger.Warn("bootstrap token failed", zap.String("address", addr), zap.String("step", step), zap.Error(err))
	s.update(func(j *Job) { j.Failed++ })
	observability.RecordBootstrapToken("failed")
}

func (s *Service) update(fn func(*Job)) {
	s.mu.Lock()
	fn(&s.job)
	s.mu.Unlock()
}
