// Package admin serves the operational HTTP surface: health, indexer
// status, bootstrap and holder-resync triggers, cached token reads and
// Prometheus metrics.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	"launchpad-indexer/internal/bootstrap"
	"launchpad-indexer/internal/cache"
	"launchpad-indexer/internal/chain"
	"launchpad-indexer/internal/indexer"
	"launchpad-indexer/internal/logging"
	"launchpad-indexer/internal/observability"
	"launchpad-indexer/internal/storage"
)

// TokenCacheTTL bounds how long a cached token read may be stale.
const TokenCacheTTL = 30 * time.Second

const shutdownTimeout = 10 * time.Second

// Indexer is the indexer surface the admin API drives.
type Indexer interface {
	Status() indexer.Status
	ResyncHolders(ctx context.Context, token string) (indexer.ResyncResult, error)
}

// Bootstrapper starts and reports bootstrap jobs.
type Bootstrapper interface {
	Start(ctx context.Context) (bootstrap.Job, error)
	Status() bootstrap.Job
}

// Options configures Server.
type Options struct {
	Indexer   Indexer
	Bootstrap Bootstrapper
	Tokens    storage.TokenStore
	Cache     cache.Cache
	// Health reports chain endpoint health; optional.
	Health func() []chain.EndpointStats
	Logger *zap.Logger
}

// Server is the admin HTTP server.
type Server struct {
	indexer   Indexer
	bootstrap Bootstrapper
	tokens    storage.TokenStore
	cache     cache.Cache
	health    func() []chain.EndpointStats
	logger    *zap.Logger

	// jobs outlive the request that triggered them.
	jobs    context.Context
	resyncs *xsync.Map[string, ResyncJob]
}

// New creates a Server. Background jobs run under ctx.
func New(ctx context.Context, opts Options) *Server {
	c := opts.Cache
	if c == nil {
		c = cache.Noop{}
	}
	return &Server{
		indexer:   opts.Indexer,
		bootstrap: opts.Bootstrap,
		tokens:    opts.Tokens,
		cache:     c,
		health:    opts.Health,
		logger:    logging.OrNop(opts.Logger).Named("admin"),
		jobs:      ctx,
		resyncs:   xsync.NewMap[string, ResyncJob](),
	}
}

// Router returns the HTTP routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", observability.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/indexer/status", s.handleIndexerStatus).Methods(http.MethodGet)
	api.HandleFunc("/sync/bootstrap", s.handleStartBootstrap).Methods(http.MethodPost)
	api.HandleFunc("/sync/bootstrap", s.handleBootstrapStatus).Methods(http.MethodGet)
	api.HandleFunc("/tokens/{address}", s.handleGetToken).Methods(http.MethodGet)
	api.HandleFunc("/tokens/{address}/holders/resync", s.handleStartResync).Methods(http.MethodPost)
	api.HandleFunc("/tokens/{address}/holders/resync", s.handleResyncStatus).Methods(http.MethodGet)
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("admin server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type statusResponse struct {
	Indexer   indexer.Status        `json:"indexer"`
	Endpoints []chain.EndpointStats `json:"endpoints,omitempty"`
}

func (s *Server) handleIndexerStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{Indexer: s.indexer.Status()}
	if s.health != nil {
		resp.Endpoints = s.health()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStartBootstrap(w http.ResponseWriter, _ *http.Request) {
	job, err := s.bootstrap.Start(s.jobs)
	if errors.Is(err, bootstrap.ErrAlreadyRunning) {
		writeJSON(w, http.StatusConflict, job)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("bootstrap triggered", zap.String("job", job.ID))
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleBootstrapStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.bootstrap.Status())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
