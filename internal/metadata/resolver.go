// Package metadata resolves off-chain token metadata documents from
// content-addressed gateways through a read-through content cache.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"launchpad-indexer/internal/domain"
	"launchpad-indexer/internal/logging"
	"launchpad-indexer/internal/observability"
	"launchpad-indexer/internal/storage"
)

// ErrNotFound is returned when no gateway could serve the document.
// Callers treat it as "no metadata", not as a failure.
var ErrNotFound = errors.New("metadata not found")

// DefaultTimeout bounds one gateway attempt.
const DefaultTimeout = 12 * time.Second

// maxDocumentSize caps a metadata document body.
const maxDocumentSize = 1 << 20

// DefaultGateways are public mirrors tried in rotation.
var DefaultGateways = []string{
	"https://ipfs.io",
	"https://gateway.pinata.cloud",
	"https://dweb.link",
}

// Options configures Resolver.
type Options struct {
	Gateways   []string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Resolver fetches metadata documents by content hash. Each call starts at
// the next gateway in rotation and tries all of them in turn. Concurrent
// requests for one hash share a single fetch.
type Resolver struct {
	cache    storage.ContentCacheStore
	gateways []string
	timeout  time.Duration
	client   *http.Client
	logger   *zap.Logger
	next     atomic.Uint64
	inflight singleflight.Group
	now      func() time.Time
}

// NewResolver creates a Resolver backed by cache. A nil cache disables caching.
func NewResolver(cache storage.ContentCacheStore, opts Options) *Resolver {
	gateways := opts.Gateways
	if len(gateways) == 0 {
		gateways = DefaultGateways
	}
	trimmed := make([]string, len(gateways))
	for i, g := range gateways {
		trimmed[i] = strings.TrimRight(g, "/")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &Resolver{
		cache:    cache,
		gateways: trimmed,
		timeout:  timeout,
		client:   client,
		logger:   logging.OrNop(opts.Logger).Named("metadata"),
		now:      time.Now,
	}
}

// Resolve returns the sanitized metadata for uri, with ImageURL set to a
// gateway display URL when the image is content-addressed.
func (r *Resolver) Resolve(ctx context.Context, uri string) (*domain.TokenMetadata, error) {
	hash, err := NormalizeHash(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, err)
	}

	if md, ok := r.fromCache(ctx, hash); ok {
		observability.RecordMetadataFetch("cache")
		return r.withImage(md), nil
	}

	// The shared fetch outlives any single caller; each gateway attempt is
	// still bounded by the per-gateway timeout.
	ch := r.inflight.DoChan(hash, func() (interface{}, error) {
		return r.fetch(context.WithoutCancel(ctx), hash)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		observability.RecordMetadataFetch("miss")
		return nil, res.Err
	}
	observability.RecordMetadataFetch("gateway")

	md := *res.Val.(*domain.TokenMetadata)
	return r.withImage(&md), nil
}

// DisplayURL returns a browser-loadable URL for uri. Content-addressed URIs
// map to the primary gateway; plain http(s) URLs pass through.
func (r *Resolver) DisplayURL(uri string) string {
	if hash, err := NormalizeHash(uri); err == nil {
		return r.gateways[0] + "/ipfs/" + hash
	}
	if u := CleanURL(uri); strings.HasPrefix(strings.ToLower(u), "http") {
		return u
	}
	return ""
}

func (r *Resolver) withImage(md *domain.TokenMetadata) *domain.TokenMetadata {
	if md.Image != "" {
		md.ImageURL = r.DisplayURL(md.Image)
	}
	return md
}

func (r *Resolver) fromCache(ctx context.Context, hash string) (*domain.TokenMetadata, bool) {
	if r.cache == nil {
		return nil, false
	}
	entry, err := r.cache.Get(ctx, hash)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			r.logger.Warn("content cache read failed", zap.String("hash", hash), zap.Error(err))
		}
		return nil, false
	}
	var md domain.TokenMetadata
	if err := json.Unmarshal(entry.Payload, &md); err != nil {
		r.logger.Warn("discarding corrupt cache entry", zap.String("hash", hash), zap.Error(err))
		return nil, false
	}
	if err := r.cache.Touch(ctx, hash, r.now().UTC()); err != nil {
		r.logger.Debug("content cache touch failed", zap.String("hash", hash), zap.Error(err))
	}
	return &md, true
}

// fetch tries every gateway once, starting from the rotation cursor.
func (r *Resolver) fetch(ctx context.Context, hash string) (*domain.TokenMetadata, error) {
	start := int(r.next.Add(1)-1) % len(r.gateways)

	for i := 0; i < len(r.gateways); i++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		gateway := r.gateways[(start+i)%len(r.gateways)]
		url := gateway + "/ipfs/" + hash

		doc, err := r.get(ctx, url)
		if err != nil {
			r.logger.Debug("gateway fetch failed",
				zap.String("gateway", gateway),
				zap.String("hash", hash),
				zap.Error(err),
			)
			continue
		}

		md := sanitize(doc)
		r.store(ctx, hash, url, &md)
		return &md, nil
	}

	r.logger.Info("metadata unavailable on all gateways", zap.String("hash", hash))
	return nil, ErrNotFound
}

func (r *Resolver) get(ctx context.Context, url string) (document, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return document{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return document{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return document{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return document{}, err
	}
	var doc document
	if err := json.Unmarshal(body, &doc); err != nil {
		return document{}, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

func (r *Resolver) store(ctx context.Context, hash, url string, md *domain.TokenMetadata) {
	if r.cache == nil {
		return
	}
	payload, err := json.Marshal(md)
	if err != nil {
		return
	}
	now := r.now().UTC()
	entry := &domain.ContentEntry{
		Hash:           hash,
		ContentType:    "application/json",
		Payload:        payload,
		ResolvedURL:    url,
		LastAccessedAt: now,
		CreatedAt:      now,
	}
	if err := r.cache.Put(ctx, entry); err != nil {
		r.logger.Warn("content cache write failed", zap.String("hash", hash), zap.Error(err))
	}
}
