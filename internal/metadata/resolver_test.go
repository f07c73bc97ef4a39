package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"launchpad-indexer/internal/storage/memory"
)

type gateway struct {
	*httptest.Server
	hits atomic.Int64
}

func newGateway(t *testing.T, handler http.HandlerFunc) *gateway {
	t.Helper()
	g := &gateway{}
	g.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(g.Close)
	return g
}

func failing(code int) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(code)
	}
}

func serving(doc map[string]interface{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(doc)
	}
}

func TestResolver_FallsThroughGateways(t *testing.T) {
	down := newGateway(t, failing(http.StatusBadGateway))
	missing := newGateway(t, failing(http.StatusNotFound))
	good := newGateway(t, serving(map[string]interface{}{
		"name":        "Moon<script>alert(1)</script>",
		"symbol":      "MOON",
		"description": "to the <b>moon</b>",
		"image":       "ipfs://" + cidV1,
	}))

	cache := memory.NewContentCacheStore()
	r := NewResolver(cache, Options{Gateways: []string{down.URL, missing.URL, good.URL}})

	md, err := r.Resolve(context.Background(), "ipfs://"+cidV0)
	require.NoError(t, err)
	assert.Equal(t, "Moon", md.Name)
	assert.Equal(t, "MOON", md.Symbol)
	assert.Equal(t, "to the moon", md.Description)
	assert.Equal(t, down.URL+"/ipfs/"+cidV1, md.ImageURL)

	entry, err := cache.Get(context.Background(), cidV0)
	require.NoError(t, err)
	assert.Equal(t, good.URL+"/ipfs/"+cidV0, entry.ResolvedURL)
	assert.Equal(t, "application/json", entry.ContentType)
}

func TestResolver_AllGatewaysFail(t *testing.T) {
	a := newGateway(t, failing(http.StatusInternalServerError))
	b := newGateway(t, failing(http.StatusNotFound))
	c := newGateway(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	})

	r := NewResolver(memory.NewContentCacheStore(), Options{Gateways: []string{a.URL, b.URL, c.URL}})

	_, err := r.Resolve(context.Background(), cidV0)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, int64(1), a.hits.Load())
	assert.Equal(t, int64(1), b.hits.Load())
	assert.Equal(t, int64(1), c.hits.Load())
}

func TestResolver_InvalidURIIsNotFound(t *testing.T) {
	r := NewResolver(nil, Options{Gateways: []string{"http://unused"}})
	_, err := r.Resolve(context.Background(), "https://example.com/meta.json")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolver_CacheHitSkipsNetwork(t *testing.T) {
	g := newGateway(t, serving(map[string]interface{}{"name": "Cached"}))
	cache := memory.NewContentCacheStore()
	r := NewResolver(cache, Options{Gateways: []string{g.URL}})

	accessed := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return accessed }

	ctx := context.Background()
	_, err := r.Resolve(ctx, cidV0)
	require.NoError(t, err)

	accessed = accessed.Add(time.Hour)
	md, err := r.Resolve(ctx, "https://other.gateway/ipfs/"+cidV0)
	require.NoError(t, err)
	assert.Equal(t, "Cached", md.Name)
	assert.Equal(t, int64(1), g.hits.Load())

	entry, err := cache.Get(ctx, cidV0)
	require.NoError(t, err)
	assert.Equal(t, accessed, entry.LastAccessedAt)
}

func TestResolver_RotatesStartingGateway(t *testing.T) {
	a := newGateway(t, serving(map[string]interface{}{"name": "A"}))
	b := newGateway(t, serving(map[string]interface{}{"name": "B"}))

	r := NewResolver(nil, Options{Gateways: []string{a.URL, b.URL}})
	ctx := context.Background()

	first, err := r.Resolve(ctx, cidV0)
	require.NoError(t, err)
	second, err := r.Resolve(ctx, cidV0)
	require.NoError(t, err)

	assert.Equal(t, "A", first.Name)
	assert.Equal(t, "B", second.Name)
}

func TestResolver_PerGatewayTimeout(t *testing.T) {
	slow := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})
	fast := newGateway(t, serving(map[string]interface{}{"name": "Fast"}))

	r := NewResolver(nil, Options{Gateways: []string{slow.URL, fast.URL}, Timeout: 50 * time.Millisecond})

	start := time.Now()
	md, err := r.Resolve(context.Background(), cidV0)
	require.NoError(t, err)
	assert.Equal(t, "Fast", md.Name)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestResolver_DedupesConcurrentFetches(t *testing.T) {
	release := make(chan struct{})
	g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
		serving(map[string]interface{}{"name": "Shared"})(w, r)
	})
	r := NewResolver(nil, Options{Gateways: []string{g.URL}})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			md, err := r.Resolve(context.Background(), cidV0)
			assert.NoError(t, err)
			if md != nil {
				assert.Equal(t, "Shared", md.Name)
			}
		}()
	}
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int64(1), g.hits.Load())
}

func TestResolver_CancelledCallerDoesNotFailSharedFetch(t *testing.T) {
	release := make(chan struct{})
	g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
		serving(map[string]interface{}{"name": "Shared"})(w, r)
	})
	r := NewResolver(nil, Options{Gateways: []string{g.URL}})

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := r.Resolve(firstCtx, cidV0)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return g.hits.Load() == 1 }, time.Second, 5*time.Millisecond)

	type result struct {
		name string
		err  error
	}
	second := make(chan result, 1)
	go func() {
		md, err := r.Resolve(context.Background(), cidV0)
		if err != nil {
			second <- result{err: err}
			return
		}
		second <- result{name: md.Name}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, "Shared", got.name)
	assert.Equal(t, int64(1), g.hits.Load())
}

func TestResolver_DisplayURL(t *testing.T) {
	r := NewResolver(nil, Options{Gateways: []string{"https://gw.example/"}})

	assert.Equal(t, "https://gw.example/ipfs/"+cidV0, r.DisplayURL("ipfs://"+cidV0))
	assert.Equal(t, "https://cdn.example/logo.png", r.DisplayURL("https://cdn.example/logo.png"))
	assert.Empty(t, r.DisplayURL("javascript:alert(1)"))
}
