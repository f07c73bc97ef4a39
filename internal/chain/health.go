package chain

import (
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"
)

// Health thresholds: an endpoint with at least minCalls calls and an error
// rate above maxErrorRate is unhealthy.
const (
	healthMinCalls     = 10
	healthMaxErrorRate = 0.5
)

// EndpointStats is a point-in-time view of one endpoint.
type EndpointStats struct {
	URL     string `json:"url"`
	Calls   int64  `json:"calls"`
	Errors  int64  `json:"errors"`
	Healthy bool   `json:"healthy"`
}

type counters struct {
	calls  atomic.Int64
	errors atomic.Int64
}

// Health tracks per-endpoint call and error counts.
type Health struct {
	stats *xsync.Map[string, *counters]
}

// NewHealth creates an empty tracker.
func NewHealth() *Health {
	return &Health{stats: xsync.NewMap[string, *counters]()}
}

// Record counts one completed call to url.
func (h *Health) Record(url string, failed bool) {
	c, ok := h.stats.Load(url)
	if !ok {
		c, _ = h.stats.LoadOrStore(url, &counters{})
	}
	c.calls.Add(1)
	if failed {
		c.errors.Add(1)
	}
}

// Healthy reports whether url is below the error threshold.
func (h *Health) Healthy(url string) bool {
	c, ok := h.stats.Load(url)
	if !ok {
		return true
	}
	return healthy(c.calls.Load(), c.errors.Load())
}

// Snapshot returns stats for urls in the given order.
func (h *Health) Snapshot(urls []string) []EndpointStats {
	out := make([]EndpointStats, 0, len(urls))
	for _, u := range urls {
		s := EndpointStats{URL: u, Healthy: true}
		if c, ok := h.stats.Load(u); ok {
			s.Calls = c.calls.Load()
			s.Errors = c.errors.Load()
			s.Healthy = healthy(s.Calls, s.Errors)
		}
		out = append(out, s)
	}
	return out
}

func healthy(calls, errors int64) bool {
	if calls < healthMinCalls {
		return true
	}
	return float64(errors)/float64(calls) <= healthMaxErrorRate
}
