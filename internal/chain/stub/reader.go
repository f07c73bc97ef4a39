package stub

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"launchpad-indexer/internal/chain"
)

// GenesisTime is the timestamp of block 0 when no explicit time is set.
var GenesisTime = time.Unix(1700000000, 0).UTC()

// BlockInterval spaces default block timestamps.
const BlockInterval = 12 * time.Second

// Reader implements chain.Reader over in-memory logs for testing.
type Reader struct {
	mu sync.Mutex

	Height uint64
	Logs   []chain.Log
	Times  map[uint64]time.Time

	// CallFn answers eth_call. Nil returns an empty result.
	CallFn func(to common.Address, data []byte) ([]byte, error)

	// MaxRange makes GetLogs fail with a range error above this span.
	MaxRange uint64
	// LogsErr fails every GetLogs call when set.
	LogsErr error
	// HeightErr fails every BlockNumber call when set.
	HeightErr error

	LogQueries []chain.FilterQuery
}

// NewReader creates an empty stub chain.
func NewReader() *Reader {
	return &Reader{Times: make(map[uint64]time.Time)}
}

// AddLog appends a log and raises Height to its block if needed.
func (r *Reader) AddLog(l chain.Log) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Logs = append(r.Logs, l)
	if l.BlockNumber > r.Height {
		r.Height = l.BlockNumber
	}
}

// SetHeight sets the chain height.
func (r *Reader) SetHeight(h uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Height = h
}

// BlockNumber returns Height.
func (r *Reader) BlockNumber(_ context.Context) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.HeightErr != nil {
		return 0, r.HeightErr
	}
	return r.Height, nil
}

// GetLogs returns stored logs in the block range that match the address
// and first-topic filters.
func (r *Reader) GetLogs(_ context.Context, q chain.FilterQuery) ([]chain.Log, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.LogQueries = append(r.LogQueries, q)
	if r.LogsErr != nil {
		return nil, r.LogsErr
	}
	if r.MaxRange > 0 && q.ToBlock-q.FromBlock+1 > r.MaxRange {
		return nil, &chain.RPCError{Code: -32005, Message: "query returned more than 10000 results"}
	}

	var out []chain.Log
	for _, l := range r.Logs {
		if l.BlockNumber < q.FromBlock || l.BlockNumber > q.ToBlock {
			continue
		}
		if len(q.Addresses) > 0 && !containsAddress(q.Addresses, l.Address) {
			continue
		}
		if len(q.Topics) > 0 && len(q.Topics[0]) > 0 {
			if len(l.Topics) == 0 || !containsHash(q.Topics[0], l.Topics[0]) {
				continue
			}
		}
		out = append(out, l)
	}
	return out, nil
}

// Call delegates to CallFn.
func (r *Reader) Call(_ context.Context, to common.Address, data []byte) ([]byte, error) {
	if r.CallFn == nil {
		return nil, nil
	}
	return r.CallFn(to, data)
}

// BlockTime returns the configured time or a synthetic one.
func (r *Reader) BlockTime(_ context.Context, number uint64) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ts, ok := r.Times[number]; ok {
		return ts, nil
	}
	return GenesisTime.Add(time.Duration(number) * BlockInterval), nil
}

func containsAddress(list []common.Address, a common.Address) bool {
	for _, x := range list {
		if x == a {
			return true
		}
	}
	return false
}

func containsHash(list []common.Hash, h common.Hash) bool {
	for _, x := range list {
		if x == h {
			return true
		}
	}
	return false
}

var _ chain.Reader = (*Reader)(nil)
