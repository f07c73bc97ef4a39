// Package chain is the resilient JSON-RPC layer in front of an EVM node:
// multi-endpoint fallback, sliding-window rate limiting, retry with backoff
// and per-endpoint health.
package chain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Reader is the read surface the contract gateway needs.
type Reader interface {
	// BlockNumber returns the current chain height.
	BlockNumber(ctx context.Context) (uint64, error)

	// GetLogs returns logs matching q, inclusive of both block bounds.
	GetLogs(ctx context.Context, q FilterQuery) ([]Log, error)

	// Call executes a read-only eth_call against the latest block.
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)

	// BlockTime returns the timestamp of block number.
	BlockTime(ctx context.Context, number uint64) (time.Time, error)
}

// FilterQuery selects logs by emitter, topics and block range.
type FilterQuery struct {
	Addresses []common.Address
	Topics    [][]common.Hash
	FromBlock uint64
	ToBlock   uint64
}

// Log is a decoded eth_getLogs entry.
type Log struct {
	Address     common.Address
	Topics      []common.Hash
	Data        []byte
	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint
	Removed     bool
}
