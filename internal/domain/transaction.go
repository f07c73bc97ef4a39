package domain

import (
	"fmt"
	"time"
)

// TxType is the kind of ledger transaction.
type TxType string

// Transaction types.
const (
	TxCreate TxType = "CREATE"
	TxBuy    TxType = "BUY"
	TxSell   TxType = "SELL"
)

// TxStatusConfirmed is the only status the indexer writes.
const TxStatusConfirmed = "CONFIRMED"

// Transaction is one indexed on-chain action.
// Corresponds to transactions table in PostgreSQL; Hash is the idempotency key.
type Transaction struct {
	Hash         string // lower-case tx hash, unique
	UserAddress  string
	TokenAddress string // FK to tokens
	Type         TxType
	AmountIn     string  // smallest-unit string: wei for BUY, tokens for SELL
	AmountOut    string  // smallest-unit string: tokens for BUY, wei for SELL
	Price        float64 // ETH per token, 0 when undefined
	BlockNumber  uint64
	Timestamp    time.Time
	Status       string
}

// CreateTxHash keys the synthetic CREATE row of the creation event at
// logIndex in txHash. It differs from the chain hash so a buy made in the
// same transaction keeps its own row.
func CreateTxHash(txHash string, logIndex uint) string {
	return fmt.Sprintf("%s:%d", txHash, logIndex)
}

// IsTrade reports whether the transaction is a BUY or SELL.
func (t *Transaction) IsTrade() bool {
	return t.Type == TxBuy || t.Type == TxSell
}

// EthAmount returns the ETH side of a trade: amountIn for BUY, amountOut for SELL.
func (t *Transaction) EthAmount() float64 {
	switch t.Type {
	case TxBuy:
		return WeiToEther(t.AmountIn)
	case TxSell:
		return WeiToEther(t.AmountOut)
	default:
		return 0
	}
}
