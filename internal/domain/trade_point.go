package domain

import "time"

// TradePoint is a trade row in the ClickHouse trade_history table.
type TradePoint struct {
	TokenAddress string
	TxHash       string
	Side         TxType
	Trader       string
	EthAmount    float64
	TokenAmount  float64
	Price        float64
	BlockNumber  uint64
	Timestamp    time.Time
}
