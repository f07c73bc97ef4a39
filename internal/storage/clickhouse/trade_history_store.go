package clickhouse

import (
	"context"
	"fmt"
	"time"

	"launchpad-indexer/internal/domain"
	"launchpad-indexer/internal/observability"
	"launchpad-indexer/internal/storage"
)

// TradeHistoryStore implements storage.TradeHistoryStore using ClickHouse.
// The table is a ReplacingMergeTree keyed by (token, time, tx hash), so a
// replayed trade collapses on merge and reads use FINAL.
type TradeHistoryStore struct {
	conn *Conn
}

// NewTradeHistoryStore creates a new TradeHistoryStore.
func NewTradeHistoryStore(conn *Conn) *TradeHistoryStore {
	return &TradeHistoryStore{conn: conn}
}

var _ storage.TradeHistoryStore = (*TradeHistoryStore)(nil)

// InsertBulk appends points in one batch.
func (s *TradeHistoryStore) InsertBulk(ctx context.Context, points []domain.TradePoint) (err error) {
	if len(points) == 0 {
		return nil
	}
	defer func(start time.Time) {
		observability.RecordDBQuery("clickhouse", "trade_insert_bulk", time.Since(start).Seconds(), err)
	}(time.Now())

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO trade_history (
			token_address, tx_hash, side, trader, eth_amount, token_amount, price, block_number, timestamp_ms
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range points {
		err = batch.Append(
			p.TokenAddress,
			p.TxHash,
			string(p.Side),
			p.Trader,
			p.EthAmount,
			p.TokenAmount,
			p.Price,
			p.BlockNumber,
			uint64(p.Timestamp.UnixMilli()),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByTimeRange returns points for token within [start, end] ordered by time.
func (s *TradeHistoryStore) GetByTimeRange(ctx context.Context, token string, start, end time.Time) ([]domain.TradePoint, error) {
	query := `
		SELECT token_address, tx_hash, side, trader, eth_amount, token_amount, price, block_number, timestamp_ms
		FROM trade_history FINAL
		WHERE token_address = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC, tx_hash ASC
	`

	rows, err := s.conn.Query(ctx, query, token, uint64(start.UnixMilli()), uint64(end.UnixMilli()))
	if err != nil {
		return nil, fmt.Errorf("query trade history: %w", err)
	}
	defer rows.Close()

	out := make([]domain.TradePoint, 0)
	for rows.Next() {
		var (
			p    domain.TradePoint
			side string
			ts   uint64
		)
		if err := rows.Scan(
			&p.TokenAddress, &p.TxHash, &side, &p.Trader,
			&p.EthAmount, &p.TokenAmount, &p.Price, &p.BlockNumber, &ts,
		); err != nil {
			return nil, fmt.Errorf("scan trade point: %w", err)
		}
		p.Side = domain.TxType(side)
		p.Timestamp = time.UnixMilli(int64(ts)).UTC()
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade history: %w", err)
	}
	return out, nil
}
