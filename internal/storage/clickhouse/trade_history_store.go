package clickhouse

import (
	"context"
	"fmt"

	"curvelaunch/internal/domain"
	"curvelaunch/internal/storage"
)

// TradeHistoryStore implements storage.TradeHistorySink using ClickHouse.
// Settlement delivers trades at least once; the ReplacingMergeTree table
// keyed on trade id collapses replays, so Append does no duplicate checks.
type TradeHistoryStore struct {
	conn *Conn
}

// NewTradeHistoryStore creates a new TradeHistoryStore.
func NewTradeHistoryStore(conn *Conn) *TradeHistoryStore {
	return &TradeHistoryStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TradeHistorySink = (*TradeHistoryStore)(nil)

// Append records executed trades in one batch.
func (s *TradeHistoryStore) Append(ctx context.Context, trades []*domain.TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO trade_history (
			trade_id, token_id, wallet, side, amount_in, amount_out, price, fee, timestamp_ms
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, t := range trades {
		err = batch.Append(
			uint64(t.ID), t.TokenID, t.Wallet, t.Side,
			t.AmountIn, t.AmountOut, t.Price, t.Fee, uint64(t.Timestamp),
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

// VolumeByToken returns the total traded volume per token within
// [start, end] (inclusive, milliseconds). Used by dashboard queries.
func (s *TradeHistoryStore) VolumeByToken(ctx context.Context, start, end int64) (map[string]float64, error) {
	query := `
		SELECT token_id, sum(amount_in)
		FROM trade_history
		WHERE timestamp_ms >= ? AND timestamp_ms <= ?
		GROUP BY token_id
	`

	rows, err := s.conn.Query(ctx, query, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query volume by token: %w", err)
	}
	defer rows.Close()

	result := make(map[string]float64)
	for rows.Next() {
		var tokenID string
		var volume float64
		if err := rows.Scan(&tokenID, &volume); err != nil {
			return nil, fmt.Errorf("scan volume row: %w", err)
		}
		result[tokenID] = volume
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate volume rows: %w", err)
	}
	return result, nil
}
