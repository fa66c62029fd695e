package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"curvelaunch/internal/domain"
	"curvelaunch/internal/storage"
)

// TradeRecordStore implements storage.TradeRecordStore using PostgreSQL.
type TradeRecordStore struct {
	pool *Pool
}

// NewTradeRecordStore creates a new TradeRecordStore.
func NewTradeRecordStore(pool *Pool) *TradeRecordStore {
	return &TradeRecordStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeRecordStore = (*TradeRecordStore)(nil)

const tradeColumns = `id, token_id, wallet, side, amount_in, amount_out, price, fee, timestamp`

// Insert adds a trade record outside a settlement transaction.
func (s *TradeRecordStore) Insert(ctx context.Context, t *domain.TradeRecord) error {
	if t == nil || t.TokenID == "" || t.Wallet == "" {
		return storage.ErrInvalidInput
	}
	if t.Side != domain.TradeSideBuy && t.Side != domain.TradeSideSell {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO trades (token_id, wallet, side, amount_in, amount_out, price, fee, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	err := s.pool.QueryRow(ctx, query,
		t.TokenID, t.Wallet, t.Side, t.AmountIn, t.AmountOut, t.Price, t.Fee, t.Timestamp,
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// GetByToken retrieves trades for a token, newest first, up to limit.
func (s *TradeRecordStore) GetByToken(ctx context.Context, tokenID string, limit int) ([]*domain.TradeRecord, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		WHERE token_id = $1
		ORDER BY timestamp DESC, id DESC
	`
	args := []any{tokenID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get trades by token: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// GetByWallet retrieves trades for a wallet across tokens, newest first, up to limit.
func (s *TradeRecordStore) GetByWallet(ctx context.Context, wallet string, limit int) ([]*domain.TradeRecord, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		WHERE wallet = $1
		ORDER BY timestamp DESC, id DESC
	`
	args := []any{wallet}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get trades by wallet: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// scanTrades scans multiple rows into a slice of TradeRecord.
func scanTrades(rows pgx.Rows) ([]*domain.TradeRecord, error) {
	var trades []*domain.TradeRecord

	for rows.Next() {
		var t domain.TradeRecord
		err := rows.Scan(
			&t.ID,
			&t.TokenID,
			&t.Wallet,
			&t.Side,
			&t.AmountIn,
			&t.AmountOut,
			&t.Price,
			&t.Fee,
			&t.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}
		trades = append(trades, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}

	return trades, nil
}
