package clickhouse_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curvelaunch/internal/domain"
	chstore "curvelaunch/internal/storage/clickhouse"
)

func trade(id int64, tokenID, side string, amountIn float64, ts int64) *domain.TradeRecord {
	return &domain.TradeRecord{
		ID:        id,
		TokenID:   tokenID,
		Wallet:    "4vJ9JU1bJJE96FWSJKvHsmmFADCg4gpZQff4P3bkLKi",
		Side:      side,
		AmountIn:  amountIn,
		AmountOut: amountIn * 2,
		Price:     0.00001,
		Fee:       amountIn * 0.02,
		Timestamp: ts,
	}
}

func TestTradeHistoryStore_Append(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := chstore.NewTradeHistoryStore(conn)
	ctx := context.Background()

	// Empty append is a no-op
	err := store.Append(ctx, nil)
	assert.NoError(t, err)

	trades := []*domain.TradeRecord{
		trade(1, "tok-1", domain.TradeSideBuy, 100.0, 1000),
		trade(2, "tok-1", domain.TradeSideSell, 40.0, 2000),
		trade(3, "tok-2", domain.TradeSideBuy, 250.0, 1500),
	}
	err = store.Append(ctx, trades)
	require.NoError(t, err)

	var count uint64
	row := conn.QueryRow(ctx, "SELECT count() FROM trade_history")
	require.NoError(t, row.Scan(&count))
	assert.Equal(t, uint64(3), count)
}

func TestTradeHistoryStore_ReplayCollapses(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := chstore.NewTradeHistoryStore(conn)
	ctx := context.Background()

	trades := []*domain.TradeRecord{
		trade(1, "tok-1", domain.TradeSideBuy, 100.0, 1000),
		trade(2, "tok-1", domain.TradeSideBuy, 50.0, 2000),
	}

	// The sink delivers at least once; the same batch may arrive twice.
	require.NoError(t, store.Append(ctx, trades))
	require.NoError(t, store.Append(ctx, trades))

	// FINAL forces ReplacingMergeTree deduplication at read time.
	var count uint64
	row := conn.QueryRow(ctx, "SELECT count() FROM trade_history FINAL")
	require.NoError(t, row.Scan(&count))
	assert.Equal(t, uint64(2), count)
}

func TestTradeHistoryStore_VolumeByToken(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := chstore.NewTradeHistoryStore(conn)
	ctx := context.Background()

	trades := []*domain.TradeRecord{
		trade(1, "tok-1", domain.TradeSideBuy, 100.0, 1000),
		trade(2, "tok-1", domain.TradeSideSell, 40.0, 2000),
		trade(3, "tok-2", domain.TradeSideBuy, 250.0, 1500),
		trade(4, "tok-1", domain.TradeSideBuy, 60.0, 5000), // outside range
	}
	require.NoError(t, store.Append(ctx, trades))

	// Inclusive [1000, 2000]
	got, err := store.VolumeByToken(ctx, 1000, 2000)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.InDelta(t, 140.0, got["tok-1"], 1e-9)
	assert.InDelta(t, 250.0, got["tok-2"], 1e-9)

	// Empty window
	got, err = store.VolumeByToken(ctx, 10000, 20000)
	require.NoError(t, err)
	assert.Empty(t, got)
}
