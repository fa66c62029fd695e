package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curvelaunch/internal/domain"
	"curvelaunch/internal/storage/postgres"
)

func TestTradeRecordStore_InsertAndQuery(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewTradeRecordStore(pool)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		rec := &domain.TradeRecord{
			TokenID:   "tok-1",
			Wallet:    "wallet-a",
			Side:      domain.TradeSideBuy,
			AmountIn:  float64(10 * (i + 1)),
			AmountOut: float64(100 * (i + 1)),
			Price:     0.00001,
			Fee:       0.2,
			Timestamp: int64(1700000000000 + i),
		}
		require.NoError(t, store.Insert(ctx, rec))
		assert.NotZero(t, rec.ID)
	}
	require.NoError(t, store.Insert(ctx, &domain.TradeRecord{
		TokenID:   "tok-2",
		Wallet:    "wallet-b",
		Side:      domain.TradeSideSell,
		AmountIn:  500,
		AmountOut: 4,
		Price:     0.00001,
		Timestamp: 1700000001000,
	}))

	// Newest first, limit applied.
	recs, err := store.GetByToken(ctx, "tok-1", 3)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, int64(1700000000004), recs[0].Timestamp)
	assert.Equal(t, int64(1700000000002), recs[2].Timestamp)

	// Zero limit returns everything.
	recs, err = store.GetByToken(ctx, "tok-1", 0)
	require.NoError(t, err)
	assert.Len(t, recs, 5)

	recs, err = store.GetByWallet(ctx, "wallet-b", 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "tok-2", recs[0].TokenID)
	assert.Equal(t, domain.TradeSideSell, recs[0].Side)

	recs, err = store.GetByToken(ctx, "tok-none", 0)
	require.NoError(t, err)
	assert.Empty(t, recs)
}
