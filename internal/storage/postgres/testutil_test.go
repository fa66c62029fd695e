package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	pgcontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"curvelaunch/internal/domain"
	"curvelaunch/internal/storage/migrations"
	"curvelaunch/internal/storage/postgres"
)

// setupTestDB starts a PostgreSQL container, applies the embedded
// migrations, and returns a pool. The cleanup function must be called
// after tests complete.
func setupTestDB(t *testing.T) (*postgres.Pool, func()) {
	t.Helper()

	ctx := context.Background()

	container, err := pgcontainer.Run(ctx, "postgres:15-alpine",
		pgcontainer.WithDatabase("testdb"),
		pgcontainer.WithUsername("test"),
		pgcontainer.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	pool, err := postgres.NewPool(ctx, dsn)
	require.NoError(t, err, "failed to create pool")

	require.NoError(t, migrations.RunPostgresMigrations(ctx, pool), "failed to run migrations")

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return pool, cleanup
}

// activeCurve returns a fresh active curve record.
func activeCurve(tokenID string) *domain.CurveState {
	return &domain.CurveState{
		TokenID:      tokenID,
		Creator:      "creator-wallet",
		CurrentPrice: 0.00001,
		IsActive:     true,
		CreatedAt:    time.Now().UnixMilli(),
	}
}

// buyDelta builds a simple buy mutation for tests.
func buyDelta(supply, reserve float64) domain.TradeDelta {
	return domain.TradeDelta{
		SupplyDelta:  supply,
		ReserveDelta: reserve,
		NewPrice:     0.000012,
		VolumeDelta:  reserve,
	}
}

// tradeRecord builds a trade record matching a delta.
func tradeRecord(tokenID, wallet, side string, amountIn, amountOut float64) *domain.TradeRecord {
	return &domain.TradeRecord{
		TokenID:   tokenID,
		Wallet:    wallet,
		Side:      side,
		AmountIn:  amountIn,
		AmountOut: amountOut,
		Price:     0.000012,
		Fee:       amountIn * 0.02,
		Timestamp: time.Now().UnixMilli(),
	}
}
