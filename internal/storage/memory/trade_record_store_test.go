package memory

import (
	"context"
	"errors"
	"testing"

	"curvelaunch/internal/domain"
	"curvelaunch/internal/storage"
)

func TestTradeRecordStore_InsertAssignsSequentialIDs(t *testing.T) {
	s := NewTradeRecordStore()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		rec := &domain.TradeRecord{
			TokenID: "tok-1", Wallet: "alice", Side: domain.TradeSideBuy,
			AmountIn: 10, AmountOut: 100, Timestamp: int64(i),
		}
		if err := s.Insert(ctx, rec); err != nil {
			t.Fatalf("insert: %v", err)
		}
		if rec.ID != int64(i) {
			t.Errorf("expected ID %d, got %d", i, rec.ID)
		}
	}
}

func TestTradeRecordStore_Insert_Validation(t *testing.T) {
	s := NewTradeRecordStore()
	ctx := context.Background()

	cases := []*domain.TradeRecord{
		nil,
		{Wallet: "alice", Side: domain.TradeSideBuy},                          // no token
		{TokenID: "tok-1", Side: domain.TradeSideBuy},                         // no wallet
		{TokenID: "tok-1", Wallet: "alice", Side: "transfer"},                 // bad side
	}
	for _, rec := range cases {
		if err := s.Insert(ctx, rec); !errors.Is(err, storage.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for %+v, got %v", rec, err)
		}
	}
}

func TestTradeRecordStore_GetByToken_NewestFirstWithLimit(t *testing.T) {
	s := NewTradeRecordStore()
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		err := s.Insert(ctx, &domain.TradeRecord{
			TokenID: "tok-1", Wallet: "alice", Side: domain.TradeSideBuy, Timestamp: int64(i * 100),
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Insert(ctx, &domain.TradeRecord{
		TokenID: "tok-2", Wallet: "bob", Side: domain.TradeSideSell, Timestamp: 999,
	}); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetByToken(ctx, "tok-1", 3)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 trades, got %d", len(got))
	}
	if got[0].Timestamp != 500 || got[2].Timestamp != 300 {
		t.Errorf("expected newest first, got %+v", got)
	}
}

func TestTradeRecordStore_GetByWallet(t *testing.T) {
	s := NewTradeRecordStore()
	ctx := context.Background()

	trades := []*domain.TradeRecord{
		{TokenID: "tok-1", Wallet: "alice", Side: domain.TradeSideBuy, Timestamp: 1},
		{TokenID: "tok-2", Wallet: "alice", Side: domain.TradeSideBuy, Timestamp: 2},
		{TokenID: "tok-1", Wallet: "bob", Side: domain.TradeSideSell, Timestamp: 3},
	}
	for _, tr := range trades {
		if err := s.Insert(ctx, tr); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.GetByWallet(ctx, "alice", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 trades for alice, got %d", len(got))
	}
	if got[0].TokenID != "tok-2" {
		t.Errorf("expected newest first, got %+v", got[0])
	}
}
