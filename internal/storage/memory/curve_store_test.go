package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"curvelaunch/internal/domain"
	"curvelaunch/internal/storage"
)

func newTestCurveStore() *CurveStore {
	return NewCurveStore(NewTradeRecordStore())
}

func newActiveCurve(tokenID string) *domain.CurveState {
	return &domain.CurveState{
		TokenID:      tokenID,
		Creator:      "creator-wallet",
		CurrentPrice: 0.00001,
		IsActive:     true,
	}
}

func TestCurveStore_CreateAndGet(t *testing.T) {
	s := newTestCurveStore()
	ctx := context.Background()

	if err := s.Create(ctx, newActiveCurve("tok-1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.Get(ctx, "tok-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.CurrentSupply != 0 || !got.IsActive || got.CurrentPrice != 0.00001 {
		t.Errorf("unexpected initial state: %+v", got)
	}

	if err := s.Create(ctx, newActiveCurve("tok-1")); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
	if _, err := s.Get(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCurveStore_GetReturnsCopy(t *testing.T) {
	s := newTestCurveStore()
	ctx := context.Background()

	if err := s.Create(ctx, newActiveCurve("tok-1")); err != nil {
		t.Fatal(err)
	}

	got, _ := s.Get(ctx, "tok-1")
	got.CurrentSupply = 999999

	again, _ := s.Get(ctx, "tok-1")
	if again.CurrentSupply != 0 {
		t.Error("mutating a returned state must not affect the store")
	}
}

func TestCurveStore_ApplyTrade(t *testing.T) {
	s := newTestCurveStore()
	ctx := context.Background()

	if err := s.Create(ctx, newActiveCurve("tok-1")); err != nil {
		t.Fatal(err)
	}

	state, err := s.ApplyTrade(ctx, "tok-1", domain.TradeDelta{
		SupplyDelta:  1000,
		ReserveDelta: 98,
		NewPrice:     0.000012,
		VolumeDelta:  100,
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	if state.CurrentSupply != 1000 || state.Reserve != 98 {
		t.Errorf("unexpected state after trade: %+v", state)
	}
	if state.CurrentPrice != 0.000012 {
		t.Errorf("price cache not updated: %v", state.CurrentPrice)
	}
	if state.TotalVolume != 100 || state.TotalTransactions != 1 {
		t.Errorf("display counters not updated: %+v", state)
	}
}

func TestCurveStore_ApplyTrade_Failures(t *testing.T) {
	s := newTestCurveStore()
	ctx := context.Background()

	if _, err := s.ApplyTrade(ctx, "missing", domain.TradeDelta{}); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := s.Create(ctx, newActiveCurve("tok-1")); err != nil {
		t.Fatal(err)
	}

	// Reserve can never go negative.
	if _, err := s.ApplyTrade(ctx, "tok-1", domain.TradeDelta{ReserveDelta: -1}); !errors.Is(err, storage.ErrInsufficientReserve) {
		t.Errorf("expected ErrInsufficientReserve, got %v", err)
	}

	// Inactive curves reject trades.
	if err := s.Deactivate(ctx, "tok-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ApplyTrade(ctx, "tok-1", domain.TradeDelta{SupplyDelta: 1}); !errors.Is(err, storage.ErrCurveInactive) {
		t.Errorf("expected ErrCurveInactive, got %v", err)
	}
}

func TestCurveStore_AdjustHolder_Lifecycle(t *testing.T) {
	s := newTestCurveStore()
	ctx := context.Background()

	if err := s.Create(ctx, newActiveCurve("tok-1")); err != nil {
		t.Fatal(err)
	}

	// First buy creates the ledger entry and bumps the holder count.
	if err := s.AdjustHolder(ctx, "tok-1", "alice", 500); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	state, _ := s.Get(ctx, "tok-1")
	if state.UniqueHolders != 1 {
		t.Errorf("expected 1 holder, got %d", state.UniqueHolders)
	}

	h, err := s.GetHolder(ctx, "tok-1", "alice")
	if err != nil {
		t.Fatalf("get holder: %v", err)
	}
	if h.Balance != 500 {
		t.Errorf("expected balance 500, got %v", h.Balance)
	}

	// Partial sell keeps the entry.
	if err := s.AdjustHolder(ctx, "tok-1", "alice", -200); err != nil {
		t.Fatal(err)
	}
	h, _ = s.GetHolder(ctx, "tok-1", "alice")
	if h.Balance != 300 {
		t.Errorf("expected balance 300, got %v", h.Balance)
	}

	// Selling the exact remainder removes the entry and decrements the count.
	if err := s.AdjustHolder(ctx, "tok-1", "alice", -300); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetHolder(ctx, "tok-1", "alice"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound after zeroing, got %v", err)
	}
	state, _ = s.Get(ctx, "tok-1")
	if state.UniqueHolders != 0 {
		t.Errorf("expected 0 holders, got %d", state.UniqueHolders)
	}
}

func TestCurveStore_AdjustHolder_NegativeBalanceRejected(t *testing.T) {
	s := newTestCurveStore()
	ctx := context.Background()

	if err := s.Create(ctx, newActiveCurve("tok-1")); err != nil {
		t.Fatal(err)
	}
	if err := s.AdjustHolder(ctx, "tok-1", "alice", 50); err != nil {
		t.Fatal(err)
	}

	if err := s.AdjustHolder(ctx, "tok-1", "alice", -100); !errors.Is(err, storage.ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := s.AdjustHolder(ctx, "tok-1", "bob", -1); !errors.Is(err, storage.ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance for unknown holder, got %v", err)
	}

	// Balance untouched by the failed adjustments.
	h, _ := s.GetHolder(ctx, "tok-1", "alice")
	if h.Balance != 50 {
		t.Errorf("expected balance 50, got %v", h.Balance)
	}
}

func TestCurveStore_ExecuteTrade_Atomic(t *testing.T) {
	trades := NewTradeRecordStore()
	s := NewCurveStore(trades)
	ctx := context.Background()

	if err := s.Create(ctx, newActiveCurve("tok-1")); err != nil {
		t.Fatal(err)
	}

	rec := &domain.TradeRecord{
		TokenID: "tok-1", Wallet: "alice", Side: domain.TradeSideBuy,
		AmountIn: 100, AmountOut: 1000, Price: 0.000012, Timestamp: 1,
	}
	state, err := s.ExecuteTrade(ctx, "tok-1",
		domain.TradeDelta{SupplyDelta: 1000, ReserveDelta: 98, NewPrice: 0.000012, VolumeDelta: 100},
		"alice", 1000, rec)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if state.CurrentSupply != 1000 || state.UniqueHolders != 1 {
		t.Errorf("unexpected state: %+v", state)
	}
	got, err := trades.GetByToken(ctx, "tok-1", 10)
	if err != nil || len(got) != 1 {
		t.Fatalf("expected 1 trade record, got %d (err %v)", len(got), err)
	}

	// A failing trade mutates nothing: the sell below exceeds the balance.
	_, err = s.ExecuteTrade(ctx, "tok-1",
		domain.TradeDelta{SupplyDelta: -2000, ReserveDelta: -50, NewPrice: 0.00001, VolumeDelta: 50},
		"alice", -2000, &domain.TradeRecord{TokenID: "tok-1", Wallet: "alice", Side: domain.TradeSideSell})
	if !errors.Is(err, storage.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	after, _ := s.Get(ctx, "tok-1")
	if after.CurrentSupply != 1000 || after.Reserve != 98 || after.TotalTransactions != 1 {
		t.Errorf("failed trade must not mutate state: %+v", after)
	}
	got, _ = trades.GetByToken(ctx, "tok-1", 10)
	if len(got) != 1 {
		t.Errorf("failed trade must not append a record, got %d", len(got))
	}
}

func TestCurveStore_ExecuteTrade_RejectsBadInputBeforeMutating(t *testing.T) {
	trades := NewTradeRecordStore()
	s := NewCurveStore(trades)
	ctx := context.Background()

	if err := s.Create(ctx, newActiveCurve("tok-1")); err != nil {
		t.Fatal(err)
	}

	delta := domain.TradeDelta{SupplyDelta: 100, ReserveDelta: 50, NewPrice: 0.00001, VolumeDelta: 50}
	cases := []struct {
		name   string
		wallet string
		rec    *domain.TradeRecord
	}{
		{"empty wallet", "", &domain.TradeRecord{TokenID: "tok-1", Wallet: "alice", Side: domain.TradeSideBuy}},
		{"nil record", "alice", nil},
		{"record missing wallet", "alice", &domain.TradeRecord{TokenID: "tok-1", Side: domain.TradeSideBuy}},
		{"record missing token", "alice", &domain.TradeRecord{Wallet: "alice", Side: domain.TradeSideBuy}},
		{"record bad side", "alice", &domain.TradeRecord{TokenID: "tok-1", Wallet: "alice", Side: "swap"}},
	}

	for _, tc := range cases {
		if _, err := s.ExecuteTrade(ctx, "tok-1", delta, tc.wallet, 100, tc.rec); !errors.Is(err, storage.ErrInvalidInput) {
			t.Errorf("%s: expected ErrInvalidInput, got %v", tc.name, err)
		}

		state, _ := s.Get(ctx, "tok-1")
		if state.CurrentSupply != 0 || state.Reserve != 0 || state.TotalTransactions != 0 {
			t.Fatalf("%s: rejected trade mutated state: %+v", tc.name, state)
		}
		if _, err := s.GetHolder(ctx, "tok-1", "alice"); !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("%s: rejected trade created a holder entry", tc.name)
		}
		if got, _ := trades.GetByToken(ctx, "tok-1", 10); len(got) != 0 {
			t.Fatalf("%s: rejected trade appended a record", tc.name)
		}
	}
}

func TestCurveStore_SumOfBalancesMatchesSupply(t *testing.T) {
	s := newTestCurveStore()
	ctx := context.Background()

	if err := s.Create(ctx, newActiveCurve("tok-1")); err != nil {
		t.Fatal(err)
	}

	wallets := []string{"alice", "bob", "carol"}
	amounts := []float64{1200, 300, 2500}
	for i, w := range wallets {
		_, err := s.ExecuteTrade(ctx, "tok-1",
			domain.TradeDelta{SupplyDelta: amounts[i], ReserveDelta: amounts[i] * 0.00001, NewPrice: 0.00001, VolumeDelta: amounts[i]},
			w, amounts[i],
			&domain.TradeRecord{TokenID: "tok-1", Wallet: w, Side: domain.TradeSideBuy})
		if err != nil {
			t.Fatal(err)
		}
	}

	state, _ := s.Get(ctx, "tok-1")
	holders, _ := s.ListHolders(ctx, "tok-1")

	sum := 0.0
	for _, h := range holders {
		sum += h.Balance
	}
	if sum != state.CurrentSupply {
		t.Errorf("sum of balances %v != supply %v", sum, state.CurrentSupply)
	}
	if state.UniqueHolders != len(holders) {
		t.Errorf("holder count %d != ledger entries %d", state.UniqueHolders, len(holders))
	}
}

func TestCurveStore_ConcurrentExecuteTrade_NoLostUpdates(t *testing.T) {
	s := newTestCurveStore()
	ctx := context.Background()

	if err := s.Create(ctx, newActiveCurve("tok-1")); err != nil {
		t.Fatal(err)
	}

	const goroutines = 16
	const perGoroutine = 25

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			wallet := "wallet-" + string(rune('a'+g))
			for i := 0; i < perGoroutine; i++ {
				_, err := s.ExecuteTrade(ctx, "tok-1",
					domain.TradeDelta{SupplyDelta: 10, ReserveDelta: 1, NewPrice: 0.00001, VolumeDelta: 1},
					wallet, 10,
					&domain.TradeRecord{TokenID: "tok-1", Wallet: wallet, Side: domain.TradeSideBuy})
				if err != nil {
					t.Errorf("execute: %v", err)
					return
				}
			}
		}(g)
	}
	wg.Wait()

	state, _ := s.Get(ctx, "tok-1")
	want := float64(goroutines * perGoroutine * 10)
	if state.CurrentSupply != want {
		t.Errorf("lost updates: supply %v, want %v", state.CurrentSupply, want)
	}
	if state.TotalTransactions != goroutines*perGoroutine {
		t.Errorf("transaction count %d, want %d", state.TotalTransactions, goroutines*perGoroutine)
	}
}

func TestCurveStore_MarkGraduated(t *testing.T) {
	s := newTestCurveStore()
	ctx := context.Background()

	if err := s.Create(ctx, newActiveCurve("tok-1")); err != nil {
		t.Fatal(err)
	}

	// Still active: not allowed.
	if err := s.MarkGraduated(ctx, "tok-1", 42); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput while active, got %v", err)
	}

	if err := s.Deactivate(ctx, "tok-1"); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkGraduated(ctx, "tok-1", 42); err != nil {
		t.Fatalf("mark graduated: %v", err)
	}

	state, _ := s.Get(ctx, "tok-1")
	if state.GraduatedAt != 42 {
		t.Errorf("expected graduatedAt 42, got %d", state.GraduatedAt)
	}

	// Set exactly once.
	if err := s.MarkGraduated(ctx, "tok-1", 99); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput on second mark, got %v", err)
	}
}
