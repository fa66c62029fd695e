package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"curvelaunch/internal/domain"
	"curvelaunch/internal/storage"
)

// CurveStore is an in-memory implementation of storage.CurveStore.
// A single store-wide mutex covers both the curve map and the holder
// ledger, so ExecuteTrade is trivially atomic.
type CurveStore struct {
	mu      sync.RWMutex
	curves  map[string]*domain.CurveState             // keyed by token_id
	holders map[string]map[string]*domain.HolderBalance // token_id → wallet → balance
	trades  *TradeRecordStore
}

// NewCurveStore creates a new in-memory curve store. The trade record store
// receives the append that ExecuteTrade commits together with the state
// mutation.
func NewCurveStore(trades *TradeRecordStore) *CurveStore {
	return &CurveStore{
		curves:  make(map[string]*domain.CurveState),
		holders: make(map[string]map[string]*domain.HolderBalance),
		trades:  trades,
	}
}

// Compile-time interface check.
var _ storage.CurveStore = (*CurveStore)(nil)

// Create adds a new curve. Returns ErrDuplicateKey if the token already has one.
func (s *CurveStore) Create(_ context.Context, state *domain.CurveState) error {
	if state == nil || state.TokenID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.curves[state.TokenID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *state
	s.curves[state.TokenID] = &copy
	s.holders[state.TokenID] = make(map[string]*domain.HolderBalance)
	return nil
}

// Get retrieves the curve for a token. Returns ErrNotFound if not exists.
func (s *CurveStore) Get(_ context.Context, tokenID string) (*domain.CurveState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, exists := s.curves[tokenID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *state
	return &copy, nil
}

// ApplyTrade atomically applies a trade delta to the curve state.
func (s *CurveStore) ApplyTrade(_ context.Context, tokenID string, delta domain.TradeDelta) (*domain.CurveState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.applyTradeLocked(tokenID, delta)
}

// applyTradeLocked applies a delta with s.mu held.
func (s *CurveStore) applyTradeLocked(tokenID string, delta domain.TradeDelta) (*domain.CurveState, error) {
	state, exists := s.curves[tokenID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	if !state.IsActive {
		return nil, storage.ErrCurveInactive
	}
	if state.Reserve+delta.ReserveDelta < 0 {
		return nil, storage.ErrInsufficientReserve
	}
	if state.CurrentSupply+delta.SupplyDelta < 0 {
		return nil, storage.ErrInvalidInput
	}

	state.CurrentSupply += delta.SupplyDelta
	state.Reserve += delta.ReserveDelta
	state.CurrentPrice = delta.NewPrice
	state.TotalVolume += delta.VolumeDelta
	state.TotalTransactions++

	copy := *state
	return &copy, nil
}

// AdjustHolder atomically adds balanceDelta to a holder's balance.
func (s *CurveStore) AdjustHolder(_ context.Context, tokenID, wallet string, balanceDelta float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.adjustHolderLocked(tokenID, wallet, balanceDelta)
}

// adjustHolderLocked adjusts a holder balance with s.mu held.
func (s *CurveStore) adjustHolderLocked(tokenID, wallet string, balanceDelta float64) error {
	if wallet == "" {
		return storage.ErrInvalidInput
	}

	state, exists := s.curves[tokenID]
	if !exists {
		return storage.ErrNotFound
	}

	ledger := s.holders[tokenID]
	entry, held := ledger[wallet]

	if !held {
		if balanceDelta < 0 {
			return storage.ErrInsufficientBalance
		}
		if balanceDelta == 0 {
			return nil
		}
		ledger[wallet] = &domain.HolderBalance{
			TokenID:   tokenID,
			Wallet:    wallet,
			Balance:   balanceDelta,
			UpdatedAt: time.Now().UnixMilli(),
		}
		state.UniqueHolders++
		return nil
	}

	newBalance := entry.Balance + balanceDelta
	if newBalance < 0 {
		return storage.ErrInsufficientBalance
	}
	if newBalance == 0 {
		delete(ledger, wallet)
		state.UniqueHolders--
		return nil
	}

	entry.Balance = newBalance
	entry.UpdatedAt = time.Now().UnixMilli()
	return nil
}

// ExecuteTrade applies the curve delta, the holder adjustment, and the
// trade-record append as one unit under the store mutex. Validation runs
// before any mutation, so a failed call leaves no partial state.
func (s *CurveStore) ExecuteTrade(ctx context.Context, tokenID string, delta domain.TradeDelta, wallet string, balanceDelta float64, rec *domain.TradeRecord) (*domain.CurveState, error) {
	// The holder adjustment and trade insert validate these themselves,
	// but by then the curve delta is already applied. Check here so a
	// rejected call never mutates.
	if wallet == "" {
		return nil, storage.ErrInvalidInput
	}
	if rec == nil || rec.TokenID == "" || rec.Wallet == "" {
		return nil, storage.ErrInvalidInput
	}
	if rec.Side != domain.TradeSideBuy && rec.Side != domain.TradeSideSell {
		return nil, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, exists := s.curves[tokenID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	if !state.IsActive {
		return nil, storage.ErrCurveInactive
	}
	if state.Reserve+delta.ReserveDelta < 0 {
		return nil, storage.ErrInsufficientReserve
	}
	if entry, held := s.holders[tokenID][wallet]; held {
		if entry.Balance+balanceDelta < 0 {
			return nil, storage.ErrInsufficientBalance
		}
	} else if balanceDelta < 0 {
		return nil, storage.ErrInsufficientBalance
	}

	if _, err := s.applyTradeLocked(tokenID, delta); err != nil {
		return nil, err
	}
	if err := s.adjustHolderLocked(tokenID, wallet, balanceDelta); err != nil {
		return nil, err
	}
	if err := s.trades.Insert(ctx, rec); err != nil {
		return nil, err
	}

	copy := *s.curves[tokenID]
	return &copy, nil
}

// GetHolder retrieves one holder ledger entry.
func (s *CurveStore) GetHolder(_ context.Context, tokenID, wallet string) (*domain.HolderBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.holders[tokenID][wallet]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *entry
	return &copy, nil
}

// ListHolders retrieves all ledger entries for a curve, ordered by balance DESC.
func (s *CurveStore) ListHolders(_ context.Context, tokenID string) ([]*domain.HolderBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.curves[tokenID]; !exists {
		return nil, storage.ErrNotFound
	}

	var result []*domain.HolderBalance
	for _, entry := range s.holders[tokenID] {
		copy := *entry
		result = append(result, &copy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Balance != result[j].Balance {
			return result[i].Balance > result[j].Balance
		}
		return result[i].Wallet < result[j].Wallet
	})

	return result, nil
}

// Deactivate turns trading off for a curve. Idempotent.
func (s *CurveStore) Deactivate(_ context.Context, tokenID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, exists := s.curves[tokenID]
	if !exists {
		return storage.ErrNotFound
	}

	state.IsActive = false
	return nil
}

// MarkGraduated records the graduation timestamp on a deactivated curve.
func (s *CurveStore) MarkGraduated(_ context.Context, tokenID string, graduatedAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, exists := s.curves[tokenID]
	if !exists {
		return storage.ErrNotFound
	}
	if state.IsActive || state.GraduatedAt != 0 {
		return storage.ErrInvalidInput
	}

	state.GraduatedAt = graduatedAt
	return nil
}
