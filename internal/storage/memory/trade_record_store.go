package memory

import (
	"context"
	"sort"
	"sync"

	"curvelaunch/internal/domain"
	"curvelaunch/internal/storage"
)

// TradeRecordStore is an in-memory implementation of storage.TradeRecordStore.
type TradeRecordStore struct {
	mu     sync.RWMutex
	data   []*domain.TradeRecord
	nextID int64
}

// NewTradeRecordStore creates a new in-memory trade record store.
func NewTradeRecordStore() *TradeRecordStore {
	return &TradeRecordStore{nextID: 1}
}

// Compile-time interface check.
var _ storage.TradeRecordStore = (*TradeRecordStore)(nil)

// Insert appends a trade record, assigning it the next sequential ID.
func (s *TradeRecordStore) Insert(_ context.Context, t *domain.TradeRecord) error {
	if t == nil || t.TokenID == "" || t.Wallet == "" {
		return storage.ErrInvalidInput
	}
	if t.Side != domain.TradeSideBuy && t.Side != domain.TradeSideSell {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *t
	copy.ID = s.nextID
	s.nextID++
	s.data = append(s.data, &copy)

	t.ID = copy.ID
	return nil
}

// GetByToken retrieves trades for a token, newest first, up to limit.
func (s *TradeRecordStore) GetByToken(_ context.Context, tokenID string, limit int) ([]*domain.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TradeRecord
	for _, t := range s.data {
		if t.TokenID == tokenID {
			copy := *t
			result = append(result, &copy)
		}
	}

	return truncateNewestFirst(result, limit), nil
}

// GetByWallet retrieves trades for a wallet across tokens, newest first, up to limit.
func (s *TradeRecordStore) GetByWallet(_ context.Context, wallet string, limit int) ([]*domain.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TradeRecord
	for _, t := range s.data {
		if t.Wallet == wallet {
			copy := *t
			result = append(result, &copy)
		}
	}

	return truncateNewestFirst(result, limit), nil
}

// truncateNewestFirst orders trades newest first and applies the limit.
func truncateNewestFirst(trades []*domain.TradeRecord, limit int) []*domain.TradeRecord {
	sort.Slice(trades, func(i, j int) bool {
		if trades[i].Timestamp != trades[j].Timestamp {
			return trades[i].Timestamp > trades[j].Timestamp
		}
		return trades[i].ID > trades[j].ID
	})

	if limit > 0 && len(trades) > limit {
		trades = trades[:limit]
	}
	return trades
}
