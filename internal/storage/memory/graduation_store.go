package memory

import (
	"context"
	"sync"
	"time"

	"curvelaunch/internal/domain"
	"curvelaunch/internal/storage"
)

// GraduationStore is an in-memory implementation of storage.GraduationStore.
type GraduationStore struct {
	mu     sync.RWMutex
	byID   map[int64]*domain.GraduationRecord
	byTok  map[string][]int64 // token_id → record IDs, oldest first
	nextID int64
}

// NewGraduationStore creates a new in-memory graduation store.
func NewGraduationStore() *GraduationStore {
	return &GraduationStore{
		byID:   make(map[int64]*domain.GraduationRecord),
		byTok:  make(map[string][]int64),
		nextID: 1,
	}
}

// Compile-time interface check.
var _ storage.GraduationStore = (*GraduationStore)(nil)

// CreateAttempt adds a pending record. Returns ErrActiveGraduation if a
// non-failed record exists for the token.
func (s *GraduationStore) CreateAttempt(_ context.Context, rec *domain.GraduationRecord) (*domain.GraduationRecord, error) {
	if rec == nil || rec.TokenID == "" {
		return nil, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.byTok[rec.TokenID] {
		if s.byID[id].Status != domain.GraduationFailed {
			return nil, storage.ErrActiveGraduation
		}
	}

	now := time.Now().UnixMilli()
	copy := *rec
	copy.ID = s.nextID
	copy.Status = domain.GraduationPending
	copy.CreatedAt = now
	copy.UpdatedAt = now
	s.nextID++

	s.byID[copy.ID] = &copy
	s.byTok[copy.TokenID] = append(s.byTok[copy.TokenID], copy.ID)

	out := copy
	return &out, nil
}

// UpdateStatus moves a record forward through the status machine.
func (s *GraduationStore) UpdateStatus(_ context.Context, id int64, status string, update domain.GraduationUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.byID[id]
	if !exists {
		return storage.ErrNotFound
	}
	if !domain.CanTransition(rec.Status, status) {
		return storage.ErrInvalidTransition
	}

	rec.Status = status
	rec.UpdatedAt = time.Now().UnixMilli()
	if update.PoolAddress != "" {
		rec.PoolAddress = update.PoolAddress
	}
	if update.TxHash != "" {
		rec.TxHash = update.TxHash
	}
	if update.FailReason != "" {
		rec.FailReason = update.FailReason
	}
	return nil
}

// GetLatest retrieves the most recent record for a token.
func (s *GraduationStore) GetLatest(_ context.Context, tokenID string) (*domain.GraduationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byTok[tokenID]
	if len(ids) == 0 {
		return nil, storage.ErrNotFound
	}

	copy := *s.byID[ids[len(ids)-1]]
	return &copy, nil
}

// GetByToken retrieves all records for a token, newest first.
func (s *GraduationStore) GetByToken(_ context.Context, tokenID string) ([]*domain.GraduationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byTok[tokenID]
	result := make([]*domain.GraduationRecord, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		copy := *s.byID[ids[i]]
		result = append(result, &copy)
	}
	return result, nil
}
