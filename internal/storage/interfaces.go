package storage

import (
	"context"

	"curvelaunch/internal/domain"
)

// CurveStore owns CurveState records and their holder ledgers, and
// guarantees that the sum of holder balances for a curve always equals the
// curve's current supply after every committed mutation.
type CurveStore interface {
	// Create adds a new curve. Returns ErrDuplicateKey if the token
	// already has one.
	Create(ctx context.Context, state *domain.CurveState) error

	// Get retrieves the curve for a token. Returns ErrNotFound if not exists.
	Get(ctx context.Context, tokenID string) (*domain.CurveState, error)

	// ApplyTrade atomically applies a trade delta to the curve state.
	// Returns ErrNotFound, ErrCurveInactive, or ErrInsufficientReserve.
	ApplyTrade(ctx context.Context, tokenID string, delta domain.TradeDelta) (*domain.CurveState, error)

	// AdjustHolder atomically adds balanceDelta to a holder's balance,
	// creating the record on a first positive delta and removing it when
	// the balance reaches exactly zero. The curve's holder count moves in
	// lockstep. Returns ErrInsufficientBalance if the balance would go
	// negative. Callers must pre-check sells against the pending amount.
	AdjustHolder(ctx context.Context, tokenID, wallet string, balanceDelta float64) error

	// ExecuteTrade is the transactional composition of ApplyTrade,
	// AdjustHolder, and the trade-record append: all three commit or none
	// do. This is the only mutation path trade settlement uses.
	ExecuteTrade(ctx context.Context, tokenID string, delta domain.TradeDelta, wallet string, balanceDelta float64, rec *domain.TradeRecord) (*domain.CurveState, error)

	// GetHolder retrieves one holder ledger entry. Returns ErrNotFound if
	// the wallet holds no balance on the curve.
	GetHolder(ctx context.Context, tokenID, wallet string) (*domain.HolderBalance, error)

	// ListHolders retrieves all ledger entries for a curve, ordered by
	// balance DESC.
	ListHolders(ctx context.Context, tokenID string) ([]*domain.HolderBalance, error)

	// Deactivate turns trading off for a curve. Idempotent.
	Deactivate(ctx context.Context, tokenID string) error

	// MarkGraduated records the graduation timestamp on an already
	// deactivated curve. Returns ErrInvalidInput if the curve is still
	// active or already graduated.
	MarkGraduated(ctx context.Context, tokenID string, graduatedAt int64) error
}

// TradeRecordStore provides read access to the append-only trade history.
// Writes happen through CurveStore.ExecuteTrade so that the append commits
// with the state mutation it records.
type TradeRecordStore interface {
	// Insert adds a trade record outside a settlement transaction. Used by
	// backfill tooling and tests, not by settlement.
	Insert(ctx context.Context, t *domain.TradeRecord) error

	// GetByToken retrieves trades for a token, newest first, up to limit.
	GetByToken(ctx context.Context, tokenID string, limit int) ([]*domain.TradeRecord, error)

	// GetByWallet retrieves trades for a wallet across tokens, newest
	// first, up to limit.
	GetByWallet(ctx context.Context, wallet string, limit int) ([]*domain.TradeRecord, error)
}

// GraduationStore owns graduation records and enforces the forward-only
// status machine and the one-non-failed-record-per-token guard.
type GraduationStore interface {
	// CreateAttempt adds a pending record with the frozen liquidity split.
	// Returns ErrActiveGraduation if a non-failed record exists for the
	// token.
	CreateAttempt(ctx context.Context, rec *domain.GraduationRecord) (*domain.GraduationRecord, error)

	// UpdateStatus moves a record to a new status, recording pool address,
	// tx hash, or failure reason as applicable. Returns
	// ErrInvalidTransition for moves the state machine forbids.
	UpdateStatus(ctx context.Context, id int64, status string, update domain.GraduationUpdate) error

	// GetLatest retrieves the most recent record for a token. Returns
	// ErrNotFound if the token has never entered graduation.
	GetLatest(ctx context.Context, tokenID string) (*domain.GraduationRecord, error)

	// GetByToken retrieves all records for a token, newest first.
	GetByToken(ctx context.Context, tokenID string) ([]*domain.GraduationRecord, error)
}

// TradeHistorySink receives committed trades for analytics. Implementations
// must tolerate replays: settlement delivers at least once, off the
// critical path.
type TradeHistorySink interface {
	// Append records executed trades. Duplicates may arrive on retry.
	Append(ctx context.Context, trades []*domain.TradeRecord) error
}
