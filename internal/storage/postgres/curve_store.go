package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"curvelaunch/internal/domain"
	"curvelaunch/internal/storage"
)

// CurveStore implements storage.CurveStore using PostgreSQL. Per-token
// linearizability comes from row locks: every mutation selects the curve
// row FOR UPDATE first, so concurrent trades on one token serialize while
// different tokens proceed in parallel.
type CurveStore struct {
	pool *Pool
}

// NewCurveStore creates a new CurveStore.
func NewCurveStore(pool *Pool) *CurveStore {
	return &CurveStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CurveStore = (*CurveStore)(nil)

const curveColumns = `
	token_id, creator, current_supply, current_price, reserve,
	total_volume, total_transactions, unique_holders,
	is_active, created_at, graduated_at
`

// Create adds a new curve. Returns ErrDuplicateKey if the token already has one.
func (s *CurveStore) Create(ctx context.Context, state *domain.CurveState) error {
	if state == nil || state.TokenID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO curves (
			token_id, creator, current_supply, current_price, reserve,
			total_volume, total_transactions, unique_holders,
			is_active, created_at, graduated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := s.pool.Exec(ctx, query,
		state.TokenID,
		state.Creator,
		state.CurrentSupply,
		state.CurrentPrice,
		state.Reserve,
		state.TotalVolume,
		state.TotalTransactions,
		state.UniqueHolders,
		state.IsActive,
		state.CreatedAt,
		state.GraduatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert curve: %w", err)
	}
	return nil
}

// Get retrieves the curve for a token. Returns ErrNotFound if not exists.
func (s *CurveStore) Get(ctx context.Context, tokenID string) (*domain.CurveState, error) {
	query := `SELECT ` + curveColumns + ` FROM curves WHERE token_id = $1`

	state, err := scanCurve(s.pool.QueryRow(ctx, query, tokenID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get curve: %w", err)
	}
	return state, nil
}

// ApplyTrade atomically applies a trade delta to the curve state.
func (s *CurveStore) ApplyTrade(ctx context.Context, tokenID string, delta domain.TradeDelta) (*domain.CurveState, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	state, err := applyTradeTx(ctx, tx, tokenID, delta)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return state, nil
}

// AdjustHolder atomically adds balanceDelta to a holder's balance.
func (s *CurveStore) AdjustHolder(ctx context.Context, tokenID, wallet string, balanceDelta float64) error {
	if wallet == "" {
		return storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock the curve row so the holder count update cannot race a trade.
	if _, err := lockCurve(ctx, tx, tokenID); err != nil {
		return err
	}
	if err := adjustHolderTx(ctx, tx, tokenID, wallet, balanceDelta); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ExecuteTrade applies the curve delta, the holder adjustment, and the
// trade-record append in one transaction. The curve row lock taken first
// serializes settlement per token.
func (s *CurveStore) ExecuteTrade(ctx context.Context, tokenID string, delta domain.TradeDelta, wallet string, balanceDelta float64, rec *domain.TradeRecord) (*domain.CurveState, error) {
	if rec == nil || wallet == "" {
		return nil, storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := applyTradeTx(ctx, tx, tokenID, delta); err != nil {
		return nil, err
	}
	if err := adjustHolderTx(ctx, tx, tokenID, wallet, balanceDelta); err != nil {
		return nil, err
	}

	insertTrade := `
		INSERT INTO trades (token_id, wallet, side, amount_in, amount_out, price, fee, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	if err := tx.QueryRow(ctx, insertTrade,
		rec.TokenID, rec.Wallet, rec.Side,
		rec.AmountIn, rec.AmountOut, rec.Price, rec.Fee, rec.Timestamp,
	).Scan(&rec.ID); err != nil {
		return nil, fmt.Errorf("insert trade record: %w", err)
	}

	// Re-read inside the tx: the holder adjustment may have moved the count.
	refreshed, err := scanCurve(tx.QueryRow(ctx, `SELECT `+curveColumns+` FROM curves WHERE token_id = $1`, tokenID))
	if err != nil {
		return nil, fmt.Errorf("reread curve: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return refreshed, nil
}

// GetHolder retrieves one holder ledger entry.
func (s *CurveStore) GetHolder(ctx context.Context, tokenID, wallet string) (*domain.HolderBalance, error) {
	query := `SELECT token_id, wallet, balance, updated_at FROM holders WHERE token_id = $1 AND wallet = $2`

	var h domain.HolderBalance
	err := s.pool.QueryRow(ctx, query, tokenID, wallet).Scan(&h.TokenID, &h.Wallet, &h.Balance, &h.UpdatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get holder: %w", err)
	}
	return &h, nil
}

// ListHolders retrieves all ledger entries for a curve, ordered by balance DESC.
func (s *CurveStore) ListHolders(ctx context.Context, tokenID string) ([]*domain.HolderBalance, error) {
	if _, err := s.Get(ctx, tokenID); err != nil {
		return nil, err
	}

	query := `
		SELECT token_id, wallet, balance, updated_at
		FROM holders
		WHERE token_id = $1
		ORDER BY balance DESC, wallet ASC
	`

	rows, err := s.pool.Query(ctx, query, tokenID)
	if err != nil {
		return nil, fmt.Errorf("list holders: %w", err)
	}
	defer rows.Close()

	var holders []*domain.HolderBalance
	for rows.Next() {
		var h domain.HolderBalance
		if err := rows.Scan(&h.TokenID, &h.Wallet, &h.Balance, &h.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan holder row: %w", err)
		}
		holders = append(holders, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate holder rows: %w", err)
	}
	return holders, nil
}

// Deactivate turns trading off for a curve. Idempotent.
func (s *CurveStore) Deactivate(ctx context.Context, tokenID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE curves SET is_active = FALSE WHERE token_id = $1`, tokenID)
	if err != nil {
		return fmt.Errorf("deactivate curve: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// MarkGraduated records the graduation timestamp on a deactivated curve.
func (s *CurveStore) MarkGraduated(ctx context.Context, tokenID string, graduatedAt int64) error {
	query := `
		UPDATE curves SET graduated_at = $2
		WHERE token_id = $1 AND is_active = FALSE AND graduated_at = 0
	`
	tag, err := s.pool.Exec(ctx, query, tokenID, graduatedAt)
	if err != nil {
		return fmt.Errorf("mark graduated: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish missing curve from a state that does not admit the mark.
		if _, err := s.Get(ctx, tokenID); err != nil {
			return err
		}
		return storage.ErrInvalidInput
	}
	return nil
}

// lockCurve selects a curve row FOR UPDATE.
func lockCurve(ctx context.Context, tx pgx.Tx, tokenID string) (*domain.CurveState, error) {
	query := `SELECT ` + curveColumns + ` FROM curves WHERE token_id = $1 FOR UPDATE`

	state, err := scanCurve(tx.QueryRow(ctx, query, tokenID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("lock curve: %w", err)
	}
	return state, nil
}

// applyTradeTx validates and applies a trade delta with the curve row locked.
func applyTradeTx(ctx context.Context, tx pgx.Tx, tokenID string, delta domain.TradeDelta) (*domain.CurveState, error) {
	state, err := lockCurve(ctx, tx, tokenID)
	if err != nil {
		return nil, err
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

	update := `
		UPDATE curves SET
			current_supply = current_supply + $2,
			reserve = reserve + $3,
			current_price = $4,
			total_volume = total_volume + $5,
			total_transactions = total_transactions + 1
		WHERE token_id = $1
	`
	if _, err := tx.Exec(ctx, update, tokenID,
		delta.SupplyDelta, delta.ReserveDelta, delta.NewPrice, delta.VolumeDelta); err != nil {
		return nil, fmt.Errorf("apply trade delta: %w", err)
	}

	state.CurrentSupply += delta.SupplyDelta
	state.Reserve += delta.ReserveDelta
	state.CurrentPrice = delta.NewPrice
	state.TotalVolume += delta.VolumeDelta
	state.TotalTransactions++
	return state, nil
}

// adjustHolderTx adjusts a holder balance inside a transaction that already
// holds the curve row lock.
func adjustHolderTx(ctx context.Context, tx pgx.Tx, tokenID, wallet string, balanceDelta float64) error {
	var balance float64
	err := tx.QueryRow(ctx,
		`SELECT balance FROM holders WHERE token_id = $1 AND wallet = $2 FOR UPDATE`,
		tokenID, wallet).Scan(&balance)

	now := time.Now().UnixMilli()

	if isNotFoundError(err) {
		if balanceDelta < 0 {
			return storage.ErrInsufficientBalance
		}
		if balanceDelta == 0 {
			return nil
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO holders (token_id, wallet, balance, updated_at) VALUES ($1, $2, $3, $4)`,
			tokenID, wallet, balanceDelta, now); err != nil {
			return fmt.Errorf("insert holder: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE curves SET unique_holders = unique_holders + 1 WHERE token_id = $1`, tokenID); err != nil {
			return fmt.Errorf("increment holder count: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("lock holder: %w", err)
	}

	newBalance := balance + balanceDelta
	if newBalance < 0 {
		return storage.ErrInsufficientBalance
	}
	if newBalance == 0 {
		if _, err := tx.Exec(ctx,
			`DELETE FROM holders WHERE token_id = $1 AND wallet = $2`, tokenID, wallet); err != nil {
			return fmt.Errorf("delete holder: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE curves SET unique_holders = unique_holders - 1 WHERE token_id = $1`, tokenID); err != nil {
			return fmt.Errorf("decrement holder count: %w", err)
		}
		return nil
	}

	if _, err := tx.Exec(ctx,
		`UPDATE holders SET balance = $3, updated_at = $4 WHERE token_id = $1 AND wallet = $2`,
		tokenID, wallet, newBalance, now); err != nil {
		return fmt.Errorf("update holder: %w", err)
	}
	return nil
}

// scanCurve scans a single curve row.
func scanCurve(row pgx.Row) (*domain.CurveState, error) {
	var state domain.CurveState
	err := row.Scan(
		&state.TokenID,
		&state.Creator,
		&state.CurrentSupply,
		&state.CurrentPrice,
		&state.Reserve,
		&state.TotalVolume,
		&state.TotalTransactions,
		&state.UniqueHolders,
		&state.IsActive,
		&state.CreatedAt,
		&state.GraduatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &state, nil
}
