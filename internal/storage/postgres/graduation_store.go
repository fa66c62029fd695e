package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"curvelaunch/internal/domain"
	"curvelaunch/internal/storage"
)

// GraduationStore implements storage.GraduationStore using PostgreSQL.
// The one-non-failed-record-per-token guard is enforced twice: by an
// in-transaction check and by a partial unique index on (token_id) WHERE
// status <> 'failed', so concurrent attempts cannot both slip through.
type GraduationStore struct {
	pool *Pool
}

// NewGraduationStore creates a new GraduationStore.
func NewGraduationStore(pool *Pool) *GraduationStore {
	return &GraduationStore{pool: pool}
}

// Compile-time interface check.
var _ storage.GraduationStore = (*GraduationStore)(nil)

const graduationColumns = `
	id, token_id, status, liquidity_quote, liquidity_tokens,
	pool_address, tx_hash, fail_reason, created_at, updated_at
`

// CreateAttempt adds a pending record with the frozen liquidity split.
func (s *GraduationStore) CreateAttempt(ctx context.Context, rec *domain.GraduationRecord) (*domain.GraduationRecord, error) {
	if rec == nil || rec.TokenID == "" {
		return nil, storage.ErrInvalidInput
	}

	now := time.Now().UnixMilli()
	query := `
		INSERT INTO graduations (
			token_id, status, liquidity_quote, liquidity_tokens,
			pool_address, tx_hash, fail_reason, created_at, updated_at
		) VALUES ($1, $2, $3, $4, '', '', '', $5, $5)
		RETURNING ` + graduationColumns

	created, err := scanGraduation(s.pool.QueryRow(ctx, query,
		rec.TokenID, domain.GraduationPending,
		rec.LiquidityQuote, rec.LiquidityTokens, now))
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, storage.ErrActiveGraduation
		}
		return nil, fmt.Errorf("insert graduation: %w", err)
	}
	return created, nil
}

// UpdateStatus moves a record forward through the status machine.
func (s *GraduationStore) UpdateStatus(ctx context.Context, id int64, status string, update domain.GraduationUpdate) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var current string
	err = tx.QueryRow(ctx, `SELECT status FROM graduations WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if err != nil {
		if isNotFoundError(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("lock graduation: %w", err)
	}
	if !domain.CanTransition(current, status) {
		return storage.ErrInvalidTransition
	}

	query := `
		UPDATE graduations SET
			status = $2,
			pool_address = CASE WHEN $3 <> '' THEN $3 ELSE pool_address END,
			tx_hash = CASE WHEN $4 <> '' THEN $4 ELSE tx_hash END,
			fail_reason = CASE WHEN $5 <> '' THEN $5 ELSE fail_reason END,
			updated_at = $6
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, query, id, status,
		update.PoolAddress, update.TxHash, update.FailReason,
		time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("update graduation status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetLatest retrieves the most recent record for a token.
func (s *GraduationStore) GetLatest(ctx context.Context, tokenID string) (*domain.GraduationRecord, error) {
	query := `
		SELECT ` + graduationColumns + `
		FROM graduations
		WHERE token_id = $1
		ORDER BY id DESC
		LIMIT 1
	`

	rec, err := scanGraduation(s.pool.QueryRow(ctx, query, tokenID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest graduation: %w", err)
	}
	return rec, nil
}

// GetByToken retrieves all records for a token, newest first.
func (s *GraduationStore) GetByToken(ctx context.Context, tokenID string) ([]*domain.GraduationRecord, error) {
	query := `
		SELECT ` + graduationColumns + `
		FROM graduations
		WHERE token_id = $1
		ORDER BY id DESC
	`

	rows, err := s.pool.Query(ctx, query, tokenID)
	if err != nil {
		return nil, fmt.Errorf("get graduations by token: %w", err)
	}
	defer rows.Close()

	var records []*domain.GraduationRecord
	for rows.Next() {
		rec, err := scanGraduation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan graduation row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate graduation rows: %w", err)
	}
	return records, nil
}

// scanGraduation scans a single graduation row.
func scanGraduation(row pgx.Row) (*domain.GraduationRecord, error) {
	var rec domain.GraduationRecord
	err := row.Scan(
		&rec.ID,
		&rec.TokenID,
		&rec.Status,
		&rec.LiquidityQuote,
		&rec.LiquidityTokens,
		&rec.PoolAddress,
		&rec.TxHash,
		&rec.FailReason,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
