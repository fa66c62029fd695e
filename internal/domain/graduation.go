package domain

// GraduationRecord tracks one attempt to migrate a token from curve-based
// trading to a DEX liquidity pool. Status moves strictly forward:
// pending → processing → completed | failed. At most one non-failed record
// may exist per token; a failed record may be superseded by a new attempt.
type GraduationRecord struct {
	ID      int64  // BIGSERIAL primary key (0 until stored)
	TokenID string // token being graduated
	Status  string // see status constants below

	// Liquidity split, computed once at creation and frozen thereafter.
	LiquidityQuote  float64 // reserve share seeded into the pool
	LiquidityTokens float64 // supply share seeded into the pool

	// Set on completion.
	PoolAddress string // DEX pool address
	TxHash      string // pool creation transaction hash

	// Set on failure.
	FailReason string

	CreatedAt int64 // record creation timestamp (ms)
	UpdatedAt int64 // last status change timestamp (ms)
}

// GraduationUpdate carries the fields set alongside a status change.
type GraduationUpdate struct {
	PoolAddress string // set on completed
	TxHash      string // set on completed
	FailReason  string // set on failed
}

// Graduation status constants
const (
	GraduationPending    = "pending"
	GraduationProcessing = "processing"
	GraduationCompleted  = "completed"
	GraduationFailed     = "failed"
)

// graduationTransitions lists the allowed forward moves.
var graduationTransitions = map[string][]string{
	GraduationPending:    {GraduationProcessing},
	GraduationProcessing: {GraduationCompleted, GraduationFailed},
	GraduationCompleted:  {},
	GraduationFailed:     {},
}

// CanTransition reports whether a graduation record may move from one
// status to another. No transition leaves completed or failed.
func CanTransition(from, to string) bool {
	for _, next := range graduationTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status admits no further transitions.
func IsTerminal(status string) bool {
	return status == GraduationCompleted || status == GraduationFailed
}
