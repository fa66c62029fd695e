package engine

import "errors"

// Typed failures returned to trade callers. Validation failures never
// mutate state; callers can branch on these with errors.Is.
var (
	// ErrValidation is returned for malformed input before any state is read.
	ErrValidation = errors.New("validation failed")

	// ErrCurveNotFound is returned when the token has no curve.
	ErrCurveNotFound = errors.New("curve not found")

	// ErrCurveInactive is returned when trading is attempted on a
	// deactivated or graduated curve.
	ErrCurveInactive = errors.New("curve is not active")

	// ErrSlippageExceeded is returned when a quote falls short of the
	// caller's bound.
	ErrSlippageExceeded = errors.New("slippage bound exceeded")

	// ErrInsufficientBalance is returned when a sell exceeds the caller's
	// holder balance.
	ErrInsufficientBalance = errors.New("insufficient holder balance")

	// ErrInsufficientLiquidity is returned when a sell exceeds the curve's
	// circulating supply.
	ErrInsufficientLiquidity = errors.New("insufficient curve liquidity")

	// ErrComputationTimeout is returned when the caller's deadline expires
	// around the pricing walk.
	ErrComputationTimeout = errors.New("quote computation timed out")

	// ErrStateInconsistent signals a committed mutation that violated a
	// store invariant. It indicates a storage bug and is surfaced loudly.
	ErrStateInconsistent = errors.New("curve state inconsistent after commit")
)

// rejectReason maps a settlement failure to a bounded metric label.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrCurveNotFound):
		return "not_found"
	case errors.Is(err, ErrCurveInactive):
		return "inactive"
	case errors.Is(err, ErrSlippageExceeded):
		return "slippage"
	case errors.Is(err, ErrInsufficientBalance):
		return "balance"
	case errors.Is(err, ErrInsufficientLiquidity):
		return "liquidity"
	case errors.Is(err, ErrComputationTimeout):
		return "timeout"
	case errors.Is(err, ErrStateInconsistent):
		return "inconsistent"
	default:
		return "storage"
	}
}
