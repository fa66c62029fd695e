package storage

import "errors"

// Storage errors shared by all backends.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to insert a record
	// with a key that already exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrCurveInactive is returned when a trade mutation targets a curve
	// whose isActive flag is off (post-graduation).
	ErrCurveInactive = errors.New("curve is not active")

	// ErrInsufficientBalance is returned when a holder adjustment would
	// drive a balance negative.
	ErrInsufficientBalance = errors.New("insufficient holder balance")

	// ErrInsufficientReserve is returned when a trade would drive the
	// curve reserve negative.
	ErrInsufficientReserve = errors.New("insufficient curve reserve")

	// ErrActiveGraduation is returned when creating a graduation attempt
	// while a non-failed record already exists for the token.
	ErrActiveGraduation = errors.New("non-failed graduation record already exists")

	// ErrInvalidTransition is returned for a graduation status change the
	// state machine does not allow.
	ErrInvalidTransition = errors.New("invalid graduation status transition")
)
