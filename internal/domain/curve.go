package domain

// CurveState is the persisted bonding-curve record for a single token.
// There is exactly one CurveState per token; it is created at token-creation
// time and never deleted. Only trade settlement and the graduation
// controller mutate it.
type CurveState struct {
	TokenID       string  // token identity (immutable)
	Creator       string  // wallet that launched the token
	CurrentSupply float64 // curve-circulating tokens, >= 0
	CurrentPrice  float64 // cached price at CurrentSupply
	Reserve       float64 // cumulative net value backing the curve, >= 0

	// Display-only counters, never used in pricing.
	TotalVolume       float64 // cumulative gross trade value
	TotalTransactions int64   // number of executed trades
	UniqueHolders     int     // addresses with positive balance

	IsActive    bool  // true while trading is curve-based
	CreatedAt   int64 // Unix timestamp in milliseconds
	GraduatedAt int64 // set exactly once on graduation, 0 otherwise
}

// TradeDelta is the atomic mutation applied to a CurveState by one trade.
// Supply and reserve deltas are signed: positive for buys, negative for
// sells. VolumeDelta is always the gross trade value.
type TradeDelta struct {
	SupplyDelta  float64
	ReserveDelta float64
	NewPrice     float64
	VolumeDelta  float64
}
