package domain

// HolderBalance is one entry in the per-curve holder ledger.
// A record exists only while the balance is positive: the first buy by an
// address creates it, and a sell that brings the balance to exactly zero
// removes it. The sum of balances for a curve always equals the curve's
// CurrentSupply.
type HolderBalance struct {
	TokenID   string  // curve the balance belongs to
	Wallet    string  // holder address (base58)
	Balance   float64 // curve tokens owned, > 0 while the record exists
	UpdatedAt int64   // last mutation timestamp (ms)
}
