// Package fees computes the platform/creator revenue split on trades.
package fees

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Default fee rates in basis points.
const (
	DefaultPlatformBps = 100 // 1%
	DefaultCreatorBps  = 100 // 1%

	bpsDenominator = 10000
)

// Schedule holds the configured fee rates for a deployment.
type Schedule struct {
	PlatformBps int64
	CreatorBps  int64
}

// DefaultSchedule returns the standard 1% + 1% split.
func DefaultSchedule() Schedule {
	return Schedule{
		PlatformBps: DefaultPlatformBps,
		CreatorBps:  DefaultCreatorBps,
	}
}

// Validate rejects negative rates and schedules that consume the whole
// trade amount.
func (s Schedule) Validate() error {
	if s.PlatformBps < 0 || s.CreatorBps < 0 {
		return fmt.Errorf("fee rates must be non-negative: platform=%d creator=%d", s.PlatformBps, s.CreatorBps)
	}
	if s.PlatformBps+s.CreatorBps >= bpsDenominator {
		return fmt.Errorf("combined fee rate %d bps must be below %d", s.PlatformBps+s.CreatorBps, bpsDenominator)
	}
	return nil
}

// Split is the fee breakdown for one trade.
type Split struct {
	PlatformFee float64
	CreatorFee  float64
	TotalFee    float64
}

// Split computes the fee shares for a gross trade amount. Basis-point
// splits are exact in decimal arithmetic; the shares are converted back to
// float64 only at the boundary.
func (s Schedule) Split(amount float64) Split {
	if amount <= 0 {
		return Split{}
	}

	amt := decimal.NewFromFloat(amount)
	denom := decimal.NewFromInt(bpsDenominator)

	platform := amt.Mul(decimal.NewFromInt(s.PlatformBps)).Div(denom)
	creator := amt.Mul(decimal.NewFromInt(s.CreatorBps)).Div(denom)

	pf, _ := platform.Float64()
	cf, _ := creator.Float64()
	tf, _ := platform.Add(creator).Float64()

	return Split{
		PlatformFee: pf,
		CreatorFee:  cf,
		TotalFee:    tf,
	}
}
