// Package curve implements the bonding-curve pricing math.
// All functions are pure and deterministic: quotes are computed by walking
// the supply in fixed-size steps, which is the normative algorithm for
// price-impact behavior, not an approximation of a closed form.
package curve

import (
	"errors"
	"math"
)

// Curve design constants. These define the economics of every token and are
// deliberately not configurable.
const (
	// BasePrice is the price coefficient k. Price at zero supply equals k.
	BasePrice = 0.00001

	// Exponent is the curve exponent n.
	Exponent = 1.5

	// Scale normalizes supply before exponentiation.
	Scale = 1e9

	// Step is the supply increment used by the quote integration walk.
	Step = 1000.0

	// MaxSupply is a hard safety bound on the integration walk, not an
	// expected operating point.
	MaxSupply = 1e12

	// GraduationThreshold is the market cap (USD-equivalent) at which a
	// token leaves the curve for a DEX pool.
	GraduationThreshold = 100000.0
)

// Quote math errors.
var (
	// ErrInvalidAmount is returned for zero or negative quote amounts.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInsufficientLiquidity is returned when a sell exceeds the
	// circulating curve supply.
	ErrInsufficientLiquidity = errors.New("insufficient curve liquidity")
)

// Price returns the spot price at the given supply:
// BasePrice * ((Scale + supply) / Scale)^Exponent.
// The shifted normalization keeps Price(0) == BasePrice, so a freshly
// created curve opens at the base price.
func Price(supply float64) float64 {
	return BasePrice * math.Pow((Scale+supply)/Scale, Exponent)
}

// BuyQuote is the result of pricing a buy against the curve.
type BuyQuote struct {
	TokensOut   float64 // curve tokens received
	AvgPrice    float64 // amountIn / TokensOut
	NewPrice    float64 // spot price after the buy
	PriceImpact float64 // percent change from the pre-trade spot price
}

// SellQuote is the result of pricing a sell against the curve.
type SellQuote struct {
	AmountOut   float64 // gross quote-currency value, before fees
	AvgPrice    float64 // AmountOut / tokens sold
	NewPrice    float64 // spot price after the sell
	PriceImpact float64 // percent change, negative for sells
}

// QuoteBuy computes how many curve tokens amountIn purchases starting from
// currentSupply. The walk charges Price(tempSupply) * Step per full step
// and consumes the fractional remainder at the current step's price once
// the remaining budget is smaller than a full step's cost. The walk stops
// at MaxSupply.
func QuoteBuy(amountIn, currentSupply float64) (*BuyQuote, error) {
	if amountIn <= 0 {
		return nil, ErrInvalidAmount
	}
	if currentSupply < 0 {
		return nil, ErrInvalidAmount
	}

	startPrice := Price(currentSupply)
	remaining := amountIn
	tempSupply := currentSupply
	tokensOut := 0.0

	for remaining > 0 && tempSupply < MaxSupply {
		stepPrice := Price(tempSupply)
		stepCost := stepPrice * Step

		if stepCost > remaining {
			// Fractional remainder at the current step's price.
			tokensOut += remaining / stepPrice
			tempSupply += remaining / stepPrice
			break
		}

		tokensOut += Step
		tempSupply += Step
		remaining -= stepCost
	}

	if tokensOut <= 0 {
		return nil, ErrInvalidAmount
	}

	newPrice := Price(tempSupply)
	return &BuyQuote{
		TokensOut:   tokensOut,
		AvgPrice:    amountIn / tokensOut,
		NewPrice:    newPrice,
		PriceImpact: (newPrice - startPrice) / startPrice * 100,
	}, nil
}

// QuoteSell computes the gross quote-currency value of selling tokenAmount
// starting from currentSupply. The walk mirrors QuoteBuy: it moves the
// supply downward in full steps, valuing each step at the price of its
// lower edge, then values the final partial step the same way. Fails with
// ErrInsufficientLiquidity if tokenAmount exceeds the circulating supply.
func QuoteSell(tokenAmount, currentSupply float64) (*SellQuote, error) {
	if tokenAmount <= 0 {
		return nil, ErrInvalidAmount
	}
	if tokenAmount > currentSupply {
		return nil, ErrInsufficientLiquidity
	}

	startPrice := Price(currentSupply)
	remaining := tokenAmount
	tempSupply := currentSupply
	amountOut := 0.0

	for remaining >= Step {
		tempSupply -= Step
		amountOut += Price(tempSupply) * Step
		remaining -= Step
	}
	if remaining > 0 {
		tempSupply -= remaining
		amountOut += Price(tempSupply) * remaining
	}

	newPrice := Price(tempSupply)
	return &SellQuote{
		AmountOut:   amountOut,
		AvgPrice:    amountOut / tokenAmount,
		NewPrice:    newPrice,
		PriceImpact: (newPrice - startPrice) / startPrice * 100,
	}, nil
}

// GraduationCheck is the result of evaluating the graduation threshold.
type GraduationCheck struct {
	MarketCap      float64 // supply * price
	Progress       float64 // percent of the threshold reached
	ShouldGraduate bool
}

// CheckGraduation evaluates whether a curve at the given supply and price
// has crossed the graduation threshold.
func CheckGraduation(supply, price float64) GraduationCheck {
	marketCap := supply * price
	return GraduationCheck{
		MarketCap:      marketCap,
		Progress:       marketCap / GraduationThreshold * 100,
		ShouldGraduate: marketCap >= GraduationThreshold,
	}
}
