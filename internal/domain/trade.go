package domain

// TradeRecord is an append-only record of one executed buy or sell.
// Immutable once written; used for history and the trade feed, never read
// back by pricing.
type TradeRecord struct {
	ID        int64   // BIGSERIAL primary key (0 until stored)
	TokenID   string  // curve the trade executed against
	Wallet    string  // trading address
	Side      string  // "buy" | "sell"
	AmountIn  float64 // value in (buy: quote currency, sell: curve tokens)
	AmountOut float64 // value out (buy: curve tokens, sell: quote currency)
	Price     float64 // curve price after the trade
	Fee       float64 // total fee charged on the trade
	Timestamp int64   // Unix timestamp in milliseconds
}

// Trade side constants
const (
	TradeSideBuy  = "buy"
	TradeSideSell = "sell"
)
