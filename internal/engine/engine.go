// Package engine is the trade settlement boundary: it validates requests,
// prices them against the curve, enforces slippage and solvency bounds,
// commits the mutation atomically, and hands graduation crossings to the
// background queue without blocking the caller.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"curvelaunch/internal/curve"
	"curvelaunch/internal/domain"
	"curvelaunch/internal/fees"
	"curvelaunch/internal/jobs"
	"curvelaunch/internal/observability"
	"curvelaunch/internal/storage"
)

// TradeNotifier receives committed trades, e.g. for a live feed.
// Implementations must not block.
type TradeNotifier interface {
	NotifyTrade(t *domain.TradeRecord)
}

// Options configures an Engine.
type Options struct {
	Curves      storage.CurveStore
	Trades      storage.TradeRecordStore
	Graduations storage.GraduationStore

	History  storage.TradeHistorySink // optional analytics sink
	Queue    *jobs.Queue              // optional graduation handoff
	Notifier TradeNotifier            // optional live trade feed
	Metrics  *observability.Metrics   // optional

	Fees   fees.Schedule // zero value uses the defaults
	Logger *zap.Logger
}

// Engine orchestrates buys and sells against bonding curves.
type Engine struct {
	curves      storage.CurveStore
	trades      storage.TradeRecordStore
	graduations storage.GraduationStore
	history     storage.TradeHistorySink
	queue       *jobs.Queue
	notifier    TradeNotifier
	metrics     *observability.Metrics
	fees        fees.Schedule
	logger      *zap.Logger

	locks *tokenLocks
	wg    sync.WaitGroup
}

// NewEngine creates an engine from options.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Curves == nil {
		return nil, errors.New("curve store is required")
	}
	if opts.Trades == nil {
		return nil, errors.New("trade record store is required")
	}
	if opts.Graduations == nil {
		return nil, errors.New("graduation store is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Fees == (fees.Schedule{}) {
		opts.Fees = fees.DefaultSchedule()
	}
	if err := opts.Fees.Validate(); err != nil {
		return nil, fmt.Errorf("fee schedule: %w", err)
	}

	return &Engine{
		curves:      opts.Curves,
		trades:      opts.Trades,
		graduations: opts.Graduations,
		history:     opts.History,
		queue:       opts.Queue,
		notifier:    opts.Notifier,
		metrics:     opts.Metrics,
		fees:        opts.Fees,
		logger:      opts.Logger,
		locks:       newTokenLocks(),
	}, nil
}

// Close waits for in-flight background deliveries to finish.
func (e *Engine) Close() {
	e.wg.Wait()
}

// CreateCurveRequest creates a new bonding curve for a token.
type CreateCurveRequest struct {
	TokenID string
	Creator string // creator wallet, receives the creator fee share
}

// CreateCurve registers a new curve at zero supply and base price.
// Returns storage.ErrDuplicateKey if the token already has a curve.
func (e *Engine) CreateCurve(ctx context.Context, req CreateCurveRequest) (*domain.CurveState, error) {
	if req.TokenID == "" {
		return nil, fmt.Errorf("%w: token id is required", ErrValidation)
	}
	if err := domain.ValidateWallet(req.Creator); err != nil {
		return nil, fmt.Errorf("%w: creator wallet: %v", ErrValidation, err)
	}

	state := &domain.CurveState{
		TokenID:      req.TokenID,
		Creator:      req.Creator,
		CurrentPrice: curve.Price(0),
		IsActive:     true,
		CreatedAt:    time.Now().UnixMilli(),
	}
	if err := e.curves.Create(ctx, state); err != nil {
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.CurvesCreated.Inc()
	}
	e.logger.Info("curve created",
		zap.String("token_id", req.TokenID),
		zap.String("creator", req.Creator),
		zap.Float64("base_price", state.CurrentPrice))
	return state, nil
}

// BuyRequest is a buy order against a curve.
type BuyRequest struct {
	TokenID      string
	Wallet       string
	AmountIn     float64 // gross quote-currency spend, fees come out of this
	MinTokensOut float64 // slippage bound; 0 disables the check
}

// SellRequest is a sell order against a curve.
type SellRequest struct {
	TokenID      string
	Wallet       string
	TokenAmount  float64 // curve tokens to sell
	MinAmountOut float64 // slippage bound on the net payout; 0 disables
}

// TradeResult reports a committed trade.
type TradeResult struct {
	TokensOut float64 // tokens received (buys)
	AmountOut float64 // net payout after fees (sells)
	AmountIn  float64 // what the caller put in
	NewPrice  float64
	Fees      fees.Split
	Trade     *domain.TradeRecord
	State     *domain.CurveState
}

// Buy executes a buy order. Validation failures leave state untouched; the
// commit is all-or-nothing. A graduation crossing is handed to the
// background queue after the commit and never blocks the response.
func (e *Engine) Buy(ctx context.Context, req BuyRequest) (*TradeResult, error) {
	start := time.Now()
	res, err := e.buy(ctx, req)
	e.observe(domain.TradeSideBuy, start, res, err)
	return res, err
}

func (e *Engine) buy(ctx context.Context, req BuyRequest) (*TradeResult, error) {
	if err := validateTradeInput(req.TokenID, req.Wallet, req.AmountIn); err != nil {
		return nil, err
	}

	lock := e.locks.get(req.TokenID)
	lock.Lock()
	defer lock.Unlock()

	state, err := e.loadActiveCurve(ctx, req.TokenID)
	if err != nil {
		return nil, err
	}

	quote, err := curve.QuoteBuy(req.AmountIn, state.CurrentSupply)
	if err != nil {
		return nil, mapQuoteErr(err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrComputationTimeout, err)
	}

	if req.MinTokensOut > 0 && quote.TokensOut < req.MinTokensOut {
		return nil, fmt.Errorf("%w: quoted %f tokens, bound %f", ErrSlippageExceeded, quote.TokensOut, req.MinTokensOut)
	}

	split := e.fees.Split(req.AmountIn)
	rec := &domain.TradeRecord{
		TokenID:   req.TokenID,
		Wallet:    req.Wallet,
		Side:      domain.TradeSideBuy,
		AmountIn:  req.AmountIn,
		AmountOut: quote.TokensOut,
		Price:     quote.NewPrice,
		Fee:       split.TotalFee,
		Timestamp: time.Now().UnixMilli(),
	}
	delta := domain.TradeDelta{
		SupplyDelta:  quote.TokensOut,
		ReserveDelta: req.AmountIn - split.TotalFee,
		NewPrice:     quote.NewPrice,
		VolumeDelta:  req.AmountIn,
	}

	newState, err := e.curves.ExecuteTrade(ctx, req.TokenID, delta, req.Wallet, quote.TokensOut, rec)
	if err != nil {
		return nil, e.mapCommitErr(req.TokenID, err)
	}
	if err := e.verifyCommitted(req.TokenID, newState); err != nil {
		return nil, err
	}

	e.afterCommit(rec)
	e.maybeGraduate(newState)

	return &TradeResult{
		TokensOut: quote.TokensOut,
		AmountIn:  req.AmountIn,
		NewPrice:  quote.NewPrice,
		Fees:      split,
		Trade:     rec,
		State:     newState,
	}, nil
}

// Sell executes a sell order. The payout is net of fees; the slippage
// bound applies to the net payout. Sells never trigger graduation.
func (e *Engine) Sell(ctx context.Context, req SellRequest) (*TradeResult, error) {
	start := time.Now()
	res, err := e.sell(ctx, req)
	e.observe(domain.TradeSideSell, start, res, err)
	return res, err
}

func (e *Engine) sell(ctx context.Context, req SellRequest) (*TradeResult, error) {
	if err := validateTradeInput(req.TokenID, req.Wallet, req.TokenAmount); err != nil {
		return nil, err
	}

	lock := e.locks.get(req.TokenID)
	lock.Lock()
	defer lock.Unlock()

	state, err := e.loadActiveCurve(ctx, req.TokenID)
	if err != nil {
		return nil, err
	}

	holder, err := e.curves.GetHolder(ctx, req.TokenID, req.Wallet)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: wallet holds no balance", ErrInsufficientBalance)
	}
	if err != nil {
		return nil, fmt.Errorf("load holder: %w", err)
	}
	if holder.Balance < req.TokenAmount {
		return nil, fmt.Errorf("%w: balance %f, selling %f", ErrInsufficientBalance, holder.Balance, req.TokenAmount)
	}

	quote, err := curve.QuoteSell(req.TokenAmount, state.CurrentSupply)
	if err != nil {
		return nil, mapQuoteErr(err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrComputationTimeout, err)
	}

	split := e.fees.Split(quote.AmountOut)
	payout := quote.AmountOut - split.TotalFee
	// The buy and sell walks integrate on offset grids, so a full exit can
	// price a payout a hair above the reserve. The curve never pays out
	// more than it holds.
	if payout > state.Reserve {
		payout = state.Reserve
	}
	if req.MinAmountOut > 0 && payout < req.MinAmountOut {
		return nil, fmt.Errorf("%w: quoted payout %f, bound %f", ErrSlippageExceeded, payout, req.MinAmountOut)
	}

	rec := &domain.TradeRecord{
		TokenID:   req.TokenID,
		Wallet:    req.Wallet,
		Side:      domain.TradeSideSell,
		AmountIn:  req.TokenAmount,
		AmountOut: payout,
		Price:     quote.NewPrice,
		Fee:       split.TotalFee,
		Timestamp: time.Now().UnixMilli(),
	}
	delta := domain.TradeDelta{
		SupplyDelta:  -req.TokenAmount,
		ReserveDelta: -payout,
		NewPrice:     quote.NewPrice,
		VolumeDelta:  quote.AmountOut,
	}

	newState, err := e.curves.ExecuteTrade(ctx, req.TokenID, delta, req.Wallet, -req.TokenAmount, rec)
	if err != nil {
		return nil, e.mapCommitErr(req.TokenID, err)
	}
	if err := e.verifyCommitted(req.TokenID, newState); err != nil {
		return nil, err
	}

	e.afterCommit(rec)

	return &TradeResult{
		AmountOut: payout,
		AmountIn:  req.TokenAmount,
		NewPrice:  quote.NewPrice,
		Fees:      split,
		Trade:     rec,
		State:     newState,
	}, nil
}

// QuoteResult is a read-only price preview.
type QuoteResult struct {
	Side        string
	TokensOut   float64 // buys
	AmountOut   float64 // sells, gross of fees
	AvgPrice    float64
	NewPrice    float64
	PriceImpact float64
}

// GetQuote prices a hypothetical trade without mutating anything.
func (e *Engine) GetQuote(ctx context.Context, tokenID, side string, amount float64) (*QuoteResult, error) {
	if side != domain.TradeSideBuy && side != domain.TradeSideSell {
		return nil, fmt.Errorf("%w: unknown side %q", ErrValidation, side)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}

	state, err := e.curves.Get(ctx, tokenID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrCurveNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load curve: %w", err)
	}

	if side == domain.TradeSideBuy {
		q, err := curve.QuoteBuy(amount, state.CurrentSupply)
		if err != nil {
			return nil, mapQuoteErr(err)
		}
		return &QuoteResult{
			Side:        side,
			TokensOut:   q.TokensOut,
			AvgPrice:    q.AvgPrice,
			NewPrice:    q.NewPrice,
			PriceImpact: q.PriceImpact,
		}, nil
	}

	q, err := curve.QuoteSell(amount, state.CurrentSupply)
	if err != nil {
		return nil, mapQuoteErr(err)
	}
	return &QuoteResult{
		Side:        side,
		AmountOut:   q.AmountOut,
		AvgPrice:    q.AvgPrice,
		NewPrice:    q.NewPrice,
		PriceImpact: q.PriceImpact,
	}, nil
}

// GetCurveState retrieves the current curve record for a token.
func (e *Engine) GetCurveState(ctx context.Context, tokenID string) (*domain.CurveState, error) {
	state, err := e.curves.Get(ctx, tokenID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrCurveNotFound
	}
	return state, err
}

// GetGraduationStatus returns the most recent graduation record for a
// token, or nil when graduation has never started.
func (e *Engine) GetGraduationStatus(ctx context.Context, tokenID string) (*domain.GraduationRecord, error) {
	if _, err := e.GetCurveState(ctx, tokenID); err != nil {
		return nil, err
	}

	rec, err := e.graduations.GetLatest(ctx, tokenID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return rec, err
}

// ListTrades retrieves trades for a token, newest first.
func (e *Engine) ListTrades(ctx context.Context, tokenID string, limit int) ([]*domain.TradeRecord, error) {
	if _, err := e.GetCurveState(ctx, tokenID); err != nil {
		return nil, err
	}
	return e.trades.GetByToken(ctx, tokenID, limit)
}

// ListTradesByWallet retrieves a wallet's trades across tokens, newest first.
func (e *Engine) ListTradesByWallet(ctx context.Context, wallet string, limit int) ([]*domain.TradeRecord, error) {
	if err := domain.ValidateWallet(wallet); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return e.trades.GetByWallet(ctx, wallet, limit)
}

// ListHolders retrieves a curve's holder ledger, largest balance first.
func (e *Engine) ListHolders(ctx context.Context, tokenID string) ([]*domain.HolderBalance, error) {
	holders, err := e.curves.ListHolders(ctx, tokenID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrCurveNotFound
	}
	return holders, err
}

// loadActiveCurve loads a curve and verifies it accepts trades.
func (e *Engine) loadActiveCurve(ctx context.Context, tokenID string) (*domain.CurveState, error) {
	state, err := e.curves.Get(ctx, tokenID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrCurveNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load curve: %w", err)
	}
	if !state.IsActive {
		return nil, ErrCurveInactive
	}
	return state, nil
}

// verifyCommitted checks store invariants on the post-commit state. A
// violation means the atomicity contract broke; it is surfaced, not hidden.
func (e *Engine) verifyCommitted(tokenID string, state *domain.CurveState) error {
	if state.CurrentSupply >= 0 && state.Reserve >= 0 && state.UniqueHolders >= 0 {
		return nil
	}

	if e.metrics != nil {
		e.metrics.Inconsistencies.Inc()
	}
	e.logger.Error("post-commit state violates invariants",
		zap.String("token_id", tokenID),
		zap.Float64("supply", state.CurrentSupply),
		zap.Float64("reserve", state.Reserve),
		zap.Int("unique_holders", state.UniqueHolders))
	return ErrStateInconsistent
}

// afterCommit fans a committed trade out to the live feed and the
// analytics sink. Neither touches the settlement critical path.
func (e *Engine) afterCommit(rec *domain.TradeRecord) {
	if e.notifier != nil {
		e.notifier.NotifyTrade(rec)
	}
	if e.history == nil {
		return
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.appendHistory(rec)
	}()
}

// appendHistory delivers one trade to the analytics sink with bounded
// retries. The sink tolerates duplicate delivery.
func (e *Engine) appendHistory(rec *domain.TradeRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	delay := 100 * time.Millisecond
	for attempt := 0; attempt < 3; attempt++ {
		err := e.history.Append(ctx, []*domain.TradeRecord{rec})
		if err == nil {
			if e.metrics != nil {
				e.metrics.HistoryTradesStored.Inc()
			}
			return
		}
		e.logger.Warn("history append failed",
			zap.Int64("trade_id", rec.ID),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		time.Sleep(delay)
		delay *= 2
	}

	if e.metrics != nil {
		e.metrics.HistoryAppendErrors.Inc()
	}
}

// maybeGraduate enqueues a graduation job when the committed state crossed
// the threshold. The enqueue never blocks the trade response.
func (e *Engine) maybeGraduate(state *domain.CurveState) {
	if e.queue == nil || !state.IsActive {
		return
	}
	check := curve.CheckGraduation(state.CurrentSupply, state.CurrentPrice)
	if !check.ShouldGraduate {
		return
	}

	e.logger.Info("graduation threshold crossed",
		zap.String("token_id", state.TokenID),
		zap.Float64("market_cap", check.MarketCap))
	e.queue.Enqueue(jobs.GraduationJob{TokenID: state.TokenID})
}

// observe records trade metrics for one settlement outcome.
func (e *Engine) observe(side string, start time.Time, res *TradeResult, err error) {
	if e.metrics == nil {
		return
	}
	if err != nil {
		e.metrics.TradesRejected.WithLabelValues(side, rejectReason(err)).Inc()
		return
	}

	e.metrics.TradesExecuted.WithLabelValues(side).Inc()
	e.metrics.SettlementDuration.WithLabelValues(side).Observe(time.Since(start).Seconds())
	e.metrics.FeesCollected.Add(res.Fees.TotalFee)
	if side == domain.TradeSideBuy {
		e.metrics.SettlementVolume.WithLabelValues(side).Add(res.AmountIn)
	} else {
		e.metrics.SettlementVolume.WithLabelValues(side).Add(res.AmountOut + res.Fees.TotalFee)
	}
}

// mapCommitErr classifies ExecuteTrade failures into the caller taxonomy.
func (e *Engine) mapCommitErr(tokenID string, err error) error {
	switch {
	case errors.Is(err, storage.ErrCurveInactive):
		return ErrCurveInactive
	case errors.Is(err, storage.ErrNotFound):
		return ErrCurveNotFound
	case errors.Is(err, storage.ErrInsufficientBalance):
		return fmt.Errorf("%w: %v", ErrInsufficientBalance, err)
	case errors.Is(err, storage.ErrInsufficientReserve):
		// The quote priced a payout the reserve cannot cover. Solvency
		// holds at the store, but the mismatch itself is a pricing bug.
		if e.metrics != nil {
			e.metrics.Inconsistencies.Inc()
		}
		e.logger.Error("quote exceeded curve reserve",
			zap.String("token_id", tokenID), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrInsufficientLiquidity, err)
	default:
		return fmt.Errorf("execute trade: %w", err)
	}
}

// mapQuoteErr classifies curve math failures.
func mapQuoteErr(err error) error {
	switch {
	case errors.Is(err, curve.ErrInvalidAmount):
		return fmt.Errorf("%w: %v", ErrValidation, err)
	case errors.Is(err, curve.ErrInsufficientLiquidity):
		return fmt.Errorf("%w: %v", ErrInsufficientLiquidity, err)
	default:
		return err
	}
}

// validateTradeInput rejects malformed orders before any state is read.
func validateTradeInput(tokenID, wallet string, amount float64) error {
	if tokenID == "" {
		return fmt.Errorf("%w: token id is required", ErrValidation)
	}
	if err := domain.ValidateWallet(wallet); err != nil {
		return fmt.Errorf("%w: wallet: %v", ErrValidation, err)
	}
	if amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	return nil
}
