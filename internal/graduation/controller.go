// Package graduation migrates tokens that crossed the market-cap threshold
// from curve trading to a DEX liquidity pool.
//
// The flow fails closed: the curve is deactivated before the external pool
// creation call, and a failed attempt never reactivates it. Migration is
// terminal either way; only an explicit Retry starts a new attempt.
package graduation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"curvelaunch/internal/dex"
	"curvelaunch/internal/domain"
	"curvelaunch/internal/jobs"
	"curvelaunch/internal/observability"
	"curvelaunch/internal/storage"
)

// ErrNotRetryable is returned by Retry when the token's latest graduation
// attempt is not in the failed state.
var ErrNotRetryable = errors.New("graduation is not retryable")

// Default share of the curve moved into the pool on graduation.
const (
	DefaultQuoteShare = 0.80 // fraction of the reserve
	DefaultTokenShare = 0.30 // fraction of the circulating supply
)

// Options configures a Controller.
type Options struct {
	Curves      storage.CurveStore
	Graduations storage.GraduationStore
	DEX         dex.Adapter
	Logger      *zap.Logger
	Metrics     *observability.Metrics // optional

	// QuoteShare and TokenShare override the default liquidity split.
	// Zero means default.
	QuoteShare float64
	TokenShare float64
}

// Controller runs the graduation flow.
type Controller struct {
	curves      storage.CurveStore
	graduations storage.GraduationStore
	dex         dex.Adapter
	logger      *zap.Logger
	metrics     *observability.Metrics
	quoteShare  float64
	tokenShare  float64
}

// NewController creates a controller from options.
func NewController(opts Options) (*Controller, error) {
	if opts.Curves == nil {
		return nil, errors.New("curve store is required")
	}
	if opts.Graduations == nil {
		return nil, errors.New("graduation store is required")
	}
	if opts.DEX == nil {
		return nil, errors.New("dex adapter is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.QuoteShare == 0 {
		opts.QuoteShare = DefaultQuoteShare
	}
	if opts.TokenShare == 0 {
		opts.TokenShare = DefaultTokenShare
	}
	if opts.QuoteShare < 0 || opts.QuoteShare > 1 || opts.TokenShare < 0 || opts.TokenShare > 1 {
		return nil, errors.New("liquidity shares must be within [0, 1]")
	}

	return &Controller{
		curves:      opts.Curves,
		graduations: opts.Graduations,
		dex:         opts.DEX,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		quoteShare:  opts.QuoteShare,
		tokenShare:  opts.TokenShare,
	}, nil
}

// Handle implements jobs.Handler so the controller can sit behind the
// background queue. Unknown job kinds are ignored.
func (c *Controller) Handle(ctx context.Context, job jobs.Job) error {
	gj, ok := job.(jobs.GraduationJob)
	if !ok {
		c.logger.Warn("unexpected job kind", zap.String("kind", job.Kind()))
		return nil
	}
	return c.Process(ctx, gj.TokenID)
}

// Process runs one graduation attempt for the token. It is safe to call
// more than once for the same crossing: the active-attempt guard and the
// graduated check make duplicate calls no-ops.
//
// A failed attempt is recorded and Process returns nil: failure is a
// terminal outcome of the attempt, not a delivery error, and only an
// operator Retry starts a new one.
func (c *Controller) Process(ctx context.Context, tokenID string) error {
	if c.metrics != nil {
		c.metrics.GraduationJobsInFlight.Inc()
		defer c.metrics.GraduationJobsInFlight.Dec()
	}
	start := time.Now()

	state, err := c.curves.Get(ctx, tokenID)
	if err != nil {
		return fmt.Errorf("load curve: %w", err)
	}
	if state.GraduatedAt != 0 {
		return nil
	}

	rec, err := c.graduations.CreateAttempt(ctx, &domain.GraduationRecord{
		TokenID:         tokenID,
		LiquidityQuote:  state.Reserve * c.quoteShare,
		LiquidityTokens: state.CurrentSupply * c.tokenShare,
	})
	if errors.Is(err, storage.ErrActiveGraduation) {
		// Another attempt owns this token.
		return nil
	}
	if err != nil {
		return fmt.Errorf("create graduation attempt: %w", err)
	}

	c.logger.Info("graduation started",
		zap.String("token_id", tokenID),
		zap.Int64("graduation_id", rec.ID),
		zap.Float64("liquidity_quote", rec.LiquidityQuote),
		zap.Float64("liquidity_tokens", rec.LiquidityTokens))

	if err := c.graduations.UpdateStatus(ctx, rec.ID, domain.GraduationProcessing, domain.GraduationUpdate{}); err != nil {
		return fmt.Errorf("mark graduation processing: %w", err)
	}

	// Trading stops before the external call. A failure past this point
	// leaves the curve inactive; funds are never exposed to a live curve
	// and a half-created pool at the same time.
	if err := c.curves.Deactivate(ctx, tokenID); err != nil {
		c.fail(ctx, rec.ID, tokenID, fmt.Sprintf("deactivate curve: %v", err))
		return fmt.Errorf("deactivate curve: %w", err)
	}

	result, err := c.dex.CreatePoolAndSeedLiquidity(ctx, dex.PoolRequest{
		TokenID:     tokenID,
		QuoteAmount: rec.LiquidityQuote,
		TokenAmount: rec.LiquidityTokens,
	})
	if err != nil {
		c.fail(ctx, rec.ID, tokenID, fmt.Sprintf("create pool: %v", err))
		return nil
	}

	now := time.Now().UnixMilli()
	if err := c.curves.MarkGraduated(ctx, tokenID, now); err != nil {
		c.fail(ctx, rec.ID, tokenID, fmt.Sprintf("mark curve graduated: %v", err))
		return fmt.Errorf("mark curve graduated: %w", err)
	}
	if err := c.graduations.UpdateStatus(ctx, rec.ID, domain.GraduationCompleted, domain.GraduationUpdate{
		PoolAddress: result.PoolAddress,
		TxHash:      result.TxHash,
	}); err != nil {
		return fmt.Errorf("mark graduation completed: %w", err)
	}

	if c.metrics != nil {
		c.metrics.GraduationAttempts.WithLabelValues("completed").Inc()
		c.metrics.GraduationDuration.Observe(time.Since(start).Seconds())
		c.metrics.CurvesGraduated.Inc()
	}

	c.logger.Info("graduation completed",
		zap.String("token_id", tokenID),
		zap.Int64("graduation_id", rec.ID),
		zap.String("pool_address", result.PoolAddress),
		zap.String("tx_hash", result.TxHash))
	return nil
}

// Retry starts a fresh attempt for a token whose latest attempt failed.
func (c *Controller) Retry(ctx context.Context, tokenID string) error {
	latest, err := c.graduations.GetLatest(ctx, tokenID)
	if err != nil {
		return fmt.Errorf("load latest graduation: %w", err)
	}
	if latest.Status != domain.GraduationFailed {
		return fmt.Errorf("%w: latest attempt is %s", ErrNotRetryable, latest.Status)
	}
	return c.Process(ctx, tokenID)
}

// fail records a terminal failure on the attempt. The curve stays in
// whatever trading state it reached; it is never reactivated here.
func (c *Controller) fail(ctx context.Context, id int64, tokenID, reason string) {
	if err := c.graduations.UpdateStatus(ctx, id, domain.GraduationFailed, domain.GraduationUpdate{FailReason: reason}); err != nil {
		c.logger.Error("failed to record graduation failure",
			zap.Int64("graduation_id", id),
			zap.String("token_id", tokenID),
			zap.Error(err))
	}
	if c.metrics != nil {
		c.metrics.GraduationAttempts.WithLabelValues("failed").Inc()
	}
	c.logger.Error("graduation failed",
		zap.String("token_id", tokenID),
		zap.Int64("graduation_id", id),
		zap.String("reason", reason))
}
