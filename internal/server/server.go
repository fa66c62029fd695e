// Package server exposes the trading engine over HTTP: curve creation,
// buy/sell settlement, read-only quotes and state, graduation status, and
// a websocket trade feed.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"curvelaunch/internal/curve"
	"curvelaunch/internal/domain"
	"curvelaunch/internal/engine"
	"curvelaunch/internal/graduation"
	"curvelaunch/internal/storage"
)

// Options configures a Server.
type Options struct {
	Engine     *engine.Engine
	Graduation *graduation.Controller
	Feed       *Feed // optional websocket trade feed
	Logger     *zap.Logger

	// TradeTimeout bounds one settlement request. Zero means 10s.
	TradeTimeout time.Duration
}

// Server is the HTTP surface over the engine.
type Server struct {
	engine       *engine.Engine
	graduation   *graduation.Controller
	feed         *Feed
	logger       *zap.Logger
	tradeTimeout time.Duration

	httpServer *http.Server
}

// New creates a server from options.
func New(opts Options) (*Server, error) {
	if opts.Engine == nil {
		return nil, errors.New("engine is required")
	}
	if opts.Graduation == nil {
		return nil, errors.New("graduation controller is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.TradeTimeout <= 0 {
		opts.TradeTimeout = 10 * time.Second
	}

	return &Server{
		engine:       opts.Engine,
		graduation:   opts.Graduation,
		feed:         opts.Feed,
		logger:       opts.Logger,
		tradeTimeout: opts.TradeTimeout,
	}, nil
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /tokens", s.handleCreateToken)
	mux.HandleFunc("GET /tokens/{id}", s.handleGetToken)
	mux.HandleFunc("POST /tokens/{id}/buy", s.handleBuy)
	mux.HandleFunc("POST /tokens/{id}/sell", s.handleSell)
	mux.HandleFunc("GET /tokens/{id}/quote", s.handleQuote)
	mux.HandleFunc("GET /tokens/{id}/trades", s.handleTokenTrades)
	mux.HandleFunc("GET /tokens/{id}/holders", s.handleHolders)
	mux.HandleFunc("GET /tokens/{id}/graduation", s.handleGraduationStatus)
	mux.HandleFunc("POST /tokens/{id}/graduation/retry", s.handleGraduationRetry)
	mux.HandleFunc("GET /wallets/{wallet}/trades", s.handleWalletTrades)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	if s.feed != nil {
		mux.Handle("GET /ws/trades", s.feed)
	}

	return mux
}

// Start serves HTTP on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Info("http server listening", zap.String("addr", addr))
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the HTTP server and disconnects feed clients.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.feed != nil {
		s.feed.Close()
	}
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

type createTokenRequest struct {
	TokenID string `json:"token_id"`
	Creator string `json:"creator"`
}

func (s *Server) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	var req createTokenRequest
	if !s.decode(w, r, &req) {
		return
	}

	state, err := s.engine.CreateCurve(r.Context(), engine.CreateCurveRequest{
		TokenID: req.TokenID,
		Creator: req.Creator,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusCreated, curveView(state))
}

func (s *Server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	state, err := s.engine.GetCurveState(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, curveView(state))
}

type buyRequest struct {
	Wallet       string  `json:"wallet"`
	AmountIn     float64 `json:"amount_in"`
	MinTokensOut float64 `json:"min_tokens_out"`
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	var req buyRequest
	if !s.decode(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.tradeTimeout)
	defer cancel()

	res, err := s.engine.Buy(ctx, engine.BuyRequest{
		TokenID:      r.PathValue("id"),
		Wallet:       req.Wallet,
		AmountIn:     req.AmountIn,
		MinTokensOut: req.MinTokensOut,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, tradeResultView(res))
}

type sellRequest struct {
	Wallet       string  `json:"wallet"`
	TokenAmount  float64 `json:"token_amount"`
	MinAmountOut float64 `json:"min_amount_out"`
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	var req sellRequest
	if !s.decode(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.tradeTimeout)
	defer cancel()

	res, err := s.engine.Sell(ctx, engine.SellRequest{
		TokenID:      r.PathValue("id"),
		Wallet:       req.Wallet,
		TokenAmount:  req.TokenAmount,
		MinAmountOut: req.MinAmountOut,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, tradeResultView(res))
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	side := r.URL.Query().Get("side")
	amount, err := strconv.ParseFloat(r.URL.Query().Get("amount"), 64)
	if err != nil {
		s.writeErrorStatus(w, http.StatusBadRequest, "amount must be a number")
		return
	}

	quote, err := s.engine.GetQuote(r.Context(), r.PathValue("id"), side, amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, quoteViewData{
		Side:        quote.Side,
		TokensOut:   quote.TokensOut,
		AmountOut:   quote.AmountOut,
		AvgPrice:    quote.AvgPrice,
		NewPrice:    quote.NewPrice,
		PriceImpact: quote.PriceImpact,
	})
}

type quoteViewData struct {
	Side        string  `json:"side"`
	TokensOut   float64 `json:"tokens_out,omitempty"`
	AmountOut   float64 `json:"amount_out,omitempty"`
	AvgPrice    float64 `json:"avg_price"`
	NewPrice    float64 `json:"new_price"`
	PriceImpact float64 `json:"price_impact"`
}

func (s *Server) handleTokenTrades(w http.ResponseWriter, r *http.Request) {
	limit, ok := s.parseLimit(w, r)
	if !ok {
		return
	}

	trades, err := s.engine.ListTrades(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, tradeViews(trades))
}

func (s *Server) handleWalletTrades(w http.ResponseWriter, r *http.Request) {
	limit, ok := s.parseLimit(w, r)
	if !ok {
		return
	}

	trades, err := s.engine.ListTradesByWallet(r.Context(), r.PathValue("wallet"), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, tradeViews(trades))
}

func (s *Server) handleHolders(w http.ResponseWriter, r *http.Request) {
	holders, err := s.engine.ListHolders(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	views := make([]holderViewData, 0, len(holders))
	for _, h := range holders {
		views = append(views, holderViewData{
			Wallet:    h.Wallet,
			Balance:   h.Balance,
			UpdatedAt: h.UpdatedAt,
		})
	}
	s.writeData(w, http.StatusOK, views)
}

func (s *Server) handleGraduationStatus(w http.ResponseWriter, r *http.Request) {
	rec, err := s.engine.GetGraduationStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if rec == nil {
		s.writeData(w, http.StatusOK, graduationViewData{Status: "none"})
		return
	}
	s.writeData(w, http.StatusOK, graduationView(rec))
}

func (s *Server) handleGraduationRetry(w http.ResponseWriter, r *http.Request) {
	tokenID := r.PathValue("id")
	if err := s.graduation.Retry(r.Context(), tokenID); err != nil {
		s.writeError(w, err)
		return
	}

	rec, err := s.engine.GetGraduationStatus(r.Context(), tokenID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if rec == nil {
		s.writeData(w, http.StatusOK, graduationViewData{Status: "none"})
		return
	}
	s.writeData(w, http.StatusOK, graduationView(rec))
}

func (s *Server) parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 100, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		s.writeErrorStatus(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return 0, false
	}
	return limit, true
}

// decode reads a JSON body; on failure it writes the error response and
// returns false.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeErrorStatus(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

type apiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(apiResponse{Success: true, Data: data}); err != nil {
		s.logger.Warn("response encode failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.writeErrorStatus(w, statusFor(err), err.Error())
}

func (s *Server) writeErrorStatus(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiResponse{Success: false, Error: msg})
}

// statusFor maps the engine error taxonomy to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrCurveNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrDuplicateKey):
		return http.StatusConflict
	case errors.Is(err, engine.ErrCurveInactive), errors.Is(err, graduation.ErrNotRetryable):
		return http.StatusConflict
	case errors.Is(err, engine.ErrSlippageExceeded),
		errors.Is(err, engine.ErrInsufficientBalance),
		errors.Is(err, engine.ErrInsufficientLiquidity):
		return http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrComputationTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// curveViewData is the JSON shape of a curve, enriched with graduation
// progress for UI consumers.
type curveViewData struct {
	TokenID            string  `json:"token_id"`
	Creator            string  `json:"creator"`
	CurrentSupply      float64 `json:"current_supply"`
	CurrentPrice       float64 `json:"current_price"`
	Reserve            float64 `json:"reserve"`
	TotalVolume        float64 `json:"total_volume"`
	TotalTransactions  int64   `json:"total_transactions"`
	UniqueHolders      int     `json:"unique_holders"`
	IsActive           bool    `json:"is_active"`
	CreatedAt          int64   `json:"created_at"`
	GraduatedAt        int64   `json:"graduated_at,omitempty"`
	MarketCap          float64 `json:"market_cap"`
	GraduationProgress float64 `json:"graduation_progress"`
}

func curveView(state *domain.CurveState) curveViewData {
	check := curve.CheckGraduation(state.CurrentSupply, state.CurrentPrice)
	return curveViewData{
		TokenID:            state.TokenID,
		Creator:            state.Creator,
		CurrentSupply:      state.CurrentSupply,
		CurrentPrice:       state.CurrentPrice,
		Reserve:            state.Reserve,
		TotalVolume:        state.TotalVolume,
		TotalTransactions:  state.TotalTransactions,
		UniqueHolders:      state.UniqueHolders,
		IsActive:           state.IsActive,
		CreatedAt:          state.CreatedAt,
		GraduatedAt:        state.GraduatedAt,
		MarketCap:          check.MarketCap,
		GraduationProgress: check.Progress,
	}
}

type tradeViewData struct {
	ID        int64   `json:"id"`
	TokenID   string  `json:"token_id"`
	Wallet    string  `json:"wallet"`
	Side      string  `json:"side"`
	AmountIn  float64 `json:"amount_in"`
	AmountOut float64 `json:"amount_out"`
	Price     float64 `json:"price"`
	Fee       float64 `json:"fee"`
	Timestamp int64   `json:"timestamp"`
}

func tradeView(t *domain.TradeRecord) tradeViewData {
	return tradeViewData{
		ID:        t.ID,
		TokenID:   t.TokenID,
		Wallet:    t.Wallet,
		Side:      t.Side,
		AmountIn:  t.AmountIn,
		AmountOut: t.AmountOut,
		Price:     t.Price,
		Fee:       t.Fee,
		Timestamp: t.Timestamp,
	}
}

func tradeViews(trades []*domain.TradeRecord) []tradeViewData {
	views := make([]tradeViewData, 0, len(trades))
	for _, t := range trades {
		views = append(views, tradeView(t))
	}
	return views
}

type tradeResultViewData struct {
	TokensOut float64       `json:"tokens_out,omitempty"`
	AmountOut float64       `json:"amount_out,omitempty"`
	AmountIn  float64       `json:"amount_in"`
	NewPrice  float64       `json:"new_price"`
	Fees      feeViewData   `json:"fees"`
	Trade     tradeViewData `json:"trade"`
}

type feeViewData struct {
	PlatformFee float64 `json:"platform_fee"`
	CreatorFee  float64 `json:"creator_fee"`
	TotalFee    float64 `json:"total_fee"`
}

func tradeResultView(res *engine.TradeResult) tradeResultViewData {
	return tradeResultViewData{
		TokensOut: res.TokensOut,
		AmountOut: res.AmountOut,
		AmountIn:  res.AmountIn,
		NewPrice:  res.NewPrice,
		Fees: feeViewData{
			PlatformFee: res.Fees.PlatformFee,
			CreatorFee:  res.Fees.CreatorFee,
			TotalFee:    res.Fees.TotalFee,
		},
		Trade: tradeView(res.Trade),
	}
}

type holderViewData struct {
	Wallet    string  `json:"wallet"`
	Balance   float64 `json:"balance"`
	UpdatedAt int64   `json:"updated_at"`
}

type graduationViewData struct {
	ID              int64   `json:"id,omitempty"`
	Status          string  `json:"status"`
	LiquidityQuote  float64 `json:"liquidity_quote,omitempty"`
	LiquidityTokens float64 `json:"liquidity_tokens,omitempty"`
	PoolAddress     string  `json:"pool_address,omitempty"`
	TxHash          string  `json:"tx_hash,omitempty"`
	FailReason      string  `json:"fail_reason,omitempty"`
	CreatedAt       int64   `json:"created_at,omitempty"`
	UpdatedAt       int64   `json:"updated_at,omitempty"`
}

func graduationView(rec *domain.GraduationRecord) graduationViewData {
	return graduationViewData{
		ID:              rec.ID,
		Status:          rec.Status,
		LiquidityQuote:  rec.LiquidityQuote,
		LiquidityTokens: rec.LiquidityTokens,
		PoolAddress:     rec.PoolAddress,
		TxHash:          rec.TxHash,
		FailReason:      rec.FailReason,
		CreatedAt:       rec.CreatedAt,
		UpdatedAt:       rec.UpdatedAt,
	}
}
