package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperbook/pkg/app/core/feed"
	"github.com/uhyunpark/hyperbook/pkg/app/core/market"
	"github.com/uhyunpark/hyperbook/pkg/app/core/orderbook"
	"github.com/uhyunpark/hyperbook/pkg/app/engine"
	"github.com/uhyunpark/hyperbook/pkg/storage"
)

const (
	defaultTradeLimit = 50
	maxTradeLimit     = 1000
)

// Engine is the part of engine.Engine the API drives.
type Engine interface {
	Submit(ctx context.Context, req engine.SubmitRequest) (engine.Result, error)
	Cancel(ctx context.Context, id uint64) (orderbook.Report, error)
	Snapshot(ctx context.Context) (orderbook.Snapshot, error)
	Order(ctx context.Context, id uint64) (orderbook.Order, bool, error)
	Subscribe(ctx context.Context, fn func(feed.Message)) error
	SetStatus(ctx context.Context, status market.Status) error
	Market(ctx context.Context) (market.Market, error)
	Stats() engine.Stats
	Topic() string
	Symbol() string
}

// TradeReader serves trade history.
type TradeReader interface {
	LoadRecentTrades(symbol string, limit int) ([]storage.TradeRecord, error)
}

// Server handles REST API and WebSocket connections
type Server struct {
	eng      Engine
	trades   TradeReader // nil disables trade history
	router   *mux.Router
	hub      *Hub
	validate *validator.Validate
	log      *zap.SugaredLogger
	ctx      context.Context
}

// NewServer creates a new API server. hub must be the publisher the engine
// was built with.
func NewServer(eng Engine, trades TradeReader, hub *Hub, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &Server{
		eng:      eng,
		trades:   trades,
		router:   mux.NewRouter(),
		hub:      hub,
		validate: validator.New(),
		log:      log,
		ctx:      context.Background(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// API v1 routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Market endpoints
	api.HandleFunc("/market", s.handleGetMarket).Methods("GET")
	api.HandleFunc("/market/status", s.handleSetMarketStatus).Methods("POST")
	api.HandleFunc("/book", s.handleGetOrderbook).Methods("GET")
	api.HandleFunc("/trades", s.handleGetTrades).Methods("GET")
	api.HandleFunc("/stats", s.handleGetStats).Methods("GET")

	// Orders
	api.HandleFunc("/orders", s.handleSubmitOrder).Methods("POST")
	api.HandleFunc("/orders/cancel", s.handleCancelOrder).Methods("POST")
	api.HandleFunc("/orders/{id:[0-9]+}", s.handleGetOrder).Methods("GET")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the router wrapped with CORS
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start serves until ctx is done, then shuts down gracefully. The hub must
// already be running.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.ctx = ctx
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Infow("api_server_starting", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("api shutdown: %w", err)
		}
		s.log.Infow("api_server_stopped", "addr", addr)
		return nil
	}
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	m, err := s.eng.Market(r.Context())
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, MarketInfo{
		Symbol:       m.Symbol,
		BaseAsset:    m.Base,
		QuoteAsset:   m.Quote,
		Status:       m.Status.String(),
		TickSize:     m.TickSize,
		LotSize:      m.LotSize,
		MinOrderSize: m.MinOrderSize,
		MaxOrderSize: m.MaxOrderSize,
		Topic:        s.eng.Topic(),
	})
}

func (s *Server) handleSetMarketStatus(w http.ResponseWriter, r *http.Request) {
	var req MarketStatusRequest
	if !s.decode(w, r, &req) {
		return
	}
	status, err := market.ParseStatus(req.Status)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid status", err.Error())
		return
	}
	if err := s.eng.SetStatus(r.Context(), status); err != nil {
		s.respondEngineError(w, err)
		return
	}
	s.handleGetMarket(w, r)
}

func (s *Server) handleGetOrderbook(w http.ResponseWriter, r *http.Request) {
	depth := 0
	if v := r.URL.Query().Get("depth"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid depth", v)
			return
		}
		depth = n
	}

	snap, err := s.eng.Snapshot(r.Context())
	if err != nil {
		s.respondEngineError(w, err)
		return
	}

	respondJSON(w, OrderbookSnapshot{
		Symbol:    s.eng.Symbol(),
		Bids:      toPriceLevels(snap.Bids, depth),
		Asks:      toPriceLevels(snap.Asks, depth),
		Timestamp: time.Now().UnixMilli(),
	})
}

func toPriceLevels(levels []orderbook.Level, depth int) []PriceLevel {
	if depth > 0 && len(levels) > depth {
		levels = levels[:depth]
	}
	out := make([]PriceLevel, len(levels))
	for i, l := range levels {
		out[i] = PriceLevel{Price: l.Price, Size: l.Qty}
	}
	return out
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	limit := defaultTradeLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid limit", v)
			return
		}
		limit = min(n, maxTradeLimit)
	}
	if s.trades == nil {
		respondJSON(w, []TradeInfo{})
		return
	}

	recs, err := s.trades.LoadRecentTrades(s.eng.Symbol(), limit)
	if err != nil {
		s.log.Errorw("load_trades_failed", "err", err)
		respondError(w, http.StatusInternalServerError, "failed to load trades", err.Error())
		return
	}
	respondJSON(w, toTradeInfos(recs))
}

func toTradeInfos(recs []storage.TradeRecord) []TradeInfo {
	out := make([]TradeInfo, len(recs))
	for i, t := range recs {
		out[i] = TradeInfo{
			ID:           t.ID,
			Seq:          t.Seq,
			Symbol:       t.Symbol,
			Price:        t.Price,
			Size:         t.Qty,
			Side:         t.TakerSide,
			MakerOrderID: t.MakerID,
			TakerOrderID: t.TakerID,
			Timestamp:    t.Timestamp,
		}
	}
	return out
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	type stats struct {
		engine.Stats
		Clients int `json:"ws_clients"`
	}
	respondJSON(w, stats{Stats: s.eng.Stats(), Clients: s.hub.ClientCount()})
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req engine.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	res, err := s.eng.Submit(r.Context(), req)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}

	s.log.Debugw("api_order_submitted", "order_id", res.Report.OrderID, "state", res.Report.State.String())
	respondJSON(w, SubmitOrderResponse{
		OrderID:   res.Report.OrderID,
		Status:    res.Report.State.String(),
		Filled:    res.Filled,
		Remaining: res.Remaining,
		Trades:    toTradeInfos(res.Trades),
	})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelOrderRequest
	if !s.decode(w, r, &req) {
		return
	}

	rep, err := s.eng.Cancel(r.Context(), req.OrderID)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, CancelOrderResponse{OrderID: req.OrderID, Status: rep.State.String()})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id", err.Error())
		return
	}
	o, ok, err := s.eng.Order(r.Context(), id)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, "order not found", "order is not resting")
		return
	}
	respondJSON(w, OrderInfo{
		ID:        o.ID,
		Symbol:    s.eng.Symbol(),
		Side:      sideName(o.Side),
		Type:      o.TIF.String(),
		Price:     o.Price,
		Size:      o.Qty,
		Filled:    o.Filled(),
		Remaining: o.Remaining,
	})
}

func sideName(side orderbook.Side) string {
	if side == orderbook.Bid {
		return "buy"
	}
	return "sell"
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// subscribeClient registers c for channel through the engine so the
// bootstrap snapshot and the following deltas line up.
func (s *Server) subscribeClient(ctx context.Context, c *Client, channel string) error {
	if channel != s.eng.Topic() {
		return fmt.Errorf("unknown channel %q", channel)
	}
	return s.eng.Subscribe(ctx, func(snap feed.Message) {
		s.hub.attach(c, channel, snap)
	})
}

// ==============================
// Helper Functions
// ==============================

// decode reads a JSON body into v and validates it. It writes the error
// response itself and reports whether the handler should continue.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		resp := ErrorResponse{Error: "validation failed", Message: err.Error()}
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			resp.Fields = make(map[string]string, len(verrs))
			for _, e := range verrs {
				resp.Fields[e.Field()] = "failed on tag '" + e.Tag() + "'"
			}
		}
		writeJSON(w, http.StatusBadRequest, resp)
		return false
	}
	return true
}

func (s *Server) respondEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrValidation):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation failed",
			Message: err.Error(),
			Fields:  engine.FieldErrors(err),
		})
	case errors.Is(err, market.ErrOrderRejected):
		respondError(w, http.StatusBadRequest, "order rejected", err.Error())
	case errors.Is(err, market.ErrMarketNotActive), errors.Is(err, market.ErrBadTransition):
		respondError(w, http.StatusConflict, "market unavailable", err.Error())
	case errors.Is(err, engine.ErrClosed):
		respondError(w, http.StatusServiceUnavailable, "engine stopped", err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusServiceUnavailable, "request cancelled", err.Error())
	default:
		s.log.Errorw("engine_request_failed", "err", err)
		respondError(w, http.StatusInternalServerError, "internal error", err.Error())
	}
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	writeJSON(w, status, ErrorResponse{
		Error:   error,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
