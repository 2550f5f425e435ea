// Package api exposes the engine over HTTP: read-only pool queries, quotes,
// sequenced commands, the notification stream and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"amm_go/internal/domain"
	"amm_go/internal/event"
	"amm_go/internal/infra/storage"
)

const maxBodyBytes = 1 << 16

// Engine is the read side the server queries.
type Engine interface {
	Pools(ctx context.Context) ([]domain.Pool, error)
	GetPool(ctx context.Context, id domain.PoolID) (domain.Pool, error)
	Holders(ctx context.Context, id domain.PoolID) ([]domain.ShareBalance, error)
	GetAmountOut(ctx context.Context, assetIn, assetOut domain.AssetID, amountIn *uint256.Int) (*uint256.Int, error)
	SpotPrice(ctx context.Context, assetIn, assetOut domain.AssetID) (decimal.Decimal, error)
}

// Executor runs a command through the sequencer and waits for its result.
type Executor interface {
	Execute(ctx context.Context, cmd event.Command) (event.Result, error)
}

// Journal serves the persisted notification history.
type Journal interface {
	Notifications(ctx context.Context, pool domain.PoolID, limit int) ([]storage.NotificationRecord, error)
}

// Config holds server configuration
type Config struct {
	ListenAddr      string
	ShutdownTimeout time.Duration
	EnableCORS      bool
}

// Server is the HTTP front of the engine.
type Server struct {
	engine   Engine
	executor Executor
	journal  Journal
	stream   http.Handler
	gatherer prometheus.Gatherer
	log      *slog.Logger

	router     *mux.Router
	handler    http.Handler
	httpServer *http.Server
	cfg        Config
	wg         sync.WaitGroup
}

// Option configures optional server surfaces.
type Option func(*Server)

// WithJournal serves GET /pools/{id}/events.
func WithJournal(j Journal) Option { return func(s *Server) { s.journal = j } }

// WithStream mounts the websocket handler at /ws.
func WithStream(h http.Handler) Option { return func(s *Server) { s.stream = h } }

// WithGatherer serves the gatherer's metrics at /metrics.
func WithGatherer(g prometheus.Gatherer) Option { return func(s *Server) { s.gatherer = g } }

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option { return func(s *Server) { s.log = l } }

// NewServer wires the routes. executor may be nil for a read-only server.
func NewServer(cfg Config, eng Engine, executor Executor, opts ...Option) *Server {
	s := &Server{
		engine:   eng,
		executor: executor,
		log:      slog.Default(),
		router:   mux.NewRouter(),
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.ShutdownTimeout <= 0 {
		s.cfg.ShutdownTimeout = 10 * time.Second
	}
	s.routes()

	// Apply middleware
	var httpHandler http.Handler = s.router
	if cfg.EnableCORS {
		httpHandler = handlers.CORS(
			handlers.AllowedOrigins([]string{"*"}),
			handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
			handlers.AllowedHeaders([]string{"Content-Type"}),
		)(httpHandler)
	}
	httpHandler = handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(httpHandler)
	s.handler = httpHandler

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(s.logRequests)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/pools", s.handlePools).Methods(http.MethodGet)
	r.HandleFunc("/pools/{id}", s.handlePool).Methods(http.MethodGet)
	r.HandleFunc("/pools/{id}/events", s.handleEvents).Methods(http.MethodGet)
	r.HandleFunc("/quote", s.handleQuote).Methods(http.MethodGet)
	r.HandleFunc("/commands/{type}", s.handleCommand).Methods(http.MethodPost)

	if s.stream != nil {
		r.Handle("/ws", s.stream)
	}
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

// Handler returns the router wrapped in the server middleware.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving in the background.
func (s *Server) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.log.Info("[API] Listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("[API] Server error", slog.Any("error", err))
		}
	}()
}

// Stop shuts the listener down and waits for in-flight requests.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	err := s.httpServer.Shutdown(ctx)
	s.wg.Wait()
	s.log.Info("[API] Stopped")
	return err
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("[API] Request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("took", time.Since(start)))
	})
}

// ======================================================================================
// Handlers
// ======================================================================================

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePools(w http.ResponseWriter, r *http.Request) {
	pools, err := s.engine.Pools(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]domain.PoolView, 0, len(pools))
	for i := range pools {
		views = append(views, pools[i].View())
	}
	writeJSON(w, http.StatusOK, views)
}

type holderView struct {
	Account string `json:"account"`
	Balance string `json:"balance"`
}

type poolDetail struct {
	domain.PoolView
	Holders []holderView `json:"holders"`
}

func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	id, err := poolID(mux.Vars(r)["id"])
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	pool, err := s.engine.GetPool(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	holders, err := s.engine.Holders(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	detail := poolDetail{PoolView: pool.View(), Holders: make([]holderView, 0, len(holders))}
	for _, h := range holders {
		detail.Holders = append(detail.Holders, holderView{Account: h.Account.Hex(), Balance: h.Balance.Dec()})
	}
	writeJSON(w, http.StatusOK, detail)
}

type eventView struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Event     json.RawMessage `json:"event"`
	CreatedAt time.Time       `json:"created_at"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Kind: "NotFound", Message: "notification journal disabled"})
		return
	}
	id, err := poolID(mux.Vars(r)["id"])
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			writeBadRequest(w, fmt.Errorf("limit: %w", err))
			return
		}
	}
	recs, err := s.journal.Notifications(r.Context(), id, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]eventView, 0, len(recs))
	for _, rec := range recs {
		out = append(out, eventView{ID: rec.ID, Kind: rec.Kind, Event: rec.Payload, CreatedAt: rec.CreatedAt})
	}
	writeJSON(w, http.StatusOK, out)
}

type quoteView struct {
	AmountOut string `json:"amount_out"`
	SpotPrice string `json:"spot_price,omitempty"`
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	in, err := asset(q.Get("in"))
	if err != nil {
		writeBadRequest(w, fmt.Errorf("in: %w", err))
		return
	}
	out, err := asset(q.Get("out"))
	if err != nil {
		writeBadRequest(w, fmt.Errorf("out: %w", err))
		return
	}
	amount, err := uint256.FromDecimal(q.Get("amount"))
	if err != nil {
		writeBadRequest(w, fmt.Errorf("amount: %w", err))
		return
	}

	amountOut, err := s.engine.GetAmountOut(r.Context(), in, out, amount)
	if err != nil {
		writeError(w, err)
		return
	}
	view := quoteView{AmountOut: amountOut.Dec()}
	// Unknown pools quote zero and carry no price.
	if price, err := s.engine.SpotPrice(r.Context(), in, out); err == nil {
		view.SpotPrice = price.String()
	}
	writeJSON(w, http.StatusOK, view)
}

type resultView struct {
	Seq     uint64   `json:"seq"`
	Type    string   `json:"type"`
	Pool    string   `json:"pool_id,omitempty"`
	Amounts []string `json:"amounts,omitempty"`
	Error   string   `json:"error,omitempty"`
	Kind    string   `json:"kind,omitempty"`
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if s.executor == nil {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Kind: "ReadOnly", Message: "commands are disabled"})
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	cmd, release, err := decodeCommand(event.Type(mux.Vars(r)["type"]), body)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	res, err := s.executor.Execute(r.Context(), cmd)
	if err != nil {
		// The sequencer may still hold cmd; leave it to the GC.
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Kind: "Unavailable", Message: err.Error()})
		return
	}
	release()

	view := resultView{Seq: res.Seq, Type: string(res.Type)}
	if res.Pool != (domain.PoolID{}) {
		view.Pool = res.Pool.Hex()
	}
	for _, a := range res.Amounts {
		view.Amounts = append(view.Amounts, a.Dec())
	}
	status := http.StatusOK
	if res.Err != nil {
		view.Error = res.Err.Error()
		view.Kind = res.Kind()
		status = statusOf(res.Err)
	}
	writeJSON(w, status, view)
}

// ======================================================================================
// Helpers
// ======================================================================================

// decodeCommand parses a command body. Swaps come from the command pool;
// release returns them once the sequencer is done with the value.
func decodeCommand(t event.Type, body []byte) (event.Command, func(), error) {
	if t != event.TypeSwap {
		cmd, err := event.Decode(t, body)
		return cmd, func() {}, err
	}
	sc := event.AcquireSwapCommand()
	if err := json.Unmarshal(body, sc); err != nil {
		event.ReleaseSwapCommand(sc)
		return nil, nil, fmt.Errorf("decode %s: %w", t, err)
	}
	return sc, func() { event.ReleaseSwapCommand(sc) }, nil
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusOf(err), errorBody{Kind: domain.KindOf(err), Message: err.Error()})
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorBody{Kind: "BadRequest", Message: err.Error()})
}

// statusOf maps an engine error kind onto an HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrPoolNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrPoolAlreadyExists), errors.Is(err, domain.ErrReentrancy):
		return http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case domain.KindOf(err) == "Internal":
		return http.StatusInternalServerError
	default:
		return http.StatusUnprocessableEntity
	}
}

func poolID(raw string) (domain.PoolID, error) {
	b, err := hexutil.Decode(raw)
	if err != nil {
		return domain.PoolID{}, fmt.Errorf("pool id: %w", err)
	}
	if len(b) != common.HashLength {
		return domain.PoolID{}, fmt.Errorf("pool id: want %d bytes, got %d", common.HashLength, len(b))
	}
	return common.BytesToHash(b), nil
}

func asset(raw string) (domain.AssetID, error) {
	if !common.IsHexAddress(raw) {
		return domain.AssetID{}, fmt.Errorf("invalid address %q", raw)
	}
	return common.HexToAddress(raw), nil
}
