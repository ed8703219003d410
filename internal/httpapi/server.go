// Package httpapi serves the backlab REST API: running backtests and reading
// their results, trades, and daily snapshots.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"backlab/internal/backtest"
	"backlab/internal/domain"
	"backlab/internal/pricedata"
	"backlab/internal/store"
)

// Server handles the backtest HTTP API.
type Server struct {
	runs     store.RunStore
	bars     store.BarStore // for /api/symbols; may be nil
	source   pricedata.Source
	defaults domain.StrategyConfig
	log      *slog.Logger
}

// NewServer creates a Server that reads prices from source, persists runs in
// runs, and fills unset request parameters from defaults.
func NewServer(runs store.RunStore, bars store.BarStore, source pricedata.Source, defaults domain.StrategyConfig, log *slog.Logger) *Server {
	return &Server{
		runs:     runs,
		bars:     bars,
		source:   source,
		defaults: defaults,
		log:      log,
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/backtests", s.handleRunBacktest)
	mux.HandleFunc("GET /api/backtests", s.handleListBacktests)
	mux.HandleFunc("GET /api/backtests/{id}", s.handleGetBacktest)
	mux.HandleFunc("DELETE /api/backtests/{id}", s.handleDeleteBacktest)
	mux.HandleFunc("GET /api/backtests/{id}/trades", s.handleTrades)
	mux.HandleFunc("GET /api/backtests/{id}/snapshots", s.handleSnapshots)
	mux.HandleFunc("GET /api/symbols", s.handleSymbols)
}

// Handler returns an http.Handler with CORS middleware for the dashboard.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// pathID extracts the {id} path value as an int64.
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil
}

func (s *Server) handleRunBacktest(w http.ResponseWriter, r *http.Request) {
	var req RunBacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	symbol := strings.ToUpper(strings.TrimSpace(req.StockSymbol))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "stock_symbol is required")
		return
	}

	start, err := time.Parse(dateFormat, req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "start_date must be YYYY-MM-DD")
		return
	}
	end, err := time.Parse(dateFormat, req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "end_date must be YYYY-MM-DD")
		return
	}
	if end.Before(start) {
		writeError(w, http.StatusBadRequest, "end_date is before start_date")
		return
	}

	cfg := s.configFor(&req)
	if err := backtest.ValidateConfig(cfg); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	bars, err := s.source.DailyBars(r.Context(), symbol, start, end)
	if err != nil {
		var dataErr *domain.DataError
		if errors.As(err, &dataErr) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.log.Error("fetching bars", "symbol", symbol, "error", err)
		writeError(w, http.StatusBadGateway, "fetching price data failed")
		return
	}

	out, err := backtest.Run(symbol, bars, cfg)
	if err != nil {
		var cfgErr *domain.ConfigError
		var dataErr *domain.DataError
		switch {
		case errors.As(err, &cfgErr):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.As(err, &dataErr):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			s.log.Error("running backtest", "symbol", symbol, "error", err)
			writeError(w, http.StatusInternalServerError, "backtest failed")
		}
		return
	}

	id, err := s.runs.SaveRun(r.Context(), &out.Result, out.Trades, out.Snapshots)
	if err != nil {
		s.log.Error("persisting run", "symbol", symbol, "error", err)
		writeError(w, http.StatusInternalServerError, "persisting run failed")
		return
	}
	out.Result.ID = id
	if out.Result.CreatedAt.IsZero() {
		out.Result.CreatedAt = time.Now().UTC()
	}

	s.log.Info("backtest complete",
		"symbol", symbol,
		"id", id,
		"trades", out.Result.NumberOfTrades,
		"profit", out.Result.TotalProfit,
	)
	writeJSON(w, http.StatusCreated, convertResult(&out.Result))
}

// configFor merges request overrides over the configured defaults.
func (s *Server) configFor(req *RunBacktestRequest) domain.StrategyConfig {
	cfg := s.defaults
	if req.ShortWindow != nil {
		cfg.ShortWindow = *req.ShortWindow
	}
	if req.LongWindow != nil {
		cfg.LongWindow = *req.LongWindow
	}
	if req.StopLossPct != nil {
		cfg.StopLossPct = *req.StopLossPct
	}
	if req.TakeProfitPct != nil {
		cfg.TakeProfitPct = *req.TakeProfitPct
	}
	if req.StartingAmount != nil {
		cfg.StartingAmount = *req.StartingAmount
	}
	return cfg
}

func (s *Server) handleListBacktests(w http.ResponseWriter, r *http.Request) {
	results, err := s.runs.ListResults(r.Context())
	if err != nil {
		s.log.Error("listing results", "error", err)
		writeError(w, http.StatusInternalServerError, "listing results failed")
		return
	}

	out := make([]BacktestJSON, 0, len(results))
	for i := range results {
		out = append(out, convertResult(&results[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetBacktest(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid backtest id")
		return
	}

	result, err := s.runs.GetResult(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "backtest not found")
		return
	}
	if err != nil {
		s.log.Error("getting result", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "getting result failed")
		return
	}
	writeJSON(w, http.StatusOK, convertResult(result))
}

func (s *Server) handleDeleteBacktest(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid backtest id")
		return
	}

	err := s.runs.DeleteRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "backtest not found")
		return
	}
	if err != nil {
		s.log.Error("deleting run", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "deleting run failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid backtest id")
		return
	}
	if !s.runExists(w, r, id) {
		return
	}

	trades, err := s.runs.ListTrades(r.Context(), id)
	if err != nil {
		s.log.Error("listing trades", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "listing trades failed")
		return
	}

	out := make([]TradeJSON, 0, len(trades))
	for i := range trades {
		out = append(out, convertTrade(&trades[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid backtest id")
		return
	}
	if !s.runExists(w, r, id) {
		return
	}

	snapshots, err := s.runs.ListSnapshots(r.Context(), id)
	if err != nil {
		s.log.Error("listing snapshots", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "listing snapshots failed")
		return
	}

	out := make([]SnapshotJSON, 0, len(snapshots))
	for i := range snapshots {
		out = append(out, convertSnapshot(&snapshots[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// runExists writes a 404 and returns false when the run is missing.
func (s *Server) runExists(w http.ResponseWriter, r *http.Request, id int64) bool {
	_, err := s.runs.GetResult(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "backtest not found")
		return false
	}
	if err != nil {
		s.log.Error("getting result", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "getting result failed")
		return false
	}
	return true
}

func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	if s.bars == nil {
		writeJSON(w, http.StatusOK, SymbolsResponse{Symbols: []string{}})
		return
	}

	symbols, err := s.bars.ListSymbols(r.Context())
	if err != nil {
		s.log.Error("listing symbols", "error", err)
		writeError(w, http.StatusInternalServerError, "listing symbols failed")
		return
	}
	if symbols == nil {
		symbols = []string{}
	}
	writeJSON(w, http.StatusOK, SymbolsResponse{Symbols: symbols})
}
