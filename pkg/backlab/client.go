// Package backlab provides a Go client for the backlab-server REST API.
package backlab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Client talks to a backlab-server instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new backlab API client for the given base URL,
// e.g. "http://localhost:8080".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// RunRequest holds the parameters for a new backtest. Nil numeric fields
// fall back to the server's configured defaults.
type RunRequest struct {
	StockSymbol    string           `json:"stock_symbol"`
	StartDate      string           `json:"start_date"` // YYYY-MM-DD
	EndDate        string           `json:"end_date"`   // YYYY-MM-DD
	ShortWindow    *int             `json:"short_window,omitempty"`
	LongWindow     *int             `json:"long_window,omitempty"`
	StopLossPct    *decimal.Decimal `json:"stop_loss_pct,omitempty"`
	TakeProfitPct  *decimal.Decimal `json:"take_profit_pct,omitempty"`
	StartingAmount *decimal.Decimal `json:"starting_amount,omitempty"`
}

// Backtest is a backtest run summary as returned by the server.
type Backtest struct {
	ID               int64           `json:"id"`
	StockSymbol      string          `json:"stock_symbol"`
	StartDate        string          `json:"start_date"`
	EndDate          string          `json:"end_date"`
	StopLossPct      decimal.Decimal `json:"stop_loss_pct"`
	TakeProfitPct    decimal.Decimal `json:"take_profit_pct"`
	StartingAmount   decimal.Decimal `json:"starting_amount"`
	ClosingAmount    decimal.Decimal `json:"closing_amount"`
	TotalProfit      decimal.Decimal `json:"total_profit"`
	TotalReturnsPct  decimal.Decimal `json:"total_returns_pct"`
	PeakStockValue   decimal.Decimal `json:"peak_stock_value"`
	LowestStockValue decimal.Decimal `json:"lowest_stock_value"`
	MaxDrawdownPct   decimal.Decimal `json:"max_drawdown_pct"`
	NumberOfTrades   int             `json:"number_of_trades"`
	CreatedAt        string          `json:"created_at"`
}

// Trade is one trade of a run, with server-computed profit and open state.
type Trade struct {
	ID               int64            `json:"id"`
	BacktestID       int64            `json:"backtest_id"`
	StockSymbol      string           `json:"stock_symbol"`
	EntryDate        string           `json:"entry_date"`
	EntryPrice       decimal.Decimal  `json:"entry_price"`
	Quantity         int64            `json:"quantity"`
	ExitDate         *string          `json:"exit_date"`
	ExitPrice        *decimal.Decimal `json:"exit_price"`
	FinalMarketPrice *decimal.Decimal `json:"final_market_price"`
	Profit           decimal.Decimal  `json:"profit"`
	IsOpen           bool             `json:"is_open"`
}

// Snapshot is one daily portfolio snapshot of a run.
type Snapshot struct {
	Date                string          `json:"date"`
	TotalPortfolioValue decimal.Decimal `json:"total_portfolio_value"`
	CashBalance         decimal.Decimal `json:"cash_balance"`
	DailyReturn         decimal.Decimal `json:"daily_return"`
	PeakPortfolioValue  decimal.Decimal `json:"peak_portfolio_value"`
	Drawdown            decimal.Decimal `json:"drawdown"`
	OpenPositionsCount  int             `json:"open_positions_count"`
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backlab API: %d: %s", e.StatusCode, e.Message)
}

// RunBacktest runs a new backtest and returns its persisted summary.
func (c *Client) RunBacktest(ctx context.Context, req RunRequest) (*Backtest, error) {
	var out Backtest
	if err := c.do(ctx, http.MethodPost, "/api/backtests", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListBacktests returns all backtest summaries, newest first.
func (c *Client) ListBacktests(ctx context.Context) ([]Backtest, error) {
	var out []Backtest
	if err := c.do(ctx, http.MethodGet, "/api/backtests", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetBacktest returns one backtest summary by ID.
func (c *Client) GetBacktest(ctx context.Context, id int64) (*Backtest, error) {
	var out Backtest
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/backtests/%d", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteBacktest removes a backtest run and its trades and snapshots.
func (c *Client) DeleteBacktest(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/backtests/%d", id), nil, nil)
}

// ListTrades returns the trades of a run in entry order.
func (c *Client) ListTrades(ctx context.Context, id int64) ([]Trade, error) {
	var out []Trade
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/backtests/%d/trades", id), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListSnapshots returns the daily snapshots of a run in date order.
func (c *Client) ListSnapshots(ctx context.Context, id int64) ([]Snapshot, error) {
	var out []Snapshot
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/backtests/%d/snapshots", id), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// do performs one JSON round-trip. body and out may be nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		msg := resp.Status
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
