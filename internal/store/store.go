// Package store defines storage interfaces for the backlab platform and
// provides implementations backed by Parquet files (daily bar cache) and
// SQLite (backtest runs, trades, and daily snapshots).
package store

import (
	"context"
	"time"

	"backlab/internal/domain"
)

// BarStore persists and retrieves daily OHLCV bars.
type BarStore interface {
	// WriteBars persists a batch of bars for a symbol, merging with any
	// bars already stored for the same dates.
	WriteBars(ctx context.Context, symbol string, bars []domain.PriceBar) error

	// ReadBars returns bars for the given symbol within [start, end],
	// ascending by date.
	ReadBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.PriceBar, error)

	// ListSymbols returns all distinct symbols with stored bars.
	ListSymbols(ctx context.Context) ([]string, error)
}

// RunStore persists and retrieves backtest runs. A run's result, trades,
// and snapshots are written atomically: either the whole run is stored or
// none of it.
type RunStore interface {
	// SaveRun stores the result with its trades and snapshots in a single
	// transaction and returns the new backtest ID.
	SaveRun(ctx context.Context, result *domain.BacktestResult, trades []domain.Trade, snapshots []domain.DailySnapshot) (int64, error)

	// GetResult retrieves a single backtest result by ID.
	GetResult(ctx context.Context, id int64) (*domain.BacktestResult, error)

	// ListResults returns all backtest results, newest first.
	ListResults(ctx context.Context) ([]domain.BacktestResult, error)

	// DeleteRun removes a run and all of its trades and snapshots.
	DeleteRun(ctx context.Context, id int64) error

	// ListTrades returns the trades of a run in entry order.
	ListTrades(ctx context.Context, backtestID int64) ([]domain.Trade, error)

	// ListSnapshots returns the daily snapshots of a run in date order.
	ListSnapshots(ctx context.Context, backtestID int64) ([]domain.DailySnapshot, error)
}

// ErrNotFound is returned when a requested backtest run does not exist.
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "backtest run not found" }
