// Package pricedata supplies historical daily price bars to the backtest
// engine, either from the Alpaca market-data API or from the local Parquet
// bar cache.
package pricedata

import (
	"context"
	"time"

	"backlab/internal/domain"
)

// Source supplies daily price bars for a symbol, ascending by date.
type Source interface {
	DailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.PriceBar, error)
}
