package pricedata

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"

	"backlab/internal/domain"
	"backlab/internal/util"
)

// Compile-time interface check.
var _ Source = (*AlpacaSource)(nil)

// AlpacaSource fetches daily bars from the Alpaca market-data API.
type AlpacaSource struct {
	client *marketdata.Client
	log    *slog.Logger
}

// NewAlpacaSource creates an AlpacaSource with the given credentials.
// dataURL may be empty to use the SDK default.
func NewAlpacaSource(apiKey, apiSecret, dataURL string) *AlpacaSource {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}

	return &AlpacaSource{
		client: marketdata.NewClient(opts),
		log:    slog.Default().With("source", "alpaca"),
	}
}

// DailyBars fetches daily bars for the symbol within [start, end]. Transient
// API failures are retried with backoff.
func (s *AlpacaSource) DailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.PriceBar, error) {
	symbol = strings.ToUpper(symbol)

	var alpacaBars []marketdata.Bar
	err := util.Retry(ctx, 3, time.Second, func() error {
		var err error
		alpacaBars, err = s.client.GetBars(symbol, marketdata.GetBarsRequest{
			TimeFrame: marketdata.OneDay,
			Start:     start,
			End:       end,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars %s: %w", symbol, err)
	}

	bars := make([]domain.PriceBar, 0, len(alpacaBars))
	for _, ab := range alpacaBars {
		bars = append(bars, domain.PriceBar{
			Date:   ab.Timestamp.UTC(),
			Open:   decimal.NewFromFloat(ab.Open),
			High:   decimal.NewFromFloat(ab.High),
			Low:    decimal.NewFromFloat(ab.Low),
			Close:  decimal.NewFromFloat(ab.Close),
			Volume: int64(ab.Volume),
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })

	s.log.Debug("fetched daily bars", "symbol", symbol, "bars", len(bars))
	return bars, nil
}
