package backtest

import (
	"fmt"

	"github.com/shopspring/decimal"

	"backlab/internal/domain"
)

// Output bundles the three results of one backtest run. Trades and
// Snapshots are ordered; snapshot dates match the input bars one-to-one.
type Output struct {
	Result    domain.BacktestResult
	Trades    []domain.Trade
	Snapshots []domain.DailySnapshot
}

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// position is the engine's transient open-position state. At most one
// position is open at any simulated day.
type position struct {
	entryDate  int // bar index
	entryPrice decimal.Decimal
	quantity   int64
}

// ValidateConfig rejects strategy parameters the engine cannot run with.
func ValidateConfig(cfg domain.StrategyConfig) error {
	if cfg.ShortWindow <= 0 {
		return &domain.ConfigError{Reason: fmt.Sprintf("short_window must be positive, got %d", cfg.ShortWindow)}
	}
	if cfg.LongWindow <= 0 {
		return &domain.ConfigError{Reason: fmt.Sprintf("long_window must be positive, got %d", cfg.LongWindow)}
	}
	if cfg.ShortWindow >= cfg.LongWindow {
		return &domain.ConfigError{Reason: fmt.Sprintf("short_window (%d) must be less than long_window (%d)", cfg.ShortWindow, cfg.LongWindow)}
	}
	if !cfg.StartingAmount.IsPositive() {
		return &domain.ConfigError{Reason: "starting_amount must be positive"}
	}
	return nil
}

// validateBars rejects a price history the engine cannot simulate over.
func validateBars(bars []domain.PriceBar, longWindow int) error {
	if len(bars) == 0 {
		return &domain.DataError{Reason: "empty price history"}
	}
	if len(bars) < longWindow {
		return &domain.DataError{Reason: fmt.Sprintf("%d bars, need at least %d for the long window", len(bars), longWindow)}
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i].Date.After(bars[i-1].Date) {
			return &domain.DataError{Reason: fmt.Sprintf("dates not strictly increasing at bar %d (%s)", i, bars[i].Date.Format("2006-01-02"))}
		}
	}
	return nil
}

// Run executes an SMA-crossover backtest over the given bars. It is a pure
// function of its inputs: identical bars and config always produce
// identical output, and no state survives across runs.
//
// The position policy is single-asset, fully-invested-or-flat: a buy signal
// while flat opens a position of floor(cash / close) shares at that bar's
// close, the remainder staying in cash. While long, each subsequent bar is
// checked in order for stop-loss, take-profit, and sell signal, exiting at
// that bar's close on the first condition met. A position still open after
// the last bar is not force-closed; its trade record carries the last close
// as final_market_price instead of an exit.
func Run(symbol string, bars []domain.PriceBar, cfg domain.StrategyConfig) (*Output, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if err := validateBars(bars, cfg.LongWindow); err != nil {
		return nil, err
	}

	gen := NewCrossoverSignals(cfg.ShortWindow, cfg.LongWindow)

	cash := cfg.StartingAmount
	var pos *position
	var trades []domain.Trade
	snapshots := make([]domain.DailySnapshot, 0, len(bars))

	peakValue := decimal.Zero
	prevValue := decimal.Zero
	maxDrawdown := decimal.Zero
	peakClose := bars[0].Close
	lowestClose := bars[0].Close

	for i, bar := range bars {
		price := bar.Close
		sig := gen.Push(price)

		if price.GreaterThan(peakClose) {
			peakClose = price
		}
		if price.LessThan(lowestClose) {
			lowestClose = price
		}

		// Exit checks run only on bars after the entry bar; an exit bar
		// never re-enters.
		wasLong := pos != nil
		if wasLong {
			stopPrice := pos.entryPrice.Mul(one.Sub(cfg.StopLossPct))
			takePrice := pos.entryPrice.Mul(one.Add(cfg.TakeProfitPct))
			switch {
			case price.LessThanOrEqual(stopPrice):
				cash, trades = closePosition(cash, trades, pos, symbol, bars, i)
				pos = nil
			case price.GreaterThanOrEqual(takePrice):
				cash, trades = closePosition(cash, trades, pos, symbol, bars, i)
				pos = nil
			case sig == domain.SignalSell:
				cash, trades = closePosition(cash, trades, pos, symbol, bars, i)
				pos = nil
			}
		} else if sig == domain.SignalBuy {
			quantity := cash.Div(price).Floor().IntPart()
			if quantity > 0 {
				pos = &position{entryDate: i, entryPrice: price, quantity: quantity}
				cash = cash.Sub(price.Mul(decimal.NewFromInt(quantity)))
			}
		}

		// End-of-day snapshot.
		value := cash
		openCount := 0
		if pos != nil {
			value = cash.Add(price.Mul(decimal.NewFromInt(pos.quantity)))
			openCount = 1
		}
		if i == 0 || value.GreaterThan(peakValue) {
			peakValue = value
		}

		drawdown := decimal.Zero
		if peakValue.IsPositive() {
			drawdown = peakValue.Sub(value).Div(peakValue).Mul(hundred)
			if drawdown.IsNegative() {
				drawdown = decimal.Zero
			}
		}
		if drawdown.GreaterThan(maxDrawdown) {
			maxDrawdown = drawdown
		}

		dailyReturn := decimal.Zero
		if i > 0 && !prevValue.IsZero() {
			dailyReturn = value.Sub(prevValue).Div(prevValue)
		}
		prevValue = value

		snapshots = append(snapshots, domain.DailySnapshot{
			Date:                bar.Date,
			TotalPortfolioValue: value,
			CashBalance:         cash,
			DailyReturn:         dailyReturn,
			PeakPortfolioValue:  peakValue,
			Drawdown:            drawdown,
			OpenPositionsCount:  openCount,
		})
	}

	// A position surviving the last bar stays open; it is valued at the
	// final close but gets no exit.
	if pos != nil {
		finalPrice := bars[len(bars)-1].Close
		trades = append(trades, domain.Trade{
			Symbol:           symbol,
			EntryDate:        bars[pos.entryDate].Date,
			EntryPrice:       pos.entryPrice,
			Quantity:         pos.quantity,
			FinalMarketPrice: &finalPrice,
		})
	}

	closing := snapshots[len(snapshots)-1].TotalPortfolioValue
	profit := closing.Sub(cfg.StartingAmount)
	returnsPct := decimal.Zero
	if !cfg.StartingAmount.IsZero() {
		returnsPct = profit.Div(cfg.StartingAmount).Mul(hundred)
	}

	return &Output{
		Result: domain.BacktestResult{
			StockSymbol:      symbol,
			StartDate:        bars[0].Date,
			EndDate:          bars[len(bars)-1].Date,
			StopLossPct:      cfg.StopLossPct,
			TakeProfitPct:    cfg.TakeProfitPct,
			StartingAmount:   cfg.StartingAmount,
			ClosingAmount:    closing,
			TotalProfit:      profit,
			TotalReturnsPct:  returnsPct,
			PeakStockValue:   peakClose,
			LowestStockValue: lowestClose,
			MaxDrawdownPct:   maxDrawdown,
			NumberOfTrades:   len(trades),
		},
		Trades:    trades,
		Snapshots: snapshots,
	}, nil
}

// closePosition sells the whole position at bar i's close and records the
// completed trade.
func closePosition(cash decimal.Decimal, trades []domain.Trade, pos *position, symbol string, bars []domain.PriceBar, i int) (decimal.Decimal, []domain.Trade) {
	exitPrice := bars[i].Close
	exitDate := bars[i].Date
	cash = cash.Add(exitPrice.Mul(decimal.NewFromInt(pos.quantity)))
	trades = append(trades, domain.Trade{
		Symbol:     symbol,
		EntryDate:  bars[pos.entryDate].Date,
		EntryPrice: pos.entryPrice,
		Quantity:   pos.quantity,
		ExitDate:   &exitDate,
		ExitPrice:  &exitPrice,
	})
	return cash, trades
}
