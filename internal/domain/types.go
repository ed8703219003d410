// Package domain defines the core types shared across the backlab platform:
// price bars, strategy parameters, and the three outputs of a backtest run
// (summary result, trades, daily portfolio snapshots).
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Signal is a trading signal emitted by the moving-average crossover
// generator for a single bar.
type Signal int

const (
	SignalNone Signal = iota
	SignalBuy         // golden cross: short MA crossed above long MA
	SignalSell        // death cross: short MA crossed below long MA
)

// String returns a human-readable signal name.
func (s Signal) String() string {
	switch s {
	case SignalBuy:
		return "buy"
	case SignalSell:
		return "sell"
	default:
		return "none"
	}
}

// PriceBar is one daily OHLCV bar. Sequences fed to the engine must be
// strictly ascending by Date.
type PriceBar struct {
	Date   time.Time
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume int64
}

// StrategyConfig holds the parameters of one backtest run. It is immutable
// for the duration of the run.
//
// StopLossPct and TakeProfitPct are fractions, not percentages: 0.01 means
// exit when the price drops 1% below the entry price.
type StrategyConfig struct {
	ShortWindow    int
	LongWindow     int
	StopLossPct    decimal.Decimal
	TakeProfitPct  decimal.Decimal
	StartingAmount decimal.Decimal
}

// Trade is one position opened during a run: either a complete buy/sell
// cycle or a position still open when the price history ended. ExitDate and
// ExitPrice are nil if and only if the position was still open at the end;
// such trades carry FinalMarketPrice, the last bar's close used for
// valuation.
type Trade struct {
	ID               int64
	BacktestID       int64
	Symbol           string
	EntryDate        time.Time
	EntryPrice       decimal.Decimal
	Quantity         int64
	ExitDate         *time.Time
	ExitPrice        *decimal.Decimal
	FinalMarketPrice *decimal.Decimal
}

// IsOpen reports whether the position was still open at the end of the run.
func (t *Trade) IsOpen() bool {
	return t.ExitDate == nil
}

// TradeProfit computes the realised profit of a closed trade, or the
// unrealised profit of an open one valued at FinalMarketPrice.
func TradeProfit(t Trade) decimal.Decimal {
	price := decimal.Zero
	switch {
	case t.ExitPrice != nil:
		price = *t.ExitPrice
	case t.FinalMarketPrice != nil:
		price = *t.FinalMarketPrice
	}
	return price.Sub(t.EntryPrice).Mul(decimal.NewFromInt(t.Quantity))
}

// DailySnapshot captures the portfolio state at the close of one trading
// day. Exactly one snapshot is produced per input bar, and (backtest, date)
// is unique.
type DailySnapshot struct {
	BacktestID          int64
	Date                time.Time
	TotalPortfolioValue decimal.Decimal
	CashBalance         decimal.Decimal
	DailyReturn         decimal.Decimal // fraction, 0 on the first bar
	PeakPortfolioValue  decimal.Decimal // running max including today
	Drawdown            decimal.Decimal // percent off the peak, >= 0
	OpenPositionsCount  int             // 0 or 1
}

// BacktestResult is the summary of one run, derived entirely from the trade
// and snapshot sequences.
type BacktestResult struct {
	ID               int64
	StockSymbol      string
	StartDate        time.Time
	EndDate          time.Time
	StopLossPct      decimal.Decimal
	TakeProfitPct    decimal.Decimal
	StartingAmount   decimal.Decimal
	ClosingAmount    decimal.Decimal
	TotalProfit      decimal.Decimal
	TotalReturnsPct  decimal.Decimal
	PeakStockValue   decimal.Decimal // highest bar close seen
	LowestStockValue decimal.Decimal // lowest bar close seen
	MaxDrawdownPct   decimal.Decimal
	NumberOfTrades   int
	CreatedAt        time.Time
}
