package httpapi

import (
	"github.com/shopspring/decimal"

	"backlab/internal/domain"
)

// RunBacktestRequest is the body of POST /api/backtests. Numeric fields are
// pointers so an absent field falls back to the configured defaults.
type RunBacktestRequest struct {
	StockSymbol    string           `json:"stock_symbol"`
	StartDate      string           `json:"start_date"` // YYYY-MM-DD
	EndDate        string           `json:"end_date"`   // YYYY-MM-DD
	ShortWindow    *int             `json:"short_window,omitempty"`
	LongWindow     *int             `json:"long_window,omitempty"`
	StopLossPct    *decimal.Decimal `json:"stop_loss_pct,omitempty"`
	TakeProfitPct  *decimal.Decimal `json:"take_profit_pct,omitempty"`
	StartingAmount *decimal.Decimal `json:"starting_amount,omitempty"`
}

// BacktestJSON is the wire form of a backtest result.
type BacktestJSON struct {
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

// TradeJSON is the wire form of a trade, with profit and is_open computed
// server-side so the dashboard never recalculates.
type TradeJSON struct {
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

// SnapshotJSON is the wire form of a daily portfolio snapshot.
type SnapshotJSON struct {
	Date                string          `json:"date"`
	TotalPortfolioValue decimal.Decimal `json:"total_portfolio_value"`
	CashBalance         decimal.Decimal `json:"cash_balance"`
	DailyReturn         decimal.Decimal `json:"daily_return"`
	PeakPortfolioValue  decimal.Decimal `json:"peak_portfolio_value"`
	Drawdown            decimal.Decimal `json:"drawdown"`
	OpenPositionsCount  int             `json:"open_positions_count"`
}

// SymbolsResponse lists the symbols available in the local bar cache.
type SymbolsResponse struct {
	Symbols []string `json:"symbols"`
}

const dateFormat = "2006-01-02"

func convertResult(r *domain.BacktestResult) BacktestJSON {
	return BacktestJSON{
		ID:               r.ID,
		StockSymbol:      r.StockSymbol,
		StartDate:        r.StartDate.Format(dateFormat),
		EndDate:          r.EndDate.Format(dateFormat),
		StopLossPct:      r.StopLossPct,
		TakeProfitPct:    r.TakeProfitPct,
		StartingAmount:   r.StartingAmount,
		ClosingAmount:    r.ClosingAmount,
		TotalProfit:      r.TotalProfit,
		TotalReturnsPct:  r.TotalReturnsPct,
		PeakStockValue:   r.PeakStockValue,
		LowestStockValue: r.LowestStockValue,
		MaxDrawdownPct:   r.MaxDrawdownPct,
		NumberOfTrades:   r.NumberOfTrades,
		CreatedAt:        r.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

func convertTrade(t *domain.Trade) TradeJSON {
	j := TradeJSON{
		ID:               t.ID,
		BacktestID:       t.BacktestID,
		StockSymbol:      t.Symbol,
		EntryDate:        t.EntryDate.Format(dateFormat),
		EntryPrice:       t.EntryPrice,
		Quantity:         t.Quantity,
		ExitPrice:        t.ExitPrice,
		FinalMarketPrice: t.FinalMarketPrice,
		Profit:           domain.TradeProfit(*t),
		IsOpen:           t.IsOpen(),
	}
	if t.ExitDate != nil {
		d := t.ExitDate.Format(dateFormat)
		j.ExitDate = &d
	}
	return j
}

func convertSnapshot(s *domain.DailySnapshot) SnapshotJSON {
	return SnapshotJSON{
		Date:                s.Date.Format(dateFormat),
		TotalPortfolioValue: s.TotalPortfolioValue,
		CashBalance:         s.CashBalance,
		DailyReturn:         s.DailyReturn,
		PeakPortfolioValue:  s.PeakPortfolioValue,
		Drawdown:            s.Drawdown,
		OpenPositionsCount:  s.OpenPositionsCount,
	}
}
