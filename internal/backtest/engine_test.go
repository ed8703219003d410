package backtest

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"backlab/internal/domain"
)

// testBars builds a daily bar series from close prices, dates starting at
// 2024-01-01. Open/high/low mirror the close; the engine only reads closes.
func testBars(closes ...float64) []domain.PriceBar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.PriceBar, len(closes))
	for i, c := range closes {
		p := decimal.NewFromFloat(c)
		bars[i] = domain.PriceBar{
			Date:   start.AddDate(0, 0, i),
			Open:   p,
			High:   p,
			Low:    p,
			Close:  p,
			Volume: 1000,
		}
	}
	return bars
}

func testConfig() domain.StrategyConfig {
	return domain.StrategyConfig{
		ShortWindow:    2,
		LongWindow:     3,
		StopLossPct:    decimal.NewFromFloat(0.01),
		TakeProfitPct:  decimal.NewFromFloat(0.50),
		StartingAmount: decimal.NewFromInt(1000),
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.StrategyConfig)
	}{
		{"zero short window", func(c *domain.StrategyConfig) { c.ShortWindow = 0 }},
		{"negative long window", func(c *domain.StrategyConfig) { c.LongWindow = -1 }},
		{"short not below long", func(c *domain.StrategyConfig) { c.ShortWindow = 3 }},
		{"zero starting amount", func(c *domain.StrategyConfig) { c.StartingAmount = decimal.Zero }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			err := ValidateConfig(cfg)
			var cfgErr *domain.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("ValidateConfig returned %v, want ConfigError", err)
			}
		})
	}

	if err := ValidateConfig(testConfig()); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestRunRejectsBadBars(t *testing.T) {
	cfg := testConfig()

	var dataErr *domain.DataError

	if _, err := Run("AAPL", nil, cfg); !errors.As(err, &dataErr) {
		t.Errorf("empty bars: got %v, want DataError", err)
	}

	if _, err := Run("AAPL", testBars(10, 10), cfg); !errors.As(err, &dataErr) {
		t.Errorf("fewer bars than long window: got %v, want DataError", err)
	}

	bars := testBars(10, 10, 10, 10)
	bars[2].Date = bars[1].Date // duplicate date
	if _, err := Run("AAPL", bars, cfg); !errors.As(err, &dataErr) {
		t.Errorf("duplicate dates: got %v, want DataError", err)
	}
}

func TestRunSidewaysMarketNoTrades(t *testing.T) {
	bars := testBars(50, 50, 50, 50, 50, 50, 50, 50)
	out, err := Run("AAPL", bars, testConfig())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(out.Trades) != 0 {
		t.Errorf("flat closes produced %d trades, want 0", len(out.Trades))
	}
	if out.Result.NumberOfTrades != 0 {
		t.Errorf("NumberOfTrades = %d, want 0", out.Result.NumberOfTrades)
	}
	if len(out.Snapshots) != len(bars) {
		t.Fatalf("got %d snapshots, want %d", len(out.Snapshots), len(bars))
	}
	for i, s := range out.Snapshots {
		if !s.TotalPortfolioValue.Equal(decimal.NewFromInt(1000)) {
			t.Errorf("snapshot %d value = %s, want 1000", i, s.TotalPortfolioValue)
		}
		if !s.Drawdown.IsZero() {
			t.Errorf("snapshot %d drawdown = %s, want 0", i, s.Drawdown)
		}
		if !s.DailyReturn.IsZero() {
			t.Errorf("snapshot %d daily return = %s, want 0", i, s.DailyReturn)
		}
	}
	if !out.Result.TotalProfit.IsZero() {
		t.Errorf("TotalProfit = %s, want 0", out.Result.TotalProfit)
	}
}

func TestRunRisingMarketOpenPosition(t *testing.T) {
	// 60 strictly rising closes with 20/50 windows: one buy the moment both
	// averages are defined, and the position is still open at the end.
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	bars := testBars(closes...)

	cfg := domain.StrategyConfig{
		ShortWindow:    20,
		LongWindow:     50,
		StopLossPct:    decimal.NewFromFloat(0.01),
		TakeProfitPct:  decimal.NewFromFloat(0.50),
		StartingAmount: decimal.NewFromInt(10000),
	}

	out, err := Run("AAPL", bars, cfg)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(out.Trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(out.Trades))
	}
	trade := out.Trades[0]
	if !trade.IsOpen() {
		t.Fatal("trade should still be open at the end of the run")
	}
	if !trade.EntryDate.Equal(bars[49].Date) {
		t.Errorf("entry date = %s, want %s (first bar with both MAs defined)",
			trade.EntryDate.Format("2006-01-02"), bars[49].Date.Format("2006-01-02"))
	}
	if !trade.EntryPrice.Equal(decimal.NewFromInt(149)) {
		t.Errorf("entry price = %s, want 149", trade.EntryPrice)
	}
	if trade.Quantity != 67 { // floor(10000 / 149)
		t.Errorf("quantity = %d, want 67", trade.Quantity)
	}
	if trade.FinalMarketPrice == nil || !trade.FinalMarketPrice.Equal(decimal.NewFromInt(159)) {
		t.Errorf("final market price = %v, want 159 (last close)", trade.FinalMarketPrice)
	}

	// 67 shares at 159 plus 17 cash left after entry.
	wantClosing := decimal.NewFromInt(10670)
	if !out.Result.ClosingAmount.Equal(wantClosing) {
		t.Errorf("closing amount = %s, want %s", out.Result.ClosingAmount, wantClosing)
	}
	if !out.Result.TotalProfit.Equal(decimal.NewFromInt(670)) {
		t.Errorf("total profit = %s, want 670", out.Result.TotalProfit)
	}
	if out.Result.NumberOfTrades != 1 {
		t.Errorf("NumberOfTrades = %d, want 1 (open trade counts)", out.Result.NumberOfTrades)
	}
	if !out.Result.MaxDrawdownPct.IsZero() {
		t.Errorf("max drawdown = %s, want 0 in a rising market", out.Result.MaxDrawdownPct)
	}
	if !out.Result.PeakStockValue.Equal(decimal.NewFromInt(159)) {
		t.Errorf("peak stock value = %s, want 159", out.Result.PeakStockValue)
	}
	if !out.Result.LowestStockValue.Equal(decimal.NewFromInt(100)) {
		t.Errorf("lowest stock value = %s, want 100", out.Result.LowestStockValue)
	}
}

func TestRunStopLossExit(t *testing.T) {
	// Buy at 13, then the price collapses to 5, well below the 1% stop.
	bars := testBars(10, 10, 10, 13, 13, 5, 5)
	out, err := Run("AAPL", bars, testConfig())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(out.Trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(out.Trades))
	}
	trade := out.Trades[0]
	if trade.IsOpen() {
		t.Fatal("trade should be closed by the stop-loss")
	}
	if !trade.EntryPrice.Equal(decimal.NewFromInt(13)) {
		t.Errorf("entry price = %s, want 13", trade.EntryPrice)
	}
	if !trade.ExitDate.Equal(bars[5].Date) {
		t.Errorf("exit date = %s, want %s", trade.ExitDate.Format("2006-01-02"), bars[5].Date.Format("2006-01-02"))
	}
	if !trade.ExitPrice.Equal(decimal.NewFromInt(5)) {
		t.Errorf("exit price = %s, want 5 (exit at the triggering bar's close)", trade.ExitPrice)
	}
	if trade.FinalMarketPrice != nil {
		t.Errorf("closed trade carries final market price %s", trade.FinalMarketPrice)
	}

	// 76 shares bought at 13 (cash 12 left), sold at 5.
	wantClosing := decimal.NewFromInt(392)
	if !out.Result.ClosingAmount.Equal(wantClosing) {
		t.Errorf("closing amount = %s, want %s", out.Result.ClosingAmount, wantClosing)
	}

	wantProfit := domain.TradeProfit(trade)
	if !out.Result.TotalProfit.Equal(wantProfit) {
		t.Errorf("total profit = %s, want %s (sum of trade profits)", out.Result.TotalProfit, wantProfit)
	}
}

func TestRunTakeProfitExit(t *testing.T) {
	// Buy at 11, then a jump to 17 clears the 50% take-profit level of 16.5.
	bars := testBars(10, 10, 10, 11, 17, 17)
	out, err := Run("AAPL", bars, testConfig())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(out.Trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(out.Trades))
	}
	trade := out.Trades[0]
	if trade.IsOpen() {
		t.Fatal("trade should be closed by the take-profit")
	}
	if !trade.ExitDate.Equal(bars[4].Date) {
		t.Errorf("exit date = %s, want %s", trade.ExitDate.Format("2006-01-02"), bars[4].Date.Format("2006-01-02"))
	}
	if !trade.ExitPrice.Equal(decimal.NewFromInt(17)) {
		t.Errorf("exit price = %s, want 17", trade.ExitPrice)
	}

	// 90 shares at 11 (cash 10 left), sold at 17: 10 + 1530.
	if !out.Result.ClosingAmount.Equal(decimal.NewFromInt(1540)) {
		t.Errorf("closing amount = %s, want 1540", out.Result.ClosingAmount)
	}
}

func TestRunTradesAlternate(t *testing.T) {
	// Two full rally/collapse cycles. Entries and exits must alternate and
	// never overlap: each entry comes at or after the previous exit.
	bars := testBars(10, 10, 10, 13, 13, 5, 5, 5, 8, 8, 3, 3)
	out, err := Run("AAPL", bars, testConfig())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(out.Trades) < 2 {
		t.Fatalf("got %d trades, want at least 2", len(out.Trades))
	}
	for i, trade := range out.Trades {
		if i == 0 {
			continue
		}
		prev := out.Trades[i-1]
		if prev.IsOpen() {
			t.Fatalf("trade %d opened while trade %d was still open", i, i-1)
		}
		if trade.EntryDate.Before(*prev.ExitDate) {
			t.Errorf("trade %d entered %s before trade %d exited %s",
				i, trade.EntryDate.Format("2006-01-02"), i-1, prev.ExitDate.Format("2006-01-02"))
		}
		if trade.EntryDate.Equal(*prev.ExitDate) {
			t.Errorf("trade %d re-entered on the exit bar of trade %d", i, i-1)
		}
	}

	// Only the last trade may be open.
	for i, trade := range out.Trades[:len(out.Trades)-1] {
		if trade.IsOpen() {
			t.Errorf("non-final trade %d is open", i)
		}
	}
}

func TestRunSnapshotInvariants(t *testing.T) {
	bars := testBars(10, 10, 10, 13, 13, 5, 5, 5, 8, 8, 3, 3)
	out, err := Run("AAPL", bars, testConfig())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(out.Snapshots) != len(bars) {
		t.Fatalf("got %d snapshots, want one per bar (%d)", len(out.Snapshots), len(bars))
	}

	peak := decimal.Zero
	maxDD := decimal.Zero
	for i, s := range out.Snapshots {
		if !s.Date.Equal(bars[i].Date) {
			t.Errorf("snapshot %d date = %s, want %s", i, s.Date.Format("2006-01-02"), bars[i].Date.Format("2006-01-02"))
		}
		if s.Drawdown.IsNegative() {
			t.Errorf("snapshot %d drawdown %s is negative", i, s.Drawdown)
		}
		if s.TotalPortfolioValue.GreaterThan(peak) {
			peak = s.TotalPortfolioValue
		}
		if !s.PeakPortfolioValue.Equal(peak) {
			t.Errorf("snapshot %d peak = %s, want running max %s", i, s.PeakPortfolioValue, peak)
		}
		if s.OpenPositionsCount != 0 && s.OpenPositionsCount != 1 {
			t.Errorf("snapshot %d open positions = %d, want 0 or 1", i, s.OpenPositionsCount)
		}
		if s.Drawdown.GreaterThan(maxDD) {
			maxDD = s.Drawdown
		}
	}
	if !out.Result.MaxDrawdownPct.Equal(maxDD) {
		t.Errorf("MaxDrawdownPct = %s, want max snapshot drawdown %s", out.Result.MaxDrawdownPct, maxDD)
	}

	last := out.Snapshots[len(out.Snapshots)-1]
	if !out.Result.ClosingAmount.Equal(last.TotalPortfolioValue) {
		t.Errorf("ClosingAmount = %s, want last snapshot value %s", out.Result.ClosingAmount, last.TotalPortfolioValue)
	}
	if out.Snapshots[0].DailyReturn.Sign() != 0 {
		t.Errorf("first snapshot daily return = %s, want 0", out.Snapshots[0].DailyReturn)
	}
	if !out.Result.StartDate.Equal(bars[0].Date) || !out.Result.EndDate.Equal(bars[len(bars)-1].Date) {
		t.Errorf("result dates %s..%s, want %s..%s",
			out.Result.StartDate.Format("2006-01-02"), out.Result.EndDate.Format("2006-01-02"),
			bars[0].Date.Format("2006-01-02"), bars[len(bars)-1].Date.Format("2006-01-02"))
	}
}

func TestRunDeterministic(t *testing.T) {
	bars := testBars(10, 10, 10, 13, 13, 5, 5, 5, 8, 8, 3, 3)
	cfg := testConfig()

	a, err := Run("AAPL", bars, cfg)
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	b, err := Run("AAPL", bars, cfg)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	if !reflect.DeepEqual(a, b) {
		t.Error("identical inputs produced different outputs")
	}
}
