package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"backlab/internal/domain"
)

func testBar(date time.Time, close float64) domain.PriceBar {
	c := decimal.NewFromFloat(close)
	return domain.PriceBar{
		Date:   date,
		Open:   c,
		High:   c.Add(decimal.NewFromInt(1)),
		Low:    c.Sub(decimal.NewFromInt(1)),
		Close:  c,
		Volume: 1000000,
	}
}

func TestParquetStorePath(t *testing.T) {
	ps := NewParquetStore("/data")

	got := ps.barPath("aapl", 2024)
	want := filepath.Join("/data", "daily", "AAPL", "2024.parquet")
	if got != want {
		t.Errorf("barPath mismatch:\n  got  %s\n  want %s", got, want)
	}
}

func TestParquetStoreWriteReadBars(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	bars := []domain.PriceBar{
		testBar(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), 185.5),
		testBar(time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), 186.0),
	}
	if err := ps.WriteBars(ctx, "AAPL", bars); err != nil {
		t.Fatalf("WriteBars failed: %v", err)
	}

	got, err := ps.ReadBars(ctx, "AAPL",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ReadBars failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d bars, want 2", len(got))
	}
	if !got[0].Date.Equal(bars[0].Date) {
		t.Errorf("first bar date = %s, want %s", got[0].Date, bars[0].Date)
	}
	if !got[1].Close.Equal(decimal.NewFromFloat(186.0)) {
		t.Errorf("second bar close = %s, want 186", got[1].Close)
	}
}

func TestParquetStoreReadBarsRange(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	var bars []domain.PriceBar
	for d := 1; d <= 10; d++ {
		bars = append(bars, testBar(time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC), 100+float64(d)))
	}
	if err := ps.WriteBars(ctx, "TSLA", bars); err != nil {
		t.Fatalf("WriteBars failed: %v", err)
	}

	got, err := ps.ReadBars(ctx, "TSLA",
		time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ReadBars failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d bars in range, want 3", len(got))
	}
	if got[0].Date.Day() != 3 || got[2].Date.Day() != 5 {
		t.Errorf("range bounds wrong: %s .. %s", got[0].Date, got[2].Date)
	}
}

func TestParquetStoreWriteBarsMergesByDate(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	date := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	if err := ps.WriteBars(ctx, "AAPL", []domain.PriceBar{testBar(date, 185.5)}); err != nil {
		t.Fatalf("first WriteBars failed: %v", err)
	}
	// Rewrite the same date with a corrected close, plus a new day.
	if err := ps.WriteBars(ctx, "AAPL", []domain.PriceBar{
		testBar(date, 184.0),
		testBar(date.AddDate(0, 0, 1), 186.0),
	}); err != nil {
		t.Fatalf("second WriteBars failed: %v", err)
	}

	got, err := ps.ReadBars(ctx, "AAPL", date, date.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("ReadBars failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d bars after merge, want 2", len(got))
	}
	if !got[0].Close.Equal(decimal.NewFromFloat(184.0)) {
		t.Errorf("merged close = %s, want the rewritten 184", got[0].Close)
	}
}

func TestParquetStoreWriteBarsSpansYears(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	bars := []domain.PriceBar{
		testBar(time.Date(2023, 12, 29, 0, 0, 0, 0, time.UTC), 99),
		testBar(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), 101),
	}
	if err := ps.WriteBars(ctx, "MSFT", bars); err != nil {
		t.Fatalf("WriteBars failed: %v", err)
	}

	got, err := ps.ReadBars(ctx, "MSFT",
		time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ReadBars failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d bars across years, want 2", len(got))
	}
	if got[0].Date.Year() != 2023 || got[1].Date.Year() != 2024 {
		t.Errorf("bars out of order across years: %s, %s", got[0].Date, got[1].Date)
	}
}

func TestParquetStoreListSymbols(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	symbols, err := ps.ListSymbols(ctx)
	if err != nil {
		t.Fatalf("ListSymbols on empty store failed: %v", err)
	}
	if len(symbols) != 0 {
		t.Errorf("empty store listed %v", symbols)
	}

	date := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	for _, sym := range []string{"TSLA", "AAPL"} {
		if err := ps.WriteBars(ctx, sym, []domain.PriceBar{testBar(date, 100)}); err != nil {
			t.Fatalf("WriteBars(%s) failed: %v", sym, err)
		}
	}

	symbols, err = ps.ListSymbols(ctx)
	if err != nil {
		t.Fatalf("ListSymbols failed: %v", err)
	}
	if len(symbols) != 2 || symbols[0] != "AAPL" || symbols[1] != "TSLA" {
		t.Errorf("ListSymbols = %v, want [AAPL TSLA]", symbols)
	}
}
