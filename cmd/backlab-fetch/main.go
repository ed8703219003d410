// One-shot tool: backfill daily bars from the Alpaca market-data API into
// the local Parquet bar cache.
//
// Usage:
//
//	go run cmd/backlab-fetch/main.go -symbols AAPL,MSFT -start 2020-01-01
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"backlab/internal/config"
	"backlab/internal/pricedata"
	"backlab/internal/store"
	"backlab/internal/util"
)

func main() {
	symbolsFlag := flag.String("symbols", "", "comma-separated stock symbols (required)")
	startFlag := flag.String("start", "2020-01-01", "first date to fetch (YYYY-MM-DD)")
	endFlag := flag.String("end", "", "last date to fetch (YYYY-MM-DD), default yesterday")
	flag.Parse()

	if *symbolsFlag == "" {
		log.Fatal("-symbols is required")
	}

	cfgPath := "config/backlab.yaml"
	if p := os.Getenv("BACKLAB_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, "text")
	util.SetDefault(logger)

	if cfg.Alpaca.APIKey == "" {
		log.Fatal("Alpaca credentials are not configured")
	}

	start, err := time.Parse("2006-01-02", *startFlag)
	if err != nil {
		log.Fatalf("invalid -start: %v", err)
	}
	end := time.Now().UTC().AddDate(0, 0, -1)
	if *endFlag != "" {
		end, err = time.Parse("2006-01-02", *endFlag)
		if err != nil {
			log.Fatalf("invalid -end: %v", err)
		}
	}

	source := pricedata.NewAlpacaSource(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL)
	cache := store.NewParquetStore(cfg.Storage.DataDir)

	ctx := context.Background()
	for _, symbol := range strings.Split(*symbolsFlag, ",") {
		symbol = strings.ToUpper(strings.TrimSpace(symbol))
		if symbol == "" {
			continue
		}

		bars, err := source.DailyBars(ctx, symbol, start, end)
		if err != nil {
			log.Fatalf("fetching %s: %v", symbol, err)
		}
		if len(bars) == 0 {
			slog.Warn("no bars returned", "symbol", symbol)
			continue
		}

		if err := cache.WriteBars(ctx, symbol, bars); err != nil {
			log.Fatalf("writing %s: %v", symbol, err)
		}
		slog.Info("cached daily bars", "symbol", symbol, "bars", len(bars),
			"from", bars[0].Date.Format("2006-01-02"),
			"to", bars[len(bars)-1].Date.Format("2006-01-02"),
		)
	}
}
