// One-shot tool: run the SMA-crossover backtest for one or more symbols over
// a date range and print a summary per symbol, optionally persisting each
// run to the SQLite store.
//
// Usage:
//
//	go run cmd/backlab-run/main.go -symbols AAPL,GOOGL -start 2023-01-01 -end 2023-12-31 -save
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"backlab/internal/backtest"
	"backlab/internal/config"
	"backlab/internal/pricedata"
	"backlab/internal/store"
	"backlab/internal/util"
)

func main() {
	symbolsFlag := flag.String("symbols", "AAPL,GOOGL,MSFT,TSLA,AMZN", "comma-separated stock symbols")
	startFlag := flag.String("start", "2023-01-01", "backtest start date (YYYY-MM-DD)")
	endFlag := flag.String("end", "2023-12-31", "backtest end date (YYYY-MM-DD)")
	saveFlag := flag.Bool("save", false, "persist each run to the SQLite store")
	flag.Parse()

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

	start, err := time.Parse("2006-01-02", *startFlag)
	if err != nil {
		log.Fatalf("invalid -start: %v", err)
	}
	end, err := time.Parse("2006-01-02", *endFlag)
	if err != nil {
		log.Fatalf("invalid -end: %v", err)
	}

	bars := store.NewParquetStore(cfg.Storage.DataDir)
	var remote pricedata.Source
	if cfg.Alpaca.APIKey != "" {
		remote = pricedata.NewAlpacaSource(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL)
	}
	source := pricedata.NewCachedSource(bars, remote)

	var runs *store.SQLiteStore
	if *saveFlag {
		runs, err = store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			log.Fatalf("failed to open run store: %v", err)
		}
		defer runs.Close()
	}

	strategyCfg := cfg.Strategy.Defaults()
	ctx := context.Background()
	failed := 0

	for _, symbol := range strings.Split(*symbolsFlag, ",") {
		symbol = strings.ToUpper(strings.TrimSpace(symbol))
		if symbol == "" {
			continue
		}

		history, err := source.DailyBars(ctx, symbol, start, end)
		if err != nil {
			slog.Error("fetching bars failed", "symbol", symbol, "error", err)
			failed++
			continue
		}

		out, err := backtest.Run(symbol, history, strategyCfg)
		if err != nil {
			slog.Error("backtest failed", "symbol", symbol, "error", err)
			failed++
			continue
		}

		fmt.Printf("%-6s  profit $%s  returns %s%%  trades %d  max drawdown %s%%\n",
			symbol,
			out.Result.TotalProfit.StringFixed(2),
			out.Result.TotalReturnsPct.StringFixed(2),
			out.Result.NumberOfTrades,
			out.Result.MaxDrawdownPct.StringFixed(2),
		)

		if runs != nil {
			id, err := runs.SaveRun(ctx, &out.Result, out.Trades, out.Snapshots)
			if err != nil {
				slog.Error("persisting run failed", "symbol", symbol, "error", err)
				failed++
				continue
			}
			slog.Info("run saved", "symbol", symbol, "id", id)
		}
	}

	if failed > 0 {
		os.Exit(1)
	}
}
