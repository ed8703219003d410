package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"backlab/internal/domain"
)

// Compile-time interface check.
var _ RunStore = (*SQLiteStore)(nil)

const dateFormat = "2006-01-02"

// Decimal columns are stored as TEXT so values round-trip exactly.
const schema = `
CREATE TABLE IF NOT EXISTS backtest_results (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	stock_symbol       TEXT    NOT NULL,
	start_date         TEXT    NOT NULL,
	end_date           TEXT    NOT NULL,
	stop_loss_pct      TEXT    NOT NULL,
	take_profit_pct    TEXT    NOT NULL,
	starting_amount    TEXT    NOT NULL,
	closing_amount     TEXT    NOT NULL,
	total_profit       TEXT    NOT NULL,
	total_returns_pct  TEXT    NOT NULL,
	peak_stock_value   TEXT    NOT NULL,
	lowest_stock_value TEXT    NOT NULL,
	max_drawdown_pct   TEXT    NOT NULL,
	number_of_trades   INTEGER NOT NULL,
	created_at         TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	backtest_id        INTEGER NOT NULL REFERENCES backtest_results(id) ON DELETE CASCADE,
	stock_symbol       TEXT    NOT NULL,
	entry_date         TEXT    NOT NULL,
	entry_price        TEXT    NOT NULL,
	quantity           INTEGER NOT NULL,
	exit_date          TEXT,
	exit_price         TEXT,
	final_market_price TEXT
);

CREATE INDEX IF NOT EXISTS idx_trades_backtest ON trades(backtest_id);

CREATE TABLE IF NOT EXISTS daily_snapshots (
	id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	backtest_id           INTEGER NOT NULL REFERENCES backtest_results(id) ON DELETE CASCADE,
	date                  TEXT    NOT NULL,
	total_portfolio_value TEXT    NOT NULL,
	cash_balance          TEXT    NOT NULL,
	daily_return          TEXT    NOT NULL,
	peak_portfolio_value  TEXT    NOT NULL,
	drawdown              TEXT    NOT NULL,
	open_positions_count  INTEGER NOT NULL,
	UNIQUE (backtest_id, date)
);
`

// SQLiteStore implements RunStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, ensures the
// schema exists, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun stores the result with its trades and snapshots in one
// transaction. On any failure the whole run is rolled back.
func (s *SQLiteStore) SaveRun(ctx context.Context, result *domain.BacktestResult, trades []domain.Trade, snapshots []domain.DailySnapshot) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	createdAt := result.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO backtest_results (
			stock_symbol, start_date, end_date,
			stop_loss_pct, take_profit_pct, starting_amount, closing_amount,
			total_profit, total_returns_pct, peak_stock_value, lowest_stock_value,
			max_drawdown_pct, number_of_trades, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.StockSymbol,
		result.StartDate.Format(dateFormat),
		result.EndDate.Format(dateFormat),
		result.StopLossPct.String(),
		result.TakeProfitPct.String(),
		result.StartingAmount.String(),
		result.ClosingAmount.String(),
		result.TotalProfit.String(),
		result.TotalReturnsPct.String(),
		result.PeakStockValue.String(),
		result.LowestStockValue.String(),
		result.MaxDrawdownPct.String(),
		result.NumberOfTrades,
		createdAt.Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting result: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for i := range trades {
		t := &trades[i]
		var exitDate, exitPrice, finalPrice any
		if t.ExitDate != nil {
			exitDate = t.ExitDate.Format(dateFormat)
		}
		if t.ExitPrice != nil {
			exitPrice = t.ExitPrice.String()
		}
		if t.FinalMarketPrice != nil {
			finalPrice = t.FinalMarketPrice.String()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO trades (
				backtest_id, stock_symbol, entry_date, entry_price, quantity,
				exit_date, exit_price, final_market_price
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, t.Symbol, t.EntryDate.Format(dateFormat), t.EntryPrice.String(), t.Quantity,
			exitDate, exitPrice, finalPrice,
		)
		if err != nil {
			return 0, fmt.Errorf("inserting trade %d: %w", i, err)
		}
	}

	for i := range snapshots {
		sn := &snapshots[i]
		_, err := tx.ExecContext(ctx, `
			INSERT INTO daily_snapshots (
				backtest_id, date, total_portfolio_value, cash_balance,
				daily_return, peak_portfolio_value, drawdown, open_positions_count
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, sn.Date.Format(dateFormat), sn.TotalPortfolioValue.String(), sn.CashBalance.String(),
			sn.DailyReturn.String(), sn.PeakPortfolioValue.String(), sn.Drawdown.String(), sn.OpenPositionsCount,
		)
		if err != nil {
			return 0, fmt.Errorf("inserting snapshot %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

const resultColumns = `
	id, stock_symbol, start_date, end_date,
	stop_loss_pct, take_profit_pct, starting_amount, closing_amount,
	total_profit, total_returns_pct, peak_stock_value, lowest_stock_value,
	max_drawdown_pct, number_of_trades, created_at`

// GetResult retrieves a single backtest result by ID.
func (s *SQLiteStore) GetResult(ctx context.Context, id int64) (*domain.BacktestResult, error) {
	row := s.db.QueryRowContext(ctx, `SELECT`+resultColumns+` FROM backtest_results WHERE id = ?`, id)
	result, err := scanResult(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListResults returns all backtest results, newest first.
func (s *SQLiteStore) ListResults(ctx context.Context) ([]domain.BacktestResult, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT`+resultColumns+` FROM backtest_results ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.BacktestResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *r)
	}
	return results, rows.Err()
}

// DeleteRun removes a run and its trades and snapshots in one transaction.
func (s *SQLiteStore) DeleteRun(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM daily_snapshots WHERE backtest_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM trades WHERE backtest_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM backtest_results WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// ListTrades returns the trades of a run in entry order.
func (s *SQLiteStore) ListTrades(ctx context.Context, backtestID int64) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, backtest_id, stock_symbol, entry_date, entry_price, quantity,
		       exit_date, exit_price, final_market_price
		FROM trades WHERE backtest_id = ? ORDER BY id`, backtestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var (
			t                            domain.Trade
			entryDate                    string
			entryPrice                   string
			exitDate, exitPrice, finalMP sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.BacktestID, &t.Symbol, &entryDate, &entryPrice, &t.Quantity,
			&exitDate, &exitPrice, &finalMP); err != nil {
			return nil, err
		}
		if t.EntryDate, err = time.Parse(dateFormat, entryDate); err != nil {
			return nil, err
		}
		if t.EntryPrice, err = decimal.NewFromString(entryPrice); err != nil {
			return nil, err
		}
		if exitDate.Valid {
			d, err := time.Parse(dateFormat, exitDate.String)
			if err != nil {
				return nil, err
			}
			t.ExitDate = &d
		}
		if exitPrice.Valid {
			p, err := decimal.NewFromString(exitPrice.String)
			if err != nil {
				return nil, err
			}
			t.ExitPrice = &p
		}
		if finalMP.Valid {
			p, err := decimal.NewFromString(finalMP.String)
			if err != nil {
				return nil, err
			}
			t.FinalMarketPrice = &p
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// ListSnapshots returns the daily snapshots of a run in date order.
func (s *SQLiteStore) ListSnapshots(ctx context.Context, backtestID int64) ([]domain.DailySnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT backtest_id, date, total_portfolio_value, cash_balance,
		       daily_return, peak_portfolio_value, drawdown, open_positions_count
		FROM daily_snapshots WHERE backtest_id = ? ORDER BY date`, backtestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots []domain.DailySnapshot
	for rows.Next() {
		var (
			sn                               domain.DailySnapshot
			date                             string
			total, cash, ret, peak, drawdown string
		)
		if err := rows.Scan(&sn.BacktestID, &date, &total, &cash, &ret, &peak, &drawdown, &sn.OpenPositionsCount); err != nil {
			return nil, err
		}
		if sn.Date, err = time.Parse(dateFormat, date); err != nil {
			return nil, err
		}
		if sn.TotalPortfolioValue, err = decimal.NewFromString(total); err != nil {
			return nil, err
		}
		if sn.CashBalance, err = decimal.NewFromString(cash); err != nil {
			return nil, err
		}
		if sn.DailyReturn, err = decimal.NewFromString(ret); err != nil {
			return nil, err
		}
		if sn.PeakPortfolioValue, err = decimal.NewFromString(peak); err != nil {
			return nil, err
		}
		if sn.Drawdown, err = decimal.NewFromString(drawdown); err != nil {
			return nil, err
		}
		snapshots = append(snapshots, sn)
	}
	return snapshots, rows.Err()
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanResult(row scanner) (*domain.BacktestResult, error) {
	var (
		r domain.BacktestResult

		startDate, endDate, createdAt       string
		stopLoss, takeProfit, starting      string
		closing, profit, returns, peak, low string
		maxDD                               string
	)
	err := row.Scan(&r.ID, &r.StockSymbol, &startDate, &endDate,
		&stopLoss, &takeProfit, &starting, &closing,
		&profit, &returns, &peak, &low,
		&maxDD, &r.NumberOfTrades, &createdAt)
	if err != nil {
		return nil, err
	}

	if r.StartDate, err = time.Parse(dateFormat, startDate); err != nil {
		return nil, err
	}
	if r.EndDate, err = time.Parse(dateFormat, endDate); err != nil {
		return nil, err
	}
	if r.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, err
	}

	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&r.StopLossPct, stopLoss},
		{&r.TakeProfitPct, takeProfit},
		{&r.StartingAmount, starting},
		{&r.ClosingAmount, closing},
		{&r.TotalProfit, profit},
		{&r.TotalReturnsPct, returns},
		{&r.PeakStockValue, peak},
		{&r.LowestStockValue, low},
		{&r.MaxDrawdownPct, maxDD},
	} {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return nil, err
		}
	}
	return &r, nil
}
