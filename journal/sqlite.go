package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rustyeddy/tradesim/backtest"
)

// SQLiteJournal mirrors run results into a queryable SQLite database. The
// CSV artifacts stay authoritative.
type SQLiteJournal struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteJournal{db: db}, nil
}

func writeSQLite(path string, out *backtest.Output) error {
	j, err := NewSQLite(path)
	if err != nil {
		return err
	}
	if err := j.Mirror(context.Background(), out); err != nil {
		j.Close()
		return err
	}
	return j.Close()
}

// Mirror stores the run, its trades and its equity curve in one transaction.
// Mirroring the same run again replaces its rows.
func (j *SQLiteJournal) Mirror(ctx context.Context, out *backtest.Output) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"runs", "trades", "equity"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE run_id = ?", out.RunID); err != nil {
			return err
		}
	}

	cfg := out.Config
	s := out.Summary
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs
		(run_id, name, status, start_time, end_time, symbols, timeframe,
		 initial_cash, final_equity, net_pnl, trades, wins, losses, max_dd_pct)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		out.RunID, cfg.Run.Name, string(out.Result.Status),
		cfg.Run.Start.UTC(), cfg.Run.End.UTC(), strings.Join(cfg.Run.Symbols, ","), cfg.Run.Timeframe,
		cfg.InitialCash().String(), backtest.FinalEquity(out.Equity).String(), s.NetPnL.String(),
		s.Trades, s.Wins, s.Losses, s.MaxDrawdownPct,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, t := range out.Trades {
		if err := recordTrade(ctx, tx, out.RunID, t); err != nil {
			return fmt.Errorf("insert trade %s: %w", t.ID, err)
		}
	}
	for i, p := range out.Equity {
		if err := recordEquity(ctx, tx, out.RunID, i+1, p); err != nil {
			return fmt.Errorf("insert equity point %d: %w", i+1, err)
		}
	}
	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (j *SQLiteJournal) RecordTrade(ctx context.Context, runID string, t backtest.Trade) error {
	return recordTrade(ctx, j.db, runID, t)
}

func (j *SQLiteJournal) RecordEquity(ctx context.Context, runID string, seq int, p backtest.EquityPoint) error {
	return recordEquity(ctx, j.db, runID, seq, p)
}

func recordTrade(ctx context.Context, db execer, runID string, t backtest.Trade) error {
	var exitTime sql.NullTime
	var exitPrice sql.NullFloat64
	if t.Closed() {
		exitTime = sql.NullTime{Time: t.ExitTime.UTC(), Valid: true}
		exitPrice = sql.NullFloat64{Float64: t.ExitPrice, Valid: true}
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO trades
		(run_id, trade_id, intent_id, symbol, side, status, quantity, entry_time, entry_price,
		 exit_time, exit_price, exit_reason, net_pnl, evidence_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, t.ID, t.IntentID, t.Symbol, t.Side.String(), string(t.Status), t.Quantity,
		t.EntryTime.UTC(), t.EntryPrice, exitTime, exitPrice, string(t.ExitReason),
		t.NetPnL.String(), string(t.EvidenceStatus),
	)
	return err
}

func recordEquity(ctx context.Context, db execer, runID string, seq int, p backtest.EquityPoint) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO equity (run_id, seq, time, equity, drawdown, drawdown_pct)
		VALUES (?, ?, ?, ?, ?, ?)`,
		runID, seq, p.Time.UTC(), p.Equity.String(), p.Drawdown.String(), p.DrawdownPct,
	)
	return err
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

// utc normalizes query bounds to the stored representation.
func utc(t time.Time) time.Time { return t.UTC() }
