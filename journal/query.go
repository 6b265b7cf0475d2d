package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TradeRow is a trade as stored in the SQLite mirror.
type TradeRow struct {
	RunID          string
	TradeID        string
	IntentID       string
	Symbol         string
	Side           string
	Status         string
	Quantity       float64
	EntryTime      time.Time
	EntryPrice     float64
	ExitTime       sql.NullTime
	ExitPrice      sql.NullFloat64
	ExitReason     string
	NetPnL         decimal.Decimal
	EvidenceStatus string
}

type EquityRow struct {
	Seq         int
	Time        time.Time
	Equity      decimal.Decimal
	Drawdown    decimal.Decimal
	DrawdownPct float64
}

type RunRow struct {
	RunID       string
	Name        string
	Status      string
	Start       time.Time
	End         time.Time
	Symbols     string
	Timeframe   string
	InitialCash decimal.Decimal
	FinalEquity decimal.Decimal
	NetPnL      decimal.Decimal
	Trades      int
	Wins        int
	Losses      int
	MaxDDPct    float64
}

const tradeColumns = `run_id, trade_id, intent_id, symbol, side, status, quantity, entry_time, entry_price,
	exit_time, exit_price, exit_reason, net_pnl, evidence_status`

type scanner interface {
	Scan(dest ...any) error
}

func scanTrade(s scanner) (TradeRow, error) {
	var rec TradeRow
	var pnl string
	err := s.Scan(
		&rec.RunID, &rec.TradeID, &rec.IntentID, &rec.Symbol, &rec.Side, &rec.Status,
		&rec.Quantity, &rec.EntryTime, &rec.EntryPrice, &rec.ExitTime, &rec.ExitPrice,
		&rec.ExitReason, &pnl, &rec.EvidenceStatus,
	)
	if err != nil {
		return rec, err
	}
	rec.NetPnL, err = decimal.NewFromString(pnl)
	return rec, err
}

// GetTrade returns a single trade of a run.
func (j *SQLiteJournal) GetTrade(ctx context.Context, runID, tradeID string) (TradeRow, error) {
	row := j.db.QueryRowContext(ctx, `SELECT `+tradeColumns+`
		FROM trades
		WHERE run_id = ? AND trade_id = ?`, runID, tradeID)
	rec, err := scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return TradeRow{}, fmt.Errorf("trade %q not found", tradeID)
	}
	return rec, err
}

// ListTradesClosedBetween returns closed trades whose exit_time is within
// [start, end), across all runs in the database.
func (j *SQLiteJournal) ListTradesClosedBetween(ctx context.Context, start, end time.Time) ([]TradeRow, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT `+tradeColumns+`
		FROM trades
		WHERE exit_time >= ? AND exit_time < ?
		ORDER BY exit_time ASC, symbol ASC, trade_id ASC`, utc(start), utc(end))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRow
	for rows.Next() {
		rec, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListEquity returns the equity curve of a run in order.
func (j *SQLiteJournal) ListEquity(ctx context.Context, runID string) ([]EquityRow, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT seq, time, equity, drawdown, drawdown_pct
		FROM equity
		WHERE run_id = ?
		ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquityRow
	for rows.Next() {
		var rec EquityRow
		var eq, dd string
		if err := rows.Scan(&rec.Seq, &rec.Time, &eq, &dd, &rec.DrawdownPct); err != nil {
			return nil, err
		}
		if rec.Equity, err = decimal.NewFromString(eq); err != nil {
			return nil, err
		}
		if rec.Drawdown, err = decimal.NewFromString(dd); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (j *SQLiteJournal) GetRun(ctx context.Context, runID string) (RunRow, error) {
	var r RunRow
	var cash, final, pnl string
	err := j.db.QueryRowContext(ctx, `
		SELECT run_id, name, status, start_time, end_time, symbols, timeframe,
		       initial_cash, final_equity, net_pnl, trades, wins, losses, max_dd_pct
		FROM runs
		WHERE run_id = ?`, runID).Scan(
		&r.RunID, &r.Name, &r.Status, &r.Start, &r.End, &r.Symbols, &r.Timeframe,
		&cash, &final, &pnl, &r.Trades, &r.Wins, &r.Losses, &r.MaxDDPct,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("run %q not found", runID)
	}
	if err != nil {
		return r, err
	}
	for _, p := range []struct {
		dst *decimal.Decimal
		src string
	}{{&r.InitialCash, cash}, {&r.FinalEquity, final}, {&r.NetPnL, pnl}} {
		if *p.dst, err = decimal.NewFromString(p.src); err != nil {
			return r, err
		}
	}
	return r, nil
}
