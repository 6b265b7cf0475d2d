package journal

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/tradesim/backtest"
	"github.com/rustyeddy/tradesim/ledger"
	"github.com/rustyeddy/tradesim/market"
)

// Verification reports the outcome of VerifyLedger.
type Verification struct {
	RunID       string
	Trades      int
	FinalCash   decimal.Decimal
	FinalEquity decimal.Decimal
}

// VerifyLedger rebuilds the ledger of a run directory from trades.csv and
// the opening row of ledger.csv, requires the result to match ledger.csv
// byte for byte, and checks the final cash against equity_curve.csv.
func VerifyLedger(dir string) (Verification, error) {
	var v Verification
	meta, err := ReadRunMeta(filepath.Join(dir, FileRunMeta))
	if err != nil {
		return v, err
	}
	v.RunID = meta.RunID
	res, err := ReadRunResult(filepath.Join(dir, FileRunResult))
	if err != nil {
		return v, err
	}
	if res.Status != backtest.StatusSuccess {
		return v, fmt.Errorf("run %s finished with status %s; it has no ledger", meta.RunID, res.Status)
	}
	loc, err := time.LoadLocation(meta.StorageTimezone)
	if err != nil {
		return v, fmt.Errorf("storage timezone: %w", err)
	}

	stored, err := os.ReadFile(filepath.Join(dir, FileLedger))
	if err != nil {
		return v, err
	}
	ledgerRows, err := readCSV(stored)
	if err != nil {
		return v, fmt.Errorf("%s: %w", FileLedger, err)
	}
	if len(ledgerRows) < 2 || ledgerRows[1][2] != string(ledger.KindStart) {
		return v, fmt.Errorf("%s: missing start entry", FileLedger)
	}
	start, err := market.ParseTimestamp(ledgerRows[1][1])
	if err != nil {
		return v, fmt.Errorf("%s: %w", FileLedger, err)
	}
	cash, err := decimal.NewFromString(ledgerRows[1][6])
	if err != nil {
		return v, fmt.Errorf("%s: %w", FileLedger, err)
	}

	records, err := readTradeRecords(filepath.Join(dir, FileTrades))
	if err != nil {
		return v, err
	}
	v.Trades = len(records)

	opts := ledger.Options{
		EnforceMonotonicTime: len(meta.Config.Run.Symbols) == 1 && meta.Config.Ledger.StrictSingleOrderAudit,
	}
	replay, err := ledger.ReplayFromTrades(records, cash, start, opts)
	if err != nil {
		return v, err
	}
	var buf bytes.Buffer
	if err := replay.WriteCSV(&buf, loc); err != nil {
		return v, err
	}
	if !bytes.Equal(buf.Bytes(), stored) {
		return v, fmt.Errorf("%s does not match the replay of %s", FileLedger, FileTrades)
	}
	v.FinalCash = replay.FinalCash()

	v.FinalEquity, err = readFinalEquity(filepath.Join(dir, FileEquity))
	if err != nil {
		return v, err
	}
	if !v.FinalCash.Equal(v.FinalEquity) {
		return v, fmt.Errorf("ledger cash %s, curve equity %s", v.FinalCash, v.FinalEquity)
	}
	return v, nil
}

func readCSV(data []byte) ([][]string, error) {
	return csv.NewReader(bytes.NewReader(data)).ReadAll()
}

func readFile(path string) ([]map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	rows, err := readCSV(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: missing header", filepath.Base(path))
	}
	out := make([]map[string]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		m := make(map[string]string, len(row))
		for i, col := range rows[0] {
			m[col] = row[i]
		}
		out = append(out, m)
	}
	return out, nil
}

// readTradeRecords returns the ledger view of every closed trade.
func readTradeRecords(path string) ([]ledger.Record, error) {
	rows, err := readFile(path)
	if err != nil {
		return nil, err
	}
	var rs []ledger.Record
	for _, row := range rows {
		if row["status"] != string(backtest.TradeClosed) {
			continue
		}
		entry, err := market.ParseTimestamp(row["entry_time"])
		if err != nil {
			return nil, fmt.Errorf("trade %s: %w", row["trade_id"], err)
		}
		exit, err := market.ParseTimestamp(row["exit_time"])
		if err != nil {
			return nil, fmt.Errorf("trade %s: %w", row["trade_id"], err)
		}
		pnl, err := decimal.NewFromString(row["net_pnl"])
		if err != nil {
			return nil, fmt.Errorf("trade %s: %w", row["trade_id"], err)
		}
		rs = append(rs, ledger.Record{
			TradeID:   row["trade_id"],
			Symbol:    row["symbol"],
			Side:      row["side"],
			EntryTime: entry,
			ExitTime:  exit,
			NetPnL:    pnl,
			Evidence:  row["evidence_status"],
		})
	}
	return rs, nil
}

func readFinalEquity(path string) (decimal.Decimal, error) {
	rows, err := readFile(path)
	if err != nil {
		return decimal.Zero, err
	}
	if len(rows) == 0 {
		return decimal.Zero, fmt.Errorf("%s: no points", filepath.Base(path))
	}
	return decimal.NewFromString(rows[len(rows)-1]["equity"])
}
