package journal

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/tradesim/backtest"
	"github.com/rustyeddy/tradesim/evidence"
	"github.com/rustyeddy/tradesim/intent"
	"github.com/rustyeddy/tradesim/sim"
)

var (
	orderHeader = []string{
		"intent_id", "signal_id", "symbol", "side", "kind", "entry", "stop", "target", "quantity",
		"signal_time", "valid_from", "valid_until", "oco_group", "strategy", "strategy_version", "meta",
		"status", "reason", "decided_at", "trade_id",
	}
	fillHeader = []string{
		"fill_id", "trade_id", "intent_id", "symbol", "side", "role", "time", "bar_start",
		"price", "effective_price", "quantity", "slippage_per_unit", "slippage", "fee",
		"exit_reason", "evidence",
	}
	tradeHeader = []string{
		"trade_id", "intent_id", "symbol", "side", "status", "quantity",
		"entry_fill_id", "entry_time", "entry_price", "exit_fill_id", "exit_time", "exit_price",
		"exit_reason", "gross_pnl", "costs", "net_pnl", "duration_s", "evidence_status", "evidence",
	}
	equityHeader    = []string{"time", "equity", "drawdown", "drawdown_pct"}
	rejectionHeader = []string{"signal_id", "intent_id", "symbol", "signal_time", "reason", "detail", "meta"}
)

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(f)
	if err := cw.Write(header); err != nil {
		f.Close()
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ts renders t with its offset in the storage zone. A zero time is an
// empty cell, never a naive timestamp.
func (w *Writer) ts(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(w.loc).Format(time.RFC3339Nano)
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}

func optional(v float64, ok bool) string {
	if !ok {
		return ""
	}
	return f(v)
}

// metaCell renders signal provenance as JSON with sorted keys. No provenance is
// an empty cell.
func metaCell(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func codes(cs []evidence.Code) string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = string(c)
	}
	return strings.Join(parts, "|")
}

// writeOrders writes one row per intent that reached a final state. Intents
// rejected at the engine boundary go to rejections.csv instead.
func (w *Writer) writeOrders(path string, out *backtest.Output) error {
	var rows [][]string
	for _, o := range out.Orders {
		if o.Status == sim.StatusRejected {
			continue
		}
		in := o.Intent
		stop, hasStop := in.Stop()
		target, hasTarget := in.Target()
		m, err := metaCell(in.Meta())
		if err != nil {
			return err
		}
		rows = append(rows, []string{
			in.ID(),
			in.SignalID(),
			in.Symbol(),
			in.Side().String(),
			string(in.Kind()),
			f(in.Entry()),
			optional(stop, hasStop),
			optional(target, hasTarget),
			f(in.Quantity()),
			w.ts(in.SignalTime()),
			w.ts(in.ValidFrom()),
			w.ts(in.ValidUntil()),
			in.OCOGroup(),
			in.Strategy(),
			in.StrategyVersion(),
			m,
			string(o.Status),
			o.Reason,
			w.ts(o.DecidedAt),
			o.TradeID,
		})
	}
	return writeCSV(path, orderHeader, rows)
}

func (w *Writer) writeFills(path string, out *backtest.Output) error {
	rows := make([][]string, 0, len(out.Fills))
	for _, fl := range out.Fills {
		rows = append(rows, []string{
			fl.ID,
			fl.TradeID,
			fl.IntentID,
			fl.Symbol,
			fl.Side.String(),
			string(fl.Role),
			w.ts(fl.Time),
			w.ts(fl.BarStart),
			f(fl.Price),
			f(fl.EffectivePrice()),
			f(fl.Quantity),
			f(fl.SlippagePerUnit),
			fl.Slippage.String(),
			fl.Fee.String(),
			string(fl.ExitReason),
			codes(fl.Evidence),
		})
	}
	return writeCSV(path, fillHeader, rows)
}

func (w *Writer) writeTrades(path string, out *backtest.Output) error {
	rows := make([][]string, 0, len(out.Trades))
	for _, t := range out.Trades {
		exitPrice, duration := "", ""
		if t.Closed() {
			exitPrice = f(t.ExitPrice)
			duration = strconv.FormatInt(int64(t.Duration/time.Second), 10)
		}
		rows = append(rows, []string{
			t.ID,
			t.IntentID,
			t.Symbol,
			t.Side.String(),
			string(t.Status),
			f(t.Quantity),
			t.EntryFillID,
			w.ts(t.EntryTime),
			f(t.EntryPrice),
			t.ExitFillID,
			w.ts(t.ExitTime),
			exitPrice,
			string(t.ExitReason),
			t.GrossPnL.String(),
			t.Costs.String(),
			t.NetPnL.String(),
			duration,
			string(t.EvidenceStatus),
			codes(t.Evidence),
		})
	}
	return writeCSV(path, tradeHeader, rows)
}

func (w *Writer) writeEquity(path string, out *backtest.Output) error {
	rows := make([][]string, 0, len(out.Equity))
	for _, p := range out.Equity {
		rows = append(rows, []string{
			w.ts(p.Time),
			p.Equity.String(),
			p.Drawdown.String(),
			strconv.FormatFloat(p.DrawdownPct, 'f', 4, 64),
		})
	}
	return writeCSV(path, equityHeader, rows)
}

func (w *Writer) writeLedger(path string, out *backtest.Output) error {
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := out.Ledger.WriteCSV(fh, w.loc); err != nil {
		fh.Close()
		return err
	}
	return fh.Close()
}

// writeRejections merges builder rejections with intents the engine refused.
func (w *Writer) writeRejections(path string, out *backtest.Output) error {
	rejs := append([]intent.Rejection(nil), out.Rejections...)
	for _, o := range out.Orders {
		if o.Status != sim.StatusRejected {
			continue
		}
		rejs = append(rejs, intent.Rejection{
			SignalID:   o.Intent.SignalID(),
			IntentID:   o.Intent.ID(),
			Symbol:     o.Intent.Symbol(),
			SignalTime: o.Intent.SignalTime(),
			Reason:     o.Reason,
			Detail:     o.Detail,
		})
	}
	sort.SliceStable(rejs, func(i, j int) bool {
		a, b := rejs[i], rejs[j]
		if !a.SignalTime.Equal(b.SignalTime) {
			return a.SignalTime.Before(b.SignalTime)
		}
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		return a.SignalID < b.SignalID
	})

	rows := make([][]string, 0, len(rejs))
	for _, r := range rejs {
		m, err := metaCell(r.Meta)
		if err != nil {
			return err
		}
		rows = append(rows, []string{r.SignalID, r.IntentID, r.Symbol, w.ts(r.SignalTime), r.Reason, r.Detail, m})
	}
	return writeCSV(path, rejectionHeader, rows)
}
