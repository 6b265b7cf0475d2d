// Package ledger keeps an append-only cash and equity trail for a run. It is
// maintained independently of the trade-derived equity curve so the two can
// be reconciled.
package ledger

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindStart        Kind = "start"
	KindTradeApplied Kind = "trade_applied"
)

// ErrTimeRegression is returned by Apply when monotonic time is enforced
// and an event is older than the previous one.
var ErrTimeRegression = errors.New("ledger: event time precedes previous entry")

// Record is the ledger's view of a closed trade.
type Record struct {
	TradeID   string
	Symbol    string
	Side      string
	EntryTime time.Time
	ExitTime  time.Time
	NetPnL    decimal.Decimal
	Evidence  string // trade evidence status, kept as the audit reference
}

type Entry struct {
	Seq          int64
	Time         time.Time
	Kind         Kind
	Symbol       string
	TradeID      string
	CashBefore   decimal.Decimal
	CashAfter    decimal.Decimal
	EquityBefore decimal.Decimal
	EquityAfter  decimal.Decimal
	Evidence     string
}

type Options struct {
	// EnforceMonotonicTime rejects events older than the last entry. Leave
	// it off for multi-symbol runs, where exits interleave.
	EnforceMonotonicTime bool
}

type Ledger struct {
	opts    Options
	entries []Entry
	cash    decimal.Decimal
}

// New opens a ledger with its start entry.
func New(initialCash decimal.Decimal, start time.Time, opts Options) (*Ledger, error) {
	if start.IsZero() {
		return nil, errors.New("ledger: start time is required")
	}
	if initialCash.IsNegative() {
		return nil, fmt.Errorf("ledger: negative initial cash %s", initialCash)
	}
	l := &Ledger{opts: opts, cash: initialCash}
	l.entries = append(l.entries, Entry{
		Seq:          1,
		Time:         start,
		Kind:         KindStart,
		CashBefore:   initialCash,
		CashAfter:    initialCash,
		EquityBefore: initialCash,
		EquityAfter:  initialCash,
	})
	return l, nil
}

// Apply appends the realized result of one closed trade. Equity tracks cash
// because only realized P&L is booked.
func (l *Ledger) Apply(r Record) error {
	if r.ExitTime.IsZero() {
		return fmt.Errorf("ledger: trade %s has no exit time", r.TradeID)
	}
	last := l.entries[len(l.entries)-1]
	if l.opts.EnforceMonotonicTime && r.ExitTime.Before(last.Time) {
		return fmt.Errorf("trade %s at %s after %s: %w", r.TradeID,
			r.ExitTime.Format(time.RFC3339), last.Time.Format(time.RFC3339), ErrTimeRegression)
	}
	after := l.cash.Add(r.NetPnL)
	l.entries = append(l.entries, Entry{
		Seq:          last.Seq + 1,
		Time:         r.ExitTime,
		Kind:         KindTradeApplied,
		Symbol:       r.Symbol,
		TradeID:      r.TradeID,
		CashBefore:   l.cash,
		CashAfter:    after,
		EquityBefore: l.cash,
		EquityAfter:  after,
		Evidence:     r.Evidence,
	})
	l.cash = after
	return nil
}

// Entries returns a copy of the trail.
func (l *Ledger) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *Ledger) FinalCash() decimal.Decimal { return l.cash }

// InitialCash is the cash of the start entry.
func (l *Ledger) InitialCash() decimal.Decimal { return l.entries[0].CashAfter }

var header = []string{
	"seq", "time", "kind", "symbol", "trade_id",
	"cash_before", "cash_after", "equity_before", "equity_after", "evidence",
}

// WriteCSV serializes the ledger with timestamps rendered in loc.
func (l *Ledger) WriteCSV(w io.Writer, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, e := range l.entries {
		if err := cw.Write([]string{
			strconv.FormatInt(e.Seq, 10),
			e.Time.In(loc).Format(time.RFC3339Nano),
			string(e.Kind),
			e.Symbol,
			e.TradeID,
			e.CashBefore.String(),
			e.CashAfter.String(),
			e.EquityBefore.String(),
			e.EquityAfter.String(),
			e.Evidence,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Bytes is the canonical serialization (UTC timestamps) used for
// byte-for-byte comparison.
func (l *Ledger) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := l.WriteCSV(&buf, time.UTC); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SortRecords orders records by (exit_ts, symbol, side, entry_ts, trade_id).
func SortRecords(rs []Record) {
	sort.SliceStable(rs, func(i, j int) bool {
		a, b := rs[i], rs[j]
		if !a.ExitTime.Equal(b.ExitTime) {
			return a.ExitTime.Before(b.ExitTime)
		}
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		if a.Side != b.Side {
			return a.Side < b.Side
		}
		if !a.EntryTime.Equal(b.EntryTime) {
			return a.EntryTime.Before(b.EntryTime)
		}
		return a.TradeID < b.TradeID
	})
}

// ReplayFromTrades rebuilds a ledger from the trade list alone. The input
// order does not matter; the slice is not modified.
func ReplayFromTrades(rs []Record, initialCash decimal.Decimal, start time.Time, opts Options) (*Ledger, error) {
	sorted := make([]Record, len(rs))
	copy(sorted, rs)
	SortRecords(sorted)

	l, err := New(initialCash, start, opts)
	if err != nil {
		return nil, err
	}
	for _, r := range sorted {
		if err := l.Apply(r); err != nil {
			return nil, fmt.Errorf("replay: %w", err)
		}
	}
	return l, nil
}

// MismatchError reports where a ledger and its replay diverge.
type MismatchError struct {
	Seq  int64
	Want string
	Got  string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("ledger mismatch at seq %d: replay %q, ledger %q", e.Seq, e.Want, e.Got)
}

// Verify replays rs from l's opening state and requires a byte-identical
// serialization.
func Verify(l *Ledger, rs []Record) error {
	start := l.entries[0]
	replay, err := ReplayFromTrades(rs, start.CashAfter, start.Time, l.opts)
	if err != nil {
		return err
	}
	got, err := l.Bytes()
	if err != nil {
		return err
	}
	want, err := replay.Bytes()
	if err != nil {
		return err
	}
	if bytes.Equal(got, want) {
		return nil
	}
	return firstMismatch(replay.entries, l.entries)
}

func firstMismatch(want, got []Entry) error {
	n := len(want)
	if len(got) > n {
		n = len(got)
	}
	row := func(es []Entry, i int) string {
		if i >= len(es) {
			return "<missing>"
		}
		e := es[i]
		return fmt.Sprintf("%s %s %s cash=%s", e.Time.UTC().Format(time.RFC3339Nano), e.Kind, e.TradeID, e.CashAfter)
	}
	for i := 0; i < n; i++ {
		w, g := row(want, i), row(got, i)
		if w != g {
			return &MismatchError{Seq: int64(i + 1), Want: w, Got: g}
		}
	}
	return &MismatchError{Seq: 0, Want: "identical rows", Got: "different bytes"}
}
