package backtest

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/tradesim/evidence"
	"github.com/rustyeddy/tradesim/ledger"
	"github.com/rustyeddy/tradesim/market"
	"github.com/rustyeddy/tradesim/sim"
)

type TradeStatus string

const (
	TradeClosed TradeStatus = "closed"
	TradeOpen   TradeStatus = "open"
)

// Trade pairs an entry fill with its exit fill. An open trade has no exit
// and no realized P&L.
type Trade struct {
	ID       string
	IntentID string
	Symbol   string
	Side     market.Side
	Quantity float64

	EntryFillID string
	EntryTime   time.Time
	EntryPrice  float64

	ExitFillID string
	ExitTime   time.Time
	ExitPrice  float64
	ExitReason sim.ExitReason

	Status TradeStatus

	GrossPnL decimal.Decimal
	Costs    decimal.Decimal
	NetPnL   decimal.Decimal

	Evidence       []evidence.Code
	EvidenceStatus evidence.Status
	Duration       time.Duration
}

func (t Trade) Closed() bool { return t.Status == TradeClosed }

// Record is the ledger's view of a closed trade.
func (t Trade) Record() ledger.Record {
	return ledger.Record{
		TradeID:   t.ID,
		Symbol:    t.Symbol,
		Side:      t.Side.String(),
		EntryTime: t.EntryTime,
		ExitTime:  t.ExitTime,
		NetPnL:    t.NetPnL,
		Evidence:  string(t.EvidenceStatus),
	}
}

// BuildTrades joins fills on their trade ID. Fills must already carry
// their evidence codes. Trades come back sorted by (entry time, symbol, ID).
func BuildTrades(fills []sim.Fill, c *evidence.Classifier) ([]Trade, error) {
	type pair struct {
		entry *sim.Fill
		exit  *sim.Fill
	}
	byID := map[string]*pair{}
	var order []string
	for i := range fills {
		f := &fills[i]
		p, ok := byID[f.TradeID]
		if !ok {
			p = &pair{}
			byID[f.TradeID] = p
			order = append(order, f.TradeID)
		}
		switch f.Role {
		case sim.RoleEntry:
			if p.entry != nil {
				return nil, fmt.Errorf("trade %s: duplicate entry fill %s", f.TradeID, f.ID)
			}
			p.entry = f
		case sim.RoleExit:
			if p.exit != nil {
				return nil, fmt.Errorf("trade %s: duplicate exit fill %s", f.TradeID, f.ID)
			}
			p.exit = f
		default:
			return nil, fmt.Errorf("fill %s: unknown role %q", f.ID, f.Role)
		}
	}

	trades := make([]Trade, 0, len(order))
	for _, tid := range order {
		p := byID[tid]
		if p.entry == nil {
			return nil, fmt.Errorf("trade %s: exit fill without entry", tid)
		}
		t, err := buildTrade(p.entry, p.exit, c)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	sort.SliceStable(trades, func(i, j int) bool {
		a, b := trades[i], trades[j]
		if !a.EntryTime.Equal(b.EntryTime) {
			return a.EntryTime.Before(b.EntryTime)
		}
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		return a.ID < b.ID
	})
	return trades, nil
}

func buildTrade(entry, exit *sim.Fill, c *evidence.Classifier) (Trade, error) {
	t := Trade{
		ID:          entry.TradeID,
		IntentID:    entry.IntentID,
		Symbol:      entry.Symbol,
		Side:        entry.Side,
		Quantity:    entry.Quantity,
		EntryFillID: entry.ID,
		EntryTime:   entry.Time,
		EntryPrice:  entry.Price,
		ExitReason:  sim.ExitNone,
		Status:      TradeOpen,
		Costs:       entry.Cost(),
	}

	var exitCodes []evidence.Code
	if exit != nil {
		if exit.Quantity != entry.Quantity {
			return Trade{}, fmt.Errorf("trade %s: entry quantity %g, exit quantity %g", t.ID, entry.Quantity, exit.Quantity)
		}
		t.Status = TradeClosed
		t.ExitFillID = exit.ID
		t.ExitTime = exit.Time
		t.ExitPrice = exit.Price
		t.ExitReason = exit.ExitReason
		t.Duration = exit.Time.Sub(entry.Time)
		t.Costs = t.Costs.Add(exit.Cost())

		move := decimal.NewFromFloat(exit.Price).Sub(decimal.NewFromFloat(entry.Price))
		signed := decimal.NewFromFloat(entry.Quantity * entry.Side.Sign())
		t.GrossPnL = move.Mul(signed).Round(8)
		t.NetPnL = t.GrossPnL.Sub(t.Costs)
		exitCodes = exit.Evidence
	}

	codes, st, err := c.ClassifyTrade(entry.Evidence, exitCodes, exit == nil)
	if err != nil {
		return Trade{}, fmt.Errorf("trade %s: %w", t.ID, err)
	}
	t.Evidence = codes
	t.EvidenceStatus = st
	return t, nil
}

// ClosedTrades filters trades down to the closed ones, in the ledger's
// (exit time, symbol, side, entry time, ID) order.
func ClosedTrades(trades []Trade) []Trade {
	var out []Trade
	for _, t := range trades {
		if t.Closed() {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.ExitTime.Equal(b.ExitTime) {
			return a.ExitTime.Before(b.ExitTime)
		}
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		if sa, sb := a.Side.String(), b.Side.String(); sa != sb {
			return sa < sb
		}
		if !a.EntryTime.Equal(b.EntryTime) {
			return a.EntryTime.Before(b.EntryTime)
		}
		return a.ID < b.ID
	})
	return out
}

// Records converts closed trades to ledger records.
func Records(trades []Trade) []ledger.Record {
	var out []ledger.Record
	for _, t := range trades {
		if t.Closed() {
			out = append(out, t.Record())
		}
	}
	return out
}
