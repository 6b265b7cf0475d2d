package backtest

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/tradesim/evidence"
	"github.com/rustyeddy/tradesim/ledger"
	"github.com/rustyeddy/tradesim/market"
	"github.com/rustyeddy/tradesim/sim"
)

var t0 = time.Date(2024, 3, 11, 13, 30, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func fill(tradeID, symbol string, side market.Side, role sim.Role, min int, price, qty float64, fee string) sim.Fill {
	return sim.Fill{
		ID:         "fil_" + tradeID + "_" + string(role),
		IntentID:   "ord_" + tradeID,
		TradeID:    tradeID,
		Symbol:     symbol,
		Side:       side,
		Role:       role,
		Time:       t0.Add(time.Duration(min) * time.Minute),
		BarStart:   t0.Add(time.Duration(min) * time.Minute),
		Price:      price,
		Quantity:   qty,
		Fee:        dec(fee),
		Slippage:   decimal.Zero,
		ExitReason: sim.ExitNone,
		Evidence:   []evidence.Code{evidence.EarliestTouchOK},
	}
}

func roundTrip(tradeID, symbol string, side market.Side, entryMin, exitMin int, entry, exit, qty float64) []sim.Fill {
	in := fill(tradeID, symbol, side, sim.RoleEntry, entryMin, entry, qty, "0")
	out := fill(tradeID, symbol, side, sim.RoleExit, exitMin, exit, qty, "0")
	out.ExitReason = sim.ExitTakeProfit
	return []sim.Fill{in, out}
}

func classifier() *evidence.Classifier { return evidence.NewClassifier(nil, false) }

func TestBuildTradesPnL(t *testing.T) {
	entry := fill("trd_1", "SPY", market.Long, sim.RoleEntry, 5, 100, 10, "1")
	entry.Slippage = dec("0.5")
	exit := fill("trd_1", "SPY", market.Long, sim.RoleExit, 20, 102, 10, "1")
	exit.ExitReason = sim.ExitTakeProfit

	trades, err := BuildTrades([]sim.Fill{exit, entry}, classifier())
	require.NoError(t, err)
	require.Len(t, trades, 1)

	tr := trades[0]
	assert.Equal(t, TradeClosed, tr.Status)
	assert.True(t, tr.GrossPnL.Equal(dec("20")), tr.GrossPnL.String())
	assert.True(t, tr.Costs.Equal(dec("2.5")), tr.Costs.String())
	assert.True(t, tr.NetPnL.Equal(dec("17.5")), tr.NetPnL.String())
	assert.Equal(t, 15*time.Minute, tr.Duration)
	assert.Equal(t, sim.ExitTakeProfit, tr.ExitReason)
	assert.Equal(t, evidence.StatusPass, tr.EvidenceStatus)
}

func TestBuildTradesShortSide(t *testing.T) {
	fs := roundTrip("trd_s", "QQQ", market.Short, 0, 10, 50, 48.5, 4)
	trades, err := BuildTrades(fs, classifier())
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.True(t, trades[0].NetPnL.Equal(dec("6")), trades[0].NetPnL.String())
}

func TestBuildTradesOpenPosition(t *testing.T) {
	entry := fill("trd_o", "SPY", market.Long, sim.RoleEntry, 5, 100, 1, "0")
	trades, err := BuildTrades([]sim.Fill{entry}, classifier())
	require.NoError(t, err)
	require.Len(t, trades, 1)

	tr := trades[0]
	assert.Equal(t, TradeOpen, tr.Status)
	assert.False(t, tr.Closed())
	assert.Contains(t, tr.Evidence, evidence.OpenPosition)
	assert.Equal(t, evidence.StatusWarn, tr.EvidenceStatus)
	assert.True(t, tr.NetPnL.IsZero())
	assert.Empty(t, Records(trades))
}

func TestBuildTradesRejectsOrphans(t *testing.T) {
	exit := fill("trd_x", "SPY", market.Long, sim.RoleExit, 5, 100, 1, "0")
	_, err := BuildTrades([]sim.Fill{exit}, classifier())
	assert.Error(t, err)

	entry := fill("trd_x", "SPY", market.Long, sim.RoleEntry, 0, 100, 1, "0")
	_, err = BuildTrades([]sim.Fill{entry, entry}, classifier())
	assert.Error(t, err)
}

func TestBuildTradesUnknownEvidence(t *testing.T) {
	fs := roundTrip("trd_u", "SPY", market.Long, 0, 5, 100, 101, 1)
	fs[1].Evidence = []evidence.Code{"MADE_UP"}
	_, err := BuildTrades(fs, classifier())
	var ce *market.ContractError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, market.CodeUnknownEvidenceCode, ce.Code)
}

func sampleTrades(t *testing.T) []Trade {
	t.Helper()
	var fs []sim.Fill
	fs = append(fs, roundTrip("trd_a", "SPY", market.Long, 0, 30, 100, 101, 10)...)   // +10 at 30m
	fs = append(fs, roundTrip("trd_b", "QQQ", market.Short, 5, 20, 50, 52, 10)...)    // -20 at 20m
	fs = append(fs, fill("trd_c", "IWM", market.Long, sim.RoleEntry, 25, 20, 5, "0")) // open
	trades, err := BuildTrades(fs, classifier())
	require.NoError(t, err)
	return trades
}

func TestBuildEquity(t *testing.T) {
	trades := sampleTrades(t)
	curve := BuildEquity(trades, dec("1000"), t0, t0.Add(6*time.Hour))

	require.Len(t, curve, 3)
	assert.True(t, curve[0].Time.Equal(t0))
	assert.True(t, curve[0].Equity.Equal(dec("1000")))

	assert.True(t, curve[1].Time.Equal(t0.Add(20*time.Minute)))
	assert.True(t, curve[1].Equity.Equal(dec("980")))
	assert.True(t, curve[1].Drawdown.Equal(dec("20")))
	assert.InDelta(t, 2.0, curve[1].DrawdownPct, 1e-9)

	assert.True(t, curve[2].Equity.Equal(dec("990")))
	assert.InDelta(t, 1.0, curve[2].DrawdownPct, 1e-9)
}

func TestZeroTradeCurveIsOneFlatPoint(t *testing.T) {
	end := t0.Add(6*time.Hour + 30*time.Minute)
	last := t0.Add(6 * time.Hour)

	curve := BuildEquity(nil, dec("5000"), t0, Fallback(end, last, t0))
	require.Len(t, curve, 1)
	assert.True(t, curve[0].Time.Equal(end))
	assert.True(t, curve[0].Equity.Equal(dec("5000")))

	assert.True(t, Fallback(time.Time{}, last, t0).Equal(last))
	assert.True(t, Fallback(time.Time{}, time.Time{}, t0).Equal(t0))
}

func TestLedgerReplayMatchesEquity(t *testing.T) {
	trades := sampleTrades(t)
	curve := BuildEquity(trades, dec("1000"), t0, t0)

	rs := Records(trades)
	reversed := make([]ledger.Record, len(rs))
	for i, r := range rs {
		reversed[len(rs)-1-i] = r
	}
	l, err := ledger.ReplayFromTrades(reversed, dec("1000"), t0, ledger.Options{})
	require.NoError(t, err)
	assert.True(t, l.FinalCash().Equal(FinalEquity(curve)))
	assert.NoError(t, reconcile("run", l, trades, curve))
}

func TestSummarize(t *testing.T) {
	trades := sampleTrades(t)
	curve := BuildEquity(trades, dec("1000"), t0, t0)
	s := Summarize(trades, curve)

	assert.Equal(t, 2, s.Trades)
	assert.Equal(t, 1, s.Open)
	assert.Equal(t, 1, s.Wins)
	assert.Equal(t, 1, s.Losses)
	assert.InDelta(t, 50.0, s.WinRate, 1e-9)
	assert.InDelta(t, 0.5, s.ProfitFactor, 1e-9)
	assert.InDelta(t, -1.0, s.ReturnPct, 1e-9)
	assert.InDelta(t, 2.0, s.MaxDrawdownPct, 1e-9)
	assert.True(t, s.NetPnL.Equal(dec("-10")))
}
