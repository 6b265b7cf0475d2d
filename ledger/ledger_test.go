package ledger

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2024, 3, 11, 13, 30, 0, 0, time.UTC)

func rec(id, sym, side string, entryMin, exitMin int, pnl string) Record {
	return Record{
		TradeID:   id,
		Symbol:    sym,
		Side:      side,
		EntryTime: start.Add(time.Duration(entryMin) * time.Minute),
		ExitTime:  start.Add(time.Duration(exitMin) * time.Minute),
		NetPnL:    decimal.RequireFromString(pnl),
		Evidence:  "PASS",
	}
}

func sample() []Record {
	return []Record{
		rec("trd_c", "SPY", "long", 5, 40, "-12.5"),
		rec("trd_a", "QQQ", "short", 0, 10, "30.25"),
		rec("trd_b", "SPY", "long", 5, 10, "7"),
		rec("trd_d", "AAPL", "long", 15, 40, "0.1"),
	}
}

func TestNewWritesStartEntry(t *testing.T) {
	l, err := New(decimal.NewFromInt(10000), start, Options{})
	require.NoError(t, err)

	es := l.Entries()
	require.Len(t, es, 1)
	assert.Equal(t, int64(1), es[0].Seq)
	assert.Equal(t, KindStart, es[0].Kind)
	assert.True(t, l.FinalCash().Equal(decimal.NewFromInt(10000)))

	_, err = New(decimal.NewFromInt(1), time.Time{}, Options{})
	assert.Error(t, err)
}

func TestApplySequencesAndCash(t *testing.T) {
	l, err := New(decimal.NewFromInt(1000), start, Options{})
	require.NoError(t, err)

	rs := sample()
	SortRecords(rs)
	for _, r := range rs {
		require.NoError(t, l.Apply(r))
	}

	es := l.Entries()
	require.Len(t, es, 5)
	for i := 1; i < len(es); i++ {
		assert.Equal(t, es[i-1].Seq+1, es[i].Seq)
		assert.True(t, es[i].CashBefore.Equal(es[i-1].CashAfter))
	}
	assert.Equal(t, "1024.85", l.FinalCash().String())
	// (10m, QQQ) sorts before (10m, SPY); (40m, AAPL) before (40m, SPY)
	assert.Equal(t, []string{"", "trd_a", "trd_b", "trd_d", "trd_c"},
		[]string{es[0].TradeID, es[1].TradeID, es[2].TradeID, es[3].TradeID, es[4].TradeID})
}

func TestMonotonicTimeOptional(t *testing.T) {
	late := rec("trd_late", "SPY", "long", 0, 30, "1")
	early := rec("trd_early", "QQQ", "long", 0, 20, "1")

	l, err := New(decimal.NewFromInt(100), start, Options{})
	require.NoError(t, err)
	require.NoError(t, l.Apply(late))
	assert.NoError(t, l.Apply(early), "off by default")

	strict, err := New(decimal.NewFromInt(100), start, Options{EnforceMonotonicTime: true})
	require.NoError(t, err)
	require.NoError(t, strict.Apply(late))
	assert.True(t, errors.Is(strict.Apply(early), ErrTimeRegression))
}

func TestReplayIsOrderIndependent(t *testing.T) {
	rs := sample()
	a, err := ReplayFromTrades(rs, decimal.NewFromInt(1000), start, Options{})
	require.NoError(t, err)

	reversed := make([]Record, len(rs))
	for i, r := range rs {
		reversed[len(rs)-1-i] = r
	}
	b, err := ReplayFromTrades(reversed, decimal.NewFromInt(1000), start, Options{})
	require.NoError(t, err)

	ab, err := a.Bytes()
	require.NoError(t, err)
	bb, err := b.Bytes()
	require.NoError(t, err)
	assert.Equal(t, ab, bb)
	assert.Equal(t, "trd_c", rs[0].TradeID, "input slice untouched")
}

func TestVerify(t *testing.T) {
	rs := sample()
	l, err := ReplayFromTrades(rs, decimal.NewFromInt(1000), start, Options{})
	require.NoError(t, err)
	assert.NoError(t, Verify(l, rs))

	tampered := append([]Record(nil), rs...)
	tampered[0].NetPnL = decimal.RequireFromString("-13")
	err = Verify(l, tampered)
	var me *MismatchError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, int64(5), me.Seq)
}

func TestWriteCSVUsesLocation(t *testing.T) {
	l, err := New(decimal.NewFromInt(5), start, Options{})
	require.NoError(t, err)
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, l.WriteCSV(&buf, ny))
	assert.Contains(t, buf.String(), "2024-03-11T09:30:00-04:00")
	assert.Contains(t, buf.String(), "seq,time,kind")
}
