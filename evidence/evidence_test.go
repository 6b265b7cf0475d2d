package evidence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/tradesim/calendar"
	"github.com/rustyeddy/tradesim/market"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name  string
		codes []Code
		want  Status
	}{
		{"empty", nil, StatusPass},
		{"info only", []Code{EarliestTouchOK, GapFill}, StatusPass},
		{"warn", []Code{EarliestTouchOK, SameBarTie}, StatusWarn},
		{"fail wins", []Code{SameBarTie, PriceOutsideBar, EarliestTouchOK}, StatusFail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := StatusOf(tt.codes)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUnknownCodeIsContractViolation(t *testing.T) {
	err := Validate([]Code{EarliestTouchOK, "LOOKS_FINE"})
	var ce *market.ContractError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, market.CodeUnknownEvidenceCode, ce.Code)

	_, err = StatusOf([]Code{"LOOKS_FINE"})
	assert.ErrorAs(t, err, &ce)
}

func TestVocabularyIsClosedAndSorted(t *testing.T) {
	v := Vocabulary()
	assert.Len(t, v, 12)
	assert.NoError(t, Validate(v))
	for i := 1; i < len(v); i++ {
		assert.Less(t, string(v[i-1]), string(v[i]))
	}
}

func TestMerge(t *testing.T) {
	got := Merge([]Code{SameBarTie, EarliestTouchOK}, []Code{EarliestTouchOK, GapFill})
	assert.Equal(t, []Code{EarliestTouchOK, GapFill, SameBarTie}, got)
}

type fixture struct {
	cal  *calendar.Calendar
	bars []market.Bar
	t0   time.Time
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	cal, err := calendar.New(calendar.Config{Timezone: "America/New_York"})
	require.NoError(t, err)
	t0 := time.Date(2024, 3, 11, 9, 30, 0, 0, cal.Location())
	mk := func(i int, o, h, l, c float64) market.Bar {
		return market.Bar{Symbol: "SPY", Timeframe: 5 * time.Minute, Start: t0.Add(time.Duration(i) * 5 * time.Minute),
			Open: o, High: h, Low: l, Close: c}
	}
	return fixture{
		cal: cal,
		t0:  t0,
		bars: []market.Bar{
			mk(0, 99.5, 99.9, 99.2, 99.8),
			mk(1, 99.8, 100.5, 99.8, 100.2),
			mk(2, 100.2, 100.6, 100.0, 100.4),
			mk(3, 100.4, 101.2, 99.4, 100.0),
		},
	}
}

func (f fixture) entry(barIdx int, price float64) FillProof {
	return FillProof{
		Symbol: "SPY", Side: market.Long, Role: RoleEntry,
		Time: f.bars[barIdx].Start, BarStart: f.bars[barIdx].Start, Price: price,
		Entry:      100,
		SignalTime: f.t0.Add(-time.Minute), ValidFrom: f.t0, ValidUntil: f.t0.Add(30 * time.Minute),
	}
}

func TestClassifyEntry(t *testing.T) {
	f := newFixture(t)
	c := NewClassifier(f.cal, false)

	codes := c.ClassifyFill(f.entry(1, 100), f.bars)
	assert.Equal(t, []Code{EarliestTouchOK}, codes)

	// bar 2 also touches 100 but bar 1 did first
	codes = c.ClassifyFill(f.entry(2, 100.2), f.bars)
	assert.Contains(t, codes, EarliestTouchViolation)

	p := f.entry(1, 101)
	codes = c.ClassifyFill(p, f.bars)
	assert.Contains(t, codes, PriceOutsideBar)

	p = f.entry(1, 100)
	p.SignalTime = f.bars[1].Start
	codes = c.ClassifyFill(p, f.bars)
	assert.Contains(t, codes, SuspectedLookahead)

	p = f.entry(1, 100)
	p.BarStart = f.t0.Add(-time.Hour)
	assert.Equal(t, []Code{NoIntradayBars}, c.ClassifyFill(p, f.bars))
}

func TestClassifyExit(t *testing.T) {
	f := newFixture(t)
	c := NewClassifier(f.cal, false)

	exit := FillProof{
		Symbol: "SPY", Side: market.Long, Role: RoleExit,
		Time: f.bars[3].Start, BarStart: f.bars[3].Start, Price: 99.5,
		Stop: market.Level(99.5), Target: market.Level(101), EntryBar: f.bars[1].Start,
		Tie: true,
	}
	codes := c.ClassifyFill(exit, f.bars)
	assert.Equal(t, []Code{EarliestTouchOK, SameBarTie}, codes)

	st, err := StatusOf(codes)
	require.NoError(t, err)
	assert.Equal(t, StatusWarn, st)

	// exiting on the entry bar is not allowed for stop/target exits
	exit.BarStart = f.bars[1].Start
	exit.Time = f.bars[1].Start
	exit.Price = 100
	assert.Contains(t, c.ClassifyFill(exit, f.bars), SuspectedLookahead)
}

func TestClassifyRTH(t *testing.T) {
	f := newFixture(t)
	pre := market.Bar{Symbol: "SPY", Timeframe: 5 * time.Minute, Start: f.t0.Add(-30 * time.Minute),
		Open: 100, High: 100, Low: 100, Close: 100}
	bars := append([]market.Bar{pre}, f.bars...)

	p := FillProof{Symbol: "SPY", Side: market.Long, Role: RoleEntry, Time: pre.Start, BarStart: pre.Start,
		Price: 100, Entry: 100, SignalTime: pre.Start.Add(-time.Minute), ValidFrom: pre.Start, ValidUntil: f.t0}

	codes := NewClassifier(f.cal, false).ClassifyFill(p, bars)
	assert.Contains(t, codes, RTHViolation)
	assert.Contains(t, codes, SessionViolation)

	codes = NewClassifier(f.cal, true).ClassifyFill(p, bars)
	assert.NotContains(t, codes, RTHViolation)
}

func TestClassifyTrade(t *testing.T) {
	f := newFixture(t)
	c := NewClassifier(f.cal, false)

	codes, st, err := c.ClassifyTrade([]Code{EarliestTouchOK}, nil, true)
	require.NoError(t, err)
	assert.Equal(t, []Code{EarliestTouchOK, OpenPosition}, codes)
	assert.Equal(t, StatusWarn, st)
}
