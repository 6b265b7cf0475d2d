package id

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalIDIsStable(t *testing.T) {
	ts := time.Date(2024, 3, 11, 9, 29, 0, 0, time.FixedZone("EDT", -4*3600))
	stop := 99.5

	a := SignalID("run-1", "SPY", ts, "long", 100, &stop, nil)
	b := SignalID("run-1", "SPY", ts.UTC(), "long", 100, &stop, nil)
	assert.Equal(t, a, b, "same instant in another zone must hash identically")
	assert.True(t, strings.HasPrefix(a, PrefixSignal))
	assert.Len(t, a, len(PrefixSignal)+32)

	c := SignalID("run-1", "SPY", ts, "short", 100, &stop, nil)
	assert.NotEqual(t, a, c)

	d := SignalID("run-1", "SPY", ts, "long", 100, nil, &stop)
	assert.NotEqual(t, a, d, "stop and target positions are distinct")
}

func TestLineage(t *testing.T) {
	t0 := time.Date(2024, 3, 11, 13, 30, 0, 0, time.UTC)
	sig := SignalID("r", "SPY", t0, "long", 100, nil, nil)
	ord := OrderID(sig, t0, t0.Add(30*time.Minute), 100)
	trd := TradeID(ord, t0.Add(5*time.Minute))
	entry := FillID(trd, "entry", t0.Add(5*time.Minute))
	exit := FillID(trd, "exit", t0.Add(10*time.Minute))

	assert.True(t, strings.HasPrefix(ord, PrefixOrder))
	assert.True(t, strings.HasPrefix(trd, PrefixTrade))
	assert.True(t, strings.HasPrefix(entry, PrefixFill))
	assert.NotEqual(t, entry, exit)
	assert.Equal(t, trd, TradeID(ord, t0.Add(5*time.Minute)))
}

func TestFloatCanonical(t *testing.T) {
	assert.Equal(t, "100", Float(100))
	assert.Equal(t, "99.5", Float(99.5))
	assert.Equal(t, "0.1", Float(0.1))
}

func TestRunIDDeterministic(t *testing.T) {
	start := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)

	a, err := RunID(start, []byte("cfg-a"))
	require.NoError(t, err)
	b, err := RunID(start, []byte("cfg-a"))
	require.NoError(t, err)
	c, err := RunID(start, []byte("cfg-b"))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 26)
	// same millisecond prefix: ULIDs sort by start time
	assert.Equal(t, a[:10], c[:10])

	_, err = RunID(time.Time{}, nil)
	assert.Error(t, err)
}

func TestInvalidRunID(t *testing.T) {
	a := InvalidRunID([]byte("run: {}"))
	assert.True(t, strings.HasPrefix(a, PrefixInvalidRun))
	assert.Equal(t, a, InvalidRunID([]byte("run: {}")))
	assert.NotEqual(t, a, InvalidRunID([]byte("run: {name: x}")))
}
