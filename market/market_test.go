package market

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bar(start time.Time, o, h, l, c float64) Bar {
	return Bar{Symbol: "SPY", Timeframe: 5 * time.Minute, Start: start, Open: o, High: h, Low: l, Close: c}
}

func TestBarValidate(t *testing.T) {
	t0 := time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		bar     Bar
		wantErr bool
	}{
		{"valid", bar(t0, 100, 101, 99, 100.5), false},
		{"open above high", bar(t0, 102, 101, 99, 100), true},
		{"close below low", bar(t0, 100, 101, 99, 98), true},
		{"low above high", bar(t0, 100, 99, 101, 100), true},
		{"zero timeframe", Bar{Symbol: "SPY", Start: t0, Open: 1, High: 1, Low: 1, Close: 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.bar.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var ce *ContractError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, CodeOHLCInvalid, ce.Code)
		})
	}
}

func TestBarValidateNaiveStart(t *testing.T) {
	b := bar(time.Date(2024, 3, 4, 9, 30, 0, 0, time.Local), 1, 1, 1, 1)
	var ne *NaiveTimestampError
	assert.ErrorAs(t, b.Validate(), &ne)
}

func TestValidateSeries(t *testing.T) {
	t0 := time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC)
	ok := []Bar{bar(t0, 1, 2, 1, 2), bar(t0.Add(5*time.Minute), 2, 3, 2, 3)}
	assert.NoError(t, ValidateSeries(ok))

	dup := []Bar{bar(t0, 1, 2, 1, 2), bar(t0, 2, 3, 2, 3)}
	var ce *ContractError
	require.ErrorAs(t, ValidateSeries(dup), &ce)
	assert.Equal(t, CodeSeriesNotMonotonic, ce.Code)
}

func TestIndexAt(t *testing.T) {
	t0 := time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC)
	bars := []Bar{bar(t0, 1, 1, 1, 1), bar(t0.Add(5*time.Minute), 1, 1, 1, 1), bar(t0.Add(15*time.Minute), 1, 1, 1, 1)}
	assert.Equal(t, 0, IndexAt(bars, t0))
	assert.Equal(t, 2, IndexAt(bars, t0.Add(15*time.Minute)))
	assert.Equal(t, -1, IndexAt(bars, t0.Add(10*time.Minute)))
}

func TestParsePrice(t *testing.T) {
	v, err := ParsePrice(" 101.25 ")
	require.NoError(t, err)
	assert.Equal(t, 101.25, v)

	v, err = ParsePrice("0")
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)

	_, err = ParsePrice("")
	assert.True(t, errors.Is(err, ErrEmptyField))

	_, err = ParsePrice("1,5")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrEmptyField))

	_, err = ParsePrice("NaN")
	assert.Error(t, err)

	p, err := ParseOptionalPrice("")
	require.NoError(t, err)
	assert.Nil(t, p)

	_, err = ParseQuantity("-1")
	assert.Error(t, err)
}

func TestParseTimestamp(t *testing.T) {
	ts, err := ParseTimestamp("2024-03-04T09:30:00-05:00")
	require.NoError(t, err)
	_, off := ts.Zone()
	assert.Equal(t, -5*3600, off)
	assert.NoError(t, CheckTimestamp(ts))

	_, err = ParseTimestamp("2024-03-04T09:30:00")
	var ne *NaiveTimestampError
	assert.ErrorAs(t, err, &ne)

	_, err = ParseTimestamp("yesterday")
	require.Error(t, err)
	assert.False(t, errors.As(err, &ne))
}

func TestParseSideAndTimeframe(t *testing.T) {
	s, err := ParseSide("BUY")
	require.NoError(t, err)
	assert.Equal(t, Long, s)
	_, err = ParseSide("")
	assert.ErrorIs(t, err, ErrEmptyField)

	d, err := ParseTimeframe("M5")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, d)
	d, err = ParseTimeframe("15m")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, d)

	str, err := TimeframeString(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "H1", str)
}
