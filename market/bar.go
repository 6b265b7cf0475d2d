package market

import (
	"fmt"
	"time"
)

// Bar is one OHLCV sample. It covers [Start, Start+Timeframe).
type Bar struct {
	Symbol    string
	Timeframe time.Duration
	Start     time.Time

	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// End returns the exclusive end of the interval covered by the bar.
func (b Bar) End() time.Time {
	return b.Start.Add(b.Timeframe)
}

// Contains reports whether price p lies within [Low, High].
func (b Bar) Contains(p float64) bool {
	return p >= b.Low && p <= b.High
}

// Validate checks the OHLC invariant low <= {open, close} <= high and that
// the bar carries an explicit zone and a positive timeframe.
func (b Bar) Validate() error {
	if err := CheckTimestamp(b.Start); err != nil {
		return err
	}
	if b.Timeframe <= 0 {
		return &ContractError{
			Code:   CodeOHLCInvalid,
			Symbol: b.Symbol,
			Detail: fmt.Sprintf("bar %s: non-positive timeframe %s", b.Start.Format(time.RFC3339), b.Timeframe),
		}
	}
	if b.Low > b.High ||
		b.Open < b.Low || b.Open > b.High ||
		b.Close < b.Low || b.Close > b.High {
		return &ContractError{
			Code:   CodeOHLCInvalid,
			Symbol: b.Symbol,
			Detail: fmt.Sprintf("bar %s: o=%g h=%g l=%g c=%g",
				b.Start.Format(time.RFC3339), b.Open, b.High, b.Low, b.Close),
		}
	}
	return nil
}

// ValidateSeries checks every bar and that starts are strictly increasing
// (which also makes them unique per symbol). It returns the first violation.
func ValidateSeries(bars []Bar) error {
	for i, b := range bars {
		if err := b.Validate(); err != nil {
			return err
		}
		if i == 0 {
			continue
		}
		prev := bars[i-1]
		if b.Symbol != prev.Symbol {
			return &ContractError{
				Code:   CodeSeriesNotMonotonic,
				Symbol: b.Symbol,
				Detail: fmt.Sprintf("mixed symbols %q and %q in one series", prev.Symbol, b.Symbol),
			}
		}
		if !b.Start.After(prev.Start) {
			return &ContractError{
				Code:   CodeSeriesNotMonotonic,
				Symbol: b.Symbol,
				Detail: fmt.Sprintf("bar %s does not follow %s",
					b.Start.Format(time.RFC3339), prev.Start.Format(time.RFC3339)),
			}
		}
	}
	return nil
}

// IndexAt returns the index of the bar starting exactly at t, or -1.
// bars must be sorted by Start.
func IndexAt(bars []Bar, t time.Time) int {
	lo, hi := 0, len(bars)
	for lo < hi {
		mid := (lo + hi) / 2
		if bars[mid].Start.Before(t) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(bars) && bars[lo].Start.Equal(t) {
		return lo
	}
	return -1
}
