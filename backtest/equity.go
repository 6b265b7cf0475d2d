package backtest

import (
	"time"

	"github.com/shopspring/decimal"
)

// EquityPoint is one sample of the realized equity curve.
type EquityPoint struct {
	Time        time.Time
	Equity      decimal.Decimal
	Drawdown    decimal.Decimal // peak equity minus equity
	DrawdownPct float64         // drawdown as a percentage of the peak
}

// Fallback picks the timestamp of a flat curve: the requested end, else the
// last data timestamp, else the run start.
func Fallback(requestedEnd, lastData, start time.Time) time.Time {
	switch {
	case !requestedEnd.IsZero():
		return requestedEnd
	case !lastData.IsZero():
		return lastData
	default:
		return start
	}
}

// BuildEquity walks closed trades in exit order and applies their net P&L
// to running cash. The curve opens with (start, initialCash). Without any
// closed trade it is exactly one point at fallback.
func BuildEquity(trades []Trade, initialCash decimal.Decimal, start, fallback time.Time) []EquityPoint {
	closed := ClosedTrades(trades)
	if len(closed) == 0 {
		return []EquityPoint{{Time: fallback, Equity: initialCash, Drawdown: decimal.Zero}}
	}

	curve := make([]EquityPoint, 0, len(closed)+1)
	curve = append(curve, EquityPoint{Time: start, Equity: initialCash, Drawdown: decimal.Zero})

	equity, peak := initialCash, initialCash
	for _, t := range closed {
		equity = equity.Add(t.NetPnL)
		if equity.GreaterThan(peak) {
			peak = equity
		}
		dd := peak.Sub(equity)
		var pct float64
		if peak.IsPositive() {
			pct, _ = dd.Div(peak).Mul(decimal.NewFromInt(100)).Float64()
		}
		curve = append(curve, EquityPoint{Time: t.ExitTime, Equity: equity, Drawdown: dd, DrawdownPct: pct})
	}
	return curve
}

// FinalEquity is the equity of the last point.
func FinalEquity(curve []EquityPoint) decimal.Decimal {
	if len(curve) == 0 {
		return decimal.Zero
	}
	return curve[len(curve)-1].Equity
}
