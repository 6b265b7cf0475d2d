package risk

import (
	"errors"
	"math"
)

// ErrNoStop is returned when risk sizing is asked to size a setup
// without a protective stop.
var ErrNoStop = errors.New("risk sizing requires a stop level")

type Plan struct {
	Entry  float64
	Stop   *float64
	Target *float64
}

// Size returns the position size for plan under p, given account equity.
// The result is floored to the lot step and may be zero.
func Size(p Policy, plan Plan, equity float64) (float64, error) {
	var units float64
	switch p.Mode {
	case ModeRisk:
		if plan.Stop == nil {
			return 0, ErrNoStop
		}
		dist := math.Abs(plan.Entry - *plan.Stop)
		if dist == 0 {
			return 0, nil
		}
		units = equity * p.RiskFraction / dist
	default:
		units = p.Units
	}
	return floorToStep(units, p.LotStep), nil
}
