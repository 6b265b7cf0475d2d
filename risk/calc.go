package risk

import "math"

// PlannedRisk is the cash lost if a position of units is stopped out.
func PlannedRisk(units, entry, stop float64) float64 {
	return units * math.Abs(entry-stop)
}

// RR is the reward/risk ratio of a setup. Zero risk yields 0.
func RR(entry, stop, target float64) float64 {
	risk := math.Abs(entry - stop)
	if risk == 0 {
		return 0
	}
	return math.Abs(target-entry) / risk
}

// RiskFraction expresses planned risk as a fraction of equity.
func RiskFraction(plannedRisk, equity float64) float64 {
	if equity <= 0 {
		return math.Inf(1)
	}
	return plannedRisk / equity
}

// floorToStep rounds units down to a whole number of lots.
func floorToStep(units, step float64) float64 {
	if step <= 0 {
		return units
	}
	return math.Floor(units/step+1e-9) * step
}
