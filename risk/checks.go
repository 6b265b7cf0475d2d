package risk

import "fmt"

type Violation struct {
	Code string
	Msg  string
}

type Decision struct {
	Allowed    bool
	Violations []Violation

	PlannedRisk         float64
	PlannedRiskFraction float64
	PlannedRR           float64
}

func (d *Decision) add(code, msg string) {
	d.Violations = append(d.Violations, Violation{Code: code, Msg: msg})
	d.Allowed = false
}

// Evaluate applies the policy gates to a sized plan.
func Evaluate(p Policy, plan Plan, units, equity float64) Decision {
	d := Decision{Allowed: true}

	if units <= 0 {
		d.add("NO_UNITS", "units must be positive")
		return d
	}
	if plan.Stop != nil {
		d.PlannedRisk = PlannedRisk(units, plan.Entry, *plan.Stop)
		d.PlannedRiskFraction = RiskFraction(d.PlannedRisk, equity)
		if plan.Target != nil {
			d.PlannedRR = RR(plan.Entry, *plan.Stop, *plan.Target)
		}
	}

	if p.MaxRiskFraction > 0 && d.PlannedRiskFraction > p.MaxRiskFraction {
		d.add("RISK_TOO_HIGH",
			fmt.Sprintf("planned risk %.2f%% exceeds max %.2f%%",
				100*d.PlannedRiskFraction, 100*p.MaxRiskFraction))
	}
	if p.MinRR > 0 && plan.Stop != nil && plan.Target != nil && d.PlannedRR < p.MinRR {
		d.add("RR_TOO_LOW",
			fmt.Sprintf("RR %.2f below minimum %.2f", d.PlannedRR, p.MinRR))
	}
	return d
}
