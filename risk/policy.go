package risk

import (
	"fmt"
	"math"
)

type Mode string

const (
	// ModeFixed trades a constant number of units.
	ModeFixed Mode = "fixed"
	// ModeRisk sizes so that a stop-out loses RiskFraction of equity.
	ModeRisk Mode = "risk"
)

type Policy struct {
	Mode Mode `json:"mode" yaml:"mode" mapstructure:"mode"`

	Units        float64 `json:"units" yaml:"units" mapstructure:"units"`                         // fixed mode
	RiskFraction float64 `json:"risk_fraction" yaml:"risk_fraction" mapstructure:"risk_fraction"` // 0.01
	LotStep      float64 `json:"lot_step" yaml:"lot_step" mapstructure:"lot_step"`                // 1 for shares

	// Optional gates; zero disables.
	MaxRiskFraction float64 `json:"max_risk_fraction" yaml:"max_risk_fraction" mapstructure:"max_risk_fraction"`
	MinRR           float64 `json:"min_rr" yaml:"min_rr" mapstructure:"min_rr"`
}

func DefaultPolicy() Policy {
	return Policy{Mode: ModeFixed, Units: 1, LotStep: 1}
}

func (p Policy) Validate() error {
	bad := func(v float64) bool { return v < 0 || math.IsNaN(v) || math.IsInf(v, 0) }
	switch p.Mode {
	case ModeFixed:
		if p.Units <= 0 || bad(p.Units) {
			return fmt.Errorf("sizing: fixed mode needs units > 0, got %g", p.Units)
		}
	case ModeRisk:
		if p.RiskFraction <= 0 || p.RiskFraction > 1 || bad(p.RiskFraction) {
			return fmt.Errorf("sizing: risk_fraction must be in (0, 1], got %g", p.RiskFraction)
		}
	default:
		return fmt.Errorf("sizing: unknown mode %q", p.Mode)
	}
	if bad(p.LotStep) || bad(p.MaxRiskFraction) || bad(p.MinRR) {
		return fmt.Errorf("sizing: lot_step, max_risk_fraction and min_rr must be finite and non-negative")
	}
	return nil
}
