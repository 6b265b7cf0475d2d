package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lvl(v float64) *float64 { return &v }

func TestSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		policy Policy
		plan   Plan
		equity float64
		want   float64
	}{
		{"fixed", Policy{Mode: ModeFixed, Units: 10, LotStep: 1}, Plan{Entry: 100}, 10000, 10},
		{"risk one percent", Policy{Mode: ModeRisk, RiskFraction: 0.01, LotStep: 1}, Plan{Entry: 100, Stop: lvl(99.5)}, 10000, 200},
		{"risk floored to lot", Policy{Mode: ModeRisk, RiskFraction: 0.01, LotStep: 100}, Plan{Entry: 100, Stop: lvl(99.3)}, 10000, 100},
		{"short stop above", Policy{Mode: ModeRisk, RiskFraction: 0.005, LotStep: 1}, Plan{Entry: 50, Stop: lvl(51)}, 20000, 100},
		{"rounds to zero", Policy{Mode: ModeRisk, RiskFraction: 0.001, LotStep: 100}, Plan{Entry: 100, Stop: lvl(90)}, 1000, 0},
		{"zero distance", Policy{Mode: ModeRisk, RiskFraction: 0.01, LotStep: 1}, Plan{Entry: 100, Stop: lvl(100)}, 1000, 0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Size(tt.policy, tt.plan, tt.equity)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestSizeRiskNeedsStop(t *testing.T) {
	_, err := Size(Policy{Mode: ModeRisk, RiskFraction: 0.01}, Plan{Entry: 100}, 1000)
	assert.ErrorIs(t, err, ErrNoStop)
}

func TestPolicyValidate(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())
	assert.Error(t, Policy{Mode: ModeFixed}.Validate())
	assert.Error(t, Policy{Mode: ModeRisk, RiskFraction: 2}.Validate())
	assert.Error(t, Policy{Mode: "kelly", Units: 1}.Validate())
	assert.Error(t, Policy{Mode: ModeFixed, Units: 1, LotStep: -1}.Validate())
}

func TestEvaluate(t *testing.T) {
	p := Policy{Mode: ModeFixed, Units: 100, MaxRiskFraction: 0.01, MinRR: 1.5}

	d := Evaluate(p, Plan{Entry: 100, Stop: lvl(99.5), Target: lvl(101)}, 100, 10000)
	assert.True(t, d.Allowed)
	assert.InDelta(t, 50.0, d.PlannedRisk, 1e-9)
	assert.InDelta(t, 2.0, d.PlannedRR, 1e-9)

	d = Evaluate(p, Plan{Entry: 100, Stop: lvl(98), Target: lvl(101)}, 100, 10000)
	require.False(t, d.Allowed)
	codes := []string{}
	for _, v := range d.Violations {
		codes = append(codes, v.Code)
	}
	assert.ElementsMatch(t, []string{"RISK_TOO_HIGH", "RR_TOO_LOW"}, codes)

	d = Evaluate(p, Plan{Entry: 100}, 0, 10000)
	require.Len(t, d.Violations, 1)
	assert.Equal(t, "NO_UNITS", d.Violations[0].Code)
}
