package backtest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rustyeddy/tradesim/config"
	"github.com/rustyeddy/tradesim/evidence"
	"github.com/rustyeddy/tradesim/intent"
	"github.com/rustyeddy/tradesim/market"
	"github.com/rustyeddy/tradesim/pkg/id"
	"github.com/rustyeddy/tradesim/sim"
)

type memBars map[string][]market.Bar

func (m memBars) Bars(_ context.Context, symbol string, _ time.Duration, _, _ time.Time) ([]market.Bar, error) {
	return m[symbol], nil
}

type memSignals []market.Signal

func (m memSignals) Signals(_ context.Context, _, _ time.Time) ([]market.Signal, error) {
	return m, nil
}

type failingBars struct{}

func (failingBars) Bars(context.Context, string, time.Duration, time.Time, time.Time) ([]market.Bar, error) {
	return nil, errors.New("disk on fire")
}

func ny(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

func at(t *testing.T, hh, mm int) time.Time {
	return time.Date(2024, 3, 11, hh, mm, 0, 0, ny(t))
}

func testConfig(t *testing.T, symbols ...string) config.RunConfig {
	t.Helper()
	cfg := config.Default()
	cfg.Run.Start = at(t, 9, 30)
	cfg.Run.End = at(t, 16, 0)
	cfg.Run.Symbols = symbols
	return cfg
}

func bar(t *testing.T, symbol string, hh, mm int, o, h, l, c float64) market.Bar {
	return market.Bar{
		Symbol:    symbol,
		Timeframe: 5 * time.Minute,
		Start:     at(t, hh, mm),
		Open:      o,
		High:      h,
		Low:       l,
		Close:     c,
		Volume:    1000,
	}
}

// series enters a long at 100 on the 09:35 bar and hits stop and target on
// the 09:40 bar.
func series(t *testing.T, symbol string) []market.Bar {
	return []market.Bar{
		bar(t, symbol, 9, 30, 99.8, 99.9, 99.6, 99.7),
		bar(t, symbol, 9, 35, 99.9, 100.5, 99.8, 100.3),
		bar(t, symbol, 9, 40, 100.3, 101.2, 99.4, 100.0),
		bar(t, symbol, 9, 45, 100.0, 100.1, 99.9, 100.0),
	}
}

func longSignal(t *testing.T, symbol string) market.Signal {
	return market.Signal{
		Symbol:    symbol,
		Side:      market.Long,
		Timestamp: at(t, 9, 32),
		Entry:     100,
		Stop:      market.Level(99.5),
		Target:    market.Level(101),
		Strategy:  "breakout",
	}
}

func run(t *testing.T, cfg config.RunConfig, bars BarSource, sigs SignalSource) (*Output, error) {
	t.Helper()
	r, err := NewRunner(cfg, bars, sigs, nil)
	require.NoError(t, err)
	out, err := r.Run(context.Background())
	require.NotNil(t, out)
	return out, err
}

func TestRunEndToEnd(t *testing.T) {
	cfg := testConfig(t, "SPY")
	out, err := run(t, cfg, memBars{"SPY": series(t, "SPY")}, memSignals{longSignal(t, "SPY")})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, out.Result.Status)
	assert.NotEmpty(t, out.RunID)

	require.Len(t, out.Intents, 1)
	in := out.Intents[0]
	assert.True(t, in.ValidFrom().Equal(at(t, 9, 35)))
	assert.True(t, in.ValidUntil().Equal(at(t, 16, 0)))

	require.Len(t, out.Fills, 2)
	entry, exit := out.Fills[0], out.Fills[1]
	assert.Equal(t, sim.RoleEntry, entry.Role)
	assert.Equal(t, 100.0, entry.Price)
	assert.True(t, entry.Time.Equal(at(t, 9, 35)))
	assert.Equal(t, []evidence.Code{evidence.EarliestTouchOK}, entry.Evidence)

	assert.Equal(t, sim.RoleExit, exit.Role)
	assert.Equal(t, 99.5, exit.Price)
	assert.Equal(t, sim.ExitStopLoss, exit.ExitReason)
	assert.Contains(t, exit.Evidence, evidence.SameBarTie)

	require.Len(t, out.Trades, 1)
	tr := out.Trades[0]
	assert.True(t, tr.NetPnL.Equal(decimal.RequireFromString("-0.5")), tr.NetPnL.String())
	assert.Equal(t, evidence.StatusWarn, tr.EvidenceStatus)

	require.Len(t, out.Equity, 2)
	assert.True(t, out.Equity[0].Time.Equal(cfg.Run.Start))
	assert.True(t, FinalEquity(out.Equity).Equal(decimal.RequireFromString("99999.5")))
	assert.True(t, out.Ledger.FinalCash().Equal(FinalEquity(out.Equity)))
	assert.Len(t, out.Ledger.Entries(), 2)

	require.Len(t, out.Orders, 1)
	assert.Equal(t, sim.StatusFilled, out.Orders[0].Status)
	assert.Equal(t, 1, out.Summary.Trades)
}

func TestZeroSignalsGivesFlatCurve(t *testing.T) {
	cfg := testConfig(t, "SPY")
	out, err := run(t, cfg, memBars{}, memSignals{})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, out.Result.Status)

	require.Len(t, out.Equity, 1)
	assert.True(t, out.Equity[0].Time.Equal(cfg.Run.End))
	assert.True(t, out.Equity[0].Equity.Equal(cfg.InitialCash()))
	assert.Len(t, out.Ledger.Entries(), 1)
	assert.Empty(t, out.Fills)
}

func TestRunIsDeterministic(t *testing.T) {
	cfg := testConfig(t, "SPY", "QQQ", "IWM")
	cfg.Run.Workers = 3
	bars := memBars{"SPY": series(t, "SPY"), "QQQ": series(t, "QQQ"), "IWM": series(t, "IWM")}
	sigs := memSignals{longSignal(t, "QQQ"), longSignal(t, "SPY"), longSignal(t, "IWM")}

	a, err := run(t, cfg, bars, sigs)
	require.NoError(t, err)
	b, err := run(t, cfg, bars, sigs)
	require.NoError(t, err)

	assert.Equal(t, a.RunID, b.RunID)
	require.Len(t, a.Fills, 6)
	require.Len(t, b.Fills, 6)
	for i := range a.Fills {
		assert.Equal(t, a.Fills[i].ID, b.Fills[i].ID)
	}
	// canonical order: time, then symbol, exits before entries
	assert.Equal(t, []string{"IWM", "QQQ", "SPY"},
		[]string{a.Fills[0].Symbol, a.Fills[1].Symbol, a.Fills[2].Symbol})

	ab, err := a.Ledger.Bytes()
	require.NoError(t, err)
	bb, err := b.Ledger.Bytes()
	require.NoError(t, err)
	assert.Equal(t, ab, bb)
	assert.Len(t, a.Ledger.Entries(), 4)
}

func TestPreconditions(t *testing.T) {
	t.Run("no symbols", func(t *testing.T) {
		out, err := run(t, testConfig(t), memBars{}, memSignals{})
		var pe *PreconditionError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, StatusFailedPrecondition, out.Result.Status)
		assert.Equal(t, ReasonNoSymbols, out.Result.Reason)
	})

	t.Run("signals without bars", func(t *testing.T) {
		out, err := run(t, testConfig(t, "SPY"), memBars{}, memSignals{longSignal(t, "SPY")})
		var pe *PreconditionError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, StatusFailedPrecondition, out.Result.Status)
		assert.Equal(t, ReasonInsufficientCoverage, out.Result.Reason)
		assert.Equal(t, "SPY", out.Result.Details["symbol"])
		assert.Empty(t, out.Intents, "simulation never started")
	})

	t.Run("min coverage", func(t *testing.T) {
		cfg := testConfig(t, "SPY")
		cfg.Data.MinCoverage = 0.5
		out, err := run(t, cfg, memBars{"SPY": series(t, "SPY")}, memSignals{longSignal(t, "SPY")})
		require.Error(t, err)
		assert.Equal(t, ReasonInsufficientCoverage, out.Result.Reason)
		assert.Equal(t, "78", out.Result.Details["expected"])
		assert.Equal(t, "4", out.Result.Details["bars"])
	})
}

func TestStrictAndLenientContracts(t *testing.T) {
	premarket := append([]market.Bar{bar(t, "SPY", 9, 0, 99, 99.5, 98.5, 99)}, series(t, "SPY")...)

	cfg := testConfig(t, "SPY")
	cfg.Run.Start = at(t, 8, 0)

	out, err := run(t, cfg, memBars{"SPY": premarket}, memSignals{})
	var ce *market.ContractError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, StatusError, out.Result.Status)
	assert.Equal(t, market.CodeRTHViolation, out.Result.ErrorID)

	cfg.Run.Mode = config.ModeLenient
	core, logs := observer.New(zapcore.WarnLevel)
	r, err := NewRunner(cfg, memBars{"SPY": premarket}, memSignals{}, zap.New(core))
	require.NoError(t, err)
	out, err = r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, out.Result.Status)
	require.Len(t, out.Issues, 1)
	assert.Equal(t, market.CodeRTHViolation, out.Issues[0].Code)
	assert.Equal(t, "1", out.Result.Details["contract_issues"])
	assert.Equal(t, 1, logs.FilterMessage("contract violation downgraded").Len())
}

func TestNonMonotonicSeries(t *testing.T) {
	bars := series(t, "SPY")
	bars[1], bars[2] = bars[2], bars[1]

	out, err := run(t, testConfig(t, "SPY"), memBars{"SPY": bars}, memSignals{})
	require.Error(t, err)
	assert.Equal(t, market.CodeSeriesNotMonotonic, out.Result.ErrorID)

	cfg := testConfig(t, "SPY")
	cfg.Run.Mode = config.ModeLenient
	out, err = run(t, cfg, memBars{"SPY": bars}, memSignals{longSignal(t, "SPY")})
	require.NoError(t, err)
	assert.Len(t, out.Fills, 2, "series was re-sorted before the walk")
}

func TestTimeframeMismatch(t *testing.T) {
	bars := series(t, "SPY")
	odd := bar(t, "SPY", 9, 50, 100.0, 100.1, 99.9, 100.0)
	odd.Timeframe = time.Minute
	bars = append(bars, odd)

	out, err := run(t, testConfig(t, "SPY"), memBars{"SPY": bars}, memSignals{})
	var ce *market.ContractError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, market.CodeTimeframeMismatch, ce.Code)
	assert.Equal(t, market.CodeTimeframeMismatch, out.Result.ErrorID)

	cfg := testConfig(t, "SPY")
	cfg.Run.Mode = config.ModeLenient
	out, err = run(t, cfg, memBars{"SPY": bars}, memSignals{longSignal(t, "SPY")})
	require.NoError(t, err)
	require.Len(t, out.Issues, 1)
	assert.Equal(t, market.CodeTimeframeMismatch, out.Issues[0].Code)
	assert.Len(t, out.Fills, 2)
}

func TestUnnamedConfigStillGetsRunID(t *testing.T) {
	cfg := testConfig(t, "SPY")
	cfg.Run.Start = time.Time{}

	out, err := run(t, cfg, memBars{}, memSignals{})
	var ie *InternalError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, ErrIDConfig, out.Result.ErrorID)
	assert.True(t, strings.HasPrefix(out.RunID, id.PrefixInvalidRun), out.RunID)
	assert.Equal(t, out.RunID, out.Result.RunID)

	again, _ := run(t, cfg, memBars{}, memSignals{})
	assert.Equal(t, out.RunID, again.RunID)
}

func TestSignalsRoutedOrRejected(t *testing.T) {
	cfg := testConfig(t, "SPY")
	late := longSignal(t, "SPY")
	late.Timestamp = at(t, 16, 5)

	out, err := run(t, cfg, memBars{"SPY": series(t, "SPY")},
		memSignals{longSignal(t, "TSLA"), late, longSignal(t, "SPY")})
	require.NoError(t, err)

	require.Len(t, out.Rejections, 2)
	reasons := []string{out.Rejections[0].Reason, out.Rejections[1].Reason}
	assert.ElementsMatch(t, []string{intent.ReasonSymbolNotConfigured, intent.ReasonOutsideRunWindow}, reasons)
	assert.Len(t, out.Intents, 1)
}

func TestNaiveSignalAbortsRun(t *testing.T) {
	sig := longSignal(t, "SPY")
	sig.Timestamp = time.Date(2024, 3, 11, 9, 32, 0, 0, time.Local)

	out, err := run(t, testConfig(t, "SPY"), memBars{"SPY": series(t, "SPY")}, memSignals{sig})
	var naive *market.NaiveTimestampError
	require.ErrorAs(t, err, &naive)
	assert.Equal(t, StatusError, out.Result.Status)
	assert.Equal(t, market.CodeNaiveTimestamp, out.Result.ErrorID)
}

func TestDataLoadFailure(t *testing.T) {
	out, err := run(t, testConfig(t, "SPY"), failingBars{}, memSignals{})
	var ie *InternalError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, ErrIDDataLoad, ie.ID)
	assert.Equal(t, "SPY", out.Result.Details["symbol"])
}

func TestResultFor(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  RunStatus
		reason  string
		errorID string
	}{
		{"nil", nil, StatusSuccess, "", ""},
		{"precondition", &PreconditionError{Reason: ReasonNoSymbols}, StatusFailedPrecondition, ReasonNoSymbols, ""},
		{"contract", &market.ContractError{Code: market.CodeOHLCInvalid}, StatusError, "", market.CodeOHLCInvalid},
		{"internal", &InternalError{ID: ErrIDSimPanic, Symbol: "SPY"}, StatusError, "", ErrIDSimPanic},
		{"wrapped internal", errors.Join(errors.New("ctx"), &InternalError{ID: ErrIDLedgerMismatch}), StatusError, "", ErrIDLedgerMismatch},
		{"other", errors.New("boom"), StatusError, "", ErrIDInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ResultFor("run-1", tt.err)
			assert.Equal(t, "run-1", res.RunID)
			assert.Equal(t, tt.status, res.Status)
			assert.Equal(t, tt.reason, res.Reason)
			assert.Equal(t, tt.errorID, res.ErrorID)
		})
	}
}
