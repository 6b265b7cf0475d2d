// Package backtest orchestrates a run: it loads and validates data, fans
// the per-symbol pipeline out over workers, merges the results in a fixed
// order and reconciles the trade-derived equity curve against the ledger.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rustyeddy/tradesim/calendar"
	"github.com/rustyeddy/tradesim/config"
	"github.com/rustyeddy/tradesim/evidence"
	"github.com/rustyeddy/tradesim/intent"
	"github.com/rustyeddy/tradesim/ledger"
	"github.com/rustyeddy/tradesim/market"
	"github.com/rustyeddy/tradesim/pkg/id"
	"github.com/rustyeddy/tradesim/sim"
)

// BarSource yields the bar series of one symbol over [from, to).
type BarSource interface {
	Bars(ctx context.Context, symbol string, tf time.Duration, from, to time.Time) ([]market.Bar, error)
}

// SignalSource yields the strategy's signals for a run. Sources may return
// signals outside [from, to); the runner rejects those.
type SignalSource interface {
	Signals(ctx context.Context, from, to time.Time) ([]market.Signal, error)
}

// Output is everything a run produced. Result is always set, even when Run
// returns an error.
type Output struct {
	RunID  string
	Config config.RunConfig

	Intents    []intent.Intent
	Rejections []intent.Rejection
	Orders     []sim.OrderOutcome
	Fills      []sim.Fill
	Trades     []Trade
	Equity     []EquityPoint
	Ledger     *ledger.Ledger
	Summary    Summary

	// Issues are contract violations that lenient mode let through.
	Issues  []market.ContractError
	DataEnd time.Time

	Result RunResult
}

type Runner struct {
	cfg     config.RunConfig
	bars    BarSource
	signals SignalSource
	log     *zap.Logger
}

func NewRunner(cfg config.RunConfig, bars BarSource, signals SignalSource, log *zap.Logger) (*Runner, error) {
	if bars == nil {
		return nil, errors.New("backtest: bar source is required")
	}
	if signals == nil {
		return nil, errors.New("backtest: signal source is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{cfg: cfg, bars: bars, signals: signals, log: log}, nil
}

// symbolRun is the per-symbol slot. Each worker writes only its own.
type symbolRun struct {
	symbol  string
	signals []market.Signal
	bars    []market.Bar
	issues  []market.ContractError

	intents    []intent.Intent
	rejections []intent.Rejection
	result     sim.Result
}

// Run executes the whole pipeline.
func (r *Runner) Run(ctx context.Context) (*Output, error) {
	cfg := r.cfg
	out := &Output{Config: cfg}

	fail := func(err error) (*Output, error) {
		out.Result = ResultFor(out.RunID, err)
		r.log.Error("run failed",
			zap.String("run_id", out.RunID),
			zap.String("status", string(out.Result.Status)),
			zap.String("reason", out.Result.Reason),
			zap.String("error_id", out.Result.ErrorID),
			zap.Error(err),
		)
		return out, err
	}

	runID, err := cfg.RunID()
	if err != nil {
		fp, _ := cfg.Fingerprint()
		out.RunID = id.InvalidRunID(fp)
		return fail(&InternalError{ID: ErrIDConfig, RunID: out.RunID, Err: err})
	}
	out.RunID = runID
	log := r.log.With(zap.String("run_id", runID))

	if err := cfg.Validate(); err != nil {
		return fail(&InternalError{ID: ErrIDConfig, RunID: runID, Err: err})
	}
	if len(cfg.Run.Symbols) == 0 {
		return fail(&PreconditionError{Reason: ReasonNoSymbols, Details: map[string]string{"symbols": "0"}})
	}
	cal, err := calendar.New(cfg.CalendarConfig())
	if err != nil {
		return fail(&InternalError{ID: ErrIDConfig, RunID: runID, Err: err})
	}
	tf, err := cfg.Timeframe()
	if err != nil {
		return fail(&InternalError{ID: ErrIDConfig, RunID: runID, Err: err})
	}
	params, err := cfg.IntentParams()
	if err != nil {
		return fail(&InternalError{ID: ErrIDConfig, RunID: runID, Err: err})
	}
	engCfg, err := cfg.EngineConfig(runID)
	if err != nil {
		return fail(&InternalError{ID: ErrIDConfig, RunID: runID, Err: err})
	}
	builder, err := intent.NewBuilder(runID, cal, params, log)
	if err != nil {
		return fail(&InternalError{ID: ErrIDConfig, RunID: runID, Err: err})
	}
	engine, err := sim.NewEngine(engCfg, cal, log)
	if err != nil {
		return fail(&InternalError{ID: ErrIDConfig, RunID: runID, Err: err})
	}

	log.Info("run started",
		zap.Strings("symbols", cfg.Run.Symbols),
		zap.Time("start", cfg.Run.Start),
		zap.Time("end", cfg.Run.End),
		zap.String("mode", cfg.Run.Mode),
	)

	sigs, err := r.signals.Signals(ctx, cfg.Run.Start, cfg.Run.End)
	if err != nil {
		return fail(dataError(runID, "", err))
	}
	slots, early, err := r.partition(runID, sigs)
	if err != nil {
		return fail(err)
	}
	out.Rejections = append(out.Rejections, early...)

	// Phase 1: load and validate every series. Preconditions are decided
	// before any simulation step runs.
	if err := r.load(ctx, runID, cal, tf, slots); err != nil {
		return fail(err)
	}
	if err := r.checkCoverage(cal, tf, slots); err != nil {
		return fail(err)
	}

	// Phase 2: per-symbol intent building and simulation.
	cls := evidence.NewClassifier(cal, cfg.Market.AllowExtendedHours)
	if err := r.simulate(ctx, runID, builder, engine, cls, slots); err != nil {
		return fail(err)
	}

	r.merge(out, slots)

	out.Trades, err = BuildTrades(out.Fills, cls)
	if err != nil {
		return fail(&InternalError{ID: ErrIDInternal, RunID: runID, Err: err})
	}

	fallback := Fallback(cfg.Run.End, out.DataEnd, cfg.Run.Start)
	out.Equity = BuildEquity(out.Trades, cfg.InitialCash(), cfg.Run.Start, fallback)

	out.Ledger, err = r.buildLedger(runID, out.Trades)
	if err != nil {
		return fail(err)
	}
	if err := reconcile(runID, out.Ledger, out.Trades, out.Equity); err != nil {
		return fail(err)
	}

	out.Summary = Summarize(out.Trades, out.Equity)
	out.Result = ResultFor(runID, nil)
	if len(out.Issues) > 0 {
		out.Result.Details = map[string]string{"contract_issues": strconv.Itoa(len(out.Issues))}
	}
	log.Info("run finished",
		zap.Int("intents", len(out.Intents)),
		zap.Int("rejections", len(out.Rejections)),
		zap.Int("fills", len(out.Fills)),
		zap.Int("trades", out.Summary.Trades),
		zap.String("final_equity", FinalEquity(out.Equity).String()),
	)
	return out, nil
}

// partition assigns in-window signals to their configured symbol and turns
// the rest into rejections.
func (r *Runner) partition(runID string, sigs []market.Signal) ([]*symbolRun, []intent.Rejection, error) {
	cfg := r.cfg
	bySymbol := map[string]*symbolRun{}
	slots := make([]*symbolRun, 0, len(cfg.Run.Symbols))
	for _, s := range cfg.Run.Symbols {
		if _, dup := bySymbol[s]; dup {
			continue
		}
		sr := &symbolRun{symbol: s}
		bySymbol[s] = sr
		slots = append(slots, sr)
	}

	var rejs []intent.Rejection
	for _, sig := range sigs {
		if err := market.CheckTimestamp(sig.Timestamp); err != nil {
			return nil, nil, fmt.Errorf("signal %s: %w", sig.Symbol, err)
		}
		reject := func(reason, detail string) {
			rejs = append(rejs, intent.Rejection{
				SignalID:   id.SignalID(runID, sig.Symbol, sig.Timestamp, sig.Side.String(), sig.Entry, sig.Stop, sig.Target),
				Symbol:     sig.Symbol,
				SignalTime: sig.Timestamp,
				Reason:     reason,
				Detail:     detail,
				Meta:       intent.CopyMeta(sig.Meta),
			})
		}
		sr, ok := bySymbol[sig.Symbol]
		if !ok {
			reject(intent.ReasonSymbolNotConfigured, "symbol is not part of run.symbols")
			continue
		}
		if sig.Timestamp.Before(cfg.Run.Start) || !sig.Timestamp.Before(cfg.Run.End) {
			reject(intent.ReasonOutsideRunWindow, "signal time outside [run.start, run.end)")
			continue
		}
		sr.signals = append(sr.signals, sig)
	}
	for _, sr := range slots {
		sort.SliceStable(sr.signals, func(i, j int) bool {
			return sr.signals[i].Timestamp.Before(sr.signals[j].Timestamp)
		})
	}
	return slots, rejs, nil
}

func (r *Runner) workers() int {
	if r.cfg.Run.Workers > 0 {
		return r.cfg.Run.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (r *Runner) load(ctx context.Context, runID string, cal *calendar.Calendar, tf time.Duration, slots []*symbolRun) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers())
	for _, sr := range slots {
		sr := sr
		g.Go(func() error {
			bars, err := r.bars.Bars(gctx, sr.symbol, tf, r.cfg.Run.Start, r.cfg.Run.End)
			if err != nil {
				return dataError(runID, sr.symbol, err)
			}
			bars = clip(bars, r.cfg.Run.Start, r.cfg.Run.End)
			sr.bars, sr.issues, err = r.checkSeries(cal, sr.symbol, tf, bars)
			return err
		})
	}
	return g.Wait()
}

func clip(bars []market.Bar, from, to time.Time) []market.Bar {
	out := bars[:0:0]
	for _, b := range bars {
		if b.Start.Before(from) || !b.Start.Before(to) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// checkSeries enforces the bar contract. Strict mode returns the first
// violation. Lenient mode records it, drops bars of another timeframe and
// repairs ordering so the walk can proceed; the classifier then flags the
// affected fills.
func (r *Runner) checkSeries(cal *calendar.Calendar, symbol string, tf time.Duration, bars []market.Bar) ([]market.Bar, []market.ContractError, error) {
	var issues []market.ContractError
	report := func(err error) error {
		var ce *market.ContractError
		if !errors.As(err, &ce) {
			return err
		}
		if r.cfg.Strict() {
			return ce
		}
		r.log.Warn("contract violation downgraded",
			zap.String("symbol", symbol),
			zap.String("code", ce.Code),
			zap.String("detail", ce.Detail),
		)
		issues = append(issues, *ce)
		return nil
	}

	kept := bars[:0:0]
	for _, b := range bars {
		if b.Symbol != symbol {
			return nil, nil, &market.ContractError{
				Code:   market.CodeSeriesNotMonotonic,
				Symbol: symbol,
				Detail: fmt.Sprintf("bar for %q in the %s series", b.Symbol, symbol),
			}
		}
		if err := market.CheckTimestamp(b.Start); err != nil {
			return nil, nil, err
		}
		if b.Timeframe != tf {
			err := &market.ContractError{
				Code:   market.CodeTimeframeMismatch,
				Symbol: symbol,
				Detail: fmt.Sprintf("bar %s has timeframe %s, run uses %s",
					b.Start.Format(time.RFC3339), b.Timeframe, tf),
			}
			if err := report(err); err != nil {
				return nil, nil, err
			}
			continue
		}
		if err := b.Validate(); err != nil {
			if err := report(err); err != nil {
				return nil, nil, err
			}
		}
		if !r.cfg.Market.AllowExtendedHours {
			rth, err := cal.IsRTH(b.Start)
			if err != nil {
				return nil, nil, err
			}
			if !rth {
				err := &market.ContractError{
					Code:   market.CodeRTHViolation,
					Symbol: symbol,
					Detail: fmt.Sprintf("bar %s outside regular trading hours", b.Start.Format(time.RFC3339)),
				}
				if err := report(err); err != nil {
					return nil, nil, err
				}
			}
		}
		kept = append(kept, b)
	}
	bars = kept

	for i := 1; i < len(bars); i++ {
		if bars[i].Start.After(bars[i-1].Start) {
			continue
		}
		err := &market.ContractError{
			Code:   market.CodeSeriesNotMonotonic,
			Symbol: symbol,
			Detail: fmt.Sprintf("bar %s does not follow %s",
				bars[i].Start.Format(time.RFC3339), bars[i-1].Start.Format(time.RFC3339)),
		}
		if err := report(err); err != nil {
			return nil, nil, err
		}
		bars = dedupe(bars)
		break
	}
	return bars, issues, nil
}

// dedupe sorts by start and keeps the first bar for each start.
func dedupe(bars []market.Bar) []market.Bar {
	sorted := make([]market.Bar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })
	out := sorted[:0]
	for i, b := range sorted {
		if i > 0 && b.Start.Equal(sorted[i-1].Start) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// checkCoverage fails the run when a symbol with signals has no bars, or
// fewer than data.min_coverage of the expected bar slots.
func (r *Runner) checkCoverage(cal *calendar.Calendar, tf time.Duration, slots []*symbolRun) error {
	for _, sr := range slots {
		if len(sr.signals) == 0 {
			continue
		}
		if len(sr.bars) == 0 {
			return &PreconditionError{
				Reason: ReasonInsufficientCoverage,
				Details: map[string]string{
					"symbol":  sr.symbol,
					"signals": strconv.Itoa(len(sr.signals)),
					"bars":    "0",
				},
			}
		}
		if r.cfg.Data.MinCoverage <= 0 {
			continue
		}
		expected, err := r.expectedBars(cal, tf)
		if err != nil {
			return err
		}
		if expected == 0 {
			continue
		}
		coverage := float64(len(sr.bars)) / float64(expected)
		if coverage < r.cfg.Data.MinCoverage {
			return &PreconditionError{
				Reason: ReasonInsufficientCoverage,
				Details: map[string]string{
					"symbol":       sr.symbol,
					"bars":         strconv.Itoa(len(sr.bars)),
					"expected":     strconv.Itoa(expected),
					"coverage":     strconv.FormatFloat(coverage, 'f', 4, 64),
					"min_coverage": strconv.FormatFloat(r.cfg.Data.MinCoverage, 'f', 4, 64),
				},
			}
		}
	}
	return nil
}

// expectedBars counts the bar slots in the run window that fall inside a
// session (inside RTH unless extended hours are allowed).
func (r *Runner) expectedBars(cal *calendar.Calendar, tf time.Duration) (int, error) {
	n := 0
	for t := r.cfg.Run.Start; t.Before(r.cfg.Run.End); t = t.Add(tf) {
		var (
			ok  bool
			err error
		)
		if r.cfg.Market.AllowExtendedHours {
			_, ok, err = cal.SessionAt(t)
		} else {
			ok, err = cal.IsRTH(t)
		}
		if err != nil {
			return 0, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

func (r *Runner) simulate(ctx context.Context, runID string, b *intent.Builder, e *sim.Engine, cls *evidence.Classifier, slots []*symbolRun) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers())
	for _, sr := range slots {
		sr := sr
		g.Go(func() (err error) {
			defer func() {
				if p := recover(); p != nil {
					err = &InternalError{ID: ErrIDSimPanic, RunID: runID, Symbol: sr.symbol, Err: fmt.Errorf("panic: %v", p)}
				}
			}()
			if err := gctx.Err(); err != nil {
				return err
			}
			return r.simulateSymbol(b, e, cls, sr)
		})
	}
	return g.Wait()
}

func (r *Runner) simulateSymbol(b *intent.Builder, e *sim.Engine, cls *evidence.Classifier, sr *symbolRun) error {
	ins, rejs, err := b.BuildAll(sr.signals)
	if err != nil {
		return err
	}
	sr.intents, sr.rejections = ins, rejs

	res, err := e.Run(sr.symbol, sr.bars, ins)
	if err != nil {
		return &InternalError{ID: ErrIDInternal, Symbol: sr.symbol, Err: err}
	}

	byIntent := make(map[string]intent.Intent, len(ins))
	for _, in := range ins {
		byIntent[in.ID()] = in
	}
	entryBars := map[string]time.Time{}
	for i := range res.Fills {
		f := &res.Fills[i]
		in, ok := byIntent[f.IntentID]
		if !ok {
			return &InternalError{ID: ErrIDInternal, Symbol: sr.symbol, IntentID: f.IntentID, Err: errors.New("fill for unknown intent")}
		}
		if f.Role == sim.RoleEntry {
			entryBars[f.TradeID] = f.BarStart
		}
		f.Evidence = cls.ClassifyFill(evidence.FillProof{
			Symbol:     f.Symbol,
			Side:       f.Side,
			Role:       f.Role,
			Time:       f.Time,
			BarStart:   f.BarStart,
			Price:      f.Price,
			Entry:      in.Entry(),
			Stop:       in.StopPtr(),
			Target:     in.TargetPtr(),
			EntryBar:   entryBars[f.TradeID],
			SignalTime: in.SignalTime(),
			ValidFrom:  in.ValidFrom(),
			ValidUntil: in.ValidUntil(),
			Gap:        f.Gap,
			Tie:        f.Tie,
			SessionEnd: f.SessionEnd,
		}, sr.bars)
		if err := evidence.Validate(f.Evidence); err != nil {
			return err
		}
	}
	sr.result = res
	r.log.Debug("symbol simulated",
		zap.String("symbol", sr.symbol),
		zap.Int("bars", len(sr.bars)),
		zap.Int("intents", len(ins)),
		zap.Int("fills", len(res.Fills)),
	)
	return nil
}

// merge combines the per-symbol slots in canonical
// (event time, symbol, event kind) order.
func (r *Runner) merge(out *Output, slots []*symbolRun) {
	for _, sr := range slots {
		out.Intents = append(out.Intents, sr.intents...)
		out.Rejections = append(out.Rejections, sr.rejections...)
		out.Orders = append(out.Orders, sr.result.Orders...)
		out.Fills = append(out.Fills, sr.result.Fills...)
		out.Issues = append(out.Issues, sr.issues...)
		if n := len(sr.bars); n > 0 && sr.bars[n-1].Start.After(out.DataEnd) {
			out.DataEnd = sr.bars[n-1].Start
		}
	}

	intent.Sort(out.Intents)
	sort.SliceStable(out.Rejections, func(i, j int) bool {
		a, b := out.Rejections[i], out.Rejections[j]
		if !a.SignalTime.Equal(b.SignalTime) {
			return a.SignalTime.Before(b.SignalTime)
		}
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		return a.SignalID < b.SignalID
	})
	sort.SliceStable(out.Orders, func(i, j int) bool {
		a, b := out.Orders[i], out.Orders[j]
		if !a.DecidedAt.Equal(b.DecidedAt) {
			return a.DecidedAt.Before(b.DecidedAt)
		}
		if a.Intent.Symbol() != b.Intent.Symbol() {
			return a.Intent.Symbol() < b.Intent.Symbol()
		}
		if a.Status != b.Status {
			return a.Status < b.Status
		}
		return a.Intent.ID() < b.Intent.ID()
	})
	sort.SliceStable(out.Fills, func(i, j int) bool {
		a, b := out.Fills[i], out.Fills[j]
		if !a.Time.Equal(b.Time) {
			return a.Time.Before(b.Time)
		}
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		// exits settle before entries at the same instant
		if a.Role != b.Role {
			return a.Role == sim.RoleExit
		}
		return a.ID < b.ID
	})
}

func (r *Runner) buildLedger(runID string, trades []Trade) (*ledger.Ledger, error) {
	opts := ledger.Options{
		EnforceMonotonicTime: len(r.cfg.Run.Symbols) == 1 && r.cfg.Ledger.StrictSingleOrderAudit,
	}
	l, err := ledger.New(r.cfg.InitialCash(), r.cfg.Run.Start, opts)
	if err != nil {
		return nil, &InternalError{ID: ErrIDInternal, RunID: runID, Err: err}
	}
	for _, t := range ClosedTrades(trades) {
		if err := l.Apply(t.Record()); err != nil {
			code := ErrIDInternal
			if errors.Is(err, ledger.ErrTimeRegression) {
				code = ErrIDLedgerTime
			}
			return nil, &InternalError{ID: code, RunID: runID, Symbol: t.Symbol, IntentID: t.IntentID, Err: err}
		}
	}
	return l, nil
}

// reconcile checks the two tracks: the ledger must replay byte for byte from
// the trade list, and its final cash must equal the curve's final equity.
func reconcile(runID string, l *ledger.Ledger, trades []Trade, curve []EquityPoint) error {
	if err := ledger.Verify(l, Records(trades)); err != nil {
		return &InternalError{ID: ErrIDLedgerMismatch, RunID: runID, Err: err}
	}
	if eq := FinalEquity(curve); !l.FinalCash().Equal(eq) {
		return &InternalError{
			ID:    ErrIDLedgerMismatch,
			RunID: runID,
			Err:   fmt.Errorf("ledger cash %s, curve equity %s", l.FinalCash(), eq),
		}
	}
	return nil
}

func dataError(runID, symbol string, err error) error {
	var (
		ce    *market.ContractError
		naive *market.NaiveTimestampError
	)
	if errors.As(err, &ce) || errors.As(err, &naive) {
		return err
	}
	return &InternalError{ID: ErrIDDataLoad, RunID: runID, Symbol: symbol, Err: err}
}
