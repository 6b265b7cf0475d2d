package intent

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/tradesim/calendar"
	"github.com/rustyeddy/tradesim/market"
	"github.com/rustyeddy/tradesim/pkg/id"
	"github.com/rustyeddy/tradesim/risk"
)

type Policy string

const (
	// PolicySessionEnd keeps the order working until the end of the session
	// in which it became eligible.
	PolicySessionEnd Policy = "session_end"
	// PolicyFixedMinutes keeps it working for FixedMinutes, clamped to the
	// session end.
	PolicyFixedMinutes Policy = "fixed_minutes"
	// PolicyOneBar gives it exactly one bar, clamped to the session end.
	PolicyOneBar Policy = "one_bar"
)

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicySessionEnd, PolicyFixedMinutes, PolicyOneBar:
		return p, nil
	case "":
		return "", fmt.Errorf("validity policy: %w", market.ErrEmptyField)
	default:
		return "", fmt.Errorf("unknown validity policy %q", s)
	}
}

// Params are the strategy-level inputs to intent construction.
type Params struct {
	Policy       Policy
	FixedMinutes int
	Timeframe    time.Duration

	RequireStop   bool
	RequireTarget bool

	// OCO enables grouping of signals that share an OCO key.
	OCO bool

	Sizing      risk.Policy
	InitialCash float64
}

// Builder derives intents from signals. It holds no mutable state and is
// safe for concurrent use.
type Builder struct {
	runID  string
	cal    *calendar.Calendar
	params Params
	log    *zap.Logger
}

func NewBuilder(runID string, cal *calendar.Calendar, p Params, log *zap.Logger) (*Builder, error) {
	if cal == nil {
		return nil, errors.New("intent builder: calendar is required")
	}
	if p.Timeframe <= 0 {
		return nil, fmt.Errorf("intent builder: non-positive timeframe %s", p.Timeframe)
	}
	switch p.Policy {
	case PolicySessionEnd, PolicyFixedMinutes, PolicyOneBar:
	default:
		return nil, fmt.Errorf("intent builder: unknown validity policy %q", p.Policy)
	}
	if err := p.Sizing.Validate(); err != nil {
		return nil, fmt.Errorf("intent builder: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Builder{runID: runID, cal: cal, params: p, log: log}, nil
}

// Window resolves the validity window for a signal observed at ts. The
// result depends only on ts and the session configuration.
func (b *Builder) Window(ts time.Time) (from, until time.Time, err error) {
	from, sess, err := b.cal.NextBarBoundary(ts, b.params.Timeframe)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	until = sess.End
	switch b.params.Policy {
	case PolicyFixedMinutes:
		until = minTime(from.Add(time.Duration(b.params.FixedMinutes)*time.Minute), sess.End)
	case PolicyOneBar:
		until = minTime(from.Add(b.params.Timeframe), sess.End)
	}
	return from, until, nil
}

// Build turns one signal into an intent, or a rejection explaining why it
// could not. A non-nil error is systemic (naive timestamp, calendar
// misconfiguration) and should abort the run.
func (b *Builder) Build(sig market.Signal) (Intent, *Rejection, error) {
	if err := market.CheckTimestamp(sig.Timestamp); err != nil {
		return Intent{}, nil, fmt.Errorf("signal %s: %w", sig.Symbol, err)
	}

	signalID := id.SignalID(b.runID, sig.Symbol, sig.Timestamp, sig.Side.String(), sig.Entry, sig.Stop, sig.Target)
	reject := func(reason, format string, args ...any) (Intent, *Rejection, error) {
		r := &Rejection{
			SignalID:   signalID,
			Symbol:     sig.Symbol,
			SignalTime: sig.Timestamp,
			Reason:     reason,
			Detail:     fmt.Sprintf(format, args...),
			Meta:       CopyMeta(sig.Meta),
		}
		b.logRejection(r)
		return Intent{}, r, nil
	}

	if !sig.Side.Valid() {
		return reject(ReasonInvalidSide, "side %s", sig.Side)
	}
	if err := b.checkLevels(sig); err != nil {
		var lv *levelError
		if errors.As(err, &lv) {
			return reject(lv.reason, "%s", lv.detail)
		}
		return Intent{}, nil, err
	}

	plan := risk.Plan{Entry: sig.Entry, Stop: sig.Stop, Target: sig.Target}
	qty, err := risk.Size(b.params.Sizing, plan, b.params.InitialCash)
	if err != nil {
		return reject(ReasonMissingLevel, "%v", err)
	}
	if qty <= 0 {
		return reject(ReasonZeroQuantity, "sizing produced %g units", qty)
	}
	if d := risk.Evaluate(b.params.Sizing, plan, qty, b.params.InitialCash); !d.Allowed {
		codes := make([]string, 0, len(d.Violations))
		for _, v := range d.Violations {
			codes = append(codes, v.Code+": "+v.Msg)
		}
		return reject(ReasonRiskCheck, "%s", strings.Join(codes, "; "))
	}

	from, until, err := b.Window(sig.Timestamp)
	if err != nil {
		return Intent{}, nil, fmt.Errorf("signal %s at %s: %w", sig.Symbol, sig.Timestamp.Format(time.RFC3339), err)
	}

	var group string
	if b.params.OCO && sig.OCOKey != "" {
		group = id.OCOGroup(b.runID, sig.Symbol, sig.OCOKey)
	}

	in := Freeze(Spec{
		ID:              id.OrderID(signalID, from, until, sig.Entry),
		SignalID:        signalID,
		Symbol:          sig.Symbol,
		Side:            sig.Side,
		Kind:            KindStopEntry,
		Entry:           sig.Entry,
		Stop:            sig.Stop,
		Target:          sig.Target,
		ValidFrom:       from,
		ValidUntil:      until,
		OCOGroup:        group,
		Quantity:        qty,
		SignalTime:      sig.Timestamp,
		Strategy:        sig.Strategy,
		StrategyVersion: sig.StrategyVersion,
		Meta:            sig.Meta,
	})
	if err := in.Validate(); err != nil {
		if errors.Is(err, ErrInvalidWindow) {
			r := &Rejection{
				SignalID:   signalID,
				IntentID:   in.ID(),
				Symbol:     sig.Symbol,
				SignalTime: sig.Timestamp,
				Reason:     ReasonInvalidValidityWindow,
				Detail:     err.Error(),
				Meta:       in.Meta(),
			}
			b.logRejection(r)
			return Intent{}, r, nil
		}
		return Intent{}, nil, err
	}
	return in, nil, nil
}

// BuildAll builds every signal in order. Intents come back sorted by
// (ValidFrom, ID); rejections keep the signal order.
func (b *Builder) BuildAll(sigs []market.Signal) ([]Intent, []Rejection, error) {
	var (
		out  []Intent
		rejs []Rejection
	)
	for _, s := range sigs {
		in, rej, err := b.Build(s)
		if err != nil {
			return nil, nil, err
		}
		if rej != nil {
			rejs = append(rejs, *rej)
			continue
		}
		out = append(out, in)
	}
	Sort(out)
	return out, rejs, nil
}

// Sort orders intents by (ValidFrom, ID).
func Sort(ins []Intent) {
	sort.SliceStable(ins, func(i, j int) bool {
		a, b := ins[i], ins[j]
		if !a.validFrom.Equal(b.validFrom) {
			return a.validFrom.Before(b.validFrom)
		}
		return a.id < b.id
	})
}

type levelError struct {
	reason string
	detail string
}

func (e *levelError) Error() string { return e.reason + ": " + e.detail }

func (b *Builder) checkLevels(sig market.Signal) error {
	finite := func(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

	if sig.Entry <= 0 || !finite(sig.Entry) {
		return &levelError{ReasonMissingLevel, fmt.Sprintf("entry level %g", sig.Entry)}
	}
	if sig.Stop == nil && b.params.RequireStop {
		return &levelError{ReasonMissingLevel, "stop level is required"}
	}
	if sig.Target == nil && b.params.RequireTarget {
		return &levelError{ReasonMissingLevel, "target level is required"}
	}

	dir := sig.Side.Sign()
	if sig.Stop != nil {
		if !finite(*sig.Stop) || (*sig.Stop-sig.Entry)*dir >= 0 {
			return &levelError{ReasonInvalidLevels,
				fmt.Sprintf("%s stop %g is not beyond entry %g", sig.Side, *sig.Stop, sig.Entry)}
		}
	}
	if sig.Target != nil {
		if !finite(*sig.Target) || (*sig.Target-sig.Entry)*dir <= 0 {
			return &levelError{ReasonInvalidLevels,
				fmt.Sprintf("%s target %g is not beyond entry %g", sig.Side, *sig.Target, sig.Entry)}
		}
	}
	return nil
}

func (b *Builder) logRejection(r *Rejection) {
	b.log.Warn("intent rejected",
		zap.String("run_id", b.runID),
		zap.String("symbol", r.Symbol),
		zap.String("signal_id", r.SignalID),
		zap.String("intent_id", r.IntentID),
		zap.String("reason", r.Reason),
		zap.String("detail", r.Detail),
	)
}

func minTime(a, b time.Time) time.Time {
	if b.Before(a) {
		return b
	}
	return a
}
