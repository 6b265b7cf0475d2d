// Package sim simulates broker-side execution of order intents against a
// bar series using earliest-touch semantics.
package sim

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/tradesim/calendar"
	"github.com/rustyeddy/tradesim/intent"
	"github.com/rustyeddy/tradesim/market"
	"github.com/rustyeddy/tradesim/pkg/id"
)

type Engine struct {
	cfg Config
	cal *calendar.Calendar
	log *zap.Logger
}

// Result is everything the engine produced for one symbol.
type Result struct {
	Symbol string
	Orders []OrderOutcome
	Fills  []Fill
}

func NewEngine(cfg Config, cal *calendar.Calendar, log *zap.Logger) (*Engine, error) {
	if cal == nil {
		return nil, errors.New("sim: calendar is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("sim: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{cfg: cfg, cal: cal, log: log}, nil
}

func (e *Engine) Config() Config { return e.cfg }

type order struct {
	in   intent.Intent
	done bool
}

type run struct {
	*Engine
	log     *zap.Logger
	res     Result
	pending []*order
	groups  map[string][]*order
	open    []*position
}

// Run walks bars once, in time order, and drives every intent for symbol
// through it. bars must be sorted by start and belong to symbol. Run is
// safe to call concurrently for different symbols.
func (e *Engine) Run(symbol string, bars []market.Bar, intents []intent.Intent) (Result, error) {
	r := &run{
		Engine: e,
		log:    e.log.With(zap.String("symbol", symbol)),
		res:    Result{Symbol: symbol},
		groups: map[string][]*order{},
	}

	for _, in := range intents {
		if in.Symbol() != symbol {
			return Result{}, fmt.Errorf("sim: intent %s is for %s, not %s", in.ID(), in.Symbol(), symbol)
		}
		if err := in.Validate(); err != nil {
			reason := "invalid_intent"
			if errors.Is(err, intent.ErrInvalidWindow) {
				reason = intent.ReasonInvalidValidityWindow
			}
			r.decide(&order{in: in}, StatusRejected, reason, err.Error(), in.ValidFrom(), "")
			continue
		}
		o := &order{in: in}
		r.pending = append(r.pending, o)
		if g := in.OCOGroup(); g != "" {
			r.groups[g] = append(r.groups[g], o)
		}
	}
	sort.SliceStable(r.pending, func(i, j int) bool {
		a, b := r.pending[i].in, r.pending[j].in
		if !a.ValidFrom().Equal(b.ValidFrom()) {
			return a.ValidFrom().Before(b.ValidFrom())
		}
		return a.ID() < b.ID()
	})

	for i, b := range bars {
		exited := r.exits(i, b)
		r.entries(i, b, exited)
	}
	r.finish(bars)
	return r.res, nil
}

// exits handles open positions on bar i and reports whether any of them
// exited on this bar.
func (r *run) exits(i int, b market.Bar) bool {
	exited := false
	kept := r.open[:0]
	for _, p := range r.open {
		if !b.Start.Before(p.horizon) {
			r.closeAtHorizon(p)
			continue
		}
		if i > p.entryIdx {
			if hit, ok := p.checkExit(b, r.cfg.TieBreak); ok {
				r.exit(p, b, b.Start, hit)
				exited = true
				continue
			}
		}
		p.lastBar = b
		kept = append(kept, p)
	}
	r.open = kept
	return exited
}

func (r *run) entries(i int, b market.Bar, exited bool) {
	for _, o := range r.pending {
		if o.done {
			continue
		}
		in := o.in
		if b.Start.Before(in.ValidFrom()) {
			break
		}
		if !b.Start.Before(in.ValidUntil()) {
			r.decide(o, StatusExpired, string(ExitExpired), "no touch before validity end", in.ValidUntil(), "")
			continue
		}
		if !entryTouched(in.Side(), in.Entry(), b) {
			continue
		}
		if r.cfg.Netting && (len(r.open) > 0 || exited) {
			r.decide(o, StatusRejectedNetting, ReasonNettingOpenPosition,
				fmt.Sprintf("entry touched at %s while a position is open", b.Start.Format(time.RFC3339)), b.Start, "")
			r.log.Warn("entry rejected",
				zap.String("run_id", r.cfg.RunID),
				zap.String("intent_id", in.ID()),
				zap.String("reason", ReasonNettingOpenPosition),
			)
			continue
		}
		r.enter(o, i, b)
	}
}

func (r *run) enter(o *order, i int, b market.Bar) {
	in := o.in
	price, gap := entryPrice(in.Side(), in.Entry(), b)
	tradeID := id.TradeID(in.ID(), b.Start)

	f := Fill{
		ID:         id.FillID(tradeID, string(RoleEntry), b.Start),
		IntentID:   in.ID(),
		TradeID:    tradeID,
		Symbol:     in.Symbol(),
		Side:       in.Side(),
		Role:       RoleEntry,
		Time:       b.Start,
		BarStart:   b.Start,
		Price:      price,
		Quantity:   in.Quantity(),
		ExitReason: ExitNone,
		Gap:        gap,
	}
	r.cfg.Costs.apply(&f)
	r.res.Fills = append(r.res.Fills, f)
	r.decide(o, StatusFilled, "", "", b.Start, tradeID)

	hz := r.horizon(in, b)
	if hz.After(in.ValidUntil()) {
		r.log.Info("position held past validity end",
			zap.String("run_id", r.cfg.RunID),
			zap.String("intent_id", in.ID()),
			zap.String("trade_id", tradeID),
			zap.Time("valid_until", in.ValidUntil()),
			zap.Time("horizon", hz),
			zap.String("reason", "exit_horizon="+string(r.cfg.ExitHorizon)),
		)
	}
	r.open = append(r.open, &position{
		in:       in,
		tradeID:  tradeID,
		entryIdx: i,
		entryBar: b,
		lastBar:  b,
		horizon:  hz,
	})

	for _, sib := range r.groups[in.OCOGroup()] {
		if sib == o || sib.done {
			continue
		}
		r.decide(sib, StatusCanceledOCO, "canceled_oco", "sibling "+in.ID()+" filled", b.Start, "")
		r.log.Info("oco sibling canceled",
			zap.String("run_id", r.cfg.RunID),
			zap.String("intent_id", sib.in.ID()),
			zap.String("filled_intent_id", in.ID()),
		)
	}
}

func (r *run) horizon(in intent.Intent, b market.Bar) time.Time {
	if r.cfg.ExitHorizon == HorizonValidityEnd {
		return in.ValidUntil()
	}
	end, err := r.cal.SessionEnd(b.Start)
	if err != nil {
		// extended-hours bar outside every configured session
		return in.ValidUntil()
	}
	return end
}

func (r *run) exit(p *position, b market.Bar, ts time.Time, hit exitHit) {
	f := Fill{
		ID:         id.FillID(p.tradeID, string(RoleExit), ts),
		IntentID:   p.in.ID(),
		TradeID:    p.tradeID,
		Symbol:     p.in.Symbol(),
		Side:       p.in.Side(),
		Role:       RoleExit,
		Time:       ts,
		BarStart:   b.Start,
		Price:      hit.price,
		Quantity:   p.in.Quantity(),
		ExitReason: hit.reason,
		Gap:        hit.gap,
		Tie:        hit.tie,
		SessionEnd: hit.reason == ExitSessionEnd,
	}
	r.cfg.Costs.apply(&f)
	r.res.Fills = append(r.res.Fills, f)
	if hit.tie {
		r.log.Debug("same-bar tie resolved",
			zap.String("trade_id", p.tradeID),
			zap.String("tie_break", string(r.cfg.TieBreak)),
			zap.String("exit_reason", string(hit.reason)),
		)
	}
}

// closeAtHorizon exits at the close of the last bar before the horizon.
func (r *run) closeAtHorizon(p *position) {
	b := p.lastBar
	r.exit(p, b, b.End(), exitHit{price: b.Close, reason: ExitSessionEnd})
}

func (r *run) finish(bars []market.Bar) {
	detail := "no touch before validity end"
	var dataEnd time.Time
	if len(bars) > 0 {
		dataEnd = bars[len(bars)-1].End()
	}
	for _, o := range r.pending {
		if o.done {
			continue
		}
		d := detail
		if dataEnd.Before(o.in.ValidUntil()) {
			d = "data ended before validity end"
		}
		r.decide(o, StatusExpired, string(ExitExpired), d, o.in.ValidUntil(), "")
	}
	for _, p := range r.open {
		covered := !p.lastBar.End().Before(p.horizon) ||
			(!r.cfg.RunEnd.IsZero() && !r.cfg.RunEnd.Before(p.horizon))
		if covered {
			r.closeAtHorizon(p)
			continue
		}
		r.log.Info("position left open",
			zap.String("run_id", r.cfg.RunID),
			zap.String("trade_id", p.tradeID),
			zap.Time("horizon", p.horizon),
		)
	}
	r.open = nil
}

func (r *run) decide(o *order, st OrderStatus, reason, detail string, at time.Time, tradeID string) {
	o.done = true
	r.res.Orders = append(r.res.Orders, OrderOutcome{
		Intent:    o.in,
		Status:    st,
		Reason:    reason,
		Detail:    detail,
		DecidedAt: at,
		TradeID:   tradeID,
	})
	if st == StatusRejected {
		r.log.Warn("intent rejected at engine boundary",
			zap.String("run_id", r.cfg.RunID),
			zap.String("intent_id", o.in.ID()),
			zap.String("reason", reason),
		)
	}
}
