package evidence

import (
	"time"

	"github.com/rustyeddy/tradesim/calendar"
	"github.com/rustyeddy/tradesim/market"
)

type Role string

const (
	RoleEntry Role = "entry"
	RoleExit  Role = "exit"
)

// FillProof is what the classifier needs to know about one fill. The fill
// engine fills it in; the classifier re-derives everything else from bars.
type FillProof struct {
	Symbol   string
	Side     market.Side
	Role     Role
	Time     time.Time
	BarStart time.Time
	Price    float64

	// Entry is the order's entry level. For exits, Stop and Target are the
	// protective levels and EntryBar is the start of the bar that filled
	// the entry.
	Entry    float64
	Stop     *float64
	Target   *float64
	EntryBar time.Time

	SignalTime time.Time
	ValidFrom  time.Time
	ValidUntil time.Time

	Gap        bool
	Tie        bool
	SessionEnd bool
}

type Classifier struct {
	cal           *calendar.Calendar
	allowExtended bool
}

func NewClassifier(cal *calendar.Calendar, allowExtendedHours bool) *Classifier {
	return &Classifier{cal: cal, allowExtended: allowExtendedHours}
}

// ClassifyFill returns the sorted evidence codes for one fill against the
// symbol's bar series (sorted by start).
func (c *Classifier) ClassifyFill(p FillProof, bars []market.Bar) []Code {
	idx := market.IndexAt(bars, p.BarStart)
	if idx < 0 {
		return []Code{NoIntradayBars}
	}
	bar := bars[idx]

	var codes []Code
	add := func(cs ...Code) { codes = append(codes, cs...) }

	if bar.Validate() != nil {
		add(BarOHLCInvalid)
	}
	if p.Price < bar.Low || p.Price > bar.High {
		add(PriceOutsideBar)
	}
	if p.Gap {
		add(GapFill)
	}
	if p.Tie {
		add(SameBarTie)
	}
	if p.SessionEnd {
		add(ExitSessionEnd)
	}

	if _, ok, err := c.cal.SessionAt(bar.Start); err != nil || !ok {
		add(SessionViolation)
	}
	if !c.allowExtended {
		if rth, err := c.cal.IsRTH(bar.Start); err != nil || !rth {
			add(RTHViolation)
		}
	}

	switch p.Role {
	case RoleEntry:
		if !p.Time.After(p.SignalTime) || !p.ValidFrom.After(p.SignalTime) ||
			p.BarStart.Before(p.ValidFrom) || !p.BarStart.Before(p.ValidUntil) {
			add(SuspectedLookahead)
		}
		if c.entryTouchedEarlier(p, bars, idx) {
			add(EarliestTouchViolation)
		} else {
			add(EarliestTouchOK)
		}
	case RoleExit:
		// a session-end exit may close on the entry bar itself
		if p.BarStart.Before(p.EntryBar) || p.Time.Before(p.EntryBar) ||
			(!p.SessionEnd && p.BarStart.Equal(p.EntryBar)) {
			add(SuspectedLookahead)
		}
		if c.exitTouchedEarlier(p, bars, idx) {
			add(EarliestTouchViolation)
		} else {
			add(EarliestTouchOK)
		}
	}
	return Merge(codes)
}

// ClassifyTrade merges the codes of a trade's fills. An entry without an
// exit is flagged as an open position.
func (c *Classifier) ClassifyTrade(entry, exit []Code, open bool) ([]Code, Status, error) {
	codes := Merge(entry, exit)
	if open {
		codes = Merge(codes, []Code{OpenPosition})
	}
	st, err := StatusOf(codes)
	return codes, st, err
}

// entryTouchedEarlier scans every bar in [ValidFrom, fill bar) for a touch
// of the entry level.
func (c *Classifier) entryTouchedEarlier(p FillProof, bars []market.Bar, idx int) bool {
	for i := idx - 1; i >= 0 && !bars[i].Start.Before(p.ValidFrom); i-- {
		if entryTouched(p.Side, p.Entry, bars[i]) {
			return true
		}
	}
	return false
}

// exitTouchedEarlier scans the bars after the entry bar for a stop or target
// touch before the exit bar. A session-end exit also requires the exit bar
// itself to be untouched.
func (c *Classifier) exitTouchedEarlier(p FillProof, bars []market.Bar, idx int) bool {
	last := idx - 1
	if p.SessionEnd {
		last = idx
	}
	for i := last; i >= 0 && bars[i].Start.After(p.EntryBar); i-- {
		if stopTouched(p.Side, p.Stop, bars[i]) || targetTouched(p.Side, p.Target, bars[i]) {
			return true
		}
	}
	return false
}

func entryTouched(side market.Side, level float64, b market.Bar) bool {
	if side == market.Short {
		return b.Low <= level
	}
	return b.High >= level
}

func stopTouched(side market.Side, stop *float64, b market.Bar) bool {
	if stop == nil {
		return false
	}
	if side == market.Short {
		return b.High >= *stop
	}
	return b.Low <= *stop
}

func targetTouched(side market.Side, target *float64, b market.Bar) bool {
	if target == nil {
		return false
	}
	if side == market.Short {
		return b.Low <= *target
	}
	return b.High >= *target
}
