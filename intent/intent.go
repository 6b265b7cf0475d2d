// Package intent turns strategy signals into frozen, tradable order intents.
package intent

import (
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/tradesim/market"
)

type Kind string

const KindStopEntry Kind = "stop_entry"

// ErrInvalidWindow marks an intent whose validity end is not strictly after
// its validity start.
var ErrInvalidWindow = errors.New("invalid validity window")

// Spec carries the field values of an intent before it is frozen.
type Spec struct {
	ID       string
	SignalID string
	Symbol   string
	Side     market.Side
	Kind     Kind

	Entry  float64
	Stop   *float64
	Target *float64

	ValidFrom  time.Time
	ValidUntil time.Time

	OCOGroup string
	Quantity float64

	SignalTime      time.Time
	Strategy        string
	StrategyVersion string
	Meta            map[string]string
}

// Intent is an order derived from exactly one signal. Its fields are
// unexported and copied in by Freeze, so a built intent never changes.
type Intent struct {
	id       string
	signalID string
	symbol   string
	side     market.Side
	kind     Kind

	entry     float64
	stop      float64
	hasStop   bool
	target    float64
	hasTarget bool

	validFrom  time.Time
	validUntil time.Time

	ocoGroup string
	quantity float64

	signalTime      time.Time
	strategy        string
	strategyVersion string
	meta            map[string]string
}

// Freeze copies s into an immutable Intent. It does not validate; callers
// at a trust boundary use Validate.
func Freeze(s Spec) Intent {
	in := Intent{
		id:              s.ID,
		signalID:        s.SignalID,
		symbol:          s.Symbol,
		side:            s.Side,
		kind:            s.Kind,
		entry:           s.Entry,
		validFrom:       s.ValidFrom,
		validUntil:      s.ValidUntil,
		ocoGroup:        s.OCOGroup,
		quantity:        s.Quantity,
		signalTime:      s.SignalTime,
		strategy:        s.Strategy,
		strategyVersion: s.StrategyVersion,
		meta:            CopyMeta(s.Meta),
	}
	if in.kind == "" {
		in.kind = KindStopEntry
	}
	if s.Stop != nil {
		in.stop, in.hasStop = *s.Stop, true
	}
	if s.Target != nil {
		in.target, in.hasTarget = *s.Target, true
	}
	return in
}

func (i Intent) ID() string              { return i.id }
func (i Intent) SignalID() string        { return i.signalID }
func (i Intent) Symbol() string          { return i.symbol }
func (i Intent) Side() market.Side       { return i.side }
func (i Intent) Kind() Kind              { return i.kind }
func (i Intent) Entry() float64          { return i.entry }
func (i Intent) Stop() (float64, bool)   { return i.stop, i.hasStop }
func (i Intent) Target() (float64, bool) { return i.target, i.hasTarget }
func (i Intent) ValidFrom() time.Time    { return i.validFrom }
func (i Intent) ValidUntil() time.Time   { return i.validUntil }
func (i Intent) OCOGroup() string        { return i.ocoGroup }
func (i Intent) Quantity() float64       { return i.quantity }
func (i Intent) SignalTime() time.Time   { return i.signalTime }
func (i Intent) Strategy() string        { return i.strategy }
func (i Intent) StrategyVersion() string { return i.strategyVersion }

// Meta returns a copy of the provenance carried over from the signal.
func (i Intent) Meta() map[string]string { return CopyMeta(i.meta) }

// CopyMeta returns a copy of m, or nil when m is empty.
func CopyMeta(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// StopPtr and TargetPtr return fresh copies for APIs that take optional
// levels as pointers.
func (i Intent) StopPtr() *float64 {
	if !i.hasStop {
		return nil
	}
	v := i.stop
	return &v
}

func (i Intent) TargetPtr() *float64 {
	if !i.hasTarget {
		return nil
	}
	v := i.target
	return &v
}

// Validate checks the invariants every intent must satisfy before it can be
// simulated.
func (i Intent) Validate() error {
	for _, t := range []time.Time{i.signalTime, i.validFrom, i.validUntil} {
		if err := market.CheckTimestamp(t); err != nil {
			return fmt.Errorf("intent %s: %w", i.id, err)
		}
	}
	if !i.validUntil.After(i.validFrom) {
		return fmt.Errorf("intent %s: [%s, %s): %w", i.id,
			i.validFrom.Format(time.RFC3339), i.validUntil.Format(time.RFC3339), ErrInvalidWindow)
	}
	if !i.side.Valid() {
		return fmt.Errorf("intent %s: invalid side %s", i.id, i.side)
	}
	if i.quantity <= 0 {
		return fmt.Errorf("intent %s: non-positive quantity %g", i.id, i.quantity)
	}
	return nil
}
