package market

import "time"

// Signal is a candidate trade setup produced by an external strategy. It is
// consumed exactly once by the intent builder and never modified.
type Signal struct {
	Symbol    string
	Side      Side
	Timestamp time.Time // instant the signal became known

	Entry  float64
	Stop   *float64
	Target *float64

	Strategy        string
	StrategyVersion string

	// OCOKey pairs legs from the same setup (e.g. a long and a short
	// breakout). Empty means no pairing.
	OCOKey string

	Meta map[string]string
}

// Levels returns the stop and target as values plus presence flags.
func (s Signal) Levels() (stop float64, hasStop bool, target float64, hasTarget bool) {
	if s.Stop != nil {
		stop, hasStop = *s.Stop, true
	}
	if s.Target != nil {
		target, hasTarget = *s.Target, true
	}
	return
}

// Level is a small helper for building optional levels in literals.
func Level(v float64) *float64 {
	return &v
}
