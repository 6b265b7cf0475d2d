package sim

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/tradesim/market"
)

// TieBreak decides which exit wins when one bar touches both the stop and
// the target and its open does not already settle the order.
type TieBreak string

const (
	TieStopFirst     TieBreak = "stop_first"
	TieTargetFirst   TieBreak = "target_first"
	TieOpenProximity TieBreak = "open_proximity" // level nearer the open wins; equal distance goes to the stop
)

func ParseTieBreak(s string) (TieBreak, error) {
	switch tb := TieBreak(strings.ToLower(strings.TrimSpace(s))); tb {
	case TieStopFirst, TieTargetFirst, TieOpenProximity:
		return tb, nil
	case "":
		return "", fmt.Errorf("tie break: %w", market.ErrEmptyField)
	default:
		return "", fmt.Errorf("unknown tie break %q", s)
	}
}

// ExitHorizon bounds how long an entered position may stay open.
type ExitHorizon string

const (
	HorizonSessionEnd  ExitHorizon = "session_end"
	HorizonValidityEnd ExitHorizon = "validity_end"
)

func ParseExitHorizon(s string) (ExitHorizon, error) {
	switch h := ExitHorizon(strings.ToLower(strings.TrimSpace(s))); h {
	case HorizonSessionEnd, HorizonValidityEnd:
		return h, nil
	case "":
		return "", fmt.Errorf("exit horizon: %w", market.ErrEmptyField)
	default:
		return "", fmt.Errorf("unknown exit horizon %q", s)
	}
}

type Costs struct {
	SlippageBps float64
	FeeBps      float64
	FeePerFill  decimal.Decimal
}

type Config struct {
	RunID       string
	TieBreak    TieBreak
	ExitHorizon ExitHorizon
	Costs       Costs

	// Netting allows at most one open position per symbol.
	Netting bool

	// RunEnd is the requested end of the run. A position whose horizon lies
	// beyond both the data and RunEnd is left open.
	RunEnd time.Time
}

func DefaultConfig() Config {
	return Config{
		TieBreak:    TieStopFirst,
		ExitHorizon: HorizonSessionEnd,
		Netting:     true,
	}
}

func (c Config) Validate() error {
	if _, err := ParseTieBreak(string(c.TieBreak)); err != nil {
		return err
	}
	if _, err := ParseExitHorizon(string(c.ExitHorizon)); err != nil {
		return err
	}
	if c.Costs.SlippageBps < 0 || c.Costs.FeeBps < 0 || c.Costs.FeePerFill.IsNegative() {
		return fmt.Errorf("costs must be non-negative")
	}
	return nil
}
