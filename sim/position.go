package sim

import (
	"math"
	"time"

	"github.com/rustyeddy/tradesim/intent"
	"github.com/rustyeddy/tradesim/market"
)

// position is an entered intent waiting for its exit.
type position struct {
	in       intent.Intent
	tradeID  string
	entryIdx int
	entryBar market.Bar
	lastBar  market.Bar // last bar seen before the horizon
	horizon  time.Time
}

type exitHit struct {
	price  float64
	reason ExitReason
	gap    bool
	tie    bool
}

// checkExit applies stop/target matching to one bar after the entry bar.
// The open settles the order first: a bar that opens through the stop or
// beyond the target exits there. Otherwise a double touch goes to tb.
func (p *position) checkExit(b market.Bar, tb TieBreak) (exitHit, bool) {
	side := p.in.Side()
	stop, hasStop := p.in.Stop()
	target, hasTarget := p.in.Target()

	stopHit := hasStop && hitStopLoss(side, stop, b)
	targetHit := hasTarget && hitTakeProfit(side, target, b)

	switch {
	case stopHit && openedThroughStop(side, stop, b):
		return exitHit{price: b.Open, reason: ExitStopLoss, gap: b.Open != stop}, true
	case targetHit && openedBeyondTarget(side, target, b):
		return exitHit{price: b.Open, reason: ExitTakeProfit, gap: b.Open != target}, true
	case stopHit && targetHit:
		if stopWinsTie(tb, b.Open, stop, target) {
			return exitHit{price: stop, reason: ExitStopLoss, tie: true}, true
		}
		return exitHit{price: target, reason: ExitTakeProfit, tie: true}, true
	case stopHit:
		return exitHit{price: stop, reason: ExitStopLoss}, true
	case targetHit:
		return exitHit{price: target, reason: ExitTakeProfit}, true
	}
	return exitHit{}, false
}

func stopWinsTie(tb TieBreak, open, stop, target float64) bool {
	switch tb {
	case TieTargetFirst:
		return false
	case TieOpenProximity:
		return math.Abs(open-stop) <= math.Abs(target-open)
	default:
		return true
	}
}
