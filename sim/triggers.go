package sim

import "github.com/rustyeddy/tradesim/market"

// entryTouched: a long stop-entry triggers when the high reaches the level,
// a short one when the low does.
func entryTouched(side market.Side, level float64, b market.Bar) bool {
	if side == market.Short {
		return b.Low <= level
	}
	return b.High >= level
}

// entryPrice applies the gap rule: if the bar opened through the level the
// level was never available and the fill happens at the open.
func entryPrice(side market.Side, level float64, b market.Bar) (float64, bool) {
	if side == market.Short && b.Open < level {
		return b.Open, true
	}
	if side == market.Long && b.Open > level {
		return b.Open, true
	}
	return level, false
}

func hitStopLoss(side market.Side, stop float64, b market.Bar) bool {
	if side == market.Short {
		return b.High >= stop
	}
	return b.Low <= stop
}

func hitTakeProfit(side market.Side, target float64, b market.Bar) bool {
	if side == market.Short {
		return b.Low <= target
	}
	return b.High >= target
}

// openedThroughStop reports whether the bar opened at or beyond the stop.
func openedThroughStop(side market.Side, stop float64, b market.Bar) bool {
	if side == market.Short {
		return b.Open >= stop
	}
	return b.Open <= stop
}

func openedBeyondTarget(side market.Side, target float64, b market.Bar) bool {
	if side == market.Short {
		return b.Open <= target
	}
	return b.Open >= target
}
