package intent

import "time"

// Rejection reasons. These strings appear in rejections.csv and logs.
const (
	ReasonInvalidValidityWindow = "invalid_validity_window"
	ReasonMissingLevel          = "missing_level"
	ReasonInvalidLevels         = "invalid_levels"
	ReasonInvalidSide           = "invalid_side"
	ReasonZeroQuantity          = "zero_quantity"
	ReasonRiskCheck             = "risk_check_failed"
	ReasonOutsideRunWindow      = "outside_run_window"
	ReasonSymbolNotConfigured   = "symbol_not_configured"
)

// Rejection records a signal that did not become an intent.
type Rejection struct {
	SignalID   string
	IntentID   string // set when the rejected intent was already identified
	Symbol     string
	SignalTime time.Time
	Reason     string
	Detail     string
	Meta       map[string]string
}
