package market

import (
	"errors"
	"fmt"
	"time"
)

// ErrEmptyField marks a missing value. It is distinct from a value that
// parsed to zero.
var ErrEmptyField = errors.New("empty field")

// Contract violation codes. These are the stable identifiers surfaced in
// run results when a data or configuration contract is broken.
const (
	CodeOHLCInvalid         = "OHLC_INVALID"
	CodeSeriesNotMonotonic  = "SERIES_NOT_MONOTONIC"
	CodeRTHViolation        = "RTH_VIOLATION"
	CodeUnknownEvidenceCode = "UNKNOWN_EVIDENCE_CODE"
	CodeNaiveTimestamp      = "NAIVE_TIMESTAMP"
	CodeTimeframeMismatch   = "TIMEFRAME_MISMATCH"
)

// ContractError is a named contract violation detected at a boundary.
type ContractError struct {
	Code   string
	Symbol string
	Detail string
}

func (e *ContractError) Error() string {
	if e.Symbol == "" {
		return fmt.Sprintf("contract violation %s: %s", e.Code, e.Detail)
	}
	return fmt.Sprintf("contract violation %s (%s): %s", e.Code, e.Symbol, e.Detail)
}

// NaiveTimestampError is returned for a timestamp that carries no explicit
// zone. In Go that is the zero time, a time in time.Local (whose meaning
// depends on the machine), or a string without an offset.
type NaiveTimestampError struct {
	Value string
}

func (e *NaiveTimestampError) Error() string {
	return fmt.Sprintf("naive timestamp %q: an explicit zone or offset is required", e.Value)
}

// CheckTimestamp returns a *NaiveTimestampError when t has no usable zone.
func CheckTimestamp(t time.Time) error {
	if t.IsZero() {
		return &NaiveTimestampError{Value: "0001-01-01T00:00:00"}
	}
	if t.Location() == time.Local {
		return &NaiveTimestampError{Value: t.Format("2006-01-02T15:04:05.999999999")}
	}
	return nil
}
