package backtest

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rustyeddy/tradesim/market"
)

// RunStatus is the terminal state of a run. It is one of exactly three
// values.
type RunStatus string

const (
	StatusSuccess            RunStatus = "SUCCESS"
	StatusFailedPrecondition RunStatus = "FAILED_PRECONDITION"
	StatusError              RunStatus = "ERROR"
)

// Precondition reasons.
const (
	ReasonNoSymbols            = "no_symbols"
	ReasonInsufficientCoverage = "insufficient_coverage"
)

// Stable identifiers for unexpected failures.
const (
	ErrIDLedgerMismatch = "LEDGER_MISMATCH"
	ErrIDLedgerTime     = "LEDGER_TIME_REGRESSION"
	ErrIDArtifactWrite  = "ARTIFACT_WRITE"
	ErrIDSimPanic       = "SIM_PANIC"
	ErrIDDataLoad       = "DATA_LOAD"
	ErrIDConfig         = "CONFIG_INVALID"
	ErrIDInternal       = "INTERNAL"
)

// RunResult is what run_result.json records.
type RunResult struct {
	RunID   string            `json:"run_id"`
	Status  RunStatus         `json:"status"`
	Reason  string            `json:"reason,omitempty"`
	ErrorID string            `json:"error_id,omitempty"`
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// PreconditionError stops a run before any simulation step executes.
type PreconditionError struct {
	Reason  string
	Details map[string]string
}

func (e *PreconditionError) Error() string {
	if len(e.Details) == 0 {
		return "precondition failed: " + e.Reason
	}
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + e.Details[k]
	}
	return fmt.Sprintf("precondition failed: %s (%s)", e.Reason, strings.Join(parts, " "))
}

// InternalError wraps an unexpected failure with a stable ID and the
// context needed to reproduce it.
type InternalError struct {
	ID       string
	RunID    string
	Symbol   string
	IntentID string
	Err      error
}

func (e *InternalError) Error() string {
	var b strings.Builder
	b.WriteString(e.ID)
	if e.Symbol != "" {
		fmt.Fprintf(&b, " symbol=%s", e.Symbol)
	}
	if e.IntentID != "" {
		fmt.Fprintf(&b, " intent=%s", e.IntentID)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *InternalError) Unwrap() error { return e.Err }

// ResultFor maps the outcome of a run to its terminal result.
func ResultFor(runID string, err error) RunResult {
	res := RunResult{RunID: runID, Status: StatusSuccess}
	if err == nil {
		return res
	}
	res.Message = err.Error()

	var (
		pre      *PreconditionError
		contract *market.ContractError
		naive    *market.NaiveTimestampError
		internal *InternalError
	)
	switch {
	case errors.As(err, &pre):
		res.Status = StatusFailedPrecondition
		res.Reason = pre.Reason
		res.Details = pre.Details
	case errors.As(err, &internal):
		res.Status = StatusError
		res.ErrorID = internal.ID
		res.Details = map[string]string{}
		if internal.Symbol != "" {
			res.Details["symbol"] = internal.Symbol
		}
		if internal.IntentID != "" {
			res.Details["intent_id"] = internal.IntentID
		}
	case errors.As(err, &contract):
		res.Status = StatusError
		res.ErrorID = contract.Code
		res.Details = map[string]string{"detail": contract.Detail}
		if contract.Symbol != "" {
			res.Details["symbol"] = contract.Symbol
		}
	case errors.As(err, &naive):
		res.Status = StatusError
		res.ErrorID = market.CodeNaiveTimestamp
		res.Details = map[string]string{"value": naive.Value}
	default:
		res.Status = StatusError
		res.ErrorID = ErrIDInternal
	}
	return res
}
