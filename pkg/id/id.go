// Package id derives stable identifiers from the semantic content of the
// objects they name. Identical inputs yield identical IDs on any machine and
// in any run; nothing here reads the clock or a random source.
package id

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// namespace scopes every name-based UUID this package produces.
var namespace = uuid.MustParse("6f1c1d2e-8a43-5b7c-9e0f-3a2b1c4d5e6f")

// Type prefixes make IDs self-describing in artifacts and logs.
const (
	PrefixSignal = "sig_"
	PrefixOrder  = "ord_"
	PrefixTrade  = "trd_"
	PrefixFill   = "fil_"
	PrefixOCO    = "oco_"

	PrefixInvalidRun = "run_invalid_"
)

// sep is the ASCII unit separator; it cannot appear in symbols or
// formatted numbers, so joined fields are unambiguous.
const sep = "\x1f"

// Hash returns prefix + a name-based (SHA-1, v5) UUID over the canonically
// joined fields.
func Hash(prefix string, fields ...string) string {
	u := uuid.NewSHA1(namespace, []byte(strings.Join(fields, sep)))
	return prefix + strings.ReplaceAll(u.String(), "-", "")
}

// Time renders t canonically: UTC, RFC3339 with nanoseconds.
func Time(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Float renders f with the shortest representation that round-trips.
func Float(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func optFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return Float(*f)
}

// SignalID = H(run_id, symbol, signal_ts, side, key levels).
func SignalID(runID, symbol string, ts time.Time, side string, entry float64, stop, target *float64) string {
	return Hash(PrefixSignal, runID, symbol, Time(ts), side, Float(entry), optFloat(stop), optFloat(target))
}

// OrderID = H(signal_id, validity_start, validity_end, entry_level).
func OrderID(signalID string, validFrom, validUntil time.Time, entry float64) string {
	return Hash(PrefixOrder, signalID, Time(validFrom), Time(validUntil), Float(entry))
}

// TradeID = H(order_id, entry_fill_ts).
func TradeID(orderID string, entryFill time.Time) string {
	return Hash(PrefixTrade, orderID, Time(entryFill))
}

// FillID = H(trade_id, fill_role, fill_ts).
func FillID(tradeID, role string, fillTS time.Time) string {
	return Hash(PrefixFill, tradeID, role, Time(fillTS))
}

// OCOGroup names the one-cancels-other group for a strategy's pairing key.
func OCOGroup(runID, symbol, key string) string {
	return Hash(PrefixOCO, runID, symbol, key)
}

// RunID returns a ULID whose time component is the run's requested start and
// whose entropy is the SHA-256 of the run fingerprint (typically the
// serialized configuration). Runs sort by start and repeat exactly.
func RunID(start time.Time, fingerprint []byte) (string, error) {
	if start.IsZero() {
		return "", fmt.Errorf("run id: start time is required")
	}
	sum := sha256.Sum256(fingerprint)
	u, err := ulid.New(ulid.Timestamp(start), bytes.NewReader(sum[:]))
	if err != nil {
		return "", fmt.Errorf("run id: %w", err)
	}
	return u.String(), nil
}

// InvalidRunID names a run whose configuration cannot produce a RunID, so
// its failure can still be persisted.
func InvalidRunID(fingerprint []byte) string {
	return Hash(PrefixInvalidRun, string(fingerprint))
}
