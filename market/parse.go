package market

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ParsePrice parses a decimal price. Empty input returns ErrEmptyField;
// malformed, NaN or infinite input returns a parse error. Nothing is
// defaulted.
func ParsePrice(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrEmptyField
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("bad price %q: %w", s, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("bad price %q: not finite", s)
	}
	return v, nil
}

// ParseOptionalPrice returns nil for empty input and a pointer otherwise.
func ParseOptionalPrice(s string) (*float64, error) {
	v, err := ParsePrice(s)
	if err == ErrEmptyField {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ParseQuantity parses a non-negative quantity.
func ParseQuantity(s string) (float64, error) {
	v, err := ParsePrice(s)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, fmt.Errorf("bad quantity %q: negative", s)
	}
	return v, nil
}

// ParseTimestamp parses RFC3339 / RFC3339Nano and rejects strings without an
// explicit offset with a *NaiveTimestampError.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("timestamp: %w", ErrEmptyField)
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err == nil {
		// time.Parse hands back time.Local when the offset matches the
		// machine zone; pin it to a fixed zone so the result is portable.
		if t.Location() == time.Local {
			_, off := t.Zone()
			t = t.In(time.FixedZone("", off))
		}
		return t, nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05", "2006-01-02T15:04"} {
		if _, err2 := time.Parse(layout, s); err2 == nil {
			return time.Time{}, &NaiveTimestampError{Value: s}
		}
	}
	return time.Time{}, fmt.Errorf("bad time %q: %w", s, err)
}
