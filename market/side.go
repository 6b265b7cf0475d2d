package market

import (
	"fmt"
	"strings"
)

// Side: +1 long, -1 short
type Side int8

const (
	Long  Side = +1
	Short Side = -1
)

func (s Side) String() string {
	switch s {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return fmt.Sprintf("side(%d)", int8(s))
	}
}

// Sign returns +1 for long and -1 for short.
func (s Side) Sign() float64 {
	return float64(s)
}

func (s Side) Valid() bool {
	return s == Long || s == Short
}

// ParseSide accepts long/short and buy/sell in any case.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "long", "buy":
		return Long, nil
	case "short", "sell":
		return Short, nil
	case "":
		return 0, fmt.Errorf("side: %w", ErrEmptyField)
	default:
		return 0, fmt.Errorf("unknown side %q", s)
	}
}
