package market

import (
	"fmt"
	"strings"
	"time"
)

// ParseTimeframe accepts the short broker notation (M1, M5, H1, D1, ...) or a
// Go duration string ("5m", "1h").
func ParseTimeframe(tf string) (time.Duration, error) {
	tf = strings.TrimSpace(tf)
	switch strings.ToUpper(tf) {
	case "":
		return 0, fmt.Errorf("timeframe: %w", ErrEmptyField)
	case "M1":
		return time.Minute, nil
	case "M5":
		return 5 * time.Minute, nil
	case "M15":
		return 15 * time.Minute, nil
	case "M30":
		return 30 * time.Minute, nil
	case "H1":
		return time.Hour, nil
	case "H4":
		return 4 * time.Hour, nil
	case "D1":
		return 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(tf)
	if err != nil {
		return 0, fmt.Errorf("unsupported timeframe string: %s", tf)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid timeframe: %s", tf)
	}
	return d, nil
}

// TimeframeString maps a duration back to broker notation when possible.
func TimeframeString(d time.Duration) (string, error) {
	if d <= 0 {
		return "", fmt.Errorf("invalid timeframe: %s", d)
	}
	switch {
	case d < time.Hour && d%time.Minute == 0:
		return fmt.Sprintf("M%d", d/time.Minute), nil
	case d < 24*time.Hour && d%time.Hour == 0:
		return fmt.Sprintf("H%d", d/time.Hour), nil
	case d%(24*time.Hour) == 0:
		return fmt.Sprintf("D%d", d/(24*time.Hour)), nil
	}
	return d.String(), nil
}
