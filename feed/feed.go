// Package feed reads bar series and strategy signals from files and SQLite
// databases for the backtest runner.
package feed

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}

// header maps column names to their index and checks that every required
// column is present.
func header(row []string, required ...string) (map[string]int, error) {
	idx := make(map[string]int, len(row))
	for i, name := range row {
		idx[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range required {
		if _, ok := idx[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}
	return idx, nil
}

// field returns the named column of row, or "" when the row is short or the
// column is absent.
func field(row []string, idx map[string]int, name string) string {
	i, ok := idx[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
