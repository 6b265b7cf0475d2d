// Package evidence defines the closed vocabulary of proof codes attached to
// fills and trades, and the classifier that derives them from bar data.
package evidence

import (
	"fmt"
	"sort"

	"github.com/rustyeddy/tradesim/market"
)

// Version identifies the vocabulary. Bump it whenever a code is added,
// removed or changes severity.
const Version = "evidence/v1"

type Code string

const (
	EarliestTouchOK        Code = "EARLIEST_TOUCH_OK"
	GapFill                Code = "GAP_FILL"
	ExitSessionEnd         Code = "EXIT_SESSION_END"
	SameBarTie             Code = "SAME_BAR_TIE"
	NoIntradayBars         Code = "NO_INTRADAY_BARS"
	OpenPosition           Code = "OPEN_POSITION"
	BarOHLCInvalid         Code = "BAR_OHLC_INVALID"
	PriceOutsideBar        Code = "PRICE_OUTSIDE_BAR"
	SessionViolation       Code = "SESSION_VIOLATION"
	SuspectedLookahead     Code = "SUSPECTED_LOOKAHEAD"
	EarliestTouchViolation Code = "EARLIEST_TOUCH_VIOLATION"
	RTHViolation           Code = "RTH_VIOLATION"
)

type Severity int

const (
	Info Severity = iota
	Warn
	Fail
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Warn:
		return "warn"
	case Fail:
		return "fail"
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

type Status string

const (
	StatusPass Status = "PASS"
	StatusWarn Status = "WARN"
	StatusFail Status = "FAIL"
)

var vocabulary = map[Code]Severity{
	EarliestTouchOK:        Info,
	GapFill:                Info,
	ExitSessionEnd:         Info,
	SameBarTie:             Warn,
	NoIntradayBars:         Warn,
	OpenPosition:           Warn,
	BarOHLCInvalid:         Fail,
	PriceOutsideBar:        Fail,
	SessionViolation:       Fail,
	SuspectedLookahead:     Fail,
	EarliestTouchViolation: Fail,
	RTHViolation:           Fail,
}

// Vocabulary returns every known code in lexical order.
func Vocabulary() []Code {
	out := make([]Code, 0, len(vocabulary))
	for c := range vocabulary {
		out = append(out, c)
	}
	sortCodes(out)
	return out
}

func SeverityOf(c Code) (Severity, error) {
	s, ok := vocabulary[c]
	if !ok {
		return 0, unknown(c)
	}
	return s, nil
}

// Validate fails on the first code outside the vocabulary.
func Validate(codes []Code) error {
	for _, c := range codes {
		if _, ok := vocabulary[c]; !ok {
			return unknown(c)
		}
	}
	return nil
}

// StatusOf maps the worst severity among codes to a status. No codes is a
// PASS.
func StatusOf(codes []Code) (Status, error) {
	worst := Info
	for _, c := range codes {
		s, err := SeverityOf(c)
		if err != nil {
			return "", err
		}
		if s > worst {
			worst = s
		}
	}
	switch worst {
	case Fail:
		return StatusFail, nil
	case Warn:
		return StatusWarn, nil
	}
	return StatusPass, nil
}

// Merge returns the sorted union of the given code sets.
func Merge(sets ...[]Code) []Code {
	seen := map[Code]bool{}
	var out []Code
	for _, set := range sets {
		for _, c := range set {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	sortCodes(out)
	return out
}

func sortCodes(cs []Code) {
	sort.Slice(cs, func(i, j int) bool { return cs[i] < cs[j] })
}

func unknown(c Code) error {
	return &market.ContractError{
		Code:   market.CodeUnknownEvidenceCode,
		Detail: fmt.Sprintf("code %q is not in %s", string(c), Version),
	}
}
