// Package calendar resolves trading-session membership for a market.
//
// Every comparison happens in the market's local civil time: session
// boundaries are built with time.Date in the market location, so DST
// transitions move the UTC instants, never the local wall-clock times.
package calendar

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/tradesim/market"
)

// NaiveTimestampError is returned for timestamps without an explicit zone.
type NaiveTimestampError = market.NaiveTimestampError

// ErrOutsideSession is returned by SessionEnd for a timestamp that is not
// inside any configured session.
var ErrOutsideSession = errors.New("timestamp is outside every session")

// lookahead bounds the search for the next session (long weekends,
// holiday clusters).
const lookaheadDays = 14

// Window is a local wall-clock range such as 09:30-16:00. An End at or
// before Start means the window runs past midnight.
type Window struct {
	Name  string `json:"name" yaml:"name" mapstructure:"name"`
	Start string `json:"start" yaml:"start" mapstructure:"start"`
	End   string `json:"end" yaml:"end" mapstructure:"end"`
}

type Config struct {
	Timezone string   `json:"timezone" yaml:"timezone" mapstructure:"timezone"`
	Sessions []Window `json:"sessions" yaml:"sessions" mapstructure:"sessions"`
	RTH      Window   `json:"rth" yaml:"rth" mapstructure:"rth"`
	// Weekdays lists trading days by name ("mon".."sun"). Empty means Mon-Fri.
	Weekdays []string `json:"weekdays,omitempty" yaml:"weekdays,omitempty" mapstructure:"weekdays"`
	// Holidays are local dates (2006-01-02) with no sessions.
	Holidays []string `json:"holidays,omitempty" yaml:"holidays,omitempty" mapstructure:"holidays"`
}

// Session is one concrete occurrence of a window on a trading day.
type Session struct {
	Name  string
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies in [Start, End).
func (s Session) Contains(t time.Time) bool {
	return !t.Before(s.Start) && t.Before(s.End)
}

type clock struct {
	name       string
	start, end int // minutes after local midnight
}

type Calendar struct {
	loc      *time.Location
	sessions []clock
	rth      clock
	weekdays map[time.Weekday]bool
	holidays map[string]bool
}

// New validates cfg and loads the market location.
func New(cfg Config) (*Calendar, error) {
	if strings.TrimSpace(cfg.Timezone) == "" {
		return nil, fmt.Errorf("calendar: timezone is required")
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("calendar: load timezone %q: %w", cfg.Timezone, err)
	}

	rthWin := cfg.RTH
	if rthWin.Start == "" && rthWin.End == "" {
		rthWin = Window{Name: "rth", Start: "09:30", End: "16:00"}
	}
	if rthWin.Name == "" {
		rthWin.Name = "rth"
	}
	rth, err := parseWindow(rthWin)
	if err != nil {
		return nil, err
	}

	c := &Calendar{
		loc:      loc,
		rth:      rth,
		weekdays: map[time.Weekday]bool{},
		holidays: map[string]bool{},
	}

	wins := cfg.Sessions
	if len(wins) == 0 {
		wins = []Window{rthWin}
	}
	for _, w := range wins {
		cl, err := parseWindow(w)
		if err != nil {
			return nil, err
		}
		c.sessions = append(c.sessions, cl)
	}
	sort.SliceStable(c.sessions, func(i, j int) bool { return c.sessions[i].start < c.sessions[j].start })

	if len(cfg.Weekdays) == 0 {
		for d := time.Monday; d <= time.Friday; d++ {
			c.weekdays[d] = true
		}
	}
	for _, name := range cfg.Weekdays {
		d, err := parseWeekday(name)
		if err != nil {
			return nil, err
		}
		c.weekdays[d] = true
	}

	for _, h := range cfg.Holidays {
		if _, err := time.Parse("2006-01-02", h); err != nil {
			return nil, fmt.Errorf("calendar: bad holiday %q: %w", h, err)
		}
		c.holidays[h] = true
	}
	return c, nil
}

// Location returns the market location.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// ParseTimestamp parses an RFC3339 timestamp; strings without an explicit
// offset fail with *NaiveTimestampError.
func ParseTimestamp(s string) (time.Time, error) {
	return market.ParseTimestamp(s)
}

// SessionAt returns the configured session containing ts, if any.
func (c *Calendar) SessionAt(ts time.Time) (Session, bool, error) {
	if err := market.CheckTimestamp(ts); err != nil {
		return Session{}, false, err
	}
	s, ok := c.find(c.sessions, ts)
	return s, ok, nil
}

// IsRTH reports whether ts falls within regular trading hours.
func (c *Calendar) IsRTH(ts time.Time) (bool, error) {
	if err := market.CheckTimestamp(ts); err != nil {
		return false, err
	}
	_, ok := c.find([]clock{c.rth}, ts)
	return ok, nil
}

// SessionEnd returns the end of the session containing ts.
func (c *Calendar) SessionEnd(ts time.Time) (time.Time, error) {
	s, ok, err := c.SessionAt(ts)
	if err != nil {
		return time.Time{}, err
	}
	if !ok {
		return time.Time{}, fmt.Errorf("session end for %s: %w", ts.Format(time.RFC3339), ErrOutsideSession)
	}
	return s.End, nil
}

// NextSessionStart returns the session containing ts, or else the first
// session starting after ts.
func (c *Calendar) NextSessionStart(ts time.Time) (Session, error) {
	s, ok, err := c.SessionAt(ts)
	if err != nil {
		return Session{}, err
	}
	if ok {
		return s, nil
	}
	local := ts.In(c.loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc)
	for i := 0; i <= lookaheadDays; i++ {
		for _, s := range c.sessionsOn(day.AddDate(0, 0, i), c.sessions) {
			if s.Start.After(ts) {
				return s, nil
			}
		}
	}
	return Session{}, fmt.Errorf("calendar: no session within %d days of %s", lookaheadDays, ts.Format(time.RFC3339))
}

// NextBarBoundary returns the first bar boundary strictly after ts, with bars
// anchored at the session start, and the session it belongs to. A boundary
// that would land on or past the session end rolls to the next session.
func (c *Calendar) NextBarBoundary(ts time.Time, tf time.Duration) (time.Time, Session, error) {
	if tf <= 0 {
		return time.Time{}, Session{}, fmt.Errorf("calendar: non-positive timeframe %s", tf)
	}
	s, err := c.NextSessionStart(ts)
	if err != nil {
		return time.Time{}, Session{}, err
	}
	if s.Start.After(ts) {
		return s.Start, s, nil
	}
	k := ts.Sub(s.Start)/tf + 1
	next := s.Start.Add(k * tf)
	if next.Before(s.End) {
		return next, s, nil
	}
	// s.End is outside s, so this yields the following session (which may
	// start exactly at s.End for back-to-back windows).
	s, err = c.NextSessionStart(s.End)
	if err != nil {
		return time.Time{}, Session{}, err
	}
	return s.Start, s, nil
}

func (c *Calendar) find(clocks []clock, ts time.Time) (Session, bool) {
	local := ts.In(c.loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc)
	// a window crossing midnight may have opened the previous day
	for _, d := range []time.Time{day.AddDate(0, 0, -1), day} {
		for _, s := range c.sessionsOn(d, clocks) {
			if s.Contains(ts) {
				return s, true
			}
		}
	}
	return Session{}, false
}

func (c *Calendar) sessionsOn(day time.Time, clocks []clock) []Session {
	if !c.weekdays[day.Weekday()] || c.holidays[day.Format("2006-01-02")] {
		return nil
	}
	out := make([]Session, 0, len(clocks))
	for _, cl := range clocks {
		start := time.Date(day.Year(), day.Month(), day.Day(), cl.start/60, cl.start%60, 0, 0, c.loc)
		endDay := day
		if cl.end <= cl.start {
			endDay = day.AddDate(0, 0, 1)
		}
		end := time.Date(endDay.Year(), endDay.Month(), endDay.Day(), cl.end/60, cl.end%60, 0, 0, c.loc)
		out = append(out, Session{Name: cl.name, Start: start, End: end})
	}
	return out
}

func parseWindow(w Window) (clock, error) {
	start, err := parseHM(w.Start)
	if err != nil {
		return clock{}, fmt.Errorf("calendar: window %q start: %w", w.Name, err)
	}
	end, err := parseHM(w.End)
	if err != nil {
		return clock{}, fmt.Errorf("calendar: window %q end: %w", w.Name, err)
	}
	name := w.Name
	if name == "" {
		name = w.Start + "-" + w.End
	}
	return clock{name: name, start: start, end: end}, nil
}

func parseHM(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, market.ErrEmptyField
	}
	h, m, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("bad clock time %q (want HH:MM)", s)
	}
	hh, err := strconv.Atoi(h)
	if err != nil || hh < 0 || hh > 24 {
		return 0, fmt.Errorf("bad hour in %q", s)
	}
	mm, err := strconv.Atoi(m)
	if err != nil || mm < 0 || mm > 59 || (hh == 24 && mm != 0) {
		return 0, fmt.Errorf("bad minute in %q", s)
	}
	return hh*60 + mm, nil
}

func parseWeekday(s string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sun", "sunday":
		return time.Sunday, nil
	case "mon", "monday":
		return time.Monday, nil
	case "tue", "tuesday":
		return time.Tuesday, nil
	case "wed", "wednesday":
		return time.Wednesday, nil
	case "thu", "thursday":
		return time.Thursday, nil
	case "fri", "friday":
		return time.Friday, nil
	case "sat", "saturday":
		return time.Saturday, nil
	}
	return 0, fmt.Errorf("calendar: unknown weekday %q", s)
}
