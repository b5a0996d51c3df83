package reporting

import (
	"errors"
	"fmt"
	"time"
)

type PeriodKind string

const (
	PeriodWeekly    PeriodKind = "weekly"
	PeriodPastWeek  PeriodKind = "past_week"
	PeriodMonthly   PeriodKind = "monthly"
	PeriodQuarterly PeriodKind = "quarterly"
	PeriodYearly    PeriodKind = "yearly"
	PeriodAll       PeriodKind = "all"
	PeriodCustom    PeriodKind = "custom"
)

// ErrUnknownPeriod is returned for unrecognized period kinds. Unknown kinds
// are rejected uniformly rather than silently treated as monthly.
var ErrUnknownPeriod = errors.New("unknown reporting period")

// Anchor fixes where reporting weeks begin: a weekday and hour in a named
// timezone. The business rule is "the reporting week starts Thursday 14:00
// Asia/Amman" unless configured otherwise.
type Anchor struct {
	Location *time.Location
	Weekday  time.Weekday
	Hour     int
}

// Window is a resolved reporting interval. Start/End are nil when unbounded.
// Every kind is half-open [Start, End) except custom, which is inclusive of
// its end instant (the end of the chosen day at 23:59:59.999).
type Window struct {
	Kind         PeriodKind
	Start        *time.Time
	End          *time.Time
	inclusiveEnd bool
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if w.Start != nil && t.Before(*w.Start) {
		return false
	}
	if w.End != nil {
		if w.inclusiveEnd {
			return !t.After(*w.End)
		}
		return t.Before(*w.End)
	}
	return true
}

// Echo is the resolved window as reporting endpoints return it.
type Echo struct {
	Type      string `json:"type"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

func (w Window) Echo() Echo {
	e := Echo{Type: string(w.Kind)}
	if w.Start != nil {
		e.StartDate = w.Start.UTC().Format(time.RFC3339)
	}
	if w.End != nil {
		e.EndDate = w.End.UTC().Format(time.RFC3339)
	}
	return e
}

const customDateLayout = "2006-01-02"

// Resolve computes the window for a period kind at the given instant. The
// weekly boundary is re-derived from now on every call; a long-lived process
// crosses anchor instants as time advances and must never cache it.
func Resolve(kind PeriodKind, now time.Time, anchor Anchor, customStart, customEnd string) (Window, error) {
	loc := anchor.Location
	if loc == nil {
		loc = time.UTC
	}
	switch kind {
	case PeriodWeekly:
		start := weekStart(now, anchor)
		end := start.AddDate(0, 0, 7)
		su, eu := start.UTC(), end.UTC()
		return Window{Kind: kind, Start: &su, End: &eu}, nil
	case PeriodPastWeek:
		end := weekStart(now, anchor)
		start := end.AddDate(0, 0, -7)
		su, eu := start.UTC(), end.UTC()
		return Window{Kind: kind, Start: &su, End: &eu}, nil
	case PeriodMonthly:
		return relativeWindow(kind, now, 30), nil
	case PeriodQuarterly:
		return relativeWindow(kind, now, 90), nil
	case PeriodYearly:
		return relativeWindow(kind, now, 365), nil
	case PeriodAll:
		return Window{Kind: kind}, nil
	case PeriodCustom:
		if customStart == "" || customEnd == "" {
			return Window{}, errors.New("custom period requires start and end dates")
		}
		sd, err := time.ParseInLocation(customDateLayout, customStart, loc)
		if err != nil {
			return Window{}, fmt.Errorf("invalid start date %q: %w", customStart, err)
		}
		ed, err := time.ParseInLocation(customDateLayout, customEnd, loc)
		if err != nil {
			return Window{}, fmt.Errorf("invalid end date %q: %w", customEnd, err)
		}
		if ed.Before(sd) {
			return Window{}, errors.New("end date before start date")
		}
		start := time.Date(sd.Year(), sd.Month(), sd.Day(), 0, 0, 0, 0, loc)
		end := time.Date(ed.Year(), ed.Month(), ed.Day(), 23, 59, 59, int(999*time.Millisecond), loc)
		su, eu := start.UTC(), end.UTC()
		return Window{Kind: kind, Start: &su, End: &eu, inclusiveEnd: true}, nil
	default:
		return Window{}, fmt.Errorf("%w: %q", ErrUnknownPeriod, kind)
	}
}

// weekStart returns the most recent anchor instant at or before now: the last
// occurrence of the anchor weekday at the anchor hour in the anchor timezone.
// On the anchor weekday itself, times before the anchor hour still belong to
// the previous week.
func weekStart(now time.Time, anchor Anchor) time.Time {
	loc := anchor.Location
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	days := (int(local.Weekday()) - int(anchor.Weekday) + 7) % 7
	if days == 0 && local.Hour() < anchor.Hour {
		days = 7
	}
	return time.Date(local.Year(), local.Month(), local.Day()-days, anchor.Hour, 0, 0, 0, loc)
}

// relativeWindow is "now minus N days", open-ended. Evaluated at query time,
// never frozen at request construction.
func relativeWindow(kind PeriodKind, now time.Time, days int) Window {
	start := now.AddDate(0, 0, -days).UTC()
	return Window{Kind: kind, Start: &start}
}

// ParseKind validates a period kind string.
func ParseKind(s string) (PeriodKind, error) {
	switch PeriodKind(s) {
	case PeriodWeekly, PeriodPastWeek, PeriodMonthly, PeriodQuarterly, PeriodYearly, PeriodAll, PeriodCustom:
		return PeriodKind(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPeriod, s)
}
