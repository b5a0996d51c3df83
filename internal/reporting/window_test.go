package reporting

import (
	"errors"
	"testing"
	"time"
)

func ammanAnchor(t *testing.T) Anchor {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Amman")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return Anchor{Location: loc, Weekday: time.Thursday, Hour: 14}
}

func TestWeeklyWindowStartsThursdayAfternoon(t *testing.T) {
	anchor := ammanAnchor(t)
	// Thursday 14:01 local, just past the anchor hour.
	now := time.Date(2026, 1, 8, 14, 1, 0, 0, anchor.Location)
	win, err := Resolve(PeriodWeekly, now, anchor, "", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	wantStart := time.Date(2026, 1, 8, 14, 0, 0, 0, anchor.Location)
	if !win.Start.Equal(wantStart) {
		t.Fatalf("start = %v, want %v", win.Start, wantStart)
	}
	if !win.End.Equal(wantStart.AddDate(0, 0, 7)) {
		t.Fatalf("end = %v, want %v", win.End, wantStart.AddDate(0, 0, 7))
	}

	before := time.Date(2026, 1, 8, 13, 59, 0, 0, anchor.Location)
	after := time.Date(2026, 1, 8, 14, 1, 0, 0, anchor.Location)
	if win.Contains(before) {
		t.Fatalf("13:59 Thursday should belong to the previous week")
	}
	if !win.Contains(after) {
		t.Fatalf("14:01 Thursday should belong to the current week")
	}
}

func TestWeeklyWindowBeforeAnchorHour(t *testing.T) {
	anchor := ammanAnchor(t)
	// Thursday 13:59 local: the anchor has not passed yet, so the current
	// week still starts on the previous Thursday.
	now := time.Date(2026, 1, 8, 13, 59, 0, 0, anchor.Location)
	win, err := Resolve(PeriodWeekly, now, anchor, "", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	wantStart := time.Date(2026, 1, 1, 14, 0, 0, 0, anchor.Location)
	if !win.Start.Equal(wantStart) {
		t.Fatalf("start = %v, want %v", win.Start, wantStart)
	}
	wednesday := time.Date(2026, 1, 7, 18, 0, 0, 0, anchor.Location)
	if !win.Contains(wednesday) {
		t.Fatalf("Wednesday evening should be inside the week that started last Thursday")
	}
}

func TestPastWeekIsPreviousAnchorInterval(t *testing.T) {
	anchor := ammanAnchor(t)
	now := time.Date(2026, 1, 9, 12, 0, 0, 0, anchor.Location) // Friday
	win, err := Resolve(PeriodPastWeek, now, anchor, "", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	wantStart := time.Date(2026, 1, 1, 14, 0, 0, 0, anchor.Location)
	wantEnd := time.Date(2026, 1, 8, 14, 0, 0, 0, anchor.Location)
	if !win.Start.Equal(wantStart) || !win.End.Equal(wantEnd) {
		t.Fatalf("window = [%v, %v), want [%v, %v)", win.Start, win.End, wantStart, wantEnd)
	}
	// the end boundary is exclusive
	if win.Contains(wantEnd) {
		t.Fatalf("past week must not contain the next anchor instant")
	}
	if !win.Contains(wantEnd.Add(-time.Hour)) {
		t.Fatalf("past week should contain the hour before the anchor")
	}
}

func TestRelativeWindowsDeriveFromNow(t *testing.T) {
	anchor := ammanAnchor(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	win, err := Resolve(PeriodMonthly, now, anchor, "", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if win.End != nil {
		t.Fatalf("monthly window should be open-ended")
	}
	if !win.Contains(now.AddDate(0, 0, -29)) {
		t.Fatalf("29 days ago should be inside monthly")
	}
	if win.Contains(now.AddDate(0, 0, -31)) {
		t.Fatalf("31 days ago should be outside monthly")
	}

	// a later "now" moves the boundary; nothing is cached
	later := now.AddDate(0, 0, 5)
	win2, err := Resolve(PeriodMonthly, later, anchor, "", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if win2.Contains(now.AddDate(0, 0, -29)) {
		t.Fatalf("window boundary should advance with now")
	}
}

func TestCustomWindowInclusiveEnd(t *testing.T) {
	anchor := ammanAnchor(t)
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	win, err := Resolve(PeriodCustom, now, anchor, "2026-01-01", "2026-01-31")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	lateLastDay := time.Date(2026, 1, 31, 23, 30, 0, 0, anchor.Location)
	if !win.Contains(lateLastDay) {
		t.Fatalf("custom windows include the whole end day")
	}
	// the end instant itself, 23:59:59.999, is in; one millisecond later is out
	endInstant := time.Date(2026, 1, 31, 23, 59, 59, int(999*time.Millisecond), anchor.Location)
	if !win.Contains(endInstant) {
		t.Fatalf("custom end instant must be inclusive")
	}
	if win.Contains(endInstant.Add(time.Millisecond)) {
		t.Fatalf("one millisecond past the custom end is out")
	}
	nextDay := time.Date(2026, 2, 1, 0, 0, 0, 0, anchor.Location)
	if win.Contains(nextDay) {
		t.Fatalf("the day after the end date is out")
	}
}

func TestCustomWindowValidation(t *testing.T) {
	anchor := ammanAnchor(t)
	now := time.Now()
	if _, err := Resolve(PeriodCustom, now, anchor, "", "2026-01-31"); err == nil {
		t.Fatalf("missing start date should error")
	}
	if _, err := Resolve(PeriodCustom, now, anchor, "2026-02-01", "2026-01-01"); err == nil {
		t.Fatalf("end before start should error")
	}
	if _, err := Resolve(PeriodCustom, now, anchor, "31/01/2026", "2026-02-01"); err == nil {
		t.Fatalf("bad date format should error")
	}
}

func TestUnknownPeriodRejected(t *testing.T) {
	if _, err := Resolve(PeriodKind("fortnightly"), time.Now(), ammanAnchor(t), "", ""); !errors.Is(err, ErrUnknownPeriod) {
		t.Fatalf("expected ErrUnknownPeriod, got %v", err)
	}
	if _, err := ParseKind("fortnightly"); !errors.Is(err, ErrUnknownPeriod) {
		t.Fatalf("expected ErrUnknownPeriod from ParseKind, got %v", err)
	}
	if _, err := ParseKind("all"); err != nil {
		t.Fatalf("all should parse: %v", err)
	}
}

func TestAllWindowContainsEverything(t *testing.T) {
	win, err := Resolve(PeriodAll, time.Now(), ammanAnchor(t), "", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !win.Contains(time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("all must be unbounded")
	}
}
