package reporting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"atelier/internal/domain"
	"atelier/internal/history"
	"atelier/internal/repo"
)

// Aggregator joins reconstructed submission instants against resolved
// reporting windows to produce per-freelancer and per-bucket metrics.
type Aggregator struct {
	Repo     repo.Repo
	Detector history.Detector
	Anchor   Anchor
	Now      func() time.Time
}

func (a Aggregator) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

type StatusCounts struct {
	Submitted  int `json:"submitted"`
	Reviewed   int `json:"reviewed"`
	Published  int `json:"published"`
	InProgress int `json:"in_progress"`
	NeedsFixes int `json:"needs_fixes"`
	Assigned   int `json:"assigned"`
}

func (c *StatusCounts) add(status string) {
	switch status {
	case domain.StatusSubmitted:
		c.Submitted++
	case domain.StatusReviewed:
		c.Reviewed++
	case domain.StatusPublished:
		c.Published++
	case domain.StatusInProgress:
		c.InProgress++
	case domain.StatusNeedsFixes:
		c.NeedsFixes++
	case domain.StatusAssigned:
		c.Assigned++
	}
}

type FreelancerReport struct {
	FreelancerID string       `json:"freelancer_id"`
	TotalItems   int          `json:"total_items"`
	ByStatus     StatusCounts `json:"by_status"`
	// TotalEarnings buckets by the reconstructed submission instant;
	// CompletedEarnings additionally requires the CURRENT status to be
	// reviewed or published. Earnings land in the period they were submitted,
	// but whether they count as completed reflects today's truth.
	TotalEarnings     float64 `json:"total_earnings"`
	CompletedEarnings float64 `json:"completed_earnings"`
}

type Report struct {
	Window        Echo               `json:"window"`
	SkippedEvents int                `json:"skipped_events,omitempty"`
	Freelancers   []FreelancerReport `json:"freelancers"`
}

// Report aggregates assigned work items per freelancer for the given period.
// Period membership is decided by the reconstructed submission instant; items
// whose log never recorded a submitted transition are invisible to filtered
// periods but still counted under "all".
func (a Aggregator) Report(ctx context.Context, kind PeriodKind, freelancerID, customStart, customEnd string) (Report, error) {
	win, err := Resolve(kind, a.now(), a.Anchor, customStart, customEnd)
	if err != nil {
		return Report{}, err
	}
	items, err := a.Repo.ListWorkItems(ctx, repo.WorkItemFilters{Assigned: true, AssignedTo: freelancerID})
	if err != nil {
		return Report{}, err
	}
	submitted, skipped, err := a.Detector.FirstReachedStatusAll(ctx, domain.StatusSubmitted)
	if err != nil {
		return Report{}, err
	}

	byFreelancer := map[string]*FreelancerReport{}
	for _, item := range items {
		if item.AssignedTo == nil {
			continue
		}
		if !a.memberOf(win, item, submitted) {
			continue
		}
		fid := *item.AssignedTo
		rep, ok := byFreelancer[fid]
		if !ok {
			rep = &FreelancerReport{FreelancerID: fid}
			byFreelancer[fid] = rep
		}
		rep.TotalItems++
		rep.ByStatus.add(item.Status)
		rep.TotalEarnings += item.Price
		if item.Status == domain.StatusReviewed || item.Status == domain.StatusPublished {
			rep.CompletedEarnings += item.Price
		}
	}

	out := Report{Window: win.Echo(), SkippedEvents: skipped}
	for _, rep := range byFreelancer {
		out.Freelancers = append(out.Freelancers, *rep)
	}
	sort.Slice(out.Freelancers, func(i, j int) bool {
		return out.Freelancers[i].FreelancerID < out.Freelancers[j].FreelancerID
	})
	return out, nil
}

// memberOf applies the period-membership test. "all" is the unfiltered view
// and needs no submission accuracy; every other period requires a
// reconstructed submission instant inside the window.
func (a Aggregator) memberOf(win Window, item domain.WorkItem, submitted map[string]time.Time) bool {
	if win.Kind == PeriodAll {
		return true
	}
	ts, ok := submitted[item.ID]
	if !ok {
		return false
	}
	return win.Contains(ts)
}

type TimeseriesPoint struct {
	Date      string `json:"date"`
	Created   int    `json:"created"`
	Submitted int    `json:"submitted"`
}

type StatusSlice struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

type LeaderboardEntry struct {
	FreelancerID string  `json:"freelancer_id"`
	Published    int     `json:"published"`
	Earnings     float64 `json:"earnings"`
}

type Timeseries struct {
	Window        Echo               `json:"window"`
	SkippedEvents int                `json:"skipped_events,omitempty"`
	Points        []TimeseriesPoint  `json:"points"`
	Distribution  []StatusSlice      `json:"status_distribution"`
	Leaderboard   []LeaderboardEntry `json:"leaderboard"`
}

const defaultLeaderboardSize = 5

// Timeseries produces creation/submission rates over calendar buckets, the
// current-status distribution, and a top earners leaderboard for the period.
// The created series is keyed by raw creation time; everything else reuses
// the reconstructed-submission-then-bucket pattern the report uses.
func (a Aggregator) Timeseries(ctx context.Context, kind PeriodKind, freelancerID, customStart, customEnd string, topN int) (Timeseries, error) {
	win, err := Resolve(kind, a.now(), a.Anchor, customStart, customEnd)
	if err != nil {
		return Timeseries{}, err
	}
	if topN <= 0 {
		topN = defaultLeaderboardSize
	}
	items, err := a.Repo.ListWorkItems(ctx, repo.WorkItemFilters{AssignedTo: freelancerID})
	if err != nil {
		return Timeseries{}, err
	}
	submitted, skipped, err := a.Detector.FirstReachedStatusAll(ctx, domain.StatusSubmitted)
	if err != nil {
		return Timeseries{}, err
	}

	bucket := bucketFunc(kind, a.Anchor)
	points := map[string]*TimeseriesPoint{}
	point := func(key string) *TimeseriesPoint {
		p, ok := points[key]
		if !ok {
			p = &TimeseriesPoint{Date: key}
			points[key] = p
		}
		return p
	}
	distribution := map[string]int{}
	leaders := map[string]*LeaderboardEntry{}

	for _, item := range items {
		if created, err := parseTS(item.CreatedAt); err == nil && win.Contains(created) {
			point(bucket(created)).Created++
		}
		ts, ok := submitted[item.ID]
		if win.Kind != PeriodAll && (!ok || !win.Contains(ts)) {
			continue
		}
		if ok && win.Contains(ts) {
			point(bucket(ts)).Submitted++
		}
		distribution[item.Status]++
		if item.AssignedTo != nil {
			fid := *item.AssignedTo
			entry, exists := leaders[fid]
			if !exists {
				entry = &LeaderboardEntry{FreelancerID: fid}
				leaders[fid] = entry
			}
			if item.Status == domain.StatusPublished {
				entry.Published++
			}
			entry.Earnings += item.Price
		}
	}

	out := Timeseries{Window: win.Echo(), SkippedEvents: skipped}
	for _, p := range points {
		out.Points = append(out.Points, *p)
	}
	sort.Slice(out.Points, func(i, j int) bool { return out.Points[i].Date < out.Points[j].Date })
	for status, count := range distribution {
		out.Distribution = append(out.Distribution, StatusSlice{Status: status, Count: count})
	}
	sort.Slice(out.Distribution, func(i, j int) bool { return out.Distribution[i].Status < out.Distribution[j].Status })
	for _, entry := range leaders {
		out.Leaderboard = append(out.Leaderboard, *entry)
	}
	sort.Slice(out.Leaderboard, func(i, j int) bool {
		if out.Leaderboard[i].Earnings != out.Leaderboard[j].Earnings {
			return out.Leaderboard[i].Earnings > out.Leaderboard[j].Earnings
		}
		return out.Leaderboard[i].FreelancerID < out.Leaderboard[j].FreelancerID
	})
	if len(out.Leaderboard) > topN {
		out.Leaderboard = out.Leaderboard[:topN]
	}
	return out, nil
}

// bucketFunc picks the calendar granularity for a period: days for short
// windows, ISO weeks for quarterly, months for yearly and all.
func bucketFunc(kind PeriodKind, anchor Anchor) func(time.Time) string {
	loc := anchor.Location
	if loc == nil {
		loc = time.UTC
	}
	switch kind {
	case PeriodQuarterly:
		return func(t time.Time) string {
			year, week := t.In(loc).ISOWeek()
			return fmt.Sprintf("%04d-W%02d", year, week)
		}
	case PeriodYearly, PeriodAll:
		return func(t time.Time) string { return t.In(loc).Format("2006-01") }
	default:
		return func(t time.Time) string { return t.In(loc).Format("2006-01-02") }
	}
}

func parseTS(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Parse(time.RFC3339, s)
	}
	return t, nil
}
