package reporting_test

import (
	"context"
	"testing"
	"time"

	"atelier/internal/config"
	"atelier/internal/db"
	"atelier/internal/domain"
	"atelier/internal/engine"
	"atelier/internal/migrate"
	"atelier/internal/reporting"
)

type reportEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	now    *time.Time
}

// set moves the injected clock; every timestamp written afterwards uses it.
func (e *reportEnv) set(t time.Time) { *e.now = t }

func newReportEnv(t *testing.T) *reportEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	eng := engine.New(conn, config.Default())
	eng.Now = clock
	eng.Events.Now = clock
	eng.Dispatch.Now = clock
	return &reportEnv{Engine: eng, Ctx: context.Background(), now: &now}
}

// submitItem walks an item from creation to submitted, with the submitted
// transition stamped at submittedAt.
func submitItem(t *testing.T, env *reportEnv, title, assignee string, price float64, submittedAt time.Time) domain.WorkItem {
	t.Helper()
	w, err := env.Engine.CreateWorkItem(env.Ctx, engine.WorkItemCreateOptions{
		Title: title, Price: price, AssignedTo: assignee, ActorID: "admin",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := env.Engine.UpdateStatus(env.Ctx, w.ID, domain.StatusInProgress, assignee, false); err != nil {
		t.Fatalf("to in_progress: %v", err)
	}
	prev := *env.now
	env.set(submittedAt)
	w, err = env.Engine.UpdateStatus(env.Ctx, w.ID, domain.StatusSubmitted, assignee, false)
	if err != nil {
		t.Fatalf("to submitted: %v", err)
	}
	env.set(prev)
	return w
}

func findFreelancer(rep reporting.Report, id string) (reporting.FreelancerReport, bool) {
	for _, f := range rep.Freelancers {
		if f.FreelancerID == id {
			return f, true
		}
	}
	return reporting.FreelancerReport{}, false
}

func TestWeeklyReportEarnings(t *testing.T) {
	env := newReportEnv(t)
	// The week containing 2026-01-09 starts Thursday 2026-01-08 14:00
	// Asia/Amman, which is 11:00 UTC.
	inWindow := time.Date(2026, 1, 8, 12, 0, 0, 0, time.UTC)
	lastWeek := time.Date(2026, 1, 7, 12, 0, 0, 0, time.UTC)

	a := submitItem(t, env, "banner pack", "f1", 100, inWindow)
	b := submitItem(t, env, "email flow", "f1", 50, inWindow.Add(time.Hour))
	submitItem(t, env, "old work", "f2", 70, lastWeek)

	// a is approved, b bounced; both were submitted this week
	if _, err := env.Engine.UpdateStatus(env.Ctx, a.ID, domain.StatusReviewed, "admin", false); err != nil {
		t.Fatalf("review a: %v", err)
	}
	if _, err := env.Engine.UpdateStatus(env.Ctx, b.ID, domain.StatusNeedsFixes, "admin", false); err != nil {
		t.Fatalf("bounce b: %v", err)
	}

	env.set(time.Date(2026, 1, 9, 12, 0, 0, 0, time.UTC))
	rep, err := env.Engine.Aggregator().Report(env.Ctx, reporting.PeriodWeekly, "", "", "")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	f1, ok := findFreelancer(rep, "f1")
	if !ok {
		t.Fatalf("f1 missing from report")
	}
	if f1.TotalItems != 2 {
		t.Fatalf("f1 total items = %d, want 2", f1.TotalItems)
	}
	if f1.TotalEarnings != 150 {
		t.Fatalf("f1 total earnings = %v, want 150", f1.TotalEarnings)
	}
	// only the currently reviewed item counts as completed; earnings still
	// bucket by when the work was submitted
	if f1.CompletedEarnings != 100 {
		t.Fatalf("f1 completed earnings = %v, want 100", f1.CompletedEarnings)
	}
	if f1.ByStatus.Reviewed != 1 || f1.ByStatus.NeedsFixes != 1 {
		t.Fatalf("f1 by_status = %+v", f1.ByStatus)
	}
	if _, ok := findFreelancer(rep, "f2"); ok {
		t.Fatalf("f2 submitted last week, should not appear in weekly")
	}
}

func TestReportExcludesUnsubmittedWork(t *testing.T) {
	env := newReportEnv(t)
	w, err := env.Engine.CreateWorkItem(env.Ctx, engine.WorkItemCreateOptions{
		Title: "still drafting", Price: 80, AssignedTo: "f1", ActorID: "admin",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := env.Engine.UpdateStatus(env.Ctx, w.ID, domain.StatusInProgress, "f1", false); err != nil {
		t.Fatalf("to in_progress: %v", err)
	}

	rep, err := env.Engine.Aggregator().Report(env.Ctx, reporting.PeriodWeekly, "", "", "")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if _, ok := findFreelancer(rep, "f1"); ok {
		t.Fatalf("unsubmitted work should be invisible to a filtered period")
	}

	all, err := env.Engine.Aggregator().Report(env.Ctx, reporting.PeriodAll, "", "", "")
	if err != nil {
		t.Fatalf("report all: %v", err)
	}
	f1, ok := findFreelancer(all, "f1")
	if !ok || f1.TotalItems != 1 {
		t.Fatalf("the all view should still count the item: %+v", all.Freelancers)
	}
}

func TestReportFreelancerFilter(t *testing.T) {
	env := newReportEnv(t)
	at := time.Date(2026, 1, 2, 13, 0, 0, 0, time.UTC)
	submitItem(t, env, "one", "f1", 10, at)
	submitItem(t, env, "two", "f2", 20, at)

	rep, err := env.Engine.Aggregator().Report(env.Ctx, reporting.PeriodWeekly, "f2", "", "")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if len(rep.Freelancers) != 1 || rep.Freelancers[0].FreelancerID != "f2" {
		t.Fatalf("freelancers = %+v, want only f2", rep.Freelancers)
	}
}

func TestTimeseriesCountsAndLeaderboard(t *testing.T) {
	env := newReportEnv(t)
	at := time.Date(2026, 1, 2, 13, 0, 0, 0, time.UTC)
	a := submitItem(t, env, "one", "f1", 100, at)
	submitItem(t, env, "two", "f2", 40, at.Add(time.Hour))
	if _, err := env.Engine.UpdateStatus(env.Ctx, a.ID, domain.StatusReviewed, "admin", false); err != nil {
		t.Fatalf("review: %v", err)
	}
	if _, err := env.Engine.UpdateStatus(env.Ctx, a.ID, domain.StatusPublished, "admin", false); err != nil {
		t.Fatalf("publish: %v", err)
	}

	ts, err := env.Engine.Aggregator().Timeseries(env.Ctx, reporting.PeriodWeekly, "", "", "", 0)
	if err != nil {
		t.Fatalf("timeseries: %v", err)
	}
	submittedTotal := 0
	for _, p := range ts.Points {
		submittedTotal += p.Submitted
	}
	if submittedTotal != 2 {
		t.Fatalf("submitted total = %d, want 2", submittedTotal)
	}
	if len(ts.Leaderboard) != 2 {
		t.Fatalf("leaderboard size = %d, want 2", len(ts.Leaderboard))
	}
	if ts.Leaderboard[0].FreelancerID != "f1" || ts.Leaderboard[0].Published != 1 {
		t.Fatalf("leaderboard head = %+v, want f1 with 1 published", ts.Leaderboard[0])
	}
	if ts.Leaderboard[0].Earnings != 100 {
		t.Fatalf("f1 earnings = %v, want 100", ts.Leaderboard[0].Earnings)
	}
}
