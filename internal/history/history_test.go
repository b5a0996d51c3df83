package history_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"atelier/internal/db"
	"atelier/internal/domain"
	"atelier/internal/events"
	"atelier/internal/history"
	"atelier/internal/migrate"
	"atelier/internal/repo"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func seedItem(t *testing.T, conn *sql.DB, id, status string) {
	t.Helper()
	r := repo.Repo{DB: conn}
	tx, err := conn.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Format(time.RFC3339)
	err = r.InsertWorkItem(context.Background(), tx, domain.WorkItem{
		ID: id, Title: "t", Status: status, CreatedBy: "admin", CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("insert item: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

// insertRawEvent writes an event row directly, bypassing the writer, to model
// rows produced by older serializers.
func insertRawEvent(t *testing.T, conn *sql.DB, itemID, action string, status any, details, ts string) {
	t.Helper()
	_, err := conn.Exec(`INSERT INTO events(work_item_id,actor_id,action,status,details_json,ts) VALUES (?,?,?,?,?,?)`,
		itemID, "admin", action, status, details, ts)
	if err != nil {
		t.Fatalf("insert event: %v", err)
	}
}

func appendEvent(t *testing.T, conn *sql.DB, at time.Time, itemID, action string, status *string, payload events.Payload) {
	t.Helper()
	w := events.Writer{DB: conn, Now: func() time.Time { return at }}
	tx, err := conn.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := w.Append(context.Background(), tx, itemID, "admin", action, status, payload); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func strptr(s string) *string { return &s }

func TestEarliestSubmittedTransitionWins(t *testing.T) {
	conn := newTestDB(t)
	seedItem(t, conn, "item-1", domain.StatusSubmitted)
	t1 := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	// resubmission after a fix cycle: two submitted transitions
	appendEvent(t, conn, t2, "item-1", events.ActionUpdated, strptr(domain.StatusSubmitted), events.Payload{"status": domain.StatusSubmitted})
	appendEvent(t, conn, t1, "item-1", events.ActionUpdated, strptr(domain.StatusSubmitted), events.Payload{"status": domain.StatusSubmitted})

	d := history.Detector{Repo: repo.Repo{DB: conn}}
	at, skipped, err := d.FirstReachedStatus(context.Background(), "item-1", domain.StatusSubmitted)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if skipped != 0 {
		t.Fatalf("skipped = %d, want 0", skipped)
	}
	if at == nil || !at.Equal(t1) {
		t.Fatalf("submission instant = %v, want %v", at, t1)
	}
}

func TestNoFallbackWhenLogMissesTransition(t *testing.T) {
	conn := newTestDB(t)
	// current status is published but the log never recorded submitted
	seedItem(t, conn, "item-1", domain.StatusPublished)
	appendEvent(t, conn, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), "item-1", events.ActionCreated, strptr(domain.StatusNew), nil)
	appendEvent(t, conn, time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC), "item-1", events.ActionUpdated, strptr(domain.StatusPublished), events.Payload{"status": domain.StatusPublished})

	d := history.Detector{Repo: repo.Repo{DB: conn}}
	at, _, err := d.FirstReachedStatus(context.Background(), "item-1", domain.StatusSubmitted)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if at != nil {
		t.Fatalf("expected nil submission instant, got %v", at)
	}
}

func TestLegacyDetailsSpellings(t *testing.T) {
	conn := newTestDB(t)
	seedItem(t, conn, "item-1", domain.StatusSubmitted)
	seedItem(t, conn, "item-2", domain.StatusSubmitted)
	seedItem(t, conn, "item-3", domain.StatusSubmitted)
	// legacy rows carry no typed status; the serialized form varies by writer
	insertRawEvent(t, conn, "item-1", "updated", nil, `{"status": "submitted"}`, "2026-01-02T10:00:00Z")
	insertRawEvent(t, conn, "item-2", "updated", nil, `{"status":"submitted"}`, "2026-01-03T10:00:00Z")
	insertRawEvent(t, conn, "item-3", "updated", nil, `{ "status" : "submitted" , "from_status" : "in_progress" }`, "2026-01-04T10:00:00Z")

	d := history.Detector{Repo: repo.Repo{DB: conn}}
	all, skipped, err := d.FirstReachedStatusAll(context.Background(), domain.StatusSubmitted)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if skipped != 0 {
		t.Fatalf("skipped = %d, want 0", skipped)
	}
	for _, id := range []string{"item-1", "item-2", "item-3"} {
		if _, ok := all[id]; !ok {
			t.Fatalf("%s missing from detected submissions", id)
		}
	}
}

func TestMalformedDetailsSkippedAndCounted(t *testing.T) {
	conn := newTestDB(t)
	seedItem(t, conn, "item-1", domain.StatusSubmitted)
	insertRawEvent(t, conn, "item-1", "updated", nil, `{not json`, "2026-01-02T10:00:00Z")
	insertRawEvent(t, conn, "item-1", "updated", nil, `{"status":"submitted"}`, "2026-01-03T10:00:00Z")

	d := history.Detector{Repo: repo.Repo{DB: conn}}
	at, skipped, err := d.FirstReachedStatus(context.Background(), "item-1", domain.StatusSubmitted)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if skipped != 1 {
		t.Fatalf("skipped = %d, want 1", skipped)
	}
	want := time.Date(2026, 1, 3, 10, 0, 0, 0, time.UTC)
	if at == nil || !at.Equal(want) {
		t.Fatalf("submission instant = %v, want %v", at, want)
	}
}

func TestNonStatusEditsIgnored(t *testing.T) {
	conn := newTestDB(t)
	seedItem(t, conn, "item-1", domain.StatusInProgress)
	// a title edit appends an updated event with no status; it must never
	// read as a transition
	appendEvent(t, conn, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), "item-1", events.ActionUpdated, nil, events.Payload{"title": "renamed"})

	d := history.Detector{Repo: repo.Repo{DB: conn}}
	at, skipped, err := d.FirstReachedStatus(context.Background(), "item-1", domain.StatusSubmitted)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if at != nil {
		t.Fatalf("title edit misread as submission: %v", at)
	}
	if skipped != 0 {
		t.Fatalf("skipped = %d, want 0", skipped)
	}
}

func TestFirstReachedStatusAllGroupsByItem(t *testing.T) {
	conn := newTestDB(t)
	seedItem(t, conn, "item-1", domain.StatusSubmitted)
	seedItem(t, conn, "item-2", domain.StatusInProgress)
	appendEvent(t, conn, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), "item-1", events.ActionUpdated, strptr(domain.StatusSubmitted), events.Payload{"status": domain.StatusSubmitted})
	appendEvent(t, conn, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), "item-2", events.ActionUpdated, strptr(domain.StatusInProgress), events.Payload{"status": domain.StatusInProgress})

	d := history.Detector{Repo: repo.Repo{DB: conn}}
	all, _, err := d.FirstReachedStatusAll(context.Background(), domain.StatusSubmitted)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("detected %d items, want 1", len(all))
	}
	if _, ok := all["item-1"]; !ok {
		t.Fatalf("item-1 missing")
	}
}
