package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"atelier/internal/config"
	"atelier/internal/domain"
	"atelier/internal/events"
	"atelier/internal/history"
	"atelier/internal/repo"
	"atelier/internal/reporting"
	"atelier/internal/workflow"
)

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Config   *config.Config
	Dispatch workflow.Dispatcher
	Detector history.Detector
	Now      func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	r := repo.Repo{DB: db}
	return Engine{
		DB:     db,
		Repo:   r,
		Events: events.Writer{DB: db},
		Config: cfg,
		Dispatch: workflow.Dispatcher{
			Config:   cfg,
			Notifier: workflow.StoreNotifier{Repo: r},
			Ledger:   workflow.StoreLedger{Repo: r},
			Repo:     r,
		},
		Detector: history.Detector{Repo: r},
		Now:      time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Aggregator returns a reporting aggregator wired to this engine's clock and
// configured week anchor.
func (e Engine) Aggregator() reporting.Aggregator {
	return reporting.Aggregator{
		Repo:     e.Repo,
		Detector: e.Detector,
		Anchor:   e.Anchor(),
		Now:      e.Now,
	}
}

func (e Engine) Anchor() reporting.Anchor {
	return reporting.Anchor{
		Location: e.Config.Location(),
		Weekday:  e.Config.WeekStartWeekday(),
		Hour:     e.Config.Reporting.WeekStart.Hour,
	}
}

// WorkItemCreateOptions are parameters for creating a work item.
type WorkItemCreateOptions struct {
	ID          string
	Title       string
	Description string
	Price       float64
	AssignedTo  string
	ActorID     string
}

func (e Engine) CreateWorkItem(ctx context.Context, opts WorkItemCreateOptions) (domain.WorkItem, error) {
	if e.Config == nil {
		return domain.WorkItem{}, errors.New("config not loaded")
	}
	if opts.Title == "" {
		return domain.WorkItem{}, errors.New("title is required")
	}
	if opts.Price < 0 {
		return domain.WorkItem{}, errors.New("price must be non-negative")
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := e.now().UTC().Format(time.RFC3339)
	w := domain.WorkItem{
		ID:          id,
		Title:       opts.Title,
		Description: opts.Description,
		Status:      domain.StatusNew,
		AssignedTo:  optionalString(opts.AssignedTo),
		CreatedBy:   opts.ActorID,
		Price:       opts.Price,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if w.AssignedTo != nil {
		w.Status = domain.StatusAssigned
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.WorkItem{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertWorkItem(ctx, tx, w); err != nil {
		return domain.WorkItem{}, fmt.Errorf("insert work item: %w", err)
	}
	if err := e.Repo.EnsureActor(ctx, tx, opts.ActorID, "", now); err != nil {
		return domain.WorkItem{}, err
	}
	if w.AssignedTo != nil {
		if err := e.Repo.EnsureActor(ctx, tx, *w.AssignedTo, "", now); err != nil {
			return domain.WorkItem{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, w.ID, opts.ActorID, events.ActionCreated, &w.Status, events.Payload{
		"title": w.Title, "status": w.Status, "price": w.Price,
	}); err != nil {
		return domain.WorkItem{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.WorkItem{}, err
	}
	if w.AssignedTo != nil {
		e.Dispatch.OnStatusChange(ctx, w, domain.StatusNew, w.Status, opts.ActorID)
	}
	return w, nil
}

// WorkItemUpdateOptions encapsulates allowed field updates. Status changes go
// through UpdateStatus so side effects stay on one path.
type WorkItemUpdateOptions struct {
	ID          string
	Title       *string
	Description *string
	Price       *float64
	ActorID     string
}

// UpdateWorkItem edits non-status fields. It touches updated_at and appends a
// non-status event; the reporting pipeline must never mistake such edits for
// transitions.
func (e Engine) UpdateWorkItem(ctx context.Context, opts WorkItemUpdateOptions) (domain.WorkItem, error) {
	w, err := e.Repo.GetWorkItem(ctx, opts.ID)
	if err != nil {
		return w, err
	}
	changed := events.Payload{}
	if opts.Title != nil && *opts.Title != "" {
		w.Title = *opts.Title
		changed["title"] = w.Title
	}
	if opts.Description != nil {
		w.Description = *opts.Description
		changed["description"] = w.Description
	}
	if opts.Price != nil {
		if *opts.Price < 0 {
			return w, errors.New("price must be non-negative")
		}
		w.Price = *opts.Price
		changed["price"] = w.Price
	}
	if len(changed) == 0 {
		return w, nil
	}
	w.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return w, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateWorkItem(ctx, tx, w); err != nil {
		return w, err
	}
	if err := e.Events.Append(ctx, tx, w.ID, opts.ActorID, events.ActionUpdated, nil, changed); err != nil {
		return w, err
	}
	if err := tx.Commit(); err != nil {
		return w, err
	}
	return w, nil
}

// AssignWorkItem sets or clears the assignee. A non-empty assignee moves the
// item to assigned and fires the assignment side effects.
func (e Engine) AssignWorkItem(ctx context.Context, id, assigneeID, actorID string) (domain.WorkItem, error) {
	w, err := e.Repo.GetWorkItem(ctx, id)
	if err != nil {
		return w, err
	}
	prev := w.Status
	now := e.now().UTC().Format(time.RFC3339)
	w.AssignedTo = optionalString(assigneeID)
	w.UpdatedAt = now
	if w.AssignedTo != nil {
		w.Status = domain.StatusAssigned
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return w, err
	}
	defer tx.Rollback()
	if w.AssignedTo != nil {
		if err := e.Repo.EnsureActor(ctx, tx, *w.AssignedTo, "", now); err != nil {
			return w, err
		}
	}
	if err := e.Repo.UpdateWorkItem(ctx, tx, w); err != nil {
		return w, err
	}
	payload := events.Payload{"assigned_to": assigneeID, "status": w.Status}
	if err := e.Events.Append(ctx, tx, w.ID, actorID, events.ActionAssigned, &w.Status, payload); err != nil {
		return w, err
	}
	if err := tx.Commit(); err != nil {
		return w, err
	}
	e.Dispatch.OnStatusChange(ctx, w, prev, w.Status, actorID)
	return w, nil
}

// UpdateStatus is the single status mutation entry point. The field update
// and its event commit in one transaction; the side-effect dispatch runs
// after commit and before returning, and its failures never surface here.
func (e Engine) UpdateStatus(ctx context.Context, id, next, actorID string, force bool) (domain.WorkItem, error) {
	if !domain.ValidStatus(next) {
		return domain.WorkItem{}, fmt.Errorf("invalid status %q", next)
	}
	w, err := e.Repo.GetWorkItem(ctx, id)
	if err != nil {
		return w, err
	}
	prev := w.Status
	if next == prev {
		return w, nil
	}
	if !force && !workflow.AllowedTransition(prev, next) {
		return w, fmt.Errorf("invalid status transition %s -> %s", prev, next)
	}
	w.Status = next
	if next == domain.StatusNeedsFixes {
		w.FixCount++
	}
	w.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return w, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateWorkItem(ctx, tx, w); err != nil {
		return w, err
	}
	payload := events.Payload{"status": next, "from_status": prev}
	if next == domain.StatusNeedsFixes {
		payload["fix_count"] = w.FixCount
	}
	if err := e.Events.Append(ctx, tx, w.ID, actorID, events.ActionUpdated, &w.Status, payload); err != nil {
		return w, err
	}
	if err := tx.Commit(); err != nil {
		return w, err
	}
	e.Dispatch.OnStatusChange(ctx, w, prev, next, actorID)
	return w, nil
}

func (e Engine) GetWorkItem(ctx context.Context, id string) (domain.WorkItem, error) {
	return e.Repo.GetWorkItem(ctx, id)
}

func (e Engine) ListWorkItems(ctx context.Context, f repo.WorkItemFilters) ([]domain.WorkItem, error) {
	return e.Repo.ListWorkItems(ctx, f)
}

// SubmittedAt exposes the reconstructed submission instant for one item.
func (e Engine) SubmittedAt(ctx context.Context, id string) (*time.Time, int, error) {
	if _, err := e.Repo.GetWorkItem(ctx, id); err != nil {
		return nil, 0, err
	}
	return e.Detector.FirstReachedStatus(ctx, id, domain.StatusSubmitted)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
