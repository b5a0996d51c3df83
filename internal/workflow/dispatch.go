// Package workflow owns the status transition graph and the side effects a
// transition mandates. All status-change call sites funnel through one
// dispatcher so the transition table is auditable in one place.
package workflow

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"atelier/internal/config"
	"atelier/internal/domain"
	"atelier/internal/repo"
)

// AllowedTransition reports whether moving from prev to next follows the
// intended graph. assigned and published stay reachable out of band
// (re-assignment, republish).
func AllowedTransition(prev, next string) bool {
	if next == domain.StatusAssigned || next == domain.StatusPublished {
		return true
	}
	switch prev {
	case domain.StatusNew:
		return next == domain.StatusInProgress
	case domain.StatusAssigned:
		return next == domain.StatusInProgress
	case domain.StatusInProgress:
		return next == domain.StatusSubmitted
	case domain.StatusSubmitted:
		return next == domain.StatusReviewed || next == domain.StatusNeedsFixes
	case domain.StatusNeedsFixes:
		return next == domain.StatusInProgress || next == domain.StatusSubmitted
	case domain.StatusReviewed:
		return next == domain.StatusNeedsFixes || next == domain.StatusArchived
	case domain.StatusPublished:
		return next == domain.StatusArchived
	}
	return false
}

// Notifier is the notification sink contract. Implementations must not let
// delivery failures reach the status-update caller.
type Notifier interface {
	Enqueue(ctx context.Context, n domain.Notification) error
}

// Ledger is the billing ledger contract.
type Ledger interface {
	AddLineItem(ctx context.Context, item domain.InvoiceItem) error
}

// Dispatcher evaluates a status change and fires exactly the notifications
// and invoice lines that status mandates. Dispatch is fire-and-forget:
// failures are logged and swallowed, never propagated to the mutation path.
type Dispatcher struct {
	Config   *config.Config
	Notifier Notifier
	Ledger   Ledger
	Repo     repo.Repo
	Now      func() time.Time
	Logf     func(format string, args ...any)
}

func (d Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d Dispatcher) logf(format string, args ...any) {
	if d.Logf != nil {
		d.Logf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// OnStatusChange runs after the status update and its event have committed,
// before the response returns to the caller.
func (d Dispatcher) OnStatusChange(ctx context.Context, item domain.WorkItem, prev, next, actorID string) {
	if next == prev {
		return
	}
	d.notify(ctx, item, next, actorID)
	d.bill(ctx, item, next)
}

// notify enqueues one notification to the assignee for statuses with a
// configured message. Statuses without a message intentionally produce none.
func (d Dispatcher) notify(ctx context.Context, item domain.WorkItem, next, actorID string) {
	if d.Notifier == nil || d.Config == nil {
		return
	}
	msg, ok := d.Config.Notifications.Messages[next]
	if !ok {
		return
	}
	if item.AssignedTo == nil || *item.AssignedTo == actorID {
		return
	}
	n := domain.Notification{
		ID:         uuid.New().String(),
		UserID:     *item.AssignedTo,
		Type:       "status." + next,
		Title:      item.Title,
		Message:    msg,
		WorkItemID: item.ID,
		FromUserID: actorID,
		CreatedAt:  d.now().UTC().Format(time.RFC3339),
	}
	if err := d.Notifier.Enqueue(ctx, n); err != nil {
		d.logf("workflow: notify %s for item %s failed: %v", n.UserID, item.ID, err)
	}
}

// bill creates one invoice line when the item enters a billable status with
// an assignee and a positive price. By default an item bills once for its
// lifetime: cycling reviewed -> needs_fixes -> reviewed does not re-bill
// unless billing.rebill is set.
func (d Dispatcher) bill(ctx context.Context, item domain.WorkItem, next string) {
	if d.Ledger == nil || d.Config == nil {
		return
	}
	if !d.Config.BillsStatus(next) {
		return
	}
	if item.AssignedTo == nil || item.Price <= 0 {
		return
	}
	if !d.Config.Billing.Rebill {
		has, err := d.Repo.HasInvoiceForItem(ctx, item.ID)
		if err != nil {
			d.logf("workflow: invoice lookup for item %s failed: %v", item.ID, err)
			return
		}
		if has {
			return
		}
	}
	line := domain.InvoiceItem{
		ID:           uuid.New().String(),
		FreelancerID: *item.AssignedTo,
		WorkItemID:   item.ID,
		Title:        item.Title,
		Amount:       item.Price,
		CreatedAt:    d.now().UTC().Format(time.RFC3339),
	}
	if err := d.Ledger.AddLineItem(ctx, line); err != nil {
		d.logf("workflow: invoice for item %s failed: %v", item.ID, err)
	}
}

// StoreNotifier persists notifications to the local notifications table.
type StoreNotifier struct {
	Repo repo.Repo
}

func (s StoreNotifier) Enqueue(ctx context.Context, n domain.Notification) error {
	return s.Repo.InsertNotification(ctx, n)
}

// StoreLedger persists invoice lines to the local invoice_items table.
type StoreLedger struct {
	Repo repo.Repo
}

func (s StoreLedger) AddLineItem(ctx context.Context, item domain.InvoiceItem) error {
	return s.Repo.InsertInvoiceItem(ctx, item)
}
