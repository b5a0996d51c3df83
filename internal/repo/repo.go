package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"atelier/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const workItemCols = `id,title,COALESCE(description,'') AS description,status,assigned_to,created_by,price,fix_count,created_at,updated_at`

func scanWorkItem(scan func(dest ...any) error) (domain.WorkItem, error) {
	var w domain.WorkItem
	var assigned sql.NullString
	err := scan(&w.ID, &w.Title, &w.Description, &w.Status, &assigned, &w.CreatedBy, &w.Price, &w.FixCount, &w.CreatedAt, &w.UpdatedAt)
	if err == sql.ErrNoRows {
		return w, ErrNotFound
	}
	if assigned.Valid {
		w.AssignedTo = &assigned.String
	}
	return w, err
}

func (r Repo) InsertWorkItem(ctx context.Context, tx *sql.Tx, w domain.WorkItem) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO work_items(id,title,description,status,assigned_to,created_by,price,fix_count,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		w.ID, w.Title, nullable(w.Description), w.Status, nullablePtr(w.AssignedTo), w.CreatedBy, w.Price, w.FixCount, w.CreatedAt, w.UpdatedAt)
	return err
}

func (r Repo) UpdateWorkItem(ctx context.Context, tx *sql.Tx, w domain.WorkItem) error {
	res, err := tx.ExecContext(ctx, `UPDATE work_items SET title=?,description=?,status=?,assigned_to=?,price=?,fix_count=?,updated_at=? WHERE id=?`,
		w.Title, nullable(w.Description), w.Status, nullablePtr(w.AssignedTo), w.Price, w.FixCount, w.UpdatedAt, w.ID)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetWorkItem(ctx context.Context, id string) (domain.WorkItem, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+workItemCols+` FROM work_items WHERE id=?`, id)
	return scanWorkItem(row.Scan)
}

type WorkItemFilters struct {
	Status     string
	AssignedTo string
	Assigned   bool // only items with a non-null assignee
	Limit      int
}

func (r Repo) ListWorkItems(ctx context.Context, f WorkItemFilters) ([]domain.WorkItem, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.AssignedTo != "" {
		clauses = append(clauses, "assigned_to=?")
		args = append(args, f.AssignedTo)
	}
	if f.Assigned {
		clauses = append(clauses, "assigned_to IS NOT NULL")
	}
	query := `SELECT ` + workItemCols + ` FROM work_items WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.WorkItem
	for rows.Next() {
		w, err := scanWorkItem(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, rows.Err()
}

func (r Repo) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM work_items GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}

// --- events ---

const eventCols = `id,work_item_id,actor_id,action,status,details_json,ts`

func scanEvent(scan func(dest ...any) error) (domain.Event, error) {
	var e domain.Event
	var status, details sql.NullString
	err := scan(&e.ID, &e.WorkItemID, &e.ActorID, &e.Action, &status, &details, &e.TS)
	if status.Valid {
		e.Status = &status.String
	}
	if details.Valid {
		e.Details = details.String
	}
	return e, err
}

// EventsByWorkItem returns every event for one item. Order is not guaranteed;
// callers compute minima themselves.
func (r Repo) EventsByWorkItem(ctx context.Context, workItemID string) ([]domain.Event, error) {
	return r.queryEvents(ctx, `SELECT `+eventCols+` FROM events WHERE work_item_id=?`, workItemID)
}

// EventsByAction returns all events with the given action across every item.
func (r Repo) EventsByAction(ctx context.Context, action string) ([]domain.Event, error) {
	return r.queryEvents(ctx, `SELECT `+eventCols+` FROM events WHERE action=?`, action)
}

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) LatestEvents(ctx context.Context, limit int, workItemID, action string) ([]domain.Event, error) {
	return r.LatestEventsFrom(ctx, limit, 0, workItemID, action)
}

func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, workItemID, action string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if workItemID != "" {
		clauses = append(clauses, "work_item_id=?")
		args = append(args, workItemID)
	}
	if action != "" {
		clauses = append(clauses, "action=?")
		args = append(args, action)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	query := fmt.Sprintf(`SELECT `+eventCols+` FROM events WHERE %s ORDER BY id DESC LIMIT ?`, strings.Join(clauses, " AND "))
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.queryEvents(ctx, `SELECT `+eventCols+` FROM events WHERE id>? ORDER BY id ASC LIMIT ?`, cursor, limit)
}

// LatestEventID returns the most recent event ID.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`).Scan(&id)
	return id, err
}

// --- invoice items ---

func (r Repo) InsertInvoiceItem(ctx context.Context, item domain.InvoiceItem) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO invoice_items(id,freelancer_id,work_item_id,title,amount,created_at) VALUES (?,?,?,?,?,?)`,
		item.ID, item.FreelancerID, item.WorkItemID, item.Title, item.Amount, item.CreatedAt)
	return err
}

func (r Repo) HasInvoiceForItem(ctx context.Context, workItemID string) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM invoice_items WHERE work_item_id=?`, workItemID).Scan(&n)
	return n > 0, err
}

func (r Repo) ListInvoiceItems(ctx context.Context, freelancerID string, limit int) ([]domain.InvoiceItem, error) {
	clauses := []string{"1=1"}
	var args []any
	if freelancerID != "" {
		clauses = append(clauses, "freelancer_id=?")
		args = append(args, freelancerID)
	}
	query := `SELECT id,freelancer_id,work_item_id,title,amount,created_at FROM invoice_items WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.InvoiceItem
	for rows.Next() {
		var it domain.InvoiceItem
		if err := rows.Scan(&it.ID, &it.FreelancerID, &it.WorkItemID, &it.Title, &it.Amount, &it.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, it)
	}
	return res, rows.Err()
}

// --- notifications ---

func (r Repo) InsertNotification(ctx context.Context, n domain.Notification) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO notifications(id,user_id,type,title,message,work_item_id,from_user_id,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		n.ID, n.UserID, n.Type, n.Title, n.Message, nullable(n.WorkItemID), nullable(n.FromUserID), n.CreatedAt)
	return err
}

func (r Repo) ListNotifications(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	clauses := []string{"1=1"}
	var args []any
	if userID != "" {
		clauses = append(clauses, "user_id=?")
		args = append(args, userID)
	}
	query := `SELECT id,user_id,type,title,message,COALESCE(work_item_id,''),COALESCE(from_user_id,''),created_at FROM notifications WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.WorkItemID, &n.FromUserID, &n.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

// --- actors ---

func (r Repo) EnsureActor(ctx context.Context, tx *sql.Tx, id, name, now string) error {
	if id == "" {
		return errors.New("actor id required")
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO actors(id,name,created_at) VALUES (?,?,?) ON CONFLICT(id) DO UPDATE SET name=COALESCE(NULLIF(excluded.name,''), actors.name)`,
		id, name, now)
	return err
}

func (r Repo) ListActors(ctx context.Context) ([]domain.Actor, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,COALESCE(name,''),created_at FROM actors ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Actor
	for rows.Next() {
		var a domain.Actor
		if err := rows.Scan(&a.ID, &a.Name, &a.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullablePtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}
