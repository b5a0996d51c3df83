package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Actions recorded in the event log.
const (
	ActionCreated  = "created"
	ActionUpdated  = "updated"
	ActionAssigned = "assigned"
)

// Writer appends immutable facts to the events table. Appends always run in
// the caller's transaction so a status change is never visible without its
// event, or vice versa.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type Payload map[string]any

// Append writes one event. status is nil for mutations that do not change the
// work item's status; for status changes it carries the new status as a typed
// column so readers never have to pattern-match the serialized details.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, workItemID, actorID, action string, status *string, payload Payload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339Nano)
	if payload == nil {
		payload = Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event details: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(work_item_id,actor_id,action,status,details_json,ts) VALUES (?,?,?,?,?,?)`,
		workItemID, actorID, action, nullable(status), string(data), ts)
	return err
}

func nullable(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}
