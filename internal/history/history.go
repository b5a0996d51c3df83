// Package history reconstructs status transition instants from the append-only
// event log. The mutable work_items row cannot answer "when did this item
// become submitted": later edits overwrite updated_at without touching status.
package history

import (
	"context"
	"encoding/json"
	"time"

	"atelier/internal/domain"
	"atelier/internal/events"
	"atelier/internal/repo"
)

type Detector struct {
	Repo repo.Repo
}

// FirstReachedStatus returns the earliest logged instant the item's status
// became target, or nil if no event records that transition. There is no
// fallback to the item's updated_at: an item whose current status is past
// target but whose log never recorded the transition resolves to nil.
// skipped counts events whose details could not be parsed.
func (d Detector) FirstReachedStatus(ctx context.Context, workItemID, target string) (*time.Time, int, error) {
	evts, err := d.Repo.EventsByWorkItem(ctx, workItemID)
	if err != nil {
		return nil, 0, err
	}
	at, skipped := earliestMatch(evts, target)
	return at, skipped, nil
}

// FirstReachedStatusAll resolves the first-transition instant for every work
// item in one scan. Items with no matching event are absent from the map.
func (d Detector) FirstReachedStatusAll(ctx context.Context, target string) (map[string]time.Time, int, error) {
	evts, err := d.Repo.EventsByAction(ctx, events.ActionUpdated)
	if err != nil {
		return nil, 0, err
	}
	byItem := make(map[string][]domain.Event)
	for _, e := range evts {
		byItem[e.WorkItemID] = append(byItem[e.WorkItemID], e)
	}
	res := make(map[string]time.Time, len(byItem))
	skipped := 0
	for id, itemEvents := range byItem {
		at, s := earliestMatch(itemEvents, target)
		skipped += s
		if at != nil {
			res[id] = *at
		}
	}
	return res, skipped, nil
}

func earliestMatch(evts []domain.Event, target string) (*time.Time, int) {
	var earliest *time.Time
	skipped := 0
	for _, e := range evts {
		if e.Action != events.ActionUpdated {
			continue
		}
		matched, ok := eventStatus(e)
		if !ok {
			skipped++
			continue
		}
		if matched != target {
			continue
		}
		ts, err := parseTS(e.TS)
		if err != nil {
			skipped++
			continue
		}
		if earliest == nil || ts.Before(*earliest) {
			earliest = &ts
		}
	}
	return earliest, skipped
}

// eventStatus extracts the status an event recorded. Newer rows carry it as a
// typed column; legacy rows only encode it inside details_json, written by
// several serializers over time, so it is recovered with a real JSON decode
// rather than string matching.
func eventStatus(e domain.Event) (string, bool) {
	if e.Status != nil {
		return *e.Status, true
	}
	if e.Details == "" {
		return "", true
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(e.Details), &doc); err != nil {
		return "", false
	}
	raw, ok := doc["status"]
	if !ok {
		return "", true
	}
	var status string
	if err := json.Unmarshal(raw, &status); err != nil {
		return "", false
	}
	return status, true
}

func parseTS(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Parse(time.RFC3339, s)
	}
	return t, nil
}
