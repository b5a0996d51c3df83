package domain

// Work item statuses. The intended graph is
// new -> assigned -> in_progress -> submitted -> {reviewed | needs_fixes} -> published -> archived,
// with needs_fixes -> in_progress (or straight back to submitted) as the rework
// loop. Re-assignment and republishing are reachable out of band.
const (
	StatusNew        = "new"
	StatusAssigned   = "assigned"
	StatusInProgress = "in_progress"
	StatusSubmitted  = "submitted"
	StatusReviewed   = "reviewed"
	StatusNeedsFixes = "needs_fixes"
	StatusPublished  = "published"
	StatusArchived   = "archived"
)

// Statuses lists every valid work item status.
var Statuses = []string{
	StatusNew, StatusAssigned, StatusInProgress, StatusSubmitted,
	StatusReviewed, StatusNeedsFixes, StatusPublished, StatusArchived,
}

// ValidStatus reports whether s is a known status.
func ValidStatus(s string) bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

type WorkItem struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Status      string  `json:"status" enum:"new,assigned,in_progress,submitted,reviewed,needs_fixes,published,archived"`
	AssignedTo  *string `json:"assigned_to,omitempty"`
	CreatedBy   string  `json:"created_by"`
	Price       float64 `json:"price"`
	FixCount    int     `json:"fix_count"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
}

// Event is an immutable fact appended whenever a work item is mutated.
// Status is set for status-changing updates; Details carries a snapshot of
// the changed fields. Historical questions ("when did X become submitted")
// must always be answered from events, never from the mutable WorkItem row.
type Event struct {
	ID         int64   `json:"id"`
	WorkItemID string  `json:"work_item_id"`
	ActorID    string  `json:"actor_id"`
	Action     string  `json:"action"`
	Status     *string `json:"status,omitempty"`
	Details    string  `json:"details,omitempty"`
	TS         string  `json:"ts" format:"date-time"`
}

type InvoiceItem struct {
	ID           string  `json:"id"`
	FreelancerID string  `json:"freelancer_id"`
	WorkItemID   string  `json:"work_item_id"`
	Title        string  `json:"title"`
	Amount       float64 `json:"amount"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
}

type Notification struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	Type       string `json:"type"`
	Title      string `json:"title"`
	Message    string `json:"message"`
	WorkItemID string `json:"work_item_id,omitempty"`
	FromUserID string `json:"from_user_id,omitempty"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type Actor struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
