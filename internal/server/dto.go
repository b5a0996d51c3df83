package server

import (
	"atelier/internal/domain"
)

// Request payloads

type CreateItemRequest struct {
	ID          *string  `json:"id,omitempty"`
	Title       string   `json:"title"`
	Description *string  `json:"description,omitempty"`
	Price       *float64 `json:"price,omitempty"`
	AssignedTo  *string  `json:"assigned_to,omitempty"`
}

type UpdateItemRequest struct {
	Title       *string  `json:"title,omitempty"`
	Description *string  `json:"description,omitempty"`
	Price       *float64 `json:"price,omitempty"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" enum:"new,assigned,in_progress,submitted,reviewed,needs_fixes,published,archived"`
}

type AssignRequest struct {
	AssigneeID string `json:"assignee_id"`
}

// Response payloads

type ItemResponse struct {
	domain.WorkItem
}

type SubmissionResponse struct {
	WorkItemID    string  `json:"work_item_id"`
	SubmittedAt   *string `json:"submitted_at"`
	SkippedEvents int     `json:"skipped_events,omitempty"`
}

type eventList struct {
	Events []domain.Event `json:"events"`
	Cursor int64          `json:"cursor,omitempty"`
}

type invoiceList struct {
	Invoices []domain.InvoiceItem `json:"invoices"`
}

type notificationList struct {
	Notifications []domain.Notification `json:"notifications"`
}

type itemList struct {
	Items []domain.WorkItem `json:"items"`
}

func itemResponse(w domain.WorkItem) ItemResponse {
	return ItemResponse{WorkItem: w}
}
