package ateliersdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Atelier HTTP API client.
type Client struct {
	BaseURL    string
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, actorID string) *Client {
	return &Client{
		BaseURL: baseURL,
		ActorID: actorID,
		Timeout: 10 * time.Second,
	}
}

// WorkItem represents the API work item model.
type WorkItem struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Status      string  `json:"status"`
	AssignedTo  *string `json:"assigned_to,omitempty"`
	CreatedBy   string  `json:"created_by"`
	Price       float64 `json:"price"`
	FixCount    int     `json:"fix_count"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// Event represents a log entry. Details carries the changed-field snapshot
// as serialized JSON, exactly as the API returns it.
type Event struct {
	ID         int64   `json:"id"`
	TS         string  `json:"ts"`
	WorkItemID string  `json:"work_item_id"`
	ActorID    string  `json:"actor_id"`
	Action     string  `json:"action"`
	Status     *string `json:"status,omitempty"`
	Details    string  `json:"details,omitempty"`
}

// Submission reports the reconstructed submission instant for an item.
type Submission struct {
	WorkItemID    string  `json:"work_item_id"`
	SubmittedAt   *string `json:"submitted_at"`
	SkippedEvents int     `json:"skipped_events,omitempty"`
}

// WindowEcho describes the resolved reporting window of a report response.
type WindowEcho struct {
	Type      string `json:"type"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

// FreelancerReport is one row of the performance report.
type FreelancerReport struct {
	FreelancerID string         `json:"freelancer_id"`
	TotalItems   int            `json:"total_items"`
	ByStatus     map[string]int `json:"by_status"`
	// TotalEarnings sums prices of items submitted in the window;
	// CompletedEarnings keeps only those currently reviewed or published.
	TotalEarnings     float64 `json:"total_earnings"`
	CompletedEarnings float64 `json:"completed_earnings"`
}

// Report is the performance report response.
type Report struct {
	Window        WindowEcho         `json:"window"`
	SkippedEvents int                `json:"skipped_events,omitempty"`
	Freelancers   []FreelancerReport `json:"freelancers"`
}

// Timeseries is the analytics response.
type Timeseries struct {
	Window        WindowEcho `json:"window"`
	SkippedEvents int        `json:"skipped_events,omitempty"`
	Points        []struct {
		Date      string `json:"date"`
		Created   int    `json:"created"`
		Submitted int    `json:"submitted"`
	} `json:"points"`
	Distribution []struct {
		Status string `json:"status"`
		Count  int    `json:"count"`
	} `json:"status_distribution"`
	Leaderboard []struct {
		FreelancerID string  `json:"freelancer_id"`
		Published    int     `json:"published"`
		Earnings     float64 `json:"earnings"`
	} `json:"leaderboard"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// EventPage wraps event list responses with the continuation cursor.
type EventPage struct {
	Events []Event `json:"events"`
	Cursor int64   `json:"cursor"`
}

// CreateItem creates a work item.
func (c *Client) CreateItem(ctx context.Context, title, description string, price float64, assigneeID string) (WorkItem, error) {
	body := map[string]any{
		"title":       title,
		"description": description,
		"price":       price,
	}
	if assigneeID != "" {
		body["assigned_to"] = assigneeID
	}
	var resp WorkItem
	err := c.do(ctx, http.MethodPost, "v0/items", body, &resp)
	return resp, err
}

// GetItem fetches a work item by id.
func (c *Client) GetItem(ctx context.Context, id string) (WorkItem, error) {
	var resp WorkItem
	err := c.do(ctx, http.MethodGet, "v0/items/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListItems lists work items, optionally filtered by status and assignee.
func (c *Client) ListItems(ctx context.Context, status, assigneeID string) ([]WorkItem, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if assigneeID != "" {
		q.Set("assigned_to", assigneeID)
	}
	endpoint := "v0/items"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp struct {
		Items []WorkItem `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// UpdateStatus moves a work item to a new status.
func (c *Client) UpdateStatus(ctx context.Context, id, status string, force bool) (WorkItem, error) {
	endpoint := "v0/items/" + url.PathEscape(id) + "/status"
	if force {
		endpoint += "?force=true"
	}
	var resp WorkItem
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"status": status}, &resp)
	return resp, err
}

// Assign assigns a work item to a freelancer.
func (c *Client) Assign(ctx context.Context, id, assigneeID string) (WorkItem, error) {
	endpoint := "v0/items/" + url.PathEscape(id) + "/assign"
	var resp WorkItem
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"assignee_id": assigneeID}, &resp)
	return resp, err
}

// Submission returns the reconstructed submission instant for an item.
func (c *Client) Submission(ctx context.Context, id string) (Submission, error) {
	var resp Submission
	err := c.do(ctx, http.MethodGet, "v0/items/"+url.PathEscape(id)+"/submission", nil, &resp)
	return resp, err
}

// Report fetches the per-freelancer performance report for a period.
func (c *Client) Report(ctx context.Context, period, freelancerID string) (Report, error) {
	q := url.Values{}
	if period != "" {
		q.Set("period", period)
	}
	if freelancerID != "" {
		q.Set("freelancer_id", freelancerID)
	}
	endpoint := "v0/report"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp Report
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// CustomReport fetches a report for an explicit date range.
func (c *Client) CustomReport(ctx context.Context, startDate, endDate, freelancerID string) (Report, error) {
	q := url.Values{}
	q.Set("period", "custom")
	q.Set("start_date", startDate)
	q.Set("end_date", endDate)
	if freelancerID != "" {
		q.Set("freelancer_id", freelancerID)
	}
	var resp Report
	err := c.do(ctx, http.MethodGet, "v0/report?"+q.Encode(), nil, &resp)
	return resp, err
}

// Timeseries fetches the analytics bundle for a period.
func (c *Client) Timeseries(ctx context.Context, period, freelancerID string, top int) (Timeseries, error) {
	q := url.Values{}
	if period != "" {
		q.Set("period", period)
	}
	if freelancerID != "" {
		q.Set("freelancer_id", freelancerID)
	}
	if top > 0 {
		q.Set("top", fmt.Sprintf("%d", top))
	}
	endpoint := "v0/timeseries"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp Timeseries
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, 0)
	return page.Events, err
}

// EventsPage returns a cursor-paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor int64) (EventPage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor > 0 {
		q.Set("cursor", fmt.Sprintf("%d", cursor))
	}
	endpoint := "v0/events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp EventPage
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.ActorID != "" {
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
