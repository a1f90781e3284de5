package cmmssdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal CMMS HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	// StaffID is sent as X-Staff-Id when no bearer token is set.
	StaffID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client for the default /v0 base path.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

type Facility struct {
	Type       string `json:"facility_type"`
	BuildingID string `json:"building_id,omitempty"`
	RoomID     string `json:"room_id,omitempty"`
	LevelID    string `json:"level_id,omitempty"`
	SquareID   string `json:"square_id,omitempty"`
	GateID     string `json:"gate_id,omitempty"`
	CanteenID  string `json:"canteen_id,omitempty"`
	AreaID     string `json:"area_id,omitempty"`
}

// Activity represents the API activity model.
type Activity struct {
	ID                    string   `json:"id"`
	Type                  string   `json:"activity_type"`
	Title                 string   `json:"title,omitempty"`
	Status                string   `json:"status"`
	Priority              string   `json:"priority"`
	HazardLevel           string   `json:"hazard_level"`
	ScheduledAt           string   `json:"scheduled_at"`
	ExpectedDowntimeHours float64  `json:"expected_downtime_hours"`
	ActualCompletionAt    string   `json:"actual_completion_at,omitempty"`
	Facility              Facility `json:"facility"`
	CreatedByStaffID      string   `json:"created_by_staff_id"`
	Active                bool     `json:"active"`
}

type NewActivity struct {
	ID                    string   `json:"id,omitempty"`
	Type                  string   `json:"activity_type"`
	Title                 string   `json:"title,omitempty"`
	Description           string   `json:"description,omitempty"`
	Priority              string   `json:"priority,omitempty"`
	HazardLevel           string   `json:"hazard_level,omitempty"`
	ScheduledAt           string   `json:"scheduled_at"`
	ExpectedDowntimeHours float64  `json:"expected_downtime_hours,omitempty"`
	Facility              Facility `json:"facility"`
}

type Assignment struct {
	ID             string `json:"id"`
	StaffID        string `json:"staff_id"`
	ActivityID     string `json:"activity_id"`
	Responsibility string `json:"responsibility"`
	AssignedAt     string `json:"assigned_at"`
	Active         bool   `json:"active"`
}

type BatchResult struct {
	Assigned    int          `json:"assigned"`
	Assignments []Assignment `json:"assignments"`
	Failures    []struct {
		StaffID string `json:"staff_id"`
		Code    string `json:"code,omitempty"`
		Error   string `json:"error"`
	} `json:"failures"`
}

type Supervision struct {
	ID                 string `json:"id"`
	SupervisorStaffID  string `json:"supervisor_staff_id"`
	SubordinateStaffID string `json:"subordinate_staff_id"`
	StartDate          string `json:"start_date"`
	EndDate            string `json:"end_date,omitempty"`
}

// RegisteredFacility is a facility registry entry. BuildingID is set for rooms
// and levels.
type RegisteredFacility struct {
	Kind       string `json:"kind"`
	BuildingID string `json:"building_id,omitempty"`
	ID         string `json:"id"`
	Name       string `json:"name"`
	Detail     string `json:"detail,omitempty"`
	Active     bool   `json:"active"`
}

type WorkerCount struct {
	ActivityType string `json:"activity_type"`
	Area         string `json:"area"`
	Workers      int    `json:"worker_count"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses. Code is the error envelope's code when the
// body carried one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsCode reports whether err is an APIError with the given code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

func (c *Client) CreateActivity(ctx context.Context, a NewActivity) (Activity, error) {
	var resp Activity
	err := c.do(ctx, http.MethodPost, "activities", a, &resp)
	return resp, err
}

func (c *Client) GetActivity(ctx context.Context, id string) (Activity, error) {
	var resp Activity
	err := c.do(ctx, http.MethodGet, "activities/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// Transition moves an activity to status. completedAt is RFC3339 and only
// needed for "completed".
func (c *Client) Transition(ctx context.Context, activityID, status, completedAt string) (Activity, error) {
	body := map[string]any{"status": status}
	if completedAt != "" {
		body["completed_at"] = completedAt
	}
	var resp Activity
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("activities/%s/transition", url.PathEscape(activityID)), body, &resp)
	return resp, err
}

func (c *Client) Assign(ctx context.Context, activityID, staffID, responsibility string) (Assignment, error) {
	body := map[string]any{"staff_id": staffID, "responsibility": responsibility}
	var resp Assignment
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("activities/%s/assignments", url.PathEscape(activityID)), body, &resp)
	return resp, err
}

func (c *Client) BatchAssign(ctx context.Context, activityID string, staffIDs []string, responsibility string) (BatchResult, error) {
	body := map[string]any{"staff_ids": staffIDs, "responsibility": responsibility}
	var resp BatchResult
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("activities/%s/assignments/batch", url.PathEscape(activityID)), body, &resp)
	return resp, err
}

func (c *Client) Unassign(ctx context.Context, activityID, staffID string) (Assignment, error) {
	var resp Assignment
	endpoint := fmt.Sprintf("activities/%s/assignments/%s", url.PathEscape(activityID), url.PathEscape(staffID))
	err := c.do(ctx, http.MethodDelete, endpoint, nil, &resp)
	return resp, err
}

// Supervise records that supervisorID supervises subordinateID from
// startDate (YYYY-MM-DD).
func (c *Client) Supervise(ctx context.Context, supervisorID, subordinateID, startDate string) (Supervision, error) {
	body := map[string]any{
		"supervisor_staff_id":  supervisorID,
		"subordinate_staff_id": subordinateID,
		"start_date":           startDate,
	}
	var resp Supervision
	err := c.do(ctx, http.MethodPost, "supervisions", body, &resp)
	return resp, err
}

func (c *Client) RegisterFacility(ctx context.Context, f RegisteredFacility) (RegisteredFacility, error) {
	var resp RegisteredFacility
	err := c.do(ctx, http.MethodPost, "facilities", f, &resp)
	return resp, err
}

// WorkerCounts reports staff on completed activities per type and area.
// from and to are RFC3339 and may be empty.
func (c *Client) WorkerCounts(ctx context.Context, from, to string) ([]WorkerCount, error) {
	q := url.Values{}
	if from != "" {
		q.Set("from", from)
	}
	if to != "" {
		q.Set("to", to)
	}
	endpoint := "reports/worker-counts"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp struct {
		Items []WorkerCount `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.StaffID != "":
		req.Header.Set("X-Staff-Id", c.StaffID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.Trim(c.BasePath, "/")
}
