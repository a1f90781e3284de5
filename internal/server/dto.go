package server

import (
	"encoding/json"

	"cmms/internal/domain"
	"cmms/internal/engine"
)

type CreateActivityRequest struct {
	ID                    string             `json:"id,omitempty"`
	ActivityType          string             `json:"activity_type" enum:"cleaning,repair,weather_response"`
	Title                 string             `json:"title,omitempty"`
	Description           string             `json:"description,omitempty"`
	Priority              string             `json:"priority,omitempty" enum:"low,medium,high"`
	HazardLevel           string             `json:"hazard_level,omitempty" enum:"low,medium,high"`
	ScheduledAt           string             `json:"scheduled_at" format:"date-time"`
	ExpectedDowntimeHours float64            `json:"expected_downtime_hours,omitempty"`
	Facility              domain.FacilityRef `json:"facility"`
}

type TransitionRequest struct {
	Status      string              `json:"status" enum:"planned,in_progress,completed,cancelled"`
	CompletedAt string              `json:"completed_at,omitempty" format:"date-time"`
	Facility    *domain.FacilityRef `json:"facility,omitempty"`
}

type AssignRequest struct {
	StaffID        string `json:"staff_id"`
	Responsibility string `json:"responsibility,omitempty"`
}

type BatchAssignRequest struct {
	StaffIDs       []string `json:"staff_ids" minItems:"1"`
	Responsibility string   `json:"responsibility,omitempty"`
}

type ResponsibilityRequest struct {
	Responsibility string `json:"responsibility"`
}

type CreateStaffRequest struct {
	ID          string `json:"id,omitempty"`
	StaffNumber string `json:"staff_number"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email,omitempty"`
	RoleLevel   int    `json:"role_level" minimum:"1" maximum:"3"`
	HireDate    string `json:"hire_date,omitempty" format:"date"`
}

type RoleChangeRequest struct {
	RoleLevel int `json:"role_level" minimum:"1" maximum:"3"`
}

type CreateSuperviseRequest struct {
	ID                 string `json:"id,omitempty"`
	SupervisorStaffID  string `json:"supervisor_staff_id"`
	SubordinateStaffID string `json:"subordinate_staff_id"`
	StartDate          string `json:"start_date" format:"date"`
	EndDate            string `json:"end_date,omitempty" format:"date"`
}

type CreateFacilityRequest struct {
	Kind       string `json:"kind" enum:"building,room,level,square,gate,canteen,area"`
	BuildingID string `json:"building_id,omitempty"`
	ID         string `json:"id"`
	Name       string `json:"name"`
	Detail     string `json:"detail,omitempty"`
}

type CloseSuperviseRequest struct {
	EndDate string `json:"end_date" format:"date"`
}

type DevLoginRequest struct {
	StaffID string `json:"staff_id"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type WhoAmIResponse struct {
	StaffID     string   `json:"staff_id"`
	Name        string   `json:"name"`
	RoleLevel   int      `json:"role_level"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
	Source      string   `json:"source"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type AssignmentCheck struct {
	ActivityID string `json:"activity_id"`
	StaffID    string `json:"staff_id"`
	Assigned   bool   `json:"assigned"`
}

type ActivityDetail struct {
	domain.Activity
	Participants int `json:"participants"`
}

type activityList struct {
	Items []domain.Activity `json:"items"`
}

type facilityList struct {
	Items []domain.Facility `json:"items"`
}

type staffList struct {
	Items []domain.Staff `json:"items"`
}

type assignmentList struct {
	Items []domain.WorksFor `json:"items"`
}

type superviseList struct {
	Items []domain.Supervise `json:"items"`
}

type BatchAssignResponse = engine.BatchResult

func eventResponse(e domain.Event) EventResponse {
	payload := map[string]any{}
	if e.Payload != "" {
		_ = json.Unmarshal([]byte(e.Payload), &payload)
	}
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    payload,
	}
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
