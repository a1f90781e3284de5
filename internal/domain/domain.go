package domain

import (
	"fmt"
	"time"
)

// DateLayout is the wire and storage layout for civil dates.
const DateLayout = "2006-01-02"

type ActivityType string

const (
	ActivityCleaning        ActivityType = "cleaning"
	ActivityRepair          ActivityType = "repair"
	ActivityWeatherResponse ActivityType = "weather_response"
)

func (t ActivityType) Valid() bool {
	switch t {
	case ActivityCleaning, ActivityRepair, ActivityWeatherResponse:
		return true
	}
	return false
}

type ActivityStatus string

const (
	StatusPlanned    ActivityStatus = "planned"
	StatusInProgress ActivityStatus = "in_progress"
	StatusCompleted  ActivityStatus = "completed"
	StatusCancelled  ActivityStatus = "cancelled"
)

func (s ActivityStatus) Valid() bool {
	switch s {
	case StatusPlanned, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition leaves s.
func (s ActivityStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Level grades both hazard and priority.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

func (l Level) Valid() bool {
	switch l {
	case LevelLow, LevelMedium, LevelHigh:
		return true
	}
	return false
}

type FacilityType string

const (
	FacilityBuilding FacilityType = "building"
	FacilityRoom     FacilityType = "room"
	FacilityLevel    FacilityType = "level"
	FacilitySquare   FacilityType = "square"
	FacilityGate     FacilityType = "gate"
	FacilityCanteen  FacilityType = "canteen"
	FacilityArea     FacilityType = "area"
	FacilityNone     FacilityType = "none"
)

// FacilityRef is the location an activity is bound to. Empty ids are unset.
type FacilityRef struct {
	Type       FacilityType `json:"facility_type"`
	BuildingID string       `json:"building_id,omitempty"`
	RoomID     string       `json:"room_id,omitempty"`
	LevelID    string       `json:"level_id,omitempty"`
	SquareID   string       `json:"square_id,omitempty"`
	GateID     string       `json:"gate_id,omitempty"`
	CanteenID  string       `json:"canteen_id,omitempty"`
	AreaID     string       `json:"area_id,omitempty"`
}

type FacilityField struct {
	Name  string
	Value string
}

// Fields lists every facility id column in a stable order.
func (f FacilityRef) Fields() []FacilityField {
	return []FacilityField{
		{"building_id", f.BuildingID},
		{"room_id", f.RoomID},
		{"level_id", f.LevelID},
		{"square_id", f.SquareID},
		{"gate_id", f.GateID},
		{"canteen_id", f.CanteenID},
		{"area_id", f.AreaID},
	}
}

// Registrable reports whether facilities of kind t can be registered. The
// none type binds to nothing.
func (t FacilityType) Registrable() bool {
	switch t {
	case FacilityBuilding, FacilityRoom, FacilityLevel, FacilitySquare, FacilityGate, FacilityCanteen, FacilityArea:
		return true
	}
	return false
}

// InBuilding reports whether kind t is keyed within a building.
func (t FacilityType) InBuilding() bool {
	return t == FacilityRoom || t == FacilityLevel
}

// FacilityKey identifies a registered facility. BuildingID is set only for
// rooms and levels.
type FacilityKey struct {
	Kind       FacilityType `json:"kind"`
	BuildingID string       `json:"building_id,omitempty"`
	ID         string       `json:"id"`
}

func (k FacilityKey) String() string {
	if k.BuildingID != "" {
		return fmt.Sprintf("%s %s/%s", k.Kind, k.BuildingID, k.ID)
	}
	return fmt.Sprintf("%s %s", k.Kind, k.ID)
}

// Facility is a registered location activities can be bound to.
type Facility struct {
	Kind       FacilityType `json:"kind"`
	BuildingID string       `json:"building_id,omitempty"`
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Detail     string       `json:"detail,omitempty"`
	Active     bool         `json:"active"`
	CreatedAt  time.Time    `json:"created_at"`
}

func (f Facility) Key() FacilityKey {
	return FacilityKey{Kind: f.Kind, BuildingID: f.BuildingID, ID: f.ID}
}

// WorkerCount is the number of active assignments on completed activities of
// one type in one area.
type WorkerCount struct {
	ActivityType ActivityType `json:"activity_type"`
	Area         string       `json:"area"`
	Workers      int          `json:"worker_count"`
}

type Activity struct {
	ID                    string         `json:"id"`
	Type                  ActivityType   `json:"activity_type"`
	Title                 string         `json:"title,omitempty"`
	Description           string         `json:"description,omitempty"`
	Status                ActivityStatus `json:"status"`
	Priority              Level          `json:"priority"`
	HazardLevel           Level          `json:"hazard_level"`
	ScheduledAt           time.Time      `json:"scheduled_at"`
	ExpectedDowntimeHours float64        `json:"expected_downtime_hours"`
	ActualCompletionAt    *time.Time     `json:"actual_completion_at,omitempty"`
	Facility              FacilityRef    `json:"facility"`
	CreatedByStaffID      string         `json:"created_by_staff_id"`
	Active                bool           `json:"active"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
}

// RoleLevel is the organizational tier: 1 executive, 2 manager, 3 worker.
type RoleLevel int

const (
	RoleExecutiveOfficer RoleLevel = 1
	RoleMidLevelManager  RoleLevel = 2
	RoleBaseLevelWorker  RoleLevel = 3
)

func (l RoleLevel) Valid() bool {
	return l >= RoleExecutiveOfficer && l <= RoleBaseLevelWorker
}

func (l RoleLevel) String() string {
	switch l {
	case RoleExecutiveOfficer:
		return "executive_officer"
	case RoleMidLevelManager:
		return "mid_level_manager"
	case RoleBaseLevelWorker:
		return "base_level_worker"
	}
	return fmt.Sprintf("level_%d", int(l))
}

type Role struct {
	ID    string    `json:"id"`
	Name  string    `json:"name"`
	Level RoleLevel `json:"level"`
}

type Staff struct {
	ID          string     `json:"id"`
	StaffNumber string     `json:"staff_number"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	Email       string     `json:"email,omitempty"`
	RoleLevel   RoleLevel  `json:"role_level"`
	HireDate    *time.Time `json:"hire_date,omitempty"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (s Staff) FullName() string {
	switch {
	case s.FirstName == "":
		return s.LastName
	case s.LastName == "":
		return s.FirstName
	}
	return s.FirstName + " " + s.LastName
}

// Supervise is a dated supervisor -> subordinate edge.
type Supervise struct {
	ID                 string     `json:"id"`
	SupervisorStaffID  string     `json:"supervisor_staff_id"`
	SubordinateStaffID string     `json:"subordinate_staff_id"`
	StartDate          time.Time  `json:"start_date"`
	EndDate            *time.Time `json:"end_date,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// ActiveOn reports whether the edge has not ended before day.
func (s Supervise) ActiveOn(day time.Time) bool {
	if s.EndDate == nil {
		return true
	}
	return !s.EndDate.Before(Day(day))
}

type WorksFor struct {
	ID             string    `json:"id"`
	StaffID        string    `json:"staff_id"`
	ActivityID     string    `json:"activity_id"`
	Responsibility string    `json:"responsibility"`
	AssignedAt     time.Time `json:"assigned_at"`
	Active         bool      `json:"active"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// Day truncates t to a UTC civil date.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}
