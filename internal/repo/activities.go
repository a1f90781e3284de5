package repo

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"cmms/internal/domain"
)

const activityColumns = `id,activity_type,COALESCE(title,''),COALESCE(description,''),status,priority,hazard_level,scheduled_at,
expected_downtime_hours,actual_completion_at,facility_type,COALESCE(building_id,''),COALESCE(room_id,''),COALESCE(level_id,''),
COALESCE(square_id,''),COALESCE(gate_id,''),COALESCE(canteen_id,''),COALESCE(area_id,''),created_by_staff_id,active,created_at,updated_at`

func scanActivity(s scanner) (domain.Activity, error) {
	var a domain.Activity
	var scheduled, created, updated string
	var completed sql.NullString
	f := &a.Facility
	err := s.Scan(&a.ID, &a.Type, &a.Title, &a.Description, &a.Status, &a.Priority, &a.HazardLevel, &scheduled,
		&a.ExpectedDowntimeHours, &completed, &f.Type, &f.BuildingID, &f.RoomID, &f.LevelID,
		&f.SquareID, &f.GateID, &f.CanteenID, &f.AreaID, &a.CreatedByStaffID, &a.Active, &created, &updated)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if a.ScheduledAt, err = parseTime(scheduled); err != nil {
		return a, err
	}
	if a.ActualCompletionAt, err = parseNullTime(completed); err != nil {
		return a, err
	}
	if a.CreatedAt, err = parseTime(created); err != nil {
		return a, err
	}
	a.UpdatedAt, err = parseTime(updated)
	return a, err
}

func (r Repo) InsertActivity(ctx context.Context, tx *sql.Tx, a domain.Activity) error {
	f := a.Facility
	_, err := tx.ExecContext(ctx, r.q(`INSERT INTO activities(id,activity_type,title,description,status,priority,hazard_level,scheduled_at,
expected_downtime_hours,actual_completion_at,facility_type,building_id,room_id,level_id,square_id,gate_id,canteen_id,area_id,
created_by_staff_id,active,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`),
		a.ID, string(a.Type), nullable(a.Title), nullable(a.Description), string(a.Status), string(a.Priority), string(a.HazardLevel), formatTime(a.ScheduledAt),
		a.ExpectedDowntimeHours, nullableTime(a.ActualCompletionAt), string(f.Type), nullable(f.BuildingID), nullable(f.RoomID), nullable(f.LevelID),
		nullable(f.SquareID), nullable(f.GateID), nullable(f.CanteenID), nullable(f.AreaID),
		a.CreatedByStaffID, a.Active, formatTime(a.CreatedAt), formatTime(a.UpdatedAt))
	return err
}

func (r Repo) GetActivity(ctx context.Context, id string) (domain.Activity, error) {
	return r.getActivity(ctx, r.DB, id)
}

func (r Repo) GetActivityTx(ctx context.Context, tx *sql.Tx, id string) (domain.Activity, error) {
	return r.getActivity(ctx, tx, id)
}

func (r Repo) getActivity(ctx context.Context, q queryer, id string) (domain.Activity, error) {
	return scanActivity(q.QueryRowContext(ctx, r.q(`SELECT `+activityColumns+` FROM activities WHERE id=?`), id))
}

// UpdateActivityStatus writes only the lifecycle columns of a.
func (r Repo) UpdateActivityStatus(ctx context.Context, tx *sql.Tx, a domain.Activity) error {
	res, err := tx.ExecContext(ctx, r.q(`UPDATE activities SET status=?, actual_completion_at=?, updated_at=? WHERE id=?`),
		string(a.Status), nullableTime(a.ActualCompletionAt), formatTime(a.UpdatedAt), a.ID)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (r Repo) SetActivityActive(ctx context.Context, tx *sql.Tx, id string, active bool, updatedAt time.Time) error {
	res, err := tx.ExecContext(ctx, r.q(`UPDATE activities SET active=?, updated_at=? WHERE id=?`), active, formatTime(updatedAt), id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

type ActivityFilters struct {
	Status       domain.ActivityStatus
	Type         domain.ActivityType
	FacilityType domain.FacilityType
	CreatedBy    string
	ActiveOnly   bool
	Limit        int
}

func (r Repo) ListActivities(ctx context.Context, f ActivityFilters) ([]domain.Activity, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, string(f.Status))
	}
	if f.Type != "" {
		clauses = append(clauses, "activity_type=?")
		args = append(args, string(f.Type))
	}
	if f.FacilityType != "" {
		clauses = append(clauses, "facility_type=?")
		args = append(args, string(f.FacilityType))
	}
	if f.CreatedBy != "" {
		clauses = append(clauses, "created_by_staff_id=?")
		args = append(args, f.CreatedBy)
	}
	if f.ActiveOnly {
		clauses = append(clauses, "active=?")
		args = append(args, true)
	}
	query := `SELECT ` + activityColumns + ` FROM activities WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY scheduled_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) CountActivitiesByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, r.q(`SELECT status, count(*) FROM activities WHERE active=? GROUP BY status`), true)
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

// ActivityWindow selects active activities of the given types scheduled
// within [From, To]. Nil bounds are open.
type ActivityWindow struct {
	From       *time.Time
	To         *time.Time
	BuildingID string
	Types      []domain.ActivityType
}

func (w ActivityWindow) clauses(prefix string) ([]string, []any) {
	var clauses []string
	var args []any
	if w.From != nil {
		clauses = append(clauses, prefix+"scheduled_at>=?")
		args = append(args, formatTime(*w.From))
	}
	if w.To != nil {
		clauses = append(clauses, prefix+"scheduled_at<=?")
		args = append(args, formatTime(*w.To))
	}
	return clauses, args
}

// ListActivitiesInWindow returns matching activities oldest first.
func (r Repo) ListActivitiesInWindow(ctx context.Context, w ActivityWindow) ([]domain.Activity, error) {
	clauses, args := w.clauses("")
	clauses = append(clauses, "active=?")
	args = append(args, true)
	if len(w.Types) > 0 {
		marks := make([]string, len(w.Types))
		for i, t := range w.Types {
			marks[i] = "?"
			args = append(args, string(t))
		}
		clauses = append(clauses, "activity_type IN ("+strings.Join(marks, ",")+")")
	}
	if w.BuildingID != "" {
		clauses = append(clauses, "building_id=?")
		args = append(args, w.BuildingID)
	}
	query := `SELECT ` + activityColumns + ` FROM activities WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY scheduled_at, id`
	rows, err := r.DB.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// Area labels use the registered name and fall back to the raw id when the
// facility was never registered.
const workerCountsQuery = `SELECT a.activity_type,
CASE a.facility_type
    WHEN 'building' THEN COALESCE(b.name, a.building_id)
    WHEN 'room' THEN COALESCE(f.name, a.room_id)
    WHEN 'level' THEN COALESCE(b.name, a.building_id) || '-' || COALESCE(f.name, a.level_id)
    WHEN 'square' THEN COALESCE(f.name, a.square_id)
    WHEN 'gate' THEN COALESCE(f.name, a.gate_id)
    WHEN 'canteen' THEN COALESCE(f.name, a.canteen_id)
    WHEN 'area' THEN COALESCE(f.name, a.area_id)
    ELSE 'Other'
END AS area,
COUNT(w.id) AS worker_count
FROM activities a
LEFT JOIN works_for w ON w.activity_id = a.id AND w.active = ?
LEFT JOIN facilities b ON b.kind = 'building' AND b.building_id = '' AND b.id = a.building_id
LEFT JOIN facilities f ON f.kind = a.facility_type AND f.kind <> 'building'
    AND f.building_id = CASE WHEN a.facility_type IN ('room', 'level') THEN a.building_id ELSE '' END
    AND f.id = COALESCE(a.room_id, a.level_id, a.square_id, a.gate_id, a.canteen_id, a.area_id)
WHERE `

// WorkerCountsByArea counts active assignments on completed activities
// scheduled within the window, grouped by activity type and area. Busiest
// groups come first.
func (r Repo) WorkerCountsByArea(ctx context.Context, w ActivityWindow) ([]domain.WorkerCount, error) {
	clauses, windowArgs := w.clauses("a.")
	clauses = append([]string{"a.active=?", "a.status=?"}, clauses...)
	args := append([]any{true, true, string(domain.StatusCompleted)}, windowArgs...)
	query := workerCountsQuery + strings.Join(clauses, " AND ") + ` GROUP BY a.activity_type, area ORDER BY worker_count DESC, a.activity_type, area`
	rows, err := r.DB.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.WorkerCount
	for rows.Next() {
		var c domain.WorkerCount
		if err := rows.Scan(&c.ActivityType, &c.Area, &c.Workers); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}
