package repo

import (
	"context"
	"database/sql"
	"strings"

	"cmms/internal/domain"
)

const worksForColumns = `id,staff_id,activity_id,responsibility,assigned_at,active`

func scanWorksFor(s scanner) (domain.WorksFor, error) {
	var w domain.WorksFor
	var assigned string
	err := s.Scan(&w.ID, &w.StaffID, &w.ActivityID, &w.Responsibility, &assigned, &w.Active)
	if err == sql.ErrNoRows {
		return w, ErrNotFound
	}
	if err != nil {
		return w, err
	}
	w.AssignedAt, err = parseTime(assigned)
	return w, err
}

// ActiveAssignmentTx returns the active row for the pair, or nil when none.
func (r Repo) ActiveAssignmentTx(ctx context.Context, tx *sql.Tx, staffID, activityID string) (*domain.WorksFor, error) {
	w, err := scanWorksFor(tx.QueryRowContext(ctx, r.q(`SELECT `+worksForColumns+` FROM works_for WHERE staff_id=? AND activity_id=? AND active=?`),
		staffID, activityID, true))
	if err == ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r Repo) InsertWorksFor(ctx context.Context, tx *sql.Tx, w domain.WorksFor) error {
	_, err := tx.ExecContext(ctx, r.q(`INSERT INTO works_for(id,staff_id,activity_id,responsibility,assigned_at,active) VALUES (?,?,?,?,?,?)`),
		w.ID, w.StaffID, w.ActivityID, w.Responsibility, formatTime(w.AssignedAt), w.Active)
	return err
}

func (r Repo) DeactivateWorksFor(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, r.q(`UPDATE works_for SET active=? WHERE id=?`), false, id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (r Repo) UpdateWorksForResponsibility(ctx context.Context, tx *sql.Tx, id, responsibility string) error {
	res, err := tx.ExecContext(ctx, r.q(`UPDATE works_for SET responsibility=? WHERE id=?`), responsibility, id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

type AssignmentFilters struct {
	StaffID    string
	ActivityID string
	ActiveOnly bool
}

func (r Repo) ListAssignments(ctx context.Context, f AssignmentFilters) ([]domain.WorksFor, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.StaffID != "" {
		clauses = append(clauses, "staff_id=?")
		args = append(args, f.StaffID)
	}
	if f.ActivityID != "" {
		clauses = append(clauses, "activity_id=?")
		args = append(args, f.ActivityID)
	}
	if f.ActiveOnly {
		clauses = append(clauses, "active=?")
		args = append(args, true)
	}
	query := `SELECT ` + worksForColumns + ` FROM works_for WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY assigned_at DESC, id`
	rows, err := r.DB.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.WorksFor
	for rows.Next() {
		w, err := scanWorksFor(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, rows.Err()
}

func (r Repo) IsStaffInActivity(ctx context.Context, staffID, activityID string) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, r.q(`SELECT count(*) FROM works_for WHERE staff_id=? AND activity_id=? AND active=?`),
		staffID, activityID, true).Scan(&n)
	return n > 0, err
}

func (r Repo) CountParticipants(ctx context.Context, activityID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, r.q(`SELECT count(*) FROM works_for WHERE activity_id=? AND active=?`), activityID, true).Scan(&n)
	return n, err
}
