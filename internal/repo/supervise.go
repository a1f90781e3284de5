package repo

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"cmms/internal/domain"
)

const superviseColumns = `id,supervisor_staff_id,subordinate_staff_id,start_date,end_date,created_at`

func scanSupervise(s scanner) (domain.Supervise, error) {
	var sv domain.Supervise
	var start, created string
	var end sql.NullString
	err := s.Scan(&sv.ID, &sv.SupervisorStaffID, &sv.SubordinateStaffID, &start, &end, &created)
	if err == sql.ErrNoRows {
		return sv, ErrNotFound
	}
	if err != nil {
		return sv, err
	}
	if sv.StartDate, err = domain.ParseDate(start); err != nil {
		return sv, err
	}
	if sv.EndDate, err = parseNullDate(end); err != nil {
		return sv, err
	}
	sv.CreatedAt, err = parseTime(created)
	return sv, err
}

func collectSupervise(rows *sql.Rows) ([]domain.Supervise, error) {
	defer rows.Close()
	var res []domain.Supervise
	for rows.Next() {
		sv, err := scanSupervise(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, sv)
	}
	return res, rows.Err()
}

func (r Repo) InsertSupervise(ctx context.Context, tx *sql.Tx, s domain.Supervise) error {
	_, err := tx.ExecContext(ctx, r.q(`INSERT INTO supervise(id,supervisor_staff_id,subordinate_staff_id,start_date,end_date,created_at) VALUES (?,?,?,?,?,?)`),
		s.ID, s.SupervisorStaffID, s.SubordinateStaffID, formatDate(s.StartDate), nullableDate(s.EndDate), formatTime(s.CreatedAt))
	return err
}

func (r Repo) GetSupervise(ctx context.Context, id string) (domain.Supervise, error) {
	return scanSupervise(r.DB.QueryRowContext(ctx, r.q(`SELECT `+superviseColumns+` FROM supervise WHERE id=?`), id))
}

func (r Repo) GetSuperviseTx(ctx context.Context, tx *sql.Tx, id string) (domain.Supervise, error) {
	return scanSupervise(tx.QueryRowContext(ctx, r.q(`SELECT `+superviseColumns+` FROM supervise WHERE id=?`), id))
}

// ListPairTx returns every edge for the ordered pair, closed ones included.
func (r Repo) ListPairTx(ctx context.Context, tx *sql.Tx, supervisorID, subordinateID string) ([]domain.Supervise, error) {
	rows, err := tx.QueryContext(ctx, r.q(`SELECT `+superviseColumns+` FROM supervise WHERE supervisor_staff_id=? AND subordinate_staff_id=? ORDER BY start_date`),
		supervisorID, subordinateID)
	if err != nil {
		return nil, err
	}
	return collectSupervise(rows)
}

func (r Repo) CloseSupervise(ctx context.Context, tx *sql.Tx, id string, end time.Time) error {
	res, err := tx.ExecContext(ctx, r.q(`UPDATE supervise SET end_date=? WHERE id=?`), formatDate(end), id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// ActiveEdgesTx returns edges touching staffID on either end that have not
// ended before day.
func (r Repo) ActiveEdgesTx(ctx context.Context, tx *sql.Tx, staffID string, day time.Time) ([]domain.Supervise, error) {
	rows, err := tx.QueryContext(ctx, r.q(`SELECT `+superviseColumns+` FROM supervise
WHERE (supervisor_staff_id=? OR subordinate_staff_id=?) AND (end_date IS NULL OR end_date >= ?)`),
		staffID, staffID, formatDate(day))
	if err != nil {
		return nil, err
	}
	return collectSupervise(rows)
}

type SuperviseFilters struct {
	SupervisorID  string
	SubordinateID string
	// ActiveOn keeps only edges not ended before this day.
	ActiveOn *time.Time
}

func (r Repo) ListSupervise(ctx context.Context, f SuperviseFilters) ([]domain.Supervise, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.SupervisorID != "" {
		clauses = append(clauses, "supervisor_staff_id=?")
		args = append(args, f.SupervisorID)
	}
	if f.SubordinateID != "" {
		clauses = append(clauses, "subordinate_staff_id=?")
		args = append(args, f.SubordinateID)
	}
	if f.ActiveOn != nil {
		clauses = append(clauses, "(end_date IS NULL OR end_date >= ?)")
		args = append(args, formatDate(*f.ActiveOn))
	}
	query := `SELECT ` + superviseColumns + ` FROM supervise WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY start_date DESC, id`
	rows, err := r.DB.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, err
	}
	return collectSupervise(rows)
}
