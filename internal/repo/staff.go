package repo

import (
	"context"
	"database/sql"
	"strings"

	"cmms/internal/domain"
)

const staffColumns = `id,staff_number,first_name,last_name,COALESCE(email,''),role_level,hire_date,active,created_at`

func scanStaff(s scanner) (domain.Staff, error) {
	var st domain.Staff
	var hire sql.NullString
	var created string
	err := s.Scan(&st.ID, &st.StaffNumber, &st.FirstName, &st.LastName, &st.Email, &st.RoleLevel, &hire, &st.Active, &created)
	if err == sql.ErrNoRows {
		return st, ErrNotFound
	}
	if err != nil {
		return st, err
	}
	if st.HireDate, err = parseNullDate(hire); err != nil {
		return st, err
	}
	st.CreatedAt, err = parseTime(created)
	return st, err
}

func (r Repo) InsertStaff(ctx context.Context, tx *sql.Tx, s domain.Staff) error {
	_, err := tx.ExecContext(ctx, r.q(`INSERT INTO staff(id,staff_number,first_name,last_name,email,role_level,hire_date,active,created_at) VALUES (?,?,?,?,?,?,?,?,?)`),
		s.ID, s.StaffNumber, s.FirstName, s.LastName, nullable(s.Email), int(s.RoleLevel), nullableDate(s.HireDate), s.Active, formatTime(s.CreatedAt))
	return err
}

func (r Repo) GetStaff(ctx context.Context, id string) (domain.Staff, error) {
	return r.getStaff(ctx, r.DB, id)
}

func (r Repo) GetStaffTx(ctx context.Context, tx *sql.Tx, id string) (domain.Staff, error) {
	return r.getStaff(ctx, tx, id)
}

func (r Repo) getStaff(ctx context.Context, q queryer, id string) (domain.Staff, error) {
	return scanStaff(q.QueryRowContext(ctx, r.q(`SELECT `+staffColumns+` FROM staff WHERE id=?`), id))
}

type StaffFilters struct {
	RoleLevel  domain.RoleLevel
	ActiveOnly bool
}

func (r Repo) ListStaff(ctx context.Context, f StaffFilters) ([]domain.Staff, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.RoleLevel != 0 {
		clauses = append(clauses, "role_level=?")
		args = append(args, int(f.RoleLevel))
	}
	if f.ActiveOnly {
		clauses = append(clauses, "active=?")
		args = append(args, true)
	}
	query := `SELECT ` + staffColumns + ` FROM staff WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY role_level, staff_number`
	rows, err := r.DB.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Staff
	for rows.Next() {
		st, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, st)
	}
	return res, rows.Err()
}

func (r Repo) UpdateStaffRole(ctx context.Context, tx *sql.Tx, id string, level domain.RoleLevel) error {
	res, err := tx.ExecContext(ctx, r.q(`UPDATE staff SET role_level=? WHERE id=?`), int(level), id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (r Repo) SetStaffActive(ctx context.Context, tx *sql.Tx, id string, active bool) error {
	res, err := tx.ExecContext(ctx, r.q(`UPDATE staff SET active=? WHERE id=?`), active, id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}
