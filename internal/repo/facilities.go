package repo

import (
	"context"
	"database/sql"
	"strings"

	"cmms/internal/domain"
)

const facilityColumns = `kind,building_id,id,name,COALESCE(detail,''),active,created_at`

func scanFacility(s scanner) (domain.Facility, error) {
	var f domain.Facility
	var created string
	err := s.Scan(&f.Kind, &f.BuildingID, &f.ID, &f.Name, &f.Detail, &f.Active, &created)
	if err == sql.ErrNoRows {
		return f, ErrNotFound
	}
	if err != nil {
		return f, err
	}
	f.CreatedAt, err = parseTime(created)
	return f, err
}

func (r Repo) InsertFacility(ctx context.Context, tx *sql.Tx, f domain.Facility) error {
	_, err := tx.ExecContext(ctx, r.q(`INSERT INTO facilities(kind,building_id,id,name,detail,active,created_at) VALUES (?,?,?,?,?,?,?)`),
		string(f.Kind), f.BuildingID, f.ID, f.Name, nullable(f.Detail), f.Active, formatTime(f.CreatedAt))
	return err
}

func (r Repo) GetFacilityTx(ctx context.Context, tx *sql.Tx, key domain.FacilityKey) (domain.Facility, error) {
	return scanFacility(tx.QueryRowContext(ctx, r.q(`SELECT `+facilityColumns+` FROM facilities WHERE kind=? AND building_id=? AND id=?`),
		string(key.Kind), key.BuildingID, key.ID))
}

func (r Repo) SetFacilityActive(ctx context.Context, tx *sql.Tx, key domain.FacilityKey, active bool) error {
	res, err := tx.ExecContext(ctx, r.q(`UPDATE facilities SET active=? WHERE kind=? AND building_id=? AND id=?`),
		active, string(key.Kind), key.BuildingID, key.ID)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

type FacilityFilters struct {
	Kind       domain.FacilityType
	BuildingID string
	ActiveOnly bool
}

func (r Repo) ListFacilities(ctx context.Context, f FacilityFilters) ([]domain.Facility, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.Kind != "" {
		clauses = append(clauses, "kind=?")
		args = append(args, string(f.Kind))
	}
	if f.BuildingID != "" {
		clauses = append(clauses, "building_id=?")
		args = append(args, f.BuildingID)
	}
	if f.ActiveOnly {
		clauses = append(clauses, "active=?")
		args = append(args, true)
	}
	query := `SELECT ` + facilityColumns + ` FROM facilities WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY kind, building_id, id`
	rows, err := r.DB.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Facility
	for rows.Next() {
		f, err := scanFacility(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, f)
	}
	return res, rows.Err()
}
