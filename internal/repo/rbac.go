package repo

import (
	"context"
	"database/sql"

	"cmms/internal/domain"
)

func (r Repo) ListRoles(ctx context.Context) ([]domain.Role, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,level FROM roles ORDER BY level`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []domain.Role
	for rows.Next() {
		var role domain.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Level); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// StaffRoleLevel returns the role level of an active staff member.
func (r Repo) StaffRoleLevel(ctx context.Context, staffID string) (domain.RoleLevel, error) {
	var level domain.RoleLevel
	err := r.DB.QueryRowContext(ctx, r.q(`SELECT role_level FROM staff WHERE id=? AND active=?`), staffID, true).Scan(&level)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	return level, err
}
