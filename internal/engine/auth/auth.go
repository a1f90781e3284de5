package auth

import (
	"context"
	"fmt"

	"cmms/internal/domain"
)

const (
	PermActivityRead     = "activity.read"
	PermActivityWrite    = "activity.write"
	PermAssignmentWrite  = "assignment.write"
	PermSupervisionWrite = "supervision.write"
	PermStaffRead        = "staff.read"
	PermStaffManage      = "staff.manage"
	PermEventsRead       = "events.read"
)

var readOnly = []string{PermActivityRead, PermStaffRead, PermEventsRead}

var managerPerms = []string{
	PermActivityRead, PermActivityWrite, PermAssignmentWrite, PermSupervisionWrite,
	PermStaffRead, PermEventsRead,
}

var allPerms = append(append([]string{}, managerPerms...), PermStaffManage)

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

// PermissionsFor returns the permissions granted to a role level. Unknown
// levels get nothing.
func PermissionsFor(level domain.RoleLevel) []string {
	var src []string
	switch level {
	case domain.RoleExecutiveOfficer:
		src = allPerms
	case domain.RoleMidLevelManager:
		src = managerPerms
	case domain.RoleBaseLevelWorker:
		src = readOnly
	}
	return append([]string(nil), src...)
}

func HasPermission(level domain.RoleLevel, perm string) bool {
	for _, p := range PermissionsFor(level) {
		if p == perm {
			return true
		}
	}
	return false
}

// Directory resolves a staff member to its current role level.
type Directory interface {
	RoleLevel(ctx context.Context, staffID string) (domain.RoleLevel, error)
}

// Service checks permissions against the role directory.
type Service struct {
	Roles Directory
}

func (s Service) Permissions(ctx context.Context, staffID string) ([]string, error) {
	level, err := s.Roles.RoleLevel(ctx, staffID)
	if err != nil {
		return nil, err
	}
	return PermissionsFor(level), nil
}

// Require returns ForbiddenError when staffID lacks perm. Lookup failures are
// returned as-is.
func (s Service) Require(ctx context.Context, staffID, perm string) error {
	level, err := s.Roles.RoleLevel(ctx, staffID)
	if err != nil {
		return err
	}
	if !HasPermission(level, perm) {
		return ForbiddenError{Permission: perm}
	}
	return nil
}
