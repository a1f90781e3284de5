package auth_test

import (
	"context"
	"errors"
	"testing"

	"cmms/internal/domain"
	"cmms/internal/engine/auth"
)

type staticRoles map[string]domain.RoleLevel

func (s staticRoles) RoleLevel(_ context.Context, id string) (domain.RoleLevel, error) {
	level, ok := s[id]
	if !ok {
		return 0, errors.New("unknown staff")
	}
	return level, nil
}

func TestPermissionsByLevel(t *testing.T) {
	if !auth.HasPermission(domain.RoleExecutiveOfficer, auth.PermStaffManage) {
		t.Fatalf("executives manage staff")
	}
	if auth.HasPermission(domain.RoleMidLevelManager, auth.PermStaffManage) {
		t.Fatalf("managers must not manage staff")
	}
	if !auth.HasPermission(domain.RoleMidLevelManager, auth.PermAssignmentWrite) {
		t.Fatalf("managers assign staff")
	}
	if auth.HasPermission(domain.RoleBaseLevelWorker, auth.PermActivityWrite) {
		t.Fatalf("workers are read-only")
	}
	if !auth.HasPermission(domain.RoleBaseLevelWorker, auth.PermActivityRead) {
		t.Fatalf("workers read activities")
	}
	if len(auth.PermissionsFor(domain.RoleLevel(7))) != 0 {
		t.Fatalf("unknown level should have no permissions")
	}
}

func TestRequire(t *testing.T) {
	svc := auth.Service{Roles: staticRoles{"boss": domain.RoleExecutiveOfficer, "w": domain.RoleBaseLevelWorker}}
	ctx := context.Background()
	if err := svc.Require(ctx, "boss", auth.PermStaffManage); err != nil {
		t.Fatalf("boss: %v", err)
	}
	err := svc.Require(ctx, "w", auth.PermAssignmentWrite)
	var forbidden auth.ForbiddenError
	if !errors.As(err, &forbidden) || forbidden.Permission != auth.PermAssignmentWrite {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if err := svc.Require(ctx, "ghost", auth.PermActivityRead); err == nil {
		t.Fatalf("expected lookup error")
	}
}
