package app_test

import (
	"context"
	"io"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"cmms/internal/app"
	"cmms/internal/domain"
	"cmms/internal/engine"
	"cmms/internal/rolecache"
)

func TestOpenDefaultsToSQLite(t *testing.T) {
	rt, err := app.Open(app.Options{Workspace: t.TempDir(), LogOutput: io.Discard})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close()
	if _, ok := rt.Engine.Roles.(engine.RepoRoles); !ok {
		t.Fatalf("expected repo-backed roles without redis, got %T", rt.Engine.Roles)
	}
	roles, err := rt.Engine.Repo.ListRoles(context.Background())
	if err != nil || len(roles) != 3 {
		t.Fatalf("roles: %v %v", roles, err)
	}
}

func TestOpenWiresRoleCache(t *testing.T) {
	s := miniredis.RunT(t)
	rt, err := app.Open(app.Options{Workspace: t.TempDir(), RedisURL: "redis://" + s.Addr(), LogOutput: io.Discard})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close()
	if _, ok := rt.Engine.Roles.(*rolecache.Cache); !ok {
		t.Fatalf("expected role cache, got %T", rt.Engine.Roles)
	}
	ctx := context.Background()
	if _, err := rt.Engine.CreateStaff(ctx, engine.StaffCreateOptions{
		ID: "mgr", StaffNumber: "S-1", FirstName: "M", LastName: "Gr", RoleLevel: domain.RoleMidLevelManager,
	}); err != nil {
		t.Fatalf("create staff: %v", err)
	}
	if _, err := rt.Engine.Permissions(ctx, "mgr"); err != nil {
		t.Fatalf("permissions: %v", err)
	}
	if !s.Exists("cmms:role:mgr") {
		t.Fatalf("role lookup did not go through the cache")
	}
	if _, err := rt.Engine.ChangeStaffRole(ctx, "mgr", domain.RoleExecutiveOfficer, "tester"); err != nil {
		t.Fatalf("change role: %v", err)
	}
	if s.Exists("cmms:role:mgr") {
		t.Fatalf("role change did not invalidate the cache")
	}
}

func TestOpenRejectsBadOverrides(t *testing.T) {
	if _, err := app.Open(app.Options{Workspace: t.TempDir(), Driver: "oracle"}); err == nil {
		t.Fatalf("expected driver error")
	}
}
