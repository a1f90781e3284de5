package repo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"cmms/internal/db"
	"cmms/internal/domain"
	"cmms/internal/migrate"
	"cmms/internal/repo"
)

func newRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn, db.SQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.Repo{DB: conn, Dialect: db.SQLite}
}

var created = time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

func seed(t *testing.T, r repo.Repo) {
	t.Helper()
	ctx := context.Background()
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	for _, s := range []domain.Staff{
		{ID: "m", StaffNumber: "1", FirstName: "M", LastName: "Gr", RoleLevel: domain.RoleMidLevelManager, Active: true, CreatedAt: created},
		{ID: "w", StaffNumber: "2", FirstName: "W", LastName: "Kr", RoleLevel: domain.RoleBaseLevelWorker, Active: true, CreatedAt: created},
	} {
		if err := r.InsertStaff(ctx, tx, s); err != nil {
			t.Fatalf("insert staff: %v", err)
		}
	}
	if err := r.InsertActivity(ctx, tx, domain.Activity{
		ID: "a1", Type: domain.ActivityCleaning, Status: domain.StatusPlanned, Priority: domain.LevelHigh, HazardLevel: domain.LevelLow,
		ScheduledAt: created, Facility: domain.FacilityRef{Type: domain.FacilityGate, GateID: "G1"},
		CreatedByStaffID: "m", Active: true, CreatedAt: created, UpdatedAt: created,
	}); err != nil {
		t.Fatalf("insert activity: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestActivityRoundTrip(t *testing.T) {
	r := newRepo(t)
	seed(t, r)
	ctx := context.Background()
	a, err := r.GetActivity(ctx, "a1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if a.Facility.Type != domain.FacilityGate || a.Facility.GateID != "G1" || a.Facility.BuildingID != "" {
		t.Fatalf("facility not restored: %+v", a.Facility)
	}
	if !a.ScheduledAt.Equal(created) || a.ActualCompletionAt != nil || !a.Active {
		t.Fatalf("unexpected activity: %+v", a)
	}
	if _, err := r.GetActivity(ctx, "missing"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	counts, err := r.CountActivitiesByStatus(ctx)
	if err != nil || counts["planned"] != 1 {
		t.Fatalf("counts %v err %v", counts, err)
	}
}

func TestActivityCheckConstraints(t *testing.T) {
	r := newRepo(t)
	seed(t, r)
	ctx := context.Background()
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	done := created.Add(time.Hour)
	err = r.UpdateActivityStatus(ctx, tx, domain.Activity{ID: "a1", Status: domain.StatusInProgress, ActualCompletionAt: &done, UpdatedAt: created})
	if err == nil {
		t.Fatalf("store accepted a completion time on a non-completed activity")
	}
}

func TestWorksForActivePairIsUnique(t *testing.T) {
	r := newRepo(t)
	seed(t, r)
	ctx := context.Background()
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	w := domain.WorksFor{ID: "wf1", StaffID: "w", ActivityID: "a1", AssignedAt: created, Active: true}
	if err := r.InsertWorksFor(ctx, tx, w); err != nil {
		t.Fatalf("insert: %v", err)
	}
	w.ID = "wf2"
	err = r.InsertWorksFor(ctx, tx, w)
	if !repo.IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}
	if err := r.DeactivateWorksFor(ctx, tx, "wf1"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if err := r.InsertWorksFor(ctx, tx, w); err != nil {
		t.Fatalf("insert after deactivate: %v", err)
	}
	active, err := r.ActiveAssignmentTx(ctx, tx, "w", "a1")
	if err != nil || active == nil || active.ID != "wf2" {
		t.Fatalf("active row: %+v err %v", active, err)
	}
	none, err := r.ActiveAssignmentTx(ctx, tx, "m", "a1")
	if err != nil || none != nil {
		t.Fatalf("expected no active row, got %+v err %v", none, err)
	}
	if err := r.DeactivateWorksFor(ctx, tx, "nope"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSuperviseOpenPairIsUnique(t *testing.T) {
	r := newRepo(t)
	seed(t, r)
	ctx := context.Background()
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := domain.Supervise{ID: "s1", SupervisorStaffID: "m", SubordinateStaffID: "w", StartDate: start, CreatedAt: created}
	if err := r.InsertSupervise(ctx, tx, s); err != nil {
		t.Fatalf("insert: %v", err)
	}
	s.ID = "s2"
	s.StartDate = start.AddDate(0, 5, 0)
	if err := r.InsertSupervise(ctx, tx, s); !repo.IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}
	if err := r.CloseSupervise(ctx, tx, "s1", start.AddDate(0, 4, 0)); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := r.InsertSupervise(ctx, tx, s); err != nil {
		t.Fatalf("insert after close: %v", err)
	}
	pair, err := r.ListPairTx(ctx, tx, "m", "w")
	if err != nil || len(pair) != 2 {
		t.Fatalf("pair: %d err %v", len(pair), err)
	}
	if pair[0].EndDate == nil || pair[0].EndDate.Format(domain.DateLayout) != "2024-05-01" {
		t.Fatalf("end date not stored: %+v", pair[0])
	}
	edges, err := r.ActiveEdgesTx(ctx, tx, "w", start.AddDate(0, 6, 0))
	if err != nil || len(edges) != 1 || edges[0].ID != "s2" {
		t.Fatalf("active edges: %+v err %v", edges, err)
	}
}

func TestEventsCursor(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	for i, typ := range []string{"staff.created", "activity.created", "activity.transitioned"} {
		if _, err := tx.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
			created.Add(time.Duration(i)*time.Minute).Format(time.RFC3339), typ, "activity", "a1", "m", "{}"); err != nil {
			t.Fatalf("insert event: %v", err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	latest, err := r.LatestEventID(ctx)
	if err != nil || latest != 3 {
		t.Fatalf("latest id %d err %v", latest, err)
	}
	after, err := r.EventsAfter(ctx, 10, 1)
	if err != nil || len(after) != 2 || after[0].ID != 2 {
		t.Fatalf("events after: %+v err %v", after, err)
	}
	older, err := r.LatestEventsFrom(ctx, 10, 3, repo.EventFilters{})
	if err != nil || len(older) != 2 || older[0].ID != 2 {
		t.Fatalf("events before cursor: %+v err %v", older, err)
	}
	typed, err := r.LatestEvents(ctx, 10, repo.EventFilters{Type: "activity.created"})
	if err != nil || len(typed) != 1 {
		t.Fatalf("typed: %+v err %v", typed, err)
	}
}

func TestStaffQueries(t *testing.T) {
	r := newRepo(t)
	seed(t, r)
	ctx := context.Background()
	level, err := r.StaffRoleLevel(ctx, "w")
	if err != nil || level != domain.RoleBaseLevelWorker {
		t.Fatalf("level %d err %v", level, err)
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := r.SetStaffActive(ctx, tx, "w", false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, err := r.StaffRoleLevel(ctx, "w"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("inactive staff should not resolve, got %v", err)
	}
	active, err := r.ListStaff(ctx, repo.StaffFilters{ActiveOnly: true})
	if err != nil || len(active) != 1 || active[0].ID != "m" {
		t.Fatalf("active staff: %+v err %v", active, err)
	}
	roles, err := r.ListRoles(ctx)
	if err != nil || len(roles) != 3 || roles[0].Name != "executive_officer" {
		t.Fatalf("roles: %+v err %v", roles, err)
	}
}

func TestFacilityKeysAreScopedByBuilding(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	for _, f := range []domain.Facility{
		{Kind: domain.FacilityBuilding, ID: "B1", Name: "Main Hall", Active: true, CreatedAt: created},
		{Kind: domain.FacilityRoom, BuildingID: "B1", ID: "R1", Name: "Lab", Active: true, CreatedAt: created},
		{Kind: domain.FacilityRoom, BuildingID: "B2", ID: "R1", Name: "Store", Active: true, CreatedAt: created},
	} {
		if err := r.InsertFacility(ctx, tx, f); err != nil {
			t.Fatalf("insert %s: %v", f.Key(), err)
		}
	}
	err = r.InsertFacility(ctx, tx, domain.Facility{Kind: domain.FacilityRoom, BuildingID: "B1", ID: "R1", Name: "Dup", Active: true, CreatedAt: created})
	if !repo.IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}
	got, err := r.GetFacilityTx(ctx, tx, domain.FacilityKey{Kind: domain.FacilityRoom, BuildingID: "B2", ID: "R1"})
	if err != nil || got.Name != "Store" {
		t.Fatalf("room B2/R1: %+v err %v", got, err)
	}
	if _, err := r.GetFacilityTx(ctx, tx, domain.FacilityKey{Kind: domain.FacilityRoom, ID: "R1"}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("unscoped room lookup: expected not found, got %v", err)
	}
	if err := r.SetFacilityActive(ctx, tx, domain.FacilityKey{Kind: domain.FacilityGate, ID: "nope"}, false); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestActivityWindowAndWorkerCounts(t *testing.T) {
	r := newRepo(t)
	seed(t, r)
	ctx := context.Background()
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	for _, f := range []domain.Facility{
		{Kind: domain.FacilityBuilding, ID: "B1", Name: "Main Hall", Active: true, CreatedAt: created},
		{Kind: domain.FacilityRoom, BuildingID: "B1", ID: "R1", Name: "Lab", Active: true, CreatedAt: created},
		{Kind: domain.FacilityLevel, BuildingID: "B1", ID: "L2", Name: "2", Active: true, CreatedAt: created},
		{Kind: domain.FacilityGate, ID: "G1", Name: "North Gate", Active: true, CreatedAt: created},
	} {
		if err := r.InsertFacility(ctx, tx, f); err != nil {
			t.Fatalf("insert facility: %v", err)
		}
	}
	room := domain.FacilityRef{Type: domain.FacilityRoom, BuildingID: "B1", RoomID: "R1"}
	level := domain.FacilityRef{Type: domain.FacilityLevel, BuildingID: "B1", LevelID: "L2"}
	gate := domain.FacilityRef{Type: domain.FacilityGate, GateID: "G1"}
	at := func(day, hour int) time.Time { return time.Date(2024, 1, day, hour, 0, 0, 0, time.UTC) }
	insert := func(id string, typ domain.ActivityType, f domain.FacilityRef, scheduled time.Time, completed bool) {
		a := domain.Activity{
			ID: id, Type: typ, Status: domain.StatusPlanned, Priority: domain.LevelMedium, HazardLevel: domain.LevelLow,
			ScheduledAt: scheduled, Facility: f, CreatedByStaffID: "m", Active: true, CreatedAt: created, UpdatedAt: created,
		}
		if completed {
			done := scheduled.Add(2 * time.Hour)
			a.Status, a.ActualCompletionAt = domain.StatusCompleted, &done
		}
		if err := r.InsertActivity(ctx, tx, a); err != nil {
			t.Fatalf("insert activity %s: %v", id, err)
		}
	}
	insert("a-room", domain.ActivityRepair, room, at(2, 9), true)
	insert("a-level", domain.ActivityRepair, level, at(3, 9), true)
	insert("a-gate", domain.ActivityCleaning, gate, at(3, 10), true)
	insert("a-open", domain.ActivityRepair, room, at(4, 9), false)
	insert("a-late", domain.ActivityRepair, room, time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC), true)
	for _, w := range []domain.WorksFor{
		{ID: "wf1", StaffID: "w", ActivityID: "a-room", AssignedAt: created, Active: true},
		{ID: "wf2", StaffID: "m", ActivityID: "a-room", AssignedAt: created, Active: true},
		{ID: "wf3", StaffID: "w", ActivityID: "a-room", AssignedAt: created, Active: false},
		{ID: "wf4", StaffID: "w", ActivityID: "a-level", AssignedAt: created, Active: true},
		{ID: "wf5", StaffID: "w", ActivityID: "a-open", AssignedAt: created, Active: true},
		{ID: "wf6", StaffID: "w", ActivityID: "a-late", AssignedAt: created, Active: true},
	} {
		if err := r.InsertWorksFor(ctx, tx, w); err != nil {
			t.Fatalf("insert works_for %s: %v", w.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	from, to := at(2, 0), at(5, 0)
	list, err := r.ListActivitiesInWindow(ctx, repo.ActivityWindow{From: &from, To: &to, BuildingID: "B1", Types: []domain.ActivityType{domain.ActivityRepair}})
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	var ids []string
	for _, a := range list {
		ids = append(ids, a.ID)
	}
	if len(ids) != 3 || ids[0] != "a-room" || ids[1] != "a-level" || ids[2] != "a-open" {
		t.Fatalf("unexpected window result %v", ids)
	}
	list, err = r.ListActivitiesInWindow(ctx, repo.ActivityWindow{From: &from, Types: []domain.ActivityType{domain.ActivityCleaning}})
	if err != nil || len(list) != 1 || list[0].ID != "a-gate" {
		t.Fatalf("cleaning window: %+v err %v", list, err)
	}

	counts, err := r.WorkerCountsByArea(ctx, repo.ActivityWindow{From: &from, To: &to})
	if err != nil {
		t.Fatalf("worker counts: %v", err)
	}
	want := []domain.WorkerCount{
		{ActivityType: domain.ActivityRepair, Area: "Lab", Workers: 2},
		{ActivityType: domain.ActivityRepair, Area: "Main Hall-2", Workers: 1},
		{ActivityType: domain.ActivityCleaning, Area: "North Gate", Workers: 0},
	}
	if len(counts) != len(want) {
		t.Fatalf("unexpected counts %+v", counts)
	}
	for i := range want {
		if counts[i] != want[i] {
			t.Fatalf("row %d: want %+v got %+v", i, want[i], counts[i])
		}
	}
}
