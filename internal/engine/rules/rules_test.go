package rules_test

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"cmms/internal/domain"
	"cmms/internal/engine/rules"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := date(y, m, d)
	return &t
}

func roomActivity() domain.Activity {
	return domain.Activity{
		ID:          "act-1",
		Type:        domain.ActivityRepair,
		Status:      domain.StatusPlanned,
		Priority:    domain.LevelMedium,
		HazardLevel: domain.LevelLow,
		ScheduledAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		Facility:    domain.FacilityRef{Type: domain.FacilityRoom, BuildingID: "5", RoomID: "12"},
		Active:      true,
	}
}

func TestFacilityBindingRoomExample(t *testing.T) {
	a := roomActivity()
	if err := rules.ValidateFacilityBinding(a); err != nil {
		t.Fatalf("room binding should pass: %v", err)
	}
	a.Facility.SquareID = "1"
	err := rules.ValidateFacilityBinding(a)
	if !errors.Is(err, domain.ErrInvalidFacilityBinding) {
		t.Fatalf("expected invalid facility binding, got %v", err)
	}
	if got := domain.ErrorFields(err); !reflect.DeepEqual(got, []string{"square_id"}) {
		t.Fatalf("expected square_id named, got %v", got)
	}
}

func TestFacilityBindingTable(t *testing.T) {
	cases := []struct {
		name   string
		ref    domain.FacilityRef
		fields []string
	}{
		{"building ok", domain.FacilityRef{Type: domain.FacilityBuilding, BuildingID: "b"}, nil},
		{"building with room", domain.FacilityRef{Type: domain.FacilityBuilding, BuildingID: "b", RoomID: "r"}, []string{"room_id"}},
		{"room missing building", domain.FacilityRef{Type: domain.FacilityRoom, RoomID: "r"}, []string{"building_id"}},
		{"level ok", domain.FacilityRef{Type: domain.FacilityLevel, BuildingID: "b", LevelID: "l"}, nil},
		{"level missing both", domain.FacilityRef{Type: domain.FacilityLevel}, []string{"building_id", "level_id"}},
		{"square ok", domain.FacilityRef{Type: domain.FacilitySquare, SquareID: "s"}, nil},
		{"square with building", domain.FacilityRef{Type: domain.FacilitySquare, SquareID: "s", BuildingID: "b"}, []string{"building_id"}},
		{"gate ok", domain.FacilityRef{Type: domain.FacilityGate, GateID: "g"}, nil},
		{"canteen ok", domain.FacilityRef{Type: domain.FacilityCanteen, CanteenID: "c"}, nil},
		{"canteen missing", domain.FacilityRef{Type: domain.FacilityCanteen, AreaID: "a"}, []string{"canteen_id", "area_id"}},
		{"area ok", domain.FacilityRef{Type: domain.FacilityArea, AreaID: "a"}, nil},
		{"none ok", domain.FacilityRef{Type: domain.FacilityNone}, nil},
		{"none with gate", domain.FacilityRef{Type: domain.FacilityNone, GateID: "g"}, []string{"gate_id"}},
		{"whitespace is empty", domain.FacilityRef{Type: domain.FacilityGate, GateID: "  "}, []string{"gate_id"}},
		{"unknown type", domain.FacilityRef{Type: "roof"}, []string{"facility_type"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := rules.ValidateFacility(tc.ref)
			if tc.fields == nil {
				if err != nil {
					t.Fatalf("expected ok, got %v", err)
				}
				return
			}
			if !errors.Is(err, domain.ErrInvalidFacilityBinding) {
				t.Fatalf("expected invalid facility binding, got %v", err)
			}
			if got := domain.ErrorFields(err); !reflect.DeepEqual(got, tc.fields) {
				t.Fatalf("fields: want %v got %v", tc.fields, got)
			}
			// idempotent
			if again := rules.ValidateFacility(tc.ref); again.Error() != err.Error() {
				t.Fatalf("second run differs: %v vs %v", again, err)
			}
		})
	}
}

func TestFacilityBindingReportsMissingThenUnexpected(t *testing.T) {
	ref := domain.FacilityRef{Type: domain.FacilityLevel, LevelID: "L2", RoomID: "R1", GateID: "G1"}
	err := rules.ValidateFacility(ref)
	want := []string{"building_id", "room_id", "gate_id"}
	if got := domain.ErrorFields(err); !reflect.DeepEqual(got, want) {
		t.Fatalf("fields: want %v got %v", want, got)
	}
	if msg := err.Error(); msg != "invalid facility binding: facility type level: missing building_id; unexpected room_id, gate_id (building_id, room_id, gate_id)" {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestTransitionGraph(t *testing.T) {
	all := []domain.ActivityStatus{domain.StatusPlanned, domain.StatusInProgress, domain.StatusCompleted, domain.StatusCancelled}
	allowed := map[[2]domain.ActivityStatus]bool{
		{domain.StatusPlanned, domain.StatusInProgress}:    true,
		{domain.StatusPlanned, domain.StatusCancelled}:     true,
		{domain.StatusInProgress, domain.StatusCompleted}:  true,
		{domain.StatusInProgress, domain.StatusCancelled}:  true,
	}
	for _, from := range all {
		for _, to := range all {
			a := roomActivity()
			a.Status = from
			if from == domain.StatusCompleted {
				a.ActualCompletionAt = datePtr(2024, 3, 2)
			}
			var done *time.Time
			if to == domain.StatusCompleted {
				done = datePtr(2024, 3, 2)
			}
			out, err := rules.TransitionActivity(a, to, done)
			if allowed[[2]domain.ActivityStatus{from, to}] {
				if err != nil {
					t.Fatalf("%s -> %s: unexpected %v", from, to, err)
				}
				if out.Status != to {
					t.Fatalf("%s -> %s: status %s", from, to, out.Status)
				}
				continue
			}
			if !errors.Is(err, domain.ErrInvalidTransition) {
				t.Fatalf("%s -> %s: expected invalid transition, got %v", from, to, err)
			}
			if out.Status != from {
				t.Fatalf("rejected transition mutated status")
			}
		}
	}
}

func TestCompletionTimeConsistency(t *testing.T) {
	a := roomActivity()
	a.Status = domain.StatusInProgress

	if _, err := rules.TransitionActivity(a, domain.StatusCompleted, nil); !errors.Is(err, domain.ErrInconsistentCompletionTime) {
		t.Fatalf("expected missing completion rejected, got %v", err)
	}
	early := a.ScheduledAt.Add(-time.Minute)
	if _, err := rules.TransitionActivity(a, domain.StatusCompleted, &early); !errors.Is(err, domain.ErrInconsistentCompletionTime) {
		t.Fatalf("expected early completion rejected, got %v", err)
	}
	stray := a.ScheduledAt.Add(time.Hour)
	if _, err := rules.TransitionActivity(a, domain.StatusCancelled, &stray); !errors.Is(err, domain.ErrInconsistentCompletionTime) {
		t.Fatalf("expected completion on cancel rejected, got %v", err)
	}
	exact := a.ScheduledAt
	out, err := rules.TransitionActivity(a, domain.StatusCompleted, &exact)
	if err != nil {
		t.Fatalf("complete at schedule: %v", err)
	}
	if out.ActualCompletionAt == nil || !out.ActualCompletionAt.Equal(exact) {
		t.Fatalf("completion time not recorded: %v", out.ActualCompletionAt)
	}
	if out.ActualCompletionAt.Before(out.ScheduledAt) {
		t.Fatalf("completion precedes schedule")
	}
}

func TestTransitionRechecksFacility(t *testing.T) {
	a := roomActivity()
	a.Facility.GateID = "g1"
	if _, err := rules.TransitionActivity(a, domain.StatusInProgress, nil); !errors.Is(err, domain.ErrInvalidFacilityBinding) {
		t.Fatalf("expected facility rejection, got %v", err)
	}
}

func TestEnsureFacilityUnchanged(t *testing.T) {
	a := roomActivity()
	if err := rules.EnsureFacilityUnchanged(a.Facility, a.Facility); err != nil {
		t.Fatalf("same facility: %v", err)
	}
	moved := a.Facility
	moved.RoomID = "13"
	if err := rules.EnsureFacilityUnchanged(a.Facility, moved); !errors.Is(err, domain.ErrInvalidFacilityBinding) {
		t.Fatalf("expected facility change rejected, got %v", err)
	}
}

func TestValidateNewActivity(t *testing.T) {
	a := roomActivity()
	if err := rules.ValidateNewActivity(a); err != nil {
		t.Fatalf("valid activity: %v", err)
	}
	bad := a
	bad.ExpectedDowntimeHours = -1
	if err := rules.ValidateNewActivity(bad); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected negative downtime rejected, got %v", err)
	}
	bad = a
	bad.Type = "painting"
	if err := rules.ValidateNewActivity(bad); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected unknown type rejected, got %v", err)
	}
	bad = a
	bad.Facility = domain.FacilityRef{Type: domain.FacilityRoom, BuildingID: "5"}
	if err := rules.ValidateNewActivity(bad); !errors.Is(err, domain.ErrInvalidFacilityBinding) {
		t.Fatalf("expected facility rejection, got %v", err)
	}
}

func TestExpectedDowntimeMustBeFinite(t *testing.T) {
	for _, h := range []float64{-1, math.NaN(), math.Inf(1), math.Inf(-1)} {
		a := roomActivity()
		a.ExpectedDowntimeHours = h
		err := rules.ValidateNewActivity(a)
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("downtime %v: expected invalid input, got %v", h, err)
		}
		if got := domain.ErrorFields(err); !reflect.DeepEqual(got, []string{"expected_downtime_hours"}) {
			t.Fatalf("downtime %v: unexpected fields %v", h, got)
		}
	}
	for _, h := range []float64{0, 0.5, 72} {
		a := roomActivity()
		a.ExpectedDowntimeHours = h
		if err := rules.ValidateNewActivity(a); err != nil {
			t.Fatalf("downtime %v: unexpected %v", h, err)
		}
	}
}

func candidate(sup, sub domain.RoleLevel) rules.SupervisionCandidate {
	return rules.SupervisionCandidate{
		SupervisorID:     "boss",
		SupervisorLevel:  sup,
		SubordinateID:    "report",
		SubordinateLevel: sub,
		StartDate:        date(2024, 1, 1),
	}
}

func TestSupervisionRolePairs(t *testing.T) {
	for sup := domain.RoleLevel(1); sup <= 3; sup++ {
		for sub := domain.RoleLevel(1); sub <= 3; sub++ {
			err := rules.ValidateSupervision(candidate(sup, sub), nil)
			ok := (sup == 1 && sub == 2) || (sup == 2 && sub == 3)
			if ok && err != nil {
				t.Fatalf("(%d,%d) should pass: %v", sup, sub, err)
			}
			if !ok && !errors.Is(err, domain.ErrInvalidHierarchy) {
				t.Fatalf("(%d,%d) expected invalid hierarchy, got %v", sup, sub, err)
			}
		}
	}
}

func TestSelfSupervision(t *testing.T) {
	c := candidate(1, 2)
	c.SubordinateID = c.SupervisorID
	if err := rules.ValidateSupervision(c, nil); !errors.Is(err, domain.ErrSelfSupervision) {
		t.Fatalf("expected self supervision, got %v", err)
	}
}

func TestSupervisionDateRange(t *testing.T) {
	c := candidate(1, 2)
	c.EndDate = datePtr(2023, 12, 31)
	if err := rules.ValidateSupervision(c, nil); !errors.Is(err, domain.ErrInvalidDateRange) {
		t.Fatalf("expected invalid date range, got %v", err)
	}
	c.EndDate = datePtr(2024, 1, 1)
	if err := rules.ValidateSupervision(c, nil); err != nil {
		t.Fatalf("same-day range should pass: %v", err)
	}
}

func TestDuplicateActiveSupervisionExample(t *testing.T) {
	first := candidate(1, 2)
	if err := rules.ValidateSupervision(first, nil); err != nil {
		t.Fatalf("first edge: %v", err)
	}
	existing := []domain.Supervise{{
		ID:                 "sv-1",
		SupervisorStaffID:  first.SupervisorID,
		SubordinateStaffID: first.SubordinateID,
		StartDate:          first.StartDate,
	}}
	second := candidate(1, 2)
	second.StartDate = date(2024, 6, 1)
	if err := rules.ValidateSupervision(second, existing); !errors.Is(err, domain.ErrDuplicateActiveRelationship) {
		t.Fatalf("expected duplicate, got %v", err)
	}

	// an edge that ended before the candidate starts does not block it
	existing[0].EndDate = datePtr(2024, 5, 31)
	if err := rules.ValidateSupervision(second, existing); err != nil {
		t.Fatalf("ended edge should not block: %v", err)
	}
	// ending on the start day still overlaps
	existing[0].EndDate = datePtr(2024, 6, 1)
	if err := rules.ValidateSupervision(second, existing); !errors.Is(err, domain.ErrDuplicateActiveRelationship) {
		t.Fatalf("expected overlap on boundary, got %v", err)
	}
	// reversed pair is a different ordered pair
	existing[0].SupervisorStaffID, existing[0].SubordinateStaffID = "report", "boss"
	existing[0].EndDate = nil
	if err := rules.ValidateSupervision(second, existing); err != nil {
		t.Fatalf("other pair should not block: %v", err)
	}
}

func TestValidateClose(t *testing.T) {
	edge := domain.Supervise{StartDate: date(2024, 1, 1)}
	if err := rules.ValidateClose(edge, date(2023, 12, 31), nil); !errors.Is(err, domain.ErrInvalidDateRange) {
		t.Fatalf("expected invalid date range, got %v", err)
	}
	if err := rules.ValidateClose(edge, date(2024, 1, 1), nil); err != nil {
		t.Fatalf("close on start day: %v", err)
	}
}

func TestValidateCloseAgainstPair(t *testing.T) {
	closed := domain.Supervise{ID: "old", SupervisorStaffID: "exec", SubordinateStaffID: "mgr",
		StartDate: date(2024, 1, 1), EndDate: datePtr(2024, 3, 1)}
	open := domain.Supervise{ID: "new", SupervisorStaffID: "exec", SubordinateStaffID: "mgr", StartDate: date(2024, 4, 1)}
	other := domain.Supervise{ID: "x", SupervisorStaffID: "exec", SubordinateStaffID: "mgr2", StartDate: date(2024, 1, 1)}
	pair := []domain.Supervise{closed, open, other}

	cases := []struct {
		name string
		end  time.Time
		want error
	}{
		{"re-close reaching newer edge", date(2025, 12, 31), domain.ErrDuplicateActiveRelationship},
		{"re-close on newer start day", date(2024, 4, 1), domain.ErrDuplicateActiveRelationship},
		{"re-close before newer edge", date(2024, 3, 31), nil},
		{"shorten", date(2024, 2, 1), nil},
	}
	for _, tc := range cases {
		err := rules.ValidateClose(closed, tc.end, pair)
		if tc.want == nil && err != nil {
			t.Fatalf("%s: unexpected %v", tc.name, err)
		}
		if tc.want != nil && !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
	// Closing the open edge never conflicts with the earlier, already ended one.
	if err := rules.ValidateClose(open, date(2024, 5, 1), pair); err != nil {
		t.Fatalf("close newer edge: %v", err)
	}
}

func TestValidateRoleChange(t *testing.T) {
	active := []rules.EdgeLevels{{
		Edge:             domain.Supervise{SupervisorStaffID: "mgr", SubordinateStaffID: "worker"},
		SupervisorLevel:  domain.RoleMidLevelManager,
		SubordinateLevel: domain.RoleBaseLevelWorker,
	}}
	if err := rules.ValidateRoleChange("mgr", domain.RoleExecutiveOfficer, active); !errors.Is(err, domain.ErrInvalidHierarchy) {
		t.Fatalf("promoting a manager over a worker should fail, got %v", err)
	}
	if err := rules.ValidateRoleChange("worker", domain.RoleMidLevelManager, active); !errors.Is(err, domain.ErrInvalidHierarchy) {
		t.Fatalf("same-level edge should fail, got %v", err)
	}
	if err := rules.ValidateRoleChange("mgr", domain.RoleMidLevelManager, active); err != nil {
		t.Fatalf("unchanged level: %v", err)
	}
	if err := rules.ValidateRoleChange("other", domain.RoleExecutiveOfficer, active); err != nil {
		t.Fatalf("unrelated staff: %v", err)
	}
	if err := rules.ValidateRoleChange("mgr", 7, nil); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("unknown level should fail, got %v", err)
	}
}

func TestAssignUnassignCycle(t *testing.T) {
	now := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)
	first, err := rules.AssignStaff("s1", "a1", "operate robot", nil, now)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if !first.Active || !first.AssignedAt.Equal(now) {
		t.Fatalf("unexpected record %+v", first)
	}
	if _, err := rules.AssignStaff("s1", "a1", "again", &first, now); !errors.Is(err, domain.ErrAlreadyAssigned) {
		t.Fatalf("expected already assigned, got %v", err)
	}
	removed, err := rules.UnassignStaff("s1", "a1", &first)
	if err != nil {
		t.Fatalf("unassign: %v", err)
	}
	if removed.Active {
		t.Fatalf("unassigned record still active")
	}
	if _, err := rules.AssignStaff("s1", "a1", "third", &removed, now); err != nil {
		t.Fatalf("reassign after removal: %v", err)
	}
	if _, err := rules.UnassignStaff("s1", "a1", nil); !errors.Is(err, domain.ErrNotAssigned) {
		t.Fatalf("expected not assigned, got %v", err)
	}
}

func TestUpdateResponsibility(t *testing.T) {
	row := domain.WorksFor{StaffID: "s1", ActivityID: "a1", Responsibility: "sweep", Active: true}
	out, err := rules.UpdateResponsibility("s1", "a1", "  supervise site ", &row)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if out.Responsibility != "supervise site" {
		t.Fatalf("responsibility %q", out.Responsibility)
	}
	row.Active = false
	if _, err := rules.UpdateResponsibility("s1", "a1", "x", &row); !errors.Is(err, domain.ErrNotAssigned) {
		t.Fatalf("expected not assigned, got %v", err)
	}
}

func TestEnsureAssignable(t *testing.T) {
	a := roomActivity()
	if err := rules.EnsureAssignable(a, false); err != nil {
		t.Fatalf("planned activity: %v", err)
	}
	a.Status = domain.StatusCompleted
	if err := rules.EnsureAssignable(a, false); !errors.Is(err, domain.ErrActivityClosed) {
		t.Fatalf("expected closed, got %v", err)
	}
	if err := rules.EnsureAssignable(a, true); err != nil {
		t.Fatalf("terminal allowed by policy: %v", err)
	}
	a.Active = false
	if err := rules.EnsureAssignable(a, true); !errors.Is(err, domain.ErrActivityClosed) {
		t.Fatalf("inactive activity should be closed, got %v", err)
	}
}

func TestValidationErrorsAreTyped(t *testing.T) {
	err := rules.ValidateSupervision(candidate(1, 3), nil)
	if !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %T", err)
	}
	if code := domain.ErrorCode(err); code != "invalid_hierarchy" {
		t.Fatalf("code %q", code)
	}
	if domain.IsValidation(errors.New("connection reset")) {
		t.Fatalf("plain error classified as validation")
	}
}

func TestFacilityReferences(t *testing.T) {
	refs := rules.FacilityReferences(domain.FacilityRef{Type: domain.FacilityLevel, BuildingID: "B1", LevelID: "L3"})
	want := []rules.FacilityReference{
		{Key: domain.FacilityKey{Kind: domain.FacilityBuilding, ID: "B1"}, Field: "building_id"},
		{Key: domain.FacilityKey{Kind: domain.FacilityLevel, BuildingID: "B1", ID: "L3"}, Field: "level_id"},
	}
	if !reflect.DeepEqual(refs, want) {
		t.Fatalf("level: want %+v got %+v", want, refs)
	}
	refs = rules.FacilityReferences(domain.FacilityRef{Type: domain.FacilityCanteen, CanteenID: "C1"})
	if len(refs) != 1 || refs[0].Key.Kind != domain.FacilityCanteen || refs[0].Key.BuildingID != "" || refs[0].Field != "canteen_id" {
		t.Fatalf("canteen: %+v", refs)
	}
	if refs := rules.FacilityReferences(domain.FacilityRef{Type: domain.FacilityNone}); len(refs) != 0 {
		t.Fatalf("none binds nothing, got %+v", refs)
	}
}

func TestValidateNewFacility(t *testing.T) {
	cases := []struct {
		name   string
		f      domain.Facility
		fields []string
	}{
		{"building ok", domain.Facility{Kind: domain.FacilityBuilding, ID: "B1", Name: "Main"}, nil},
		{"room ok", domain.Facility{Kind: domain.FacilityRoom, BuildingID: "B1", ID: "R1", Name: "Lab"}, nil},
		{"room without building", domain.Facility{Kind: domain.FacilityRoom, ID: "R1", Name: "Lab"}, []string{"building_id"}},
		{"gate with building", domain.Facility{Kind: domain.FacilityGate, BuildingID: "B1", ID: "G1", Name: "North"}, []string{"building_id"}},
		{"missing id and name", domain.Facility{Kind: domain.FacilityArea}, []string{"id", "name"}},
		{"none kind", domain.Facility{Kind: domain.FacilityNone, ID: "x", Name: "x"}, []string{"kind"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := rules.ValidateNewFacility(tc.f)
			if tc.fields == nil {
				if err != nil {
					t.Fatalf("expected ok, got %v", err)
				}
				return
			}
			if !errors.Is(err, domain.ErrInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
			if got := domain.ErrorFields(err); !reflect.DeepEqual(got, tc.fields) {
				t.Fatalf("fields: want %v got %v", tc.fields, got)
			}
		})
	}
}
