package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"cmms/internal/domain"
	"cmms/internal/engine/rules"
	"cmms/internal/events"
)

// ActivityCreateOptions are parameters for planning a maintenance activity.
type ActivityCreateOptions struct {
	ID                    string
	Type                  domain.ActivityType
	Title                 string
	Description           string
	Priority              domain.Level
	HazardLevel           domain.Level
	ScheduledAt           time.Time
	ExpectedDowntimeHours float64
	Facility              domain.FacilityRef
	CreatedByStaffID      string
	ActorID               string
}

func (e Engine) CreateActivity(ctx context.Context, opts ActivityCreateOptions) (domain.Activity, error) {
	now := e.now()
	a := domain.Activity{
		ID:                    opts.ID,
		Type:                  opts.Type,
		Title:                 strings.TrimSpace(opts.Title),
		Description:           strings.TrimSpace(opts.Description),
		Status:                domain.StatusPlanned,
		Priority:              opts.Priority,
		HazardLevel:           opts.HazardLevel,
		ScheduledAt:           opts.ScheduledAt.UTC().Truncate(time.Second),
		ExpectedDowntimeHours: opts.ExpectedDowntimeHours,
		Facility:              trimFacility(opts.Facility),
		CreatedByStaffID:      opts.CreatedByStaffID,
		Active:                true,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if a.Priority == "" {
		a.Priority = domain.LevelMedium
	}
	if a.HazardLevel == "" {
		a.HazardLevel = domain.LevelLow
	}
	if a.Facility.Type == "" {
		a.Facility.Type = domain.FacilityNone
	}
	if a.CreatedByStaffID == "" {
		return domain.Activity{}, e.rejected("activity.create", domain.Invalid(domain.ErrInvalidInput, "creator required", "created_by_staff_id"))
	}
	if err := rules.ValidateNewActivity(a); err != nil {
		return domain.Activity{}, e.rejected("activity.create", err)
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	actor := opts.ActorID
	if actor == "" {
		actor = a.CreatedByStaffID
	}

	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Activity{}, err
	}
	defer tx.Rollback()
	creator, err := e.Repo.GetStaffTx(ctx, tx, a.CreatedByStaffID)
	if err != nil {
		return domain.Activity{}, lookupErr("staff", a.CreatedByStaffID, err)
	}
	if !creator.Active {
		return domain.Activity{}, e.rejected("activity.create", domain.Invalid(domain.ErrInvalidInput, fmt.Sprintf("staff %s is inactive", creator.ID), "created_by_staff_id"))
	}
	if err := e.ensureFacilitiesRegistered(ctx, tx, a.Facility); err != nil {
		return domain.Activity{}, e.rejected("activity.create", err)
	}
	if err := e.Repo.InsertActivity(ctx, tx, a); err != nil {
		return domain.Activity{}, fmt.Errorf("insert activity: %w", err)
	}
	if err := e.append(ctx, tx, "activity.created", "activity", a.ID, actor, events.EventPayload{
		"activity_type": a.Type,
		"facility_type": a.Facility.Type,
		"scheduled_at":  a.ScheduledAt.Format(time.RFC3339),
	}); err != nil {
		return domain.Activity{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Activity{}, err
	}
	e.Log.Info().Str("activity_id", a.ID).Str("type", string(a.Type)).Str("facility", string(a.Facility.Type)).Msg("activity created")
	return a, nil
}

// ActivityTransitionOptions describe a status update. Facility, when set, is
// what the caller believes the binding to be; it must match the stored one.
type ActivityTransitionOptions struct {
	ID          string
	Status      domain.ActivityStatus
	CompletedAt *time.Time
	Facility    *domain.FacilityRef
	ActorID     string
}

// TransitionActivity moves an activity along its lifecycle. The only writes
// are the activity row and one audit event.
func (e Engine) TransitionActivity(ctx context.Context, opts ActivityTransitionOptions) (domain.Activity, error) {
	if !opts.Status.Valid() {
		return domain.Activity{}, e.rejected("activity.transition", domain.Invalid(domain.ErrInvalidInput, fmt.Sprintf("unknown status %q", opts.Status), "status"))
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Activity{}, err
	}
	defer tx.Rollback()
	a, err := e.Repo.GetActivityTx(ctx, tx, opts.ID)
	if err != nil {
		return domain.Activity{}, lookupErr("activity", opts.ID, err)
	}
	if !a.Active {
		return a, e.rejected("activity.transition", domain.Invalid(domain.ErrActivityClosed, fmt.Sprintf("activity %s is inactive", a.ID)))
	}
	if opts.Facility != nil {
		if err := rules.EnsureFacilityUnchanged(a.Facility, *opts.Facility); err != nil {
			return a, e.rejected("activity.transition", err)
		}
	}
	next, err := rules.TransitionActivity(a, opts.Status, timePtr(opts.CompletedAt))
	if err != nil {
		return a, e.rejected("activity.transition", err)
	}
	next.UpdatedAt = e.now()
	if err := e.Repo.UpdateActivityStatus(ctx, tx, next); err != nil {
		return a, fmt.Errorf("update activity: %w", err)
	}
	payload := events.EventPayload{"from": a.Status, "to": next.Status}
	if next.ActualCompletionAt != nil {
		payload["actual_completion_at"] = next.ActualCompletionAt.Format(time.RFC3339)
	}
	if err := e.append(ctx, tx, "activity.transitioned", "activity", a.ID, opts.ActorID, payload); err != nil {
		return a, err
	}
	if err := tx.Commit(); err != nil {
		return a, err
	}
	e.Log.Info().Str("activity_id", a.ID).Str("from", string(a.Status)).Str("to", string(next.Status)).Msg("activity transitioned")
	return next, nil
}

// DeactivateActivity clears the active flag. Activities are never deleted.
func (e Engine) DeactivateActivity(ctx context.Context, id, actorID string) (domain.Activity, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Activity{}, err
	}
	defer tx.Rollback()
	a, err := e.Repo.GetActivityTx(ctx, tx, id)
	if err != nil {
		return domain.Activity{}, lookupErr("activity", id, err)
	}
	if !a.Active {
		return a, nil
	}
	a.Active = false
	a.UpdatedAt = e.now()
	if err := e.Repo.SetActivityActive(ctx, tx, id, false, a.UpdatedAt); err != nil {
		return a, fmt.Errorf("deactivate activity: %w", err)
	}
	if err := e.append(ctx, tx, "activity.deactivated", "activity", id, actorID, events.EventPayload{"status": a.Status}); err != nil {
		return a, err
	}
	if err := tx.Commit(); err != nil {
		return a, err
	}
	e.Log.Info().Str("activity_id", id).Msg("activity deactivated")
	return a, nil
}

func trimFacility(f domain.FacilityRef) domain.FacilityRef {
	f.Type = domain.FacilityType(strings.TrimSpace(string(f.Type)))
	f.BuildingID = strings.TrimSpace(f.BuildingID)
	f.RoomID = strings.TrimSpace(f.RoomID)
	f.LevelID = strings.TrimSpace(f.LevelID)
	f.SquareID = strings.TrimSpace(f.SquareID)
	f.GateID = strings.TrimSpace(f.GateID)
	f.CanteenID = strings.TrimSpace(f.CanteenID)
	f.AreaID = strings.TrimSpace(f.AreaID)
	return f
}
