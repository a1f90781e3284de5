package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"cmms/internal/domain"
	"cmms/internal/engine/rules"
	"cmms/internal/events"
	"cmms/internal/repo"
)

// FacilityCreateOptions are parameters for registering a facility.
type FacilityCreateOptions struct {
	Kind       domain.FacilityType
	BuildingID string
	ID         string
	Name       string
	Detail     string
	ActorID    string
}

// CreateFacility registers a location. Rooms and levels need an active
// building registered first.
func (e Engine) CreateFacility(ctx context.Context, opts FacilityCreateOptions) (domain.Facility, error) {
	f := domain.Facility{
		Kind:       domain.FacilityType(strings.TrimSpace(string(opts.Kind))),
		BuildingID: strings.TrimSpace(opts.BuildingID),
		ID:         strings.TrimSpace(opts.ID),
		Name:       strings.TrimSpace(opts.Name),
		Detail:     strings.TrimSpace(opts.Detail),
		Active:     true,
		CreatedAt:  e.now(),
	}
	if err := rules.ValidateNewFacility(f); err != nil {
		return domain.Facility{}, e.rejected("facility.create", err)
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Facility{}, err
	}
	defer tx.Rollback()
	if f.Kind.InBuilding() {
		b, err := e.Repo.GetFacilityTx(ctx, tx, domain.FacilityKey{Kind: domain.FacilityBuilding, ID: f.BuildingID})
		switch {
		case errors.Is(err, repo.ErrNotFound):
			return domain.Facility{}, e.rejected("facility.create", domain.Invalid(domain.ErrInvalidInput, fmt.Sprintf("building %s is not registered", f.BuildingID), "building_id"))
		case err != nil:
			return domain.Facility{}, fmt.Errorf("load building %s: %w", f.BuildingID, err)
		case !b.Active:
			return domain.Facility{}, e.rejected("facility.create", domain.Invalid(domain.ErrInvalidInput, fmt.Sprintf("building %s is inactive", f.BuildingID), "building_id"))
		}
	}
	if err := e.Repo.InsertFacility(ctx, tx, f); err != nil {
		if repo.IsUniqueViolation(err) {
			return domain.Facility{}, e.rejected("facility.create", domain.Invalid(domain.ErrInvalidInput, fmt.Sprintf("%s already registered", f.Key()), "id"))
		}
		return domain.Facility{}, fmt.Errorf("insert facility: %w", err)
	}
	if err := e.append(ctx, tx, "facility.created", "facility", f.Key().String(), opts.ActorID, events.EventPayload{
		"kind":        f.Kind,
		"building_id": f.BuildingID,
		"id":          f.ID,
		"name":        f.Name,
	}); err != nil {
		return domain.Facility{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Facility{}, err
	}
	e.Log.Info().Str("facility", f.Key().String()).Msg("facility registered")
	return f, nil
}

// DeactivateFacility retires a facility. Existing activities keep their
// binding; new ones can no longer point at it.
func (e Engine) DeactivateFacility(ctx context.Context, key domain.FacilityKey, actorID string) (domain.Facility, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Facility{}, err
	}
	defer tx.Rollback()
	f, err := e.Repo.GetFacilityTx(ctx, tx, key)
	if err != nil {
		return domain.Facility{}, lookupErr("facility", key.String(), err)
	}
	if !f.Active {
		return f, nil
	}
	f.Active = false
	if err := e.Repo.SetFacilityActive(ctx, tx, key, false); err != nil {
		return f, fmt.Errorf("deactivate facility: %w", err)
	}
	if err := e.append(ctx, tx, "facility.deactivated", "facility", key.String(), actorID, events.EventPayload{"kind": f.Kind}); err != nil {
		return f, err
	}
	if err := tx.Commit(); err != nil {
		return f, err
	}
	e.Log.Info().Str("facility", key.String()).Msg("facility deactivated")
	return f, nil
}

func (e Engine) ListFacilities(ctx context.Context, f repo.FacilityFilters) ([]domain.Facility, error) {
	return e.Repo.ListFacilities(ctx, f)
}

// ensureFacilitiesRegistered rejects a binding that names a facility which is
// unknown or retired.
func (e Engine) ensureFacilitiesRegistered(ctx context.Context, tx *sql.Tx, ref domain.FacilityRef) error {
	for _, use := range rules.FacilityReferences(ref) {
		f, err := e.Repo.GetFacilityTx(ctx, tx, use.Key)
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Invalid(domain.ErrInvalidFacilityBinding, fmt.Sprintf("%s is not registered", use.Key), use.Field)
		}
		if err != nil {
			return fmt.Errorf("load facility %s: %w", use.Key, err)
		}
		if !f.Active {
			return domain.Invalid(domain.ErrInvalidFacilityBinding, fmt.Sprintf("%s is inactive", use.Key), use.Field)
		}
	}
	return nil
}

// ActivityQuery selects activities for the scheduling and reporting views.
type ActivityQuery struct {
	From       *time.Time
	To         *time.Time
	BuildingID string
	Types      []domain.ActivityType
}

func (q ActivityQuery) window() (repo.ActivityWindow, error) {
	if q.From != nil && q.To != nil && q.To.Before(*q.From) {
		return repo.ActivityWindow{}, domain.Invalid(domain.ErrInvalidDateRange, "window ends before it starts", "from", "to")
	}
	for _, t := range q.Types {
		if !t.Valid() {
			return repo.ActivityWindow{}, domain.Invalid(domain.ErrInvalidInput, fmt.Sprintf("unknown activity type %q", t), "types")
		}
	}
	w := repo.ActivityWindow{From: timePtr(q.From), To: timePtr(q.To), BuildingID: strings.TrimSpace(q.BuildingID), Types: q.Types}
	return w, nil
}

// QueryActivities lists active activities of the requested types scheduled
// in the window, oldest first. At least one type is required.
func (e Engine) QueryActivities(ctx context.Context, q ActivityQuery) ([]domain.Activity, error) {
	if len(q.Types) == 0 {
		return nil, e.rejected("activity.query", domain.Invalid(domain.ErrInvalidInput, "at least one activity type required", "types"))
	}
	w, err := q.window()
	if err != nil {
		return nil, e.rejected("activity.query", err)
	}
	return e.Repo.ListActivitiesInWindow(ctx, w)
}

// WorkerCounts reports how many staff worked completed activities in the
// window, per activity type and area. Types and BuildingID are ignored.
func (e Engine) WorkerCounts(ctx context.Context, q ActivityQuery) ([]domain.WorkerCount, error) {
	w, err := q.window()
	if err != nil {
		return nil, e.rejected("report.worker_counts", err)
	}
	return e.Repo.WorkerCountsByArea(ctx, repo.ActivityWindow{From: w.From, To: w.To})
}
