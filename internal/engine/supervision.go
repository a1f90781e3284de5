package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cmms/internal/domain"
	"cmms/internal/engine/rules"
	"cmms/internal/events"
	"cmms/internal/repo"
)

type SuperviseCreateOptions struct {
	ID            string
	SupervisorID  string
	SubordinateID string
	StartDate     time.Time
	EndDate       *time.Time
	ActorID       string
}

// CreateSupervise records a supervisor -> subordinate edge after checking the
// three-tier rule and overlap with existing edges for the same pair.
func (e Engine) CreateSupervise(ctx context.Context, opts SuperviseCreateOptions) (domain.Supervise, error) {
	if opts.SupervisorID == "" || opts.SubordinateID == "" {
		return domain.Supervise{}, e.rejected("supervise.create", domain.Invalid(domain.ErrInvalidInput, "both staff ids required", "supervisor_staff_id", "subordinate_staff_id"))
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Supervise{}, err
	}
	defer tx.Rollback()
	sup, err := e.Repo.GetStaffTx(ctx, tx, opts.SupervisorID)
	if err != nil {
		return domain.Supervise{}, lookupErr("staff", opts.SupervisorID, err)
	}
	sub, err := e.Repo.GetStaffTx(ctx, tx, opts.SubordinateID)
	if err != nil {
		return domain.Supervise{}, lookupErr("staff", opts.SubordinateID, err)
	}
	c := rules.SupervisionCandidate{
		SupervisorID:     sup.ID,
		SupervisorLevel:  sup.RoleLevel,
		SubordinateID:    sub.ID,
		SubordinateLevel: sub.RoleLevel,
		EndDate:          datePtr(opts.EndDate),
	}
	if !opts.StartDate.IsZero() {
		c.StartDate = domain.Day(opts.StartDate)
	}
	existing, err := e.Repo.ListPairTx(ctx, tx, sup.ID, sub.ID)
	if err != nil {
		return domain.Supervise{}, fmt.Errorf("load supervision pair: %w", err)
	}
	if err := rules.ValidateSupervision(c, existing); err != nil {
		return domain.Supervise{}, e.rejected("supervise.create", err)
	}
	for _, st := range []domain.Staff{sup, sub} {
		if !st.Active {
			return domain.Supervise{}, e.rejected("supervise.create", domain.Invalid(domain.ErrInvalidInput, fmt.Sprintf("staff %s is inactive", st.ID)))
		}
	}
	s := domain.Supervise{
		ID:                 opts.ID,
		SupervisorStaffID:  sup.ID,
		SubordinateStaffID: sub.ID,
		StartDate:          c.StartDate,
		EndDate:            c.EndDate,
		CreatedAt:          e.now(),
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if err := e.Repo.InsertSupervise(ctx, tx, s); err != nil {
		if repo.IsUniqueViolation(err) {
			return domain.Supervise{}, e.rejected("supervise.create", domain.Invalid(domain.ErrDuplicateActiveRelationship,
				fmt.Sprintf("%s already supervises %s", sup.ID, sub.ID)))
		}
		return domain.Supervise{}, fmt.Errorf("insert supervise: %w", err)
	}
	payload := events.EventPayload{
		"supervisor_staff_id":  s.SupervisorStaffID,
		"subordinate_staff_id": s.SubordinateStaffID,
		"start_date":           s.StartDate.Format(domain.DateLayout),
	}
	if s.EndDate != nil {
		payload["end_date"] = s.EndDate.Format(domain.DateLayout)
	}
	if err := e.append(ctx, tx, "supervise.created", "supervise", s.ID, opts.ActorID, payload); err != nil {
		return domain.Supervise{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Supervise{}, err
	}
	e.Log.Info().Str("supervise_id", s.ID).Str("supervisor", s.SupervisorStaffID).Str("subordinate", s.SubordinateStaffID).Msg("supervision created")
	return s, nil
}

// CloseSupervise sets the end date of an edge.
func (e Engine) CloseSupervise(ctx context.Context, id string, endDate time.Time, actorID string) (domain.Supervise, error) {
	if endDate.IsZero() {
		return domain.Supervise{}, e.rejected("supervise.close", domain.Invalid(domain.ErrInvalidInput, "end date required", "end_date"))
	}
	end := domain.Day(endDate)
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Supervise{}, err
	}
	defer tx.Rollback()
	s, err := e.Repo.GetSuperviseTx(ctx, tx, id)
	if err != nil {
		return domain.Supervise{}, lookupErr("supervise", id, err)
	}
	pair, err := e.Repo.ListPairTx(ctx, tx, s.SupervisorStaffID, s.SubordinateStaffID)
	if err != nil {
		return s, fmt.Errorf("load supervision pair: %w", err)
	}
	if err := rules.ValidateClose(s, end, pair); err != nil {
		return s, e.rejected("supervise.close", err)
	}
	if err := e.Repo.CloseSupervise(ctx, tx, id, end); err != nil {
		return s, fmt.Errorf("close supervise: %w", err)
	}
	s.EndDate = &end
	if err := e.append(ctx, tx, "supervise.closed", "supervise", id, actorID, events.EventPayload{
		"end_date": end.Format(domain.DateLayout),
	}); err != nil {
		return s, err
	}
	if err := tx.Commit(); err != nil {
		return s, err
	}
	e.Log.Info().Str("supervise_id", id).Str("end_date", end.Format(domain.DateLayout)).Msg("supervision closed")
	return s, nil
}

// Subordinates lists edges where staffID supervises someone and which have
// not ended before day.
func (e Engine) Subordinates(ctx context.Context, staffID string, day time.Time) ([]domain.Supervise, error) {
	d := domain.Day(day)
	return e.Repo.ListSupervise(ctx, repo.SuperviseFilters{SupervisorID: staffID, ActiveOn: &d})
}

// Supervisors lists edges where staffID is the subordinate and which have not
// ended before day.
func (e Engine) Supervisors(ctx context.Context, staffID string, day time.Time) ([]domain.Supervise, error) {
	d := domain.Day(day)
	return e.Repo.ListSupervise(ctx, repo.SuperviseFilters{SubordinateID: staffID, ActiveOn: &d})
}
