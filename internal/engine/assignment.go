package engine

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"cmms/internal/domain"
	"cmms/internal/engine/rules"
	"cmms/internal/events"
	"cmms/internal/repo"
)

type AssignOptions struct {
	StaffID        string
	ActivityID     string
	Responsibility string
	ActorID        string
}

// AssignStaff creates the active WorksFor row for the pair.
func (e Engine) AssignStaff(ctx context.Context, opts AssignOptions) (domain.WorksFor, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.WorksFor{}, err
	}
	defer tx.Rollback()
	w, err := e.assignTx(ctx, tx, opts)
	if err != nil {
		return domain.WorksFor{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.WorksFor{}, err
	}
	e.Log.Info().Str("staff_id", w.StaffID).Str("activity_id", w.ActivityID).Msg("staff assigned")
	return w, nil
}

func (e Engine) assignTx(ctx context.Context, tx *sql.Tx, opts AssignOptions) (domain.WorksFor, error) {
	if opts.StaffID == "" || opts.ActivityID == "" {
		return domain.WorksFor{}, e.rejected("assignment.create", domain.Invalid(domain.ErrInvalidInput, "staff and activity required", "staff_id", "activity_id"))
	}
	a, err := e.Repo.GetActivityTx(ctx, tx, opts.ActivityID)
	if err != nil {
		return domain.WorksFor{}, lookupErr("activity", opts.ActivityID, err)
	}
	if err := rules.EnsureAssignable(a, e.allowTerminal()); err != nil {
		return domain.WorksFor{}, e.rejected("assignment.create", err)
	}
	st, err := e.Repo.GetStaffTx(ctx, tx, opts.StaffID)
	if err != nil {
		return domain.WorksFor{}, lookupErr("staff", opts.StaffID, err)
	}
	if !st.Active {
		return domain.WorksFor{}, e.rejected("assignment.create", domain.Invalid(domain.ErrInvalidInput, fmt.Sprintf("staff %s is inactive", st.ID), "staff_id"))
	}
	existing, err := e.Repo.ActiveAssignmentTx(ctx, tx, opts.StaffID, opts.ActivityID)
	if err != nil {
		return domain.WorksFor{}, fmt.Errorf("load assignment: %w", err)
	}
	w, err := rules.AssignStaff(opts.StaffID, opts.ActivityID, opts.Responsibility, existing, e.now())
	if err != nil {
		return domain.WorksFor{}, e.rejected("assignment.create", err)
	}
	w.ID = uuid.NewString()
	if err := e.Repo.InsertWorksFor(ctx, tx, w); err != nil {
		if repo.IsUniqueViolation(err) {
			return domain.WorksFor{}, e.rejected("assignment.create", domain.Invalid(domain.ErrAlreadyAssigned,
				fmt.Sprintf("staff %s on activity %s", opts.StaffID, opts.ActivityID)))
		}
		return domain.WorksFor{}, fmt.Errorf("insert assignment: %w", err)
	}
	if err := e.append(ctx, tx, "assignment.created", "works_for", w.ID, opts.ActorID, events.EventPayload{
		"staff_id":       w.StaffID,
		"activity_id":    w.ActivityID,
		"responsibility": w.Responsibility,
	}); err != nil {
		return domain.WorksFor{}, err
	}
	return w, nil
}

type BatchAssignOptions struct {
	ActivityID     string
	StaffIDs       []string
	Responsibility string
	ActorID        string
}

type BatchFailure struct {
	StaffID string `json:"staff_id"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error"`
}

type BatchResult struct {
	Assigned    int               `json:"assigned"`
	Assignments []domain.WorksFor `json:"assignments"`
	Failures    []BatchFailure    `json:"failures"`
}

// BatchAssign assigns each staff id in its own transaction. It is not atomic:
// ids that succeed stay assigned when later ones fail, and repeated ids are
// handled independently, so the second one reports already_assigned.
// It returns an error only when ctx is done.
func (e Engine) BatchAssign(ctx context.Context, opts BatchAssignOptions) (BatchResult, error) {
	res := BatchResult{Assignments: []domain.WorksFor{}, Failures: []BatchFailure{}}
	for _, staffID := range opts.StaffIDs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		w, err := e.AssignStaff(ctx, AssignOptions{
			StaffID:        staffID,
			ActivityID:     opts.ActivityID,
			Responsibility: opts.Responsibility,
			ActorID:        opts.ActorID,
		})
		if err != nil {
			res.Failures = append(res.Failures, BatchFailure{StaffID: staffID, Code: domain.ErrorCode(err), Error: err.Error()})
			continue
		}
		res.Assigned++
		res.Assignments = append(res.Assignments, w)
	}
	e.Log.Info().Str("activity_id", opts.ActivityID).Int("assigned", res.Assigned).Int("failed", len(res.Failures)).Msg("batch assignment")
	return res, nil
}

// UnassignStaff soft-deletes the active row for the pair. The row is kept
// with active=false; a later assignment creates a new row.
func (e Engine) UnassignStaff(ctx context.Context, staffID, activityID, actorID string) (domain.WorksFor, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.WorksFor{}, err
	}
	defer tx.Rollback()
	existing, err := e.Repo.ActiveAssignmentTx(ctx, tx, staffID, activityID)
	if err != nil {
		return domain.WorksFor{}, fmt.Errorf("load assignment: %w", err)
	}
	w, err := rules.UnassignStaff(staffID, activityID, existing)
	if err != nil {
		return domain.WorksFor{}, e.rejected("assignment.remove", err)
	}
	if err := e.Repo.DeactivateWorksFor(ctx, tx, w.ID); err != nil {
		return domain.WorksFor{}, fmt.Errorf("deactivate assignment: %w", err)
	}
	if err := e.append(ctx, tx, "assignment.removed", "works_for", w.ID, actorID, events.EventPayload{
		"staff_id":    staffID,
		"activity_id": activityID,
	}); err != nil {
		return domain.WorksFor{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.WorksFor{}, err
	}
	e.Log.Info().Str("staff_id", staffID).Str("activity_id", activityID).Msg("staff unassigned")
	return w, nil
}

func (e Engine) UpdateResponsibility(ctx context.Context, staffID, activityID, responsibility, actorID string) (domain.WorksFor, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.WorksFor{}, err
	}
	defer tx.Rollback()
	existing, err := e.Repo.ActiveAssignmentTx(ctx, tx, staffID, activityID)
	if err != nil {
		return domain.WorksFor{}, fmt.Errorf("load assignment: %w", err)
	}
	w, err := rules.UpdateResponsibility(staffID, activityID, responsibility, existing)
	if err != nil {
		return domain.WorksFor{}, e.rejected("assignment.update", err)
	}
	if err := e.Repo.UpdateWorksForResponsibility(ctx, tx, w.ID, w.Responsibility); err != nil {
		return domain.WorksFor{}, fmt.Errorf("update assignment: %w", err)
	}
	if err := e.append(ctx, tx, "assignment.updated", "works_for", w.ID, actorID, events.EventPayload{
		"responsibility": w.Responsibility,
	}); err != nil {
		return domain.WorksFor{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.WorksFor{}, err
	}
	return w, nil
}
