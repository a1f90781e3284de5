package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"cmms/internal/domain"
	"cmms/internal/engine/rules"
	"cmms/internal/events"
	"cmms/internal/repo"
)

// StaffCreateOptions are parameters for registering a staff member.
type StaffCreateOptions struct {
	ID          string
	StaffNumber string
	FirstName   string
	LastName    string
	Email       string
	RoleLevel   domain.RoleLevel
	HireDate    *time.Time
	ActorID     string
}

func (e Engine) CreateStaff(ctx context.Context, opts StaffCreateOptions) (domain.Staff, error) {
	s := domain.Staff{
		ID:          opts.ID,
		StaffNumber: strings.TrimSpace(opts.StaffNumber),
		FirstName:   strings.TrimSpace(opts.FirstName),
		LastName:    strings.TrimSpace(opts.LastName),
		Email:       strings.TrimSpace(opts.Email),
		RoleLevel:   opts.RoleLevel,
		HireDate:    datePtr(opts.HireDate),
		Active:      true,
		CreatedAt:   e.now(),
	}
	var missing []string
	if s.StaffNumber == "" {
		missing = append(missing, "staff_number")
	}
	if s.FirstName == "" {
		missing = append(missing, "first_name")
	}
	if s.LastName == "" {
		missing = append(missing, "last_name")
	}
	if len(missing) > 0 {
		return domain.Staff{}, e.rejected("staff.create", domain.Invalid(domain.ErrInvalidInput, "required fields missing", missing...))
	}
	if !s.RoleLevel.Valid() {
		return domain.Staff{}, e.rejected("staff.create", domain.Invalid(domain.ErrInvalidInput, fmt.Sprintf("unknown role level %d", s.RoleLevel), "role_level"))
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	actor := opts.ActorID
	if actor == "" {
		actor = s.ID
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Staff{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertStaff(ctx, tx, s); err != nil {
		if repo.IsUniqueViolation(err) {
			return domain.Staff{}, e.rejected("staff.create", domain.Invalid(domain.ErrInvalidInput, fmt.Sprintf("staff number %s already registered", s.StaffNumber), "staff_number"))
		}
		return domain.Staff{}, fmt.Errorf("insert staff: %w", err)
	}
	if err := e.append(ctx, tx, "staff.created", "staff", s.ID, actor, events.EventPayload{
		"staff_number": s.StaffNumber,
		"role_level":   int(s.RoleLevel),
	}); err != nil {
		return domain.Staff{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Staff{}, err
	}
	e.Log.Info().Str("staff_id", s.ID).Str("role", s.RoleLevel.String()).Msg("staff created")
	return s, nil
}

// ChangeStaffRole moves a staff member to another tier. Unless disabled by
// policy, the change is refused when an active supervision edge touching the
// staff member would break the three-tier rule.
func (e Engine) ChangeStaffRole(ctx context.Context, staffID string, level domain.RoleLevel, actorID string) (domain.Staff, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Staff{}, err
	}
	defer tx.Rollback()
	s, err := e.Repo.GetStaffTx(ctx, tx, staffID)
	if err != nil {
		return domain.Staff{}, lookupErr("staff", staffID, err)
	}
	if !level.Valid() {
		return s, e.rejected("staff.role", domain.Invalid(domain.ErrInvalidInput, fmt.Sprintf("unknown role level %d", level), "role_level"))
	}
	if s.RoleLevel == level {
		return s, nil
	}
	if e.guardRoleChanges() {
		edges, err := e.Repo.ActiveEdgesTx(ctx, tx, staffID, domain.Day(e.now()))
		if err != nil {
			return s, fmt.Errorf("load supervision edges: %w", err)
		}
		withLevels := make([]rules.EdgeLevels, 0, len(edges))
		for _, edge := range edges {
			el := rules.EdgeLevels{Edge: edge}
			if el.SupervisorLevel, err = e.levelTx(ctx, tx, edge.SupervisorStaffID); err != nil {
				return s, err
			}
			if el.SubordinateLevel, err = e.levelTx(ctx, tx, edge.SubordinateStaffID); err != nil {
				return s, err
			}
			withLevels = append(withLevels, el)
		}
		if err := rules.ValidateRoleChange(staffID, level, withLevels); err != nil {
			return s, e.rejected("staff.role", err)
		}
	}
	if err := e.Repo.UpdateStaffRole(ctx, tx, staffID, level); err != nil {
		return s, fmt.Errorf("update staff role: %w", err)
	}
	from := s.RoleLevel
	s.RoleLevel = level
	if err := e.append(ctx, tx, "staff.role_changed", "staff", staffID, actorID, events.EventPayload{
		"from": int(from),
		"to":   int(level),
	}); err != nil {
		return s, err
	}
	if err := tx.Commit(); err != nil {
		return s, err
	}
	e.invalidateRole(ctx, staffID)
	e.Log.Info().Str("staff_id", staffID).Int("from", int(from)).Int("to", int(level)).Msg("staff role changed")
	return s, nil
}

// DeactivateStaff switches a staff member off. Rows referencing it are kept.
func (e Engine) DeactivateStaff(ctx context.Context, staffID, actorID string) (domain.Staff, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Staff{}, err
	}
	defer tx.Rollback()
	s, err := e.Repo.GetStaffTx(ctx, tx, staffID)
	if err != nil {
		return domain.Staff{}, lookupErr("staff", staffID, err)
	}
	if !s.Active {
		return s, nil
	}
	if err := e.Repo.SetStaffActive(ctx, tx, staffID, false); err != nil {
		return s, fmt.Errorf("deactivate staff: %w", err)
	}
	s.Active = false
	if err := e.append(ctx, tx, "staff.deactivated", "staff", staffID, actorID, nil); err != nil {
		return s, err
	}
	if err := tx.Commit(); err != nil {
		return s, err
	}
	e.invalidateRole(ctx, staffID)
	e.Log.Info().Str("staff_id", staffID).Msg("staff deactivated")
	return s, nil
}

func (e Engine) levelTx(ctx context.Context, tx *sql.Tx, staffID string) (domain.RoleLevel, error) {
	s, err := e.Repo.GetStaffTx(ctx, tx, staffID)
	if err != nil {
		return 0, lookupErr("staff", staffID, err)
	}
	return s.RoleLevel, nil
}

func (e Engine) invalidateRole(ctx context.Context, staffID string) {
	inv, ok := e.Roles.(invalidator)
	if !ok {
		return
	}
	if err := inv.Invalidate(ctx, staffID); err != nil {
		e.Log.Warn().Err(err).Str("staff_id", staffID).Msg("role cache invalidation failed")
	}
}
