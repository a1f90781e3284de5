package rules

import (
	"fmt"
	"time"

	"cmms/internal/domain"
)

// SupervisionCandidate is a proposed Supervise edge with the role levels of
// both ends already resolved.
type SupervisionCandidate struct {
	SupervisorID     string
	SupervisorLevel  domain.RoleLevel
	SubordinateID    string
	SubordinateLevel domain.RoleLevel
	StartDate        time.Time
	EndDate          *time.Time
}

// AllowedPair reports whether sup may directly supervise sub. Only adjacent
// tiers, top down: 1 -> 2 and 2 -> 3.
func AllowedPair(sup, sub domain.RoleLevel) bool {
	return (sup == domain.RoleExecutiveOfficer && sub == domain.RoleMidLevelManager) ||
		(sup == domain.RoleMidLevelManager && sub == domain.RoleBaseLevelWorker)
}

// ValidateSupervision checks a candidate edge against the three-tier rule and
// the existing edges for the same ordered pair.
func ValidateSupervision(c SupervisionCandidate, existing []domain.Supervise) error {
	if c.SupervisorID == c.SubordinateID {
		return domain.Invalid(domain.ErrSelfSupervision, c.SupervisorID, "supervisor_staff_id", "subordinate_staff_id")
	}
	if !AllowedPair(c.SupervisorLevel, c.SubordinateLevel) {
		return domain.Invalid(domain.ErrInvalidHierarchy,
			fmt.Sprintf("%s (level %d) cannot supervise %s (level %d)", c.SupervisorLevel, c.SupervisorLevel, c.SubordinateLevel, c.SubordinateLevel))
	}
	if c.StartDate.IsZero() {
		return domain.Invalid(domain.ErrInvalidInput, "start date required", "start_date")
	}
	if c.EndDate != nil && c.EndDate.Before(c.StartDate) {
		return domain.Invalid(domain.ErrInvalidDateRange, "end date before start date", "end_date")
	}
	for _, e := range existing {
		if e.SupervisorStaffID != c.SupervisorID || e.SubordinateStaffID != c.SubordinateID {
			continue
		}
		if e.EndDate == nil || !e.EndDate.Before(c.StartDate) {
			return domain.Invalid(domain.ErrDuplicateActiveRelationship,
				fmt.Sprintf("%s already supervises %s since %s", c.SupervisorID, c.SubordinateID, e.StartDate.Format(domain.DateLayout)))
		}
	}
	return nil
}

// ValidateClose checks the end date given to an existing edge. An edge that
// is already closed may be re-closed; either way the new range must not reach
// into another edge for the same ordered pair.
func ValidateClose(edge domain.Supervise, endDate time.Time, pair []domain.Supervise) error {
	if endDate.Before(edge.StartDate) {
		return domain.Invalid(domain.ErrInvalidDateRange,
			fmt.Sprintf("end %s before start %s", endDate.Format(domain.DateLayout), edge.StartDate.Format(domain.DateLayout)), "end_date")
	}
	for _, o := range pair {
		if o.ID == edge.ID || o.SupervisorStaffID != edge.SupervisorStaffID || o.SubordinateStaffID != edge.SubordinateStaffID {
			continue
		}
		if !o.StartDate.After(endDate) && (o.EndDate == nil || !o.EndDate.Before(edge.StartDate)) {
			return domain.Invalid(domain.ErrDuplicateActiveRelationship,
				fmt.Sprintf("end %s overlaps edge %s starting %s", endDate.Format(domain.DateLayout), o.ID, o.StartDate.Format(domain.DateLayout)),
				"end_date")
		}
	}
	return nil
}

// EdgeLevels is an active edge together with the current levels of both ends.
type EdgeLevels struct {
	Edge             domain.Supervise
	SupervisorLevel  domain.RoleLevel
	SubordinateLevel domain.RoleLevel
}

// ValidateRoleChange rejects a new level for staffID that would leave any of
// its active edges outside the three-tier rule.
func ValidateRoleChange(staffID string, newLevel domain.RoleLevel, active []EdgeLevels) error {
	if !newLevel.Valid() {
		return domain.Invalid(domain.ErrInvalidInput, fmt.Sprintf("unknown role level %d", newLevel), "role_level")
	}
	for _, el := range active {
		sup, sub := el.SupervisorLevel, el.SubordinateLevel
		if el.Edge.SupervisorStaffID == staffID {
			sup = newLevel
		}
		if el.Edge.SubordinateStaffID == staffID {
			sub = newLevel
		}
		if !AllowedPair(sup, sub) {
			return domain.Invalid(domain.ErrInvalidHierarchy,
				fmt.Sprintf("level %d for %s breaks supervision %s -> %s", newLevel, staffID, el.Edge.SupervisorStaffID, el.Edge.SubordinateStaffID),
				"role_level")
		}
	}
	return nil
}
