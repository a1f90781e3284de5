package rules

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"cmms/internal/domain"
)

const maxResponsibilityLen = 200

// AssignStaff builds the new active WorksFor row. existing is the currently
// active row for the pair, or nil.
func AssignStaff(staffID, activityID, responsibility string, existing *domain.WorksFor, now time.Time) (domain.WorksFor, error) {
	if staffID == "" || activityID == "" {
		return domain.WorksFor{}, domain.Invalid(domain.ErrInvalidInput, "staff and activity required", "staff_id", "activity_id")
	}
	if existing != nil && existing.Active {
		return domain.WorksFor{}, domain.Invalid(domain.ErrAlreadyAssigned, fmt.Sprintf("staff %s on activity %s", staffID, activityID))
	}
	text, err := cleanResponsibility(responsibility)
	if err != nil {
		return domain.WorksFor{}, err
	}
	return domain.WorksFor{
		StaffID:        staffID,
		ActivityID:     activityID,
		Responsibility: text,
		AssignedAt:     now.UTC(),
		Active:         true,
	}, nil
}

// UnassignStaff soft-deletes the active row for the pair.
func UnassignStaff(staffID, activityID string, existing *domain.WorksFor) (domain.WorksFor, error) {
	if existing == nil || !existing.Active {
		return domain.WorksFor{}, domain.Invalid(domain.ErrNotAssigned, fmt.Sprintf("staff %s on activity %s", staffID, activityID))
	}
	out := *existing
	out.Active = false
	return out, nil
}

// UpdateResponsibility rewrites the responsibility text of an active row.
func UpdateResponsibility(staffID, activityID, responsibility string, existing *domain.WorksFor) (domain.WorksFor, error) {
	if existing == nil || !existing.Active {
		return domain.WorksFor{}, domain.Invalid(domain.ErrNotAssigned, fmt.Sprintf("staff %s on activity %s", staffID, activityID))
	}
	text, err := cleanResponsibility(responsibility)
	if err != nil {
		return domain.WorksFor{}, err
	}
	out := *existing
	out.Responsibility = text
	return out, nil
}

// EnsureAssignable rejects assignments to activities that are switched off,
// and to terminal ones unless allowTerminal is set.
func EnsureAssignable(a domain.Activity, allowTerminal bool) error {
	if !a.Active {
		return domain.Invalid(domain.ErrActivityClosed, fmt.Sprintf("activity %s is inactive", a.ID))
	}
	if a.Status.Terminal() && !allowTerminal {
		return domain.Invalid(domain.ErrActivityClosed, fmt.Sprintf("activity %s is %s", a.ID, a.Status))
	}
	return nil
}

func cleanResponsibility(in string) (string, error) {
	text := strings.TrimSpace(in)
	if utf8.RuneCountInString(text) > maxResponsibilityLen {
		return "", domain.Invalid(domain.ErrInvalidInput, fmt.Sprintf("responsibility longer than %d characters", maxResponsibilityLen), "responsibility")
	}
	return text, nil
}
