package rules

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"cmms/internal/domain"
)

var activityTransitions = map[domain.ActivityStatus][]domain.ActivityStatus{
	domain.StatusPlanned:    {domain.StatusInProgress, domain.StatusCancelled},
	domain.StatusInProgress: {domain.StatusCompleted, domain.StatusCancelled},
}

// CanTransition reports whether from -> to is an edge of the lifecycle graph.
// Self-loops are not edges.
func CanTransition(from, to domain.ActivityStatus) bool {
	for _, next := range activityTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionActivity returns a with its status moved to newStatus. completedAt
// must be set exactly when moving to completed, and must not precede the
// scheduled time.
func TransitionActivity(a domain.Activity, newStatus domain.ActivityStatus, completedAt *time.Time) (domain.Activity, error) {
	if !CanTransition(a.Status, newStatus) {
		return a, domain.Invalid(domain.ErrInvalidTransition, fmt.Sprintf("%s -> %s", a.Status, newStatus), "status")
	}
	if newStatus == domain.StatusCompleted {
		if completedAt == nil {
			return a, domain.Invalid(domain.ErrInconsistentCompletionTime, "completion time required to complete", "actual_completion_at")
		}
		if completedAt.Before(a.ScheduledAt) {
			return a, domain.Invalid(domain.ErrInconsistentCompletionTime,
				fmt.Sprintf("completion %s precedes schedule %s", completedAt.UTC().Format(time.RFC3339), a.ScheduledAt.UTC().Format(time.RFC3339)),
				"actual_completion_at")
		}
	} else if completedAt != nil {
		return a, domain.Invalid(domain.ErrInconsistentCompletionTime, "completion time only allowed when completing", "actual_completion_at")
	}
	if err := ValidateFacilityBinding(a); err != nil {
		return a, err
	}
	out := a
	out.Status = newStatus
	out.ActualCompletionAt = nil
	if completedAt != nil {
		ts := completedAt.UTC()
		out.ActualCompletionAt = &ts
	}
	return out, nil
}

const maxTitleLen = 200

// ValidateNewActivity checks a freshly built activity before it is stored.
func ValidateNewActivity(a domain.Activity) error {
	if !a.Type.Valid() {
		return domain.Invalid(domain.ErrInvalidInput, fmt.Sprintf("unknown activity type %q", a.Type), "activity_type")
	}
	if a.Status != domain.StatusPlanned {
		return domain.Invalid(domain.ErrInvalidInput, "new activities start planned", "status")
	}
	if !a.HazardLevel.Valid() {
		return domain.Invalid(domain.ErrInvalidInput, fmt.Sprintf("unknown hazard level %q", a.HazardLevel), "hazard_level")
	}
	if !a.Priority.Valid() {
		return domain.Invalid(domain.ErrInvalidInput, fmt.Sprintf("unknown priority %q", a.Priority), "priority")
	}
	if a.ScheduledAt.IsZero() {
		return domain.Invalid(domain.ErrInvalidInput, "scheduled time required", "scheduled_at")
	}
	if h := a.ExpectedDowntimeHours; !(h >= 0) || math.IsInf(h, 0) {
		return domain.Invalid(domain.ErrInvalidInput, "expected downtime must be a finite non-negative number of hours", "expected_downtime_hours")
	}
	if a.ActualCompletionAt != nil {
		return domain.Invalid(domain.ErrInconsistentCompletionTime, "planned activity cannot carry a completion time", "actual_completion_at")
	}
	if utf8.RuneCountInString(strings.TrimSpace(a.Title)) > maxTitleLen {
		return domain.Invalid(domain.ErrInvalidInput, fmt.Sprintf("title longer than %d characters", maxTitleLen), "title")
	}
	return ValidateFacilityBinding(a)
}
