package domain

import (
	"errors"
	"strings"
)

var (
	ErrInvalidFacilityBinding      = errors.New("invalid facility binding")
	ErrInvalidTransition           = errors.New("invalid status transition")
	ErrInconsistentCompletionTime  = errors.New("inconsistent completion time")
	ErrInvalidHierarchy            = errors.New("invalid hierarchy")
	ErrSelfSupervision             = errors.New("self supervision not allowed")
	ErrDuplicateActiveRelationship = errors.New("duplicate active relationship")
	ErrInvalidDateRange            = errors.New("invalid date range")
	ErrAlreadyAssigned             = errors.New("staff already assigned")
	ErrNotAssigned                 = errors.New("staff not assigned")
	ErrActivityClosed              = errors.New("activity closed")
	ErrInvalidInput                = errors.New("invalid input")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrInvalidFacilityBinding, "invalid_facility_binding"},
	{ErrInvalidTransition, "invalid_transition"},
	{ErrInconsistentCompletionTime, "inconsistent_completion_time"},
	{ErrInvalidHierarchy, "invalid_hierarchy"},
	{ErrSelfSupervision, "self_supervision_not_allowed"},
	{ErrDuplicateActiveRelationship, "duplicate_active_relationship"},
	{ErrInvalidDateRange, "invalid_date_range"},
	{ErrAlreadyAssigned, "already_assigned"},
	{ErrNotAssigned, "not_assigned"},
	{ErrActivityClosed, "activity_closed"},
	{ErrInvalidInput, "invalid_input"},
}

// ValidationError is a business-rule rejection. It unwraps to one of the
// sentinel errors above and never wraps a storage failure.
type ValidationError struct {
	Err    error
	Fields []string
	Detail string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Err.Error())
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if len(e.Fields) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(e.Fields, ", "))
		b.WriteString(")")
	}
	return b.String()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Invalid builds a ValidationError for kind.
func Invalid(kind error, detail string, fields ...string) error {
	return &ValidationError{Err: kind, Detail: detail, Fields: fields}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ErrorCode returns the stable snake_case code for a rule violation, or "" when
// err is not one.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return ""
}

// ErrorFields returns the offending field names carried by a ValidationError.
func ErrorFields(err error) []string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Fields
	}
	return nil
}
