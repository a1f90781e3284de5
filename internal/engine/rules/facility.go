// Package rules holds the pure business-rule validators. Nothing here touches
// storage; callers pass in every piece of state a rule needs.
package rules

import (
	"fmt"
	"strings"

	"cmms/internal/domain"
)

var facilityRequired = map[domain.FacilityType][]string{
	domain.FacilityBuilding: {"building_id"},
	domain.FacilityRoom:     {"building_id", "room_id"},
	domain.FacilityLevel:    {"building_id", "level_id"},
	domain.FacilitySquare:   {"square_id"},
	domain.FacilityGate:     {"gate_id"},
	domain.FacilityCanteen:  {"canteen_id"},
	domain.FacilityArea:     {"area_id"},
	domain.FacilityNone:     {},
}

// ValidateFacilityBinding checks that exactly the ids required by the
// activity's facility type are set.
func ValidateFacilityBinding(a domain.Activity) error {
	return ValidateFacility(a.Facility)
}

func ValidateFacility(f domain.FacilityRef) error {
	required, ok := facilityRequired[f.Type]
	if !ok {
		return domain.Invalid(domain.ErrInvalidFacilityBinding, fmt.Sprintf("unknown facility type %q", f.Type), "facility_type")
	}
	need := make(map[string]bool, len(required))
	for _, name := range required {
		need[name] = true
	}
	var missing, unexpected []string
	for _, field := range f.Fields() {
		set := strings.TrimSpace(field.Value) != ""
		switch {
		case need[field.Name] && !set:
			missing = append(missing, field.Name)
		case !need[field.Name] && set:
			unexpected = append(unexpected, field.Name)
		}
	}
	if len(missing) == 0 && len(unexpected) == 0 {
		return nil
	}
	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing "+strings.Join(missing, ", "))
	}
	if len(unexpected) > 0 {
		parts = append(parts, "unexpected "+strings.Join(unexpected, ", "))
	}
	fields := make([]string, 0, len(missing)+len(unexpected))
	fields = append(fields, missing...)
	fields = append(fields, unexpected...)
	return domain.Invalid(domain.ErrInvalidFacilityBinding,
		fmt.Sprintf("facility type %s: %s", f.Type, strings.Join(parts, "; ")), fields...)
}

// EnsureFacilityUnchanged rejects a facility change carried by a status update.
func EnsureFacilityUnchanged(current, requested domain.FacilityRef) error {
	if current == requested {
		return nil
	}
	return domain.Invalid(domain.ErrInvalidFacilityBinding, "facility binding cannot change during a status update", "facility")
}

// FacilityReference is one registered facility named by a binding, together
// with the activity field that names it.
type FacilityReference struct {
	Key   domain.FacilityKey
	Field string
}

// FacilityReferences lists the registered facilities a valid binding points
// at. Rooms and levels also point at their building, which comes first.
func FacilityReferences(f domain.FacilityRef) []FacilityReference {
	building := FacilityReference{Key: domain.FacilityKey{Kind: domain.FacilityBuilding, ID: f.BuildingID}, Field: "building_id"}
	switch f.Type {
	case domain.FacilityBuilding:
		return []FacilityReference{building}
	case domain.FacilityRoom:
		return []FacilityReference{building, {Key: domain.FacilityKey{Kind: domain.FacilityRoom, BuildingID: f.BuildingID, ID: f.RoomID}, Field: "room_id"}}
	case domain.FacilityLevel:
		return []FacilityReference{building, {Key: domain.FacilityKey{Kind: domain.FacilityLevel, BuildingID: f.BuildingID, ID: f.LevelID}, Field: "level_id"}}
	case domain.FacilitySquare:
		return []FacilityReference{{Key: domain.FacilityKey{Kind: domain.FacilitySquare, ID: f.SquareID}, Field: "square_id"}}
	case domain.FacilityGate:
		return []FacilityReference{{Key: domain.FacilityKey{Kind: domain.FacilityGate, ID: f.GateID}, Field: "gate_id"}}
	case domain.FacilityCanteen:
		return []FacilityReference{{Key: domain.FacilityKey{Kind: domain.FacilityCanteen, ID: f.CanteenID}, Field: "canteen_id"}}
	case domain.FacilityArea:
		return []FacilityReference{{Key: domain.FacilityKey{Kind: domain.FacilityArea, ID: f.AreaID}, Field: "area_id"}}
	}
	return nil
}

// ValidateNewFacility checks a facility about to be registered.
func ValidateNewFacility(f domain.Facility) error {
	if !f.Kind.Registrable() {
		return domain.Invalid(domain.ErrInvalidInput, fmt.Sprintf("unknown facility kind %q", f.Kind), "kind")
	}
	var missing []string
	if f.ID == "" {
		missing = append(missing, "id")
	}
	if f.Name == "" {
		missing = append(missing, "name")
	}
	if f.Kind.InBuilding() && f.BuildingID == "" {
		missing = append(missing, "building_id")
	}
	if len(missing) > 0 {
		return domain.Invalid(domain.ErrInvalidInput, "required fields missing", missing...)
	}
	if !f.Kind.InBuilding() && f.BuildingID != "" {
		return domain.Invalid(domain.ErrInvalidInput, fmt.Sprintf("a %s is not scoped to a building", f.Kind), "building_id")
	}
	return nil
}
