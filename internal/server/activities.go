package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"cmms/internal/domain"
	"cmms/internal/engine"
	"cmms/internal/engine/auth"
	"cmms/internal/repo"
)

type activityPath struct {
	ID string `path:"id"`
}

func registerActivities(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-activity",
		Method:        http.MethodPost,
		Path:          "/activities",
		Summary:       "Plan a maintenance activity",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateActivityRequest
	}) (*bodyOutput[domain.Activity], error) {
		actorID, err := requirePermission(ctx, e, auth.PermActivityWrite)
		if err != nil {
			return nil, handleError(err)
		}
		scheduled, err := parseTimestamp("scheduled_at", input.Body.ScheduledAt)
		if err != nil {
			return nil, err
		}
		a, err := e.CreateActivity(ctx, engine.ActivityCreateOptions{
			ID:                    input.Body.ID,
			Type:                  domain.ActivityType(input.Body.ActivityType),
			Title:                 input.Body.Title,
			Description:           input.Body.Description,
			Priority:              domain.Level(input.Body.Priority),
			HazardLevel:           domain.Level(input.Body.HazardLevel),
			ScheduledAt:           scheduled,
			ExpectedDowntimeHours: input.Body.ExpectedDowntimeHours,
			Facility:              input.Body.Facility,
			CreatedByStaffID:      actorID,
			ActorID:               actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(a), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-activities",
		Method:      http.MethodGet,
		Path:        "/activities",
		Summary:     "List activities",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Status          string `query:"status" enum:"planned,in_progress,completed,cancelled"`
		Type            string `query:"activity_type" enum:"cleaning,repair,weather_response"`
		FacilityType    string `query:"facility_type" enum:"building,room,level,square,gate,canteen,area,none"`
		CreatedBy       string `query:"created_by"`
		IncludeInactive bool   `query:"include_inactive"`
		Limit           int    `query:"limit" default:"50"`
	}) (*bodyOutput[activityList], error) {
		if _, err := requirePermission(ctx, e, auth.PermActivityRead); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListActivities(ctx, repo.ActivityFilters{
			Status:       domain.ActivityStatus(input.Status),
			Type:         domain.ActivityType(input.Type),
			FacilityType: domain.FacilityType(input.FacilityType),
			CreatedBy:    input.CreatedBy,
			ActiveOnly:   !input.IncludeInactive,
			Limit:        normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(activityList{Items: nonNil(items)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-activity",
		Method:      http.MethodGet,
		Path:        "/activities/{id}",
		Summary:     "Get activity",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *activityPath) (*bodyOutput[ActivityDetail], error) {
		if _, err := requirePermission(ctx, e, auth.PermActivityRead); err != nil {
			return nil, handleError(err)
		}
		a, err := e.Repo.GetActivity(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		n, err := e.Repo.CountParticipants(ctx, a.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(ActivityDetail{Activity: a, Participants: n}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "transition-activity",
		Method:      http.MethodPost,
		Path:        "/activities/{id}/transition",
		Summary:     "Move an activity along its lifecycle",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body TransitionRequest
	}) (*bodyOutput[domain.Activity], error) {
		actorID, err := requirePermission(ctx, e, auth.PermActivityWrite)
		if err != nil {
			return nil, handleError(err)
		}
		opts := engine.ActivityTransitionOptions{
			ID:       input.ID,
			Status:   domain.ActivityStatus(input.Body.Status),
			Facility: input.Body.Facility,
			ActorID:  actorID,
		}
		if input.Body.CompletedAt != "" {
			done, err := parseTimestamp("completed_at", input.Body.CompletedAt)
			if err != nil {
				return nil, err
			}
			opts.CompletedAt = &done
		}
		a, err := e.TransitionActivity(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(a), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "deactivate-activity",
		Method:      http.MethodPost,
		Path:        "/activities/{id}/deactivate",
		Summary:     "Hide an activity from active listings",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *activityPath) (*bodyOutput[domain.Activity], error) {
		actorID, err := requirePermission(ctx, e, auth.PermActivityWrite)
		if err != nil {
			return nil, handleError(err)
		}
		a, err := e.DeactivateActivity(ctx, input.ID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(a), nil
	})
}

func registerAssignments(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-activity-assignments",
		Method:      http.MethodGet,
		Path:        "/activities/{id}/assignments",
		Summary:     "Staff working on an activity",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ID              string `path:"id"`
		IncludeInactive bool   `query:"include_inactive"`
	}) (*bodyOutput[assignmentList], error) {
		if _, err := requirePermission(ctx, e, auth.PermActivityRead); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListAssignments(ctx, repo.AssignmentFilters{ActivityID: input.ID, ActiveOnly: !input.IncludeInactive})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(assignmentList{Items: nonNil(items)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "assign-staff",
		Method:        http.MethodPost,
		Path:          "/activities/{id}/assignments",
		Summary:       "Assign a staff member to an activity",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body AssignRequest
	}) (*bodyOutput[domain.WorksFor], error) {
		actorID, err := requirePermission(ctx, e, auth.PermAssignmentWrite)
		if err != nil {
			return nil, handleError(err)
		}
		w, err := e.AssignStaff(ctx, engine.AssignOptions{
			StaffID:        input.Body.StaffID,
			ActivityID:     input.ID,
			Responsibility: input.Body.Responsibility,
			ActorID:        actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(w), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "batch-assign-staff",
		Method:      http.MethodPost,
		Path:        "/activities/{id}/assignments/batch",
		Summary:     "Assign several staff members; failures are reported per id",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body BatchAssignRequest
	}) (*bodyOutput[BatchAssignResponse], error) {
		actorID, err := requirePermission(ctx, e, auth.PermAssignmentWrite)
		if err != nil {
			return nil, handleError(err)
		}
		res, err := e.BatchAssign(ctx, engine.BatchAssignOptions{
			ActivityID:     input.ID,
			StaffIDs:       input.Body.StaffIDs,
			Responsibility: input.Body.Responsibility,
			ActorID:        actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(res), nil
	})

	type pairPath struct {
		ID      string `path:"id"`
		StaffID string `path:"staff_id"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "check-assignment",
		Method:      http.MethodGet,
		Path:        "/activities/{id}/assignments/{staff_id}",
		Summary:     "Whether the staff member is actively assigned",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *pairPath) (*bodyOutput[AssignmentCheck], error) {
		if _, err := requirePermission(ctx, e, auth.PermActivityRead); err != nil {
			return nil, handleError(err)
		}
		ok, err := e.Repo.IsStaffInActivity(ctx, input.StaffID, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(AssignmentCheck{ActivityID: input.ID, StaffID: input.StaffID, Assigned: ok}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-responsibility",
		Method:      http.MethodPut,
		Path:        "/activities/{id}/assignments/{staff_id}",
		Summary:     "Change the responsibility on an active assignment",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID      string `path:"id"`
		StaffID string `path:"staff_id"`
		Body    ResponsibilityRequest
	}) (*bodyOutput[domain.WorksFor], error) {
		actorID, err := requirePermission(ctx, e, auth.PermAssignmentWrite)
		if err != nil {
			return nil, handleError(err)
		}
		w, err := e.UpdateResponsibility(ctx, input.StaffID, input.ID, input.Body.Responsibility, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(w), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "unassign-staff",
		Method:      http.MethodDelete,
		Path:        "/activities/{id}/assignments/{staff_id}",
		Summary:     "End an active assignment",
		Errors:      []int{http.StatusForbidden, http.StatusConflict},
	}, func(ctx context.Context, input *pairPath) (*bodyOutput[domain.WorksFor], error) {
		actorID, err := requirePermission(ctx, e, auth.PermAssignmentWrite)
		if err != nil {
			return nil, handleError(err)
		}
		w, err := e.UnassignStaff(ctx, input.StaffID, input.ID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(w), nil
	})
}
