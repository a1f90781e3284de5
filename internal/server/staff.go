package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"cmms/internal/domain"
	"cmms/internal/engine"
	"cmms/internal/engine/auth"
	"cmms/internal/repo"
)

type staffPath struct {
	ID string `path:"id"`
}

func registerStaff(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-staff",
		Method:        http.MethodPost,
		Path:          "/staff",
		Summary:       "Register a staff member",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreateStaffRequest
	}) (*bodyOutput[domain.Staff], error) {
		actorID, err := requirePermission(ctx, e, auth.PermStaffManage)
		if err != nil {
			return nil, handleError(err)
		}
		hired, err := optionalDay("hire_date", input.Body.HireDate)
		if err != nil {
			return nil, err
		}
		st, err := e.CreateStaff(ctx, engine.StaffCreateOptions{
			ID:          input.Body.ID,
			StaffNumber: input.Body.StaffNumber,
			FirstName:   input.Body.FirstName,
			LastName:    input.Body.LastName,
			Email:       input.Body.Email,
			RoleLevel:   domain.RoleLevel(input.Body.RoleLevel),
			HireDate:    hired,
			ActorID:     actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(st), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-staff",
		Method:      http.MethodGet,
		Path:        "/staff",
		Summary:     "List staff",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		RoleLevel       int  `query:"role_level" minimum:"0" maximum:"3"`
		IncludeInactive bool `query:"include_inactive"`
	}) (*bodyOutput[staffList], error) {
		if _, err := requirePermission(ctx, e, auth.PermStaffRead); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListStaff(ctx, repo.StaffFilters{
			RoleLevel:  domain.RoleLevel(input.RoleLevel),
			ActiveOnly: !input.IncludeInactive,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(staffList{Items: nonNil(items)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-staff",
		Method:      http.MethodGet,
		Path:        "/staff/{id}",
		Summary:     "Get staff member",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *staffPath) (*bodyOutput[domain.Staff], error) {
		if _, err := requirePermission(ctx, e, auth.PermStaffRead); err != nil {
			return nil, handleError(err)
		}
		st, err := e.Repo.GetStaff(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(st), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "change-staff-role",
		Method:      http.MethodPut,
		Path:        "/staff/{id}/role",
		Summary:     "Change a staff member's role level",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body RoleChangeRequest
	}) (*bodyOutput[domain.Staff], error) {
		actorID, err := requirePermission(ctx, e, auth.PermStaffManage)
		if err != nil {
			return nil, handleError(err)
		}
		st, err := e.ChangeStaffRole(ctx, input.ID, domain.RoleLevel(input.Body.RoleLevel), actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(st), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "deactivate-staff",
		Method:      http.MethodPost,
		Path:        "/staff/{id}/deactivate",
		Summary:     "Deactivate a staff member",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *staffPath) (*bodyOutput[domain.Staff], error) {
		actorID, err := requirePermission(ctx, e, auth.PermStaffManage)
		if err != nil {
			return nil, handleError(err)
		}
		st, err := e.DeactivateStaff(ctx, input.ID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(st), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-staff-assignments",
		Method:      http.MethodGet,
		Path:        "/staff/{id}/assignments",
		Summary:     "Activities a staff member works on",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ID              string `path:"id"`
		IncludeInactive bool   `query:"include_inactive"`
	}) (*bodyOutput[assignmentList], error) {
		if _, err := requirePermission(ctx, e, auth.PermStaffRead); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListAssignments(ctx, repo.AssignmentFilters{StaffID: input.ID, ActiveOnly: !input.IncludeInactive})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(assignmentList{Items: nonNil(items)}), nil
	})

	type dayQuery struct {
		ID string `path:"id"`
		On string `query:"on" format:"date" doc:"Civil date, defaults to today"`
	}
	hierarchy := func(list func(context.Context, string, time.Time) ([]domain.Supervise, error)) func(context.Context, *dayQuery) (*bodyOutput[superviseList], error) {
		return func(ctx context.Context, input *dayQuery) (*bodyOutput[superviseList], error) {
			if _, err := requirePermission(ctx, e, auth.PermStaffRead); err != nil {
				return nil, handleError(err)
			}
			day := e.Today()
			if input.On != "" {
				parsed, err := parseDay("on", input.On)
				if err != nil {
					return nil, err
				}
				day = parsed
			}
			items, err := list(ctx, input.ID, day)
			if err != nil {
				return nil, handleError(err)
			}
			return respond(superviseList{Items: nonNil(items)}), nil
		}
	}

	huma.Register(api, huma.Operation{
		OperationID: "list-subordinates",
		Method:      http.MethodGet,
		Path:        "/staff/{id}/subordinates",
		Summary:     "Supervision edges where the staff member supervises",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, hierarchy(e.Subordinates))

	huma.Register(api, huma.Operation{
		OperationID: "list-supervisors",
		Method:      http.MethodGet,
		Path:        "/staff/{id}/supervisors",
		Summary:     "Supervision edges where the staff member reports",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, hierarchy(e.Supervisors))
}

func registerSupervisions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-supervision",
		Method:        http.MethodPost,
		Path:          "/supervisions",
		Summary:       "Record a supervisor relationship",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateSuperviseRequest
	}) (*bodyOutput[domain.Supervise], error) {
		actorID, err := requirePermission(ctx, e, auth.PermSupervisionWrite)
		if err != nil {
			return nil, handleError(err)
		}
		start, err := parseDay("start_date", input.Body.StartDate)
		if err != nil {
			return nil, err
		}
		end, err := optionalDay("end_date", input.Body.EndDate)
		if err != nil {
			return nil, err
		}
		s, err := e.CreateSupervise(ctx, engine.SuperviseCreateOptions{
			ID:            input.Body.ID,
			SupervisorID:  input.Body.SupervisorStaffID,
			SubordinateID: input.Body.SubordinateStaffID,
			StartDate:     start,
			EndDate:       end,
			ActorID:       actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(s), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-supervisions",
		Method:      http.MethodGet,
		Path:        "/supervisions",
		Summary:     "List supervision edges",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		SupervisorID  string `query:"supervisor_id"`
		SubordinateID string `query:"subordinate_id"`
		ActiveOn      string `query:"active_on" format:"date"`
	}) (*bodyOutput[superviseList], error) {
		if _, err := requirePermission(ctx, e, auth.PermStaffRead); err != nil {
			return nil, handleError(err)
		}
		on, err := optionalDay("active_on", input.ActiveOn)
		if err != nil {
			return nil, err
		}
		items, err := e.Repo.ListSupervise(ctx, repo.SuperviseFilters{
			SupervisorID:  input.SupervisorID,
			SubordinateID: input.SubordinateID,
			ActiveOn:      on,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(superviseList{Items: nonNil(items)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-supervision",
		Method:      http.MethodGet,
		Path:        "/supervisions/{id}",
		Summary:     "Get a supervision edge",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *staffPath) (*bodyOutput[domain.Supervise], error) {
		if _, err := requirePermission(ctx, e, auth.PermStaffRead); err != nil {
			return nil, handleError(err)
		}
		s, err := e.Repo.GetSupervise(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(s), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "close-supervision",
		Method:      http.MethodPost,
		Path:        "/supervisions/{id}/close",
		Summary:     "Set the end date of a supervision edge",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body CloseSuperviseRequest
	}) (*bodyOutput[domain.Supervise], error) {
		actorID, err := requirePermission(ctx, e, auth.PermSupervisionWrite)
		if err != nil {
			return nil, handleError(err)
		}
		end, err := parseDay("end_date", input.Body.EndDate)
		if err != nil {
			return nil, err
		}
		s, err := e.CloseSupervise(ctx, input.ID, end, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(s), nil
	})
}
