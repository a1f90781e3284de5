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

func registerFacilities(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-facility",
		Method:        http.MethodPost,
		Path:          "/facilities",
		Summary:       "Register a building, room, level, square, gate, canteen or area",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreateFacilityRequest
	}) (*bodyOutput[domain.Facility], error) {
		actorID, err := requirePermission(ctx, e, auth.PermActivityWrite)
		if err != nil {
			return nil, handleError(err)
		}
		f, err := e.CreateFacility(ctx, engine.FacilityCreateOptions{
			Kind:       domain.FacilityType(input.Body.Kind),
			BuildingID: input.Body.BuildingID,
			ID:         input.Body.ID,
			Name:       input.Body.Name,
			Detail:     input.Body.Detail,
			ActorID:    actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(f), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-facilities",
		Method:      http.MethodGet,
		Path:        "/facilities",
		Summary:     "List registered facilities",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Kind            string `query:"kind" enum:"building,room,level,square,gate,canteen,area"`
		BuildingID      string `query:"building_id"`
		IncludeInactive bool   `query:"include_inactive"`
	}) (*bodyOutput[facilityList], error) {
		if _, err := requirePermission(ctx, e, auth.PermActivityRead); err != nil {
			return nil, handleError(err)
		}
		items, err := e.ListFacilities(ctx, repo.FacilityFilters{
			Kind:       domain.FacilityType(input.Kind),
			BuildingID: input.BuildingID,
			ActiveOnly: !input.IncludeInactive,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(facilityList{Items: nonNil(items)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "deactivate-facility",
		Method:      http.MethodPost,
		Path:        "/facilities/{kind}/{id}/deactivate",
		Summary:     "Retire a facility so new activities cannot bind to it",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Kind       string `path:"kind" enum:"building,room,level,square,gate,canteen,area"`
		ID         string `path:"id"`
		BuildingID string `query:"building_id"`
	}) (*bodyOutput[domain.Facility], error) {
		actorID, err := requirePermission(ctx, e, auth.PermActivityWrite)
		if err != nil {
			return nil, handleError(err)
		}
		key := domain.FacilityKey{Kind: domain.FacilityType(input.Kind), BuildingID: input.BuildingID, ID: input.ID}
		f, err := e.DeactivateFacility(ctx, key, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(f), nil
	})
}

func parseWindow(from, to string) (engine.ActivityQuery, error) {
	var q engine.ActivityQuery
	if from != "" {
		t, err := parseTimestamp("from", from)
		if err != nil {
			return q, err
		}
		q.From = &t
	}
	if to != "" {
		t, err := parseTimestamp("to", to)
		if err != nil {
			return q, err
		}
		q.To = &t
	}
	return q, nil
}

func registerReports(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "query-activities",
		Method:      http.MethodGet,
		Path:        "/reports/activities",
		Summary:     "Active activities of the given types scheduled in a window, oldest first",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		From       string   `query:"from" format:"date-time"`
		To         string   `query:"to" format:"date-time"`
		BuildingID string   `query:"building_id"`
		Types      []string `query:"types"`
	}) (*bodyOutput[activityList], error) {
		if _, err := requirePermission(ctx, e, auth.PermActivityRead); err != nil {
			return nil, handleError(err)
		}
		q, err := parseWindow(input.From, input.To)
		if err != nil {
			return nil, err
		}
		q.BuildingID = input.BuildingID
		for _, t := range input.Types {
			q.Types = append(q.Types, domain.ActivityType(t))
		}
		items, err := e.QueryActivities(ctx, q)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(activityList{Items: nonNil(items)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "worker-counts",
		Method:      http.MethodGet,
		Path:        "/reports/worker-counts",
		Summary:     "Staff on completed activities per activity type and area",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		From string `query:"from" format:"date-time"`
		To   string `query:"to" format:"date-time"`
	}) (*bodyOutput[workerCountReport], error) {
		if _, err := requirePermission(ctx, e, auth.PermActivityRead); err != nil {
			return nil, handleError(err)
		}
		q, err := parseWindow(input.From, input.To)
		if err != nil {
			return nil, err
		}
		rows, err := e.WorkerCounts(ctx, q)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(workerCountReport{From: q.From, To: q.To, Items: nonNil(rows)}), nil
	})
}

type workerCountReport struct {
	From  *time.Time           `json:"from,omitempty"`
	To    *time.Time           `json:"to,omitempty"`
	Items []domain.WorkerCount `json:"items"`
}
