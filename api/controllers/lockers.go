package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/parcelhive/parcelhive-backend/api/responses"
	"github.com/parcelhive/parcelhive-backend/api/validators"
	"github.com/parcelhive/parcelhive-backend/internal/lockers"
	"github.com/parcelhive/parcelhive-backend/pkg/enums"
	pkgerrors "github.com/parcelhive/parcelhive-backend/pkg/errors"
	"github.com/parcelhive/parcelhive-backend/pkg/logger"
	"github.com/parcelhive/parcelhive-backend/pkg/pagination"
)

const maxAddressLen = 255

type createLockerRequest struct {
	Address   string  `json:"address" validate:"required"`
	Latitude  float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
}

type updateLockerRequest struct {
	Address   *string  `json:"address,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Status    *string  `json:"status,omitempty"`
}

type createCellRequest struct {
	Size string `json:"size" validate:"required"`
}

// LockerCreate registers a new locker site.
func LockerCreate(svc lockers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "lockers service unavailable"))
			return
		}

		var body createLockerRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		locker, err := svc.CreateLocker(r.Context(), lockers.CreateLockerInput{
			Address:   validators.SanitizeString(body.Address, maxAddressLen),
			Latitude:  body.Latitude,
			Longitude: body.Longitude,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, locker)
	}
}

// LockerUpdate applies a partial update to a locker site.
func LockerUpdate(svc lockers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "lockers service unavailable"))
			return
		}

		lockerID, err := pathUUID(chi.URLParam(r, "lockerID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body updateLockerRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := lockers.UpdateLockerInput{
			Address:   body.Address,
			Latitude:  body.Latitude,
			Longitude: body.Longitude,
		}
		if body.Address != nil {
			clean := validators.SanitizeString(*body.Address, maxAddressLen)
			input.Address = &clean
		}
		if body.Status != nil {
			status, err := enums.ParseLockerStatus(*body.Status)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid locker status"))
				return
			}
			input.Status = &status
		}

		locker, err := svc.UpdateLocker(r.Context(), lockerID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, locker)
	}
}

// LockerGet returns a single locker site.
func LockerGet(svc lockers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "lockers service unavailable"))
			return
		}

		lockerID, err := pathUUID(chi.URLParam(r, "lockerID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		locker, err := svc.GetLocker(r.Context(), lockerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, locker)
	}
}

// LockerList returns a cursor-paginated page of locker sites.
func LockerList(svc lockers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "lockers service unavailable"))
			return
		}

		params, err := listParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListLockers(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, page)
	}
}

// LockerDelete removes a locker site with everything attached to it.
func LockerDelete(svc lockers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "lockers service unavailable"))
			return
		}

		lockerID, err := pathUUID(chi.URLParam(r, "lockerID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.DeleteLocker(r.Context(), lockerID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}

// CellCreate adds a cell to an active locker.
func CellCreate(svc lockers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "lockers service unavailable"))
			return
		}

		lockerID, err := pathUUID(chi.URLParam(r, "lockerID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body createCellRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		size, err := enums.ParseCellSize(body.Size)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cell size"))
			return
		}

		cell, err := svc.CreateCell(r.Context(), lockerID, size)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, cell)
	}
}

// CellList returns a cursor-paginated page of a locker's cells.
func CellList(svc lockers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "lockers service unavailable"))
			return
		}

		lockerID, err := pathUUID(chi.URLParam(r, "lockerID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params, err := listParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListCells(r.Context(), lockerID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, page)
	}
}

// LockerDensity reports per-size occupancy for a locker.
func LockerDensity(svc lockers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "lockers service unavailable"))
			return
		}

		lockerID, err := pathUUID(chi.URLParam(r, "lockerID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		report, err := svc.Density(r.Context(), lockerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, report)
	}
}

func listParams(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{
		Limit:  limit,
		Cursor: r.URL.Query().Get("cursor"),
	}, nil
}
