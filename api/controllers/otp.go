package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/parcelhive/parcelhive-backend/api/responses"
	"github.com/parcelhive/parcelhive-backend/api/validators"
	"github.com/parcelhive/parcelhive-backend/internal/otp"
	pkgerrors "github.com/parcelhive/parcelhive-backend/pkg/errors"
	"github.com/parcelhive/parcelhive-backend/pkg/logger"
)

type verifyOTPRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// OTPGenerate issues an unlock code for the caller's current stage of the
// order. The locker prints the matching QR.
func OTPGenerate(svc otp.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "otp service unavailable"))
			return
		}

		actor, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := pathUUID(chi.URLParam(r, "orderID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		code, err := svc.Generate(r.Context(), actor, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]string{"code": code})
	}
}

// OTPVerify burns the live code, opens the cell, and advances the order.
func OTPVerify(svc otp.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "otp service unavailable"))
			return
		}

		actor, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := pathUUID(chi.URLParam(r, "orderID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body verifyOTPRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Verify(r.Context(), actor, orderID, body.Code); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "verified"})
	}
}

func requestActor(r *http.Request) (otp.Actor, error) {
	userID, err := currentUserID(r)
	if err != nil {
		return otp.Actor{}, err
	}
	role, err := currentRole(r)
	if err != nil {
		return otp.Actor{}, err
	}
	return otp.Actor{UserID: userID, Role: role}, nil
}
