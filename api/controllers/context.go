package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/parcelhive/parcelhive-backend/api/middleware"
	"github.com/parcelhive/parcelhive-backend/pkg/enums"
	pkgerrors "github.com/parcelhive/parcelhive-backend/pkg/errors"
)

// currentUserID reads the authenticated user from the request context.
func currentUserID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return id, nil
}

// currentRole reads the authenticated role from the request context.
func currentRole(r *http.Request) (enums.MemberRole, error) {
	role, err := enums.ParseMemberRole(middleware.RoleFromContext(r.Context()))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid role")
	}
	return role, nil
}

// pathUUID parses a chi URL parameter as a UUID.
func pathUUID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid id")
	}
	return id, nil
}
