package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/api/middleware"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
)

func requireUser(r *http.Request) (uuid.UUID, error) {
	id, ok := middleware.UserUUIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	return id, nil
}

func actorFromRequest(r *http.Request) (outbox.ActorRef, error) {
	id, err := requireUser(r)
	if err != nil {
		return outbox.ActorRef{}, err
	}
	return outbox.ActorRef{UserID: id, Role: enums.UserRole(middleware.RoleFromContext(r.Context()))}, nil
}

func serviceUnavailable(name string) error {
	return pkgerrors.Newf(pkgerrors.CodeInternal, "%s service unavailable", name)
}
