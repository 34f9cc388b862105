package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dorem/testassist-api/internal/api/shared"
	"github.com/dorem/testassist-api/internal/domain"
	"github.com/dorem/testassist-api/internal/task"
)

// getUserIDFromContext extracts the authenticated user's UUID from the
// request context. The user ID is placed there by the auth middleware.
func getUserIDFromContext(r *http.Request) (uuid.UUID, bool) {
	userID, ok := r.Context().Value(shared.UserIDContextKey).(uuid.UUID)
	if !ok || userID == uuid.Nil {
		return uuid.Nil, false
	}
	return userID, true
}

// getRequester builds the access-gate requester from the authenticated
// request context. Returns false if the request is not authenticated.
func getRequester(r *http.Request) (task.Requester, bool) {
	userID, ok := getUserIDFromContext(r)
	if !ok {
		return task.Requester{}, false
	}

	isAdmin, _ := r.Context().Value(shared.IsAdminContextKey).(bool)
	return task.Requester{UserID: userID, IsAdmin: isAdmin}, true
}

// getPathUUID extracts a UUID from the URL path parameters.
// It parses and validates the UUID, handling common error cases.
func getPathUUID(r *http.Request, paramName string) (uuid.UUID, error) {
	pathParam := chi.URLParam(r, paramName)
	if pathParam == "" {
		return uuid.Nil, domain.NewValidationError(paramName, "is required", domain.ErrValidation)
	}

	id, err := uuid.Parse(pathParam)
	if err != nil {
		return uuid.Nil, domain.NewValidationError(paramName, "has invalid format", domain.ErrInvalidID)
	}

	return id, nil
}
