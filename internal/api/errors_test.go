package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dorem/testassist-api/internal/domain"
	"github.com/dorem/testassist-api/internal/service/auth"
	"github.com/dorem/testassist-api/internal/store"
	"github.com/dorem/testassist-api/internal/task"
)

func TestMapErrorToStatusCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid token", auth.ErrInvalidToken, http.StatusUnauthorized},
		{"expired token", auth.ErrExpiredToken, http.StatusUnauthorized},
		{"invalid refresh token", auth.ErrInvalidRefreshToken, http.StatusUnauthorized},
		{"wrong token type", auth.ErrWrongTokenType, http.StatusUnauthorized},
		{"unauthorized", domain.ErrUnauthorized, http.StatusUnauthorized},
		{"denied is forbidden, not missing", task.ErrDenied, http.StatusForbidden},
		{"task not found", task.ErrTaskNotFound, http.StatusNotFound},
		{"user not found", store.ErrUserNotFound, http.StatusNotFound},
		{"email exists", store.ErrEmailExists, http.StatusConflict},
		{"validation", domain.ErrValidation, http.StatusBadRequest},
		{"invalid id", domain.ErrInvalidID, http.StatusBadRequest},
		{"unknown kind", task.ErrUnknownKind, http.StatusBadRequest},
		{"queue full", task.ErrQueueFull, http.StatusServiceUnavailable},
		{"queue closed", task.ErrQueueClosed, http.StatusServiceUnavailable},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.status, MapErrorToStatusCode(tt.err))
		})
	}
}

func TestMapErrorToStatusCode_WrappedErrors(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("failed to enqueue task: %w", task.ErrQueueFull)
	assert.Equal(t, http.StatusServiceUnavailable, MapErrorToStatusCode(wrapped))

	wrapped = fmt.Errorf("%w: payload must be valid JSON", domain.ErrValidation)
	assert.Equal(t, http.StatusBadRequest, MapErrorToStatusCode(wrapped))
}

func TestGetSafeErrorMessage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Task not found", GetSafeErrorMessage(task.ErrTaskNotFound))
	assert.Equal(t, "You do not have access to this task", GetSafeErrorMessage(task.ErrDenied))
	assert.Equal(t, "Service is at capacity, try again later", GetSafeErrorMessage(task.ErrQueueFull))
	assert.Equal(t, "Invalid credentials", GetSafeErrorMessage(auth.ErrInvalidCredentials))
	assert.Equal(t, "An unexpected error occurred", GetSafeErrorMessage(nil))
	assert.Equal(t, "An unexpected error occurred", GetSafeErrorMessage(errors.New("pq: secret detail")))
}

func TestGetSafeErrorMessage_ValidationFieldSurfaces(t *testing.T) {
	t.Parallel()

	err := domain.NewValidationError("kind", "is not a known task kind", domain.ErrValidation)
	msg := GetSafeErrorMessage(err)
	assert.Contains(t, msg, "kind")
	assert.Contains(t, msg, "Invalid request")
}

func TestSanitizeValidationError(t *testing.T) {
	t.Parallel()

	raw := errors.New(
		"Key: 'LoginRequest.Email' Error:Field validation for 'Email' failed on the 'required' tag")
	assert.Equal(t, "Invalid Email: required field", SanitizeValidationError(raw))

	assert.Equal(t, "Validation error", SanitizeValidationError(errors.New("something else")))
}
