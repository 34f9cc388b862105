package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/dorem/testassist-api/internal/domain"
)

// Common request/response structures

// RegisterRequest defines the payload for the user registration endpoint.
type RegisterRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=12,max=72"`
}

// LoginRequest defines the payload for the user login endpoint.
type LoginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=1"`
}

// AuthResponse defines the successful response for authentication endpoints.
type AuthResponse struct {
	// UserID is the unique identifier for the authenticated user
	UserID uuid.UUID `json:"user_id"`

	// AccessToken is the JWT token used for API authorization
	AccessToken string `json:"token"`

	// RefreshToken is the JWT token used to obtain new access tokens
	RefreshToken string `json:"refresh_token,omitempty"`
}

// RefreshTokenRequest defines the payload for the token refresh endpoint.
type RefreshTokenRequest struct {
	// RefreshToken is the JWT refresh token used to obtain a new token pair
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// RefreshTokenResponse defines the successful response for the token
// refresh endpoint.
type RefreshTokenResponse struct {
	// AccessToken is the new JWT token used for API authorization
	AccessToken string `json:"access_token"`

	// RefreshToken is the new JWT token used to obtain future access tokens
	RefreshToken string `json:"refresh_token"`
}

// SubmitTaskRequest defines the payload for the task submission endpoint.
type SubmitTaskRequest struct {
	// Kind selects which registered operation the task runs
	Kind string `json:"kind" validate:"required"`

	// ProjectID optionally scopes the task to a project
	ProjectID *uuid.UUID `json:"project_id,omitempty"`

	// Payload is the opaque input handed to the work function
	Payload json.RawMessage `json:"payload,omitempty"`
}

// TaskResponse is the JSON shape of a task returned by the API.
type TaskResponse struct {
	ID              uuid.UUID            `json:"id"`
	OwnerID         uuid.UUID            `json:"owner_id"`
	ProjectID       *uuid.UUID           `json:"project_id,omitempty"`
	Kind            string               `json:"kind"`
	Status          string               `json:"status"`
	CreatedAt       time.Time            `json:"created_at"`
	StartedAt       *time.Time           `json:"started_at,omitempty"`
	CompletedAt     *time.Time           `json:"completed_at,omitempty"`
	Progress        *domain.TaskProgress `json:"progress,omitempty"`
	Result          json.RawMessage      `json:"result,omitempty"`
	Error           string               `json:"error,omitempty"`
	CancelRequested bool                 `json:"cancel_requested"`
}

// TaskListResponse wraps the task collection returned by the list endpoint.
type TaskListResponse struct {
	Tasks []TaskResponse `json:"tasks"`
	Count int            `json:"count"`
}

// CoverageTestRequest defines the payload for the bot coverage-test
// endpoint. Requirements and RTM documents are compared asynchronously.
type CoverageTestRequest struct {
	ProjectID    *uuid.UUID `json:"project_id,omitempty"`
	Requirements string     `json:"requirements" validate:"required"`
	RTM          string     `json:"rtm"          validate:"required"`
}

// NewTaskResponse converts a domain task snapshot to its API shape.
func NewTaskResponse(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:              t.ID,
		OwnerID:         t.OwnerID,
		ProjectID:       t.ProjectID,
		Kind:            string(t.Kind),
		Status:          string(t.Status),
		CreatedAt:       t.CreatedAt,
		StartedAt:       t.StartedAt,
		CompletedAt:     t.CompletedAt,
		Progress:        t.Progress,
		Result:          t.Result,
		Error:           t.Error,
		CancelRequested: t.CancelRequested,
	}
}

// NewTaskListResponse converts a slice of domain task snapshots.
func NewTaskListResponse(tasks []domain.Task) TaskListResponse {
	out := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, NewTaskResponse(t))
	}
	return TaskListResponse{Tasks: out, Count: len(out)}
}
