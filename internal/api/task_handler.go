package api

import (
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/dorem/testassist-api/internal/api/shared"
	"github.com/dorem/testassist-api/internal/domain"
	"github.com/dorem/testassist-api/internal/task"
)

// TaskHandler exposes the background task subsystem over HTTP: submitting
// work, polling status, listing, and requesting cancellation.
type TaskHandler struct {
	tasks     *task.Service
	validator *validator.Validate
	logger    *slog.Logger
}

// NewTaskHandler creates a new TaskHandler with the given dependencies.
func NewTaskHandler(tasks *task.Service, logger *slog.Logger) *TaskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskHandler{
		tasks:     tasks,
		validator: validator.New(),
		logger:    logger.With(slog.String("component", "task_handler")),
	}
}

// Submit handles POST /tasks. The task is queued, never run inline, so a
// successful submission answers 202 with the pending snapshot.
func (h *TaskHandler) Submit(w http.ResponseWriter, r *http.Request) {
	requester, ok := getRequester(r)
	if !ok {
		HandleAPIError(w, r, domain.ErrUnauthorized, "")
		return
	}

	var req SubmitTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	snap, err := h.tasks.Submit(
		r.Context(),
		requester.UserID,
		domain.TaskKind(req.Kind),
		req.ProjectID,
		req.Payload,
	)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, NewTaskResponse(snap))
}

// Get handles GET /tasks/{id}.
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	requester, ok := getRequester(r)
	if !ok {
		HandleAPIError(w, r, domain.ErrUnauthorized, "")
		return
	}

	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	snap, err := h.tasks.GetStatus(r.Context(), id, requester)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, NewTaskResponse(snap))
}

// List handles GET /tasks. Regular users see their own tasks; admins may
// pass owner_id to inspect another user's tasks, or omit it to list all.
// An optional kind query parameter filters by task kind.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	requester, ok := getRequester(r)
	if !ok {
		HandleAPIError(w, r, domain.ErrUnauthorized, "")
		return
	}

	ownerID := requester.UserID
	if requester.IsAdmin {
		switch raw := r.URL.Query().Get("owner_id"); raw {
		case "":
			ownerID = uuid.Nil // all owners
		default:
			parsed, err := uuid.Parse(raw)
			if err != nil {
				HandleAPIError(w, r,
					domain.NewValidationError("owner_id", "has invalid format", domain.ErrInvalidID), "")
				return
			}
			ownerID = parsed
		}
	}

	var kind *domain.TaskKind
	if raw := r.URL.Query().Get("kind"); raw != "" {
		k := domain.TaskKind(raw)
		if !domain.IsValidTaskKind(k) {
			HandleAPIError(w, r,
				domain.NewValidationError("kind", "is not a known task kind", domain.ErrValidation), "")
			return
		}
		kind = &k
	}

	tasks, err := h.tasks.List(r.Context(), ownerID, requester, kind)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, NewTaskListResponse(tasks))
}

// Cancel handles POST /tasks/{id}/cancel. Cancellation is cooperative:
// the response carries the snapshot taken after the request was recorded,
// which for a running task is usually still "running".
func (h *TaskHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	requester, ok := getRequester(r)
	if !ok {
		HandleAPIError(w, r, domain.ErrUnauthorized, "")
		return
	}

	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	snap, err := h.tasks.Cancel(r.Context(), id, requester)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, NewTaskResponse(snap))
}
