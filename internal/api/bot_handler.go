package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/dorem/testassist-api/internal/api/shared"
	"github.com/dorem/testassist-api/internal/domain"
	"github.com/dorem/testassist-api/internal/task"
)

// BotHandler serves the assistant-facing endpoints. The coverage-test
// operation used to answer inline; it now submits a background task and
// returns the task snapshot for polling.
type BotHandler struct {
	tasks     *task.Service
	validator *validator.Validate
	logger    *slog.Logger
}

// NewBotHandler creates a new BotHandler with the given dependencies.
func NewBotHandler(tasks *task.Service, logger *slog.Logger) *BotHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BotHandler{
		tasks:     tasks,
		validator: validator.New(),
		logger:    logger.With(slog.String("component", "bot_handler")),
	}
}

// CoverageTest handles POST /bot/coverage-test. It queues a coverage
// analysis task over the supplied requirements and traceability matrix
// and answers 202 with the task to poll.
func (h *BotHandler) CoverageTest(w http.ResponseWriter, r *http.Request) {
	requester, ok := getRequester(r)
	if !ok {
		HandleAPIError(w, r, domain.ErrUnauthorized, "")
		return
	}

	var req CoverageTestRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	payload, err := json.Marshal(task.CoverageAnalysisPayload{
		Requirements: req.Requirements,
		RTM:          req.RTM,
	})
	if err != nil {
		h.logger.Error("failed to marshal coverage payload", "error", err)
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Failed to submit coverage test")
		return
	}

	snap, err := h.tasks.Submit(
		r.Context(),
		requester.UserID,
		domain.TaskKindCoverageAnalysis,
		req.ProjectID,
		payload,
	)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, NewTaskResponse(snap))
}
