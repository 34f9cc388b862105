package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dorem/testassist-api/internal/api/shared"
	"github.com/dorem/testassist-api/internal/domain"
	"github.com/dorem/testassist-api/internal/task"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testTaskStack wires a task service whose runner is never started, so
// submitted tasks stay pending and handler behavior is deterministic.
type testTaskStack struct {
	service  *task.Service
	registry *task.Registry
}

func newTestTaskStack(t *testing.T, queueSize int) *testTaskStack {
	t.Helper()

	log := testLogger()
	registry := task.NewRegistry(log)
	queue := task.NewQueue(queueSize, log)
	kinds := task.NewKinds()

	noop := func(ctx context.Context, payload json.RawMessage, report task.ProgressFunc) (json.RawMessage, error) {
		return json.RawMessage(`{}`), nil
	}
	for _, kind := range []domain.TaskKind{
		domain.TaskKindFileProcessing,
		domain.TaskKindCoverageAnalysis,
	} {
		require.NoError(t, kinds.Register(kind, noop))
	}

	runner := task.NewRunner(registry, queue, kinds, task.RunnerConfig{WorkerCount: 1, QueueSize: queueSize}, log)
	service := task.NewService(registry, queue, runner, kinds, log)

	return &testTaskStack{service: service, registry: registry}
}

func newTaskRouter(h *TaskHandler) http.Handler {
	r := chi.NewRouter()
	r.Post("/tasks", h.Submit)
	r.Get("/tasks", h.List)
	r.Get("/tasks/{id}", h.Get)
	r.Post("/tasks/{id}/cancel", h.Cancel)
	return r
}

// authedRequest builds a request carrying the context values the auth
// middleware would normally set.
func authedRequest(method, target string, body []byte, userID uuid.UUID, isAdmin bool) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	ctx := context.WithValue(req.Context(), shared.UserIDContextKey, userID)
	ctx = context.WithValue(ctx, shared.IsAdminContextKey, isAdmin)
	return req.WithContext(ctx)
}

func decodeTask(t *testing.T, body *bytes.Buffer) TaskResponse {
	t.Helper()
	var resp TaskResponse
	require.NoError(t, json.NewDecoder(body).Decode(&resp))
	return resp
}

func TestTaskHandler_Submit(t *testing.T) {
	stack := newTestTaskStack(t, 10)
	router := newTaskRouter(NewTaskHandler(stack.service, testLogger()))
	userID := uuid.New()

	body, err := json.Marshal(SubmitTaskRequest{
		Kind:    string(domain.TaskKindFileProcessing),
		Payload: json.RawMessage(`{"file_name":"spec.md","content":"hello"}`),
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/tasks", body, userID, false))

	require.Equal(t, http.StatusAccepted, rec.Code)
	resp := decodeTask(t, rec.Body)
	assert.Equal(t, string(domain.TaskStatusPending), resp.Status)
	assert.Equal(t, userID, resp.OwnerID)
	assert.NotEqual(t, uuid.Nil, resp.ID)
}

func TestTaskHandler_Submit_UnknownKind(t *testing.T) {
	stack := newTestTaskStack(t, 10)
	router := newTaskRouter(NewTaskHandler(stack.service, testLogger()))

	body, err := json.Marshal(SubmitTaskRequest{Kind: "mine_bitcoin"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/tasks", body, uuid.New(), false))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTaskHandler_Submit_QueueFull(t *testing.T) {
	stack := newTestTaskStack(t, 1)
	router := newTaskRouter(NewTaskHandler(stack.service, testLogger()))
	userID := uuid.New()

	body, err := json.Marshal(SubmitTaskRequest{Kind: string(domain.TaskKindFileProcessing)})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/tasks", body, userID, false))
	require.Equal(t, http.StatusAccepted, rec.Code)

	// Queue capacity is 1 and the runner is not consuming.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/tasks", body, userID, false))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestTaskHandler_Submit_Unauthenticated(t *testing.T) {
	stack := newTestTaskStack(t, 10)
	router := newTaskRouter(NewTaskHandler(stack.service, testLogger()))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/tasks", bytes.NewReader([]byte(`{}`)))
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTaskHandler_Get(t *testing.T) {
	stack := newTestTaskStack(t, 10)
	router := newTaskRouter(NewTaskHandler(stack.service, testLogger()))
	owner := uuid.New()

	snap, err := stack.service.Submit(context.Background(), owner,
		domain.TaskKindFileProcessing, nil, nil)
	require.NoError(t, err)

	t.Run("owner sees own task", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(http.MethodGet, "/tasks/"+snap.ID.String(), nil, owner, false))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, snap.ID, decodeTask(t, rec.Body).ID)
	})

	t.Run("stranger gets forbidden", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(http.MethodGet, "/tasks/"+snap.ID.String(), nil, uuid.New(), false))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("admin sees any task", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(http.MethodGet, "/tasks/"+snap.ID.String(), nil, uuid.New(), true))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing task is 404", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(http.MethodGet, "/tasks/"+uuid.NewString(), nil, owner, false))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed id is 400", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(http.MethodGet, "/tasks/not-a-uuid", nil, owner, false))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestTaskHandler_List(t *testing.T) {
	stack := newTestTaskStack(t, 10)
	router := newTaskRouter(NewTaskHandler(stack.service, testLogger()))

	alice := uuid.New()
	bob := uuid.New()

	for _, owner := range []uuid.UUID{alice, alice, bob} {
		_, err := stack.service.Submit(context.Background(), owner,
			domain.TaskKindFileProcessing, nil, nil)
		require.NoError(t, err)
	}
	_, err := stack.service.Submit(context.Background(), alice,
		domain.TaskKindCoverageAnalysis, nil, nil)
	require.NoError(t, err)

	decodeList := func(t *testing.T, rec *httptest.ResponseRecorder) TaskListResponse {
		t.Helper()
		var resp TaskListResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		return resp
	}

	t.Run("user sees only own tasks", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(http.MethodGet, "/tasks", nil, alice, false))
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decodeList(t, rec)
		assert.Equal(t, 3, resp.Count)
		for _, item := range resp.Tasks {
			assert.Equal(t, alice, item.OwnerID)
		}
	})

	t.Run("kind filter", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(http.MethodGet, "/tasks?kind=coverage_analysis", nil, alice, false))
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decodeList(t, rec)
		require.Equal(t, 1, resp.Count)
		assert.Equal(t, string(domain.TaskKindCoverageAnalysis), resp.Tasks[0].Kind)
	})

	t.Run("invalid kind filter is 400", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(http.MethodGet, "/tasks?kind=nope", nil, alice, false))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("admin sees all tasks", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(http.MethodGet, "/tasks", nil, uuid.New(), true))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 4, decodeList(t, rec).Count)
	})

	t.Run("admin filters by owner", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(http.MethodGet, "/tasks?owner_id="+bob.String(), nil, uuid.New(), true))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, decodeList(t, rec).Count)
	})
}

func TestTaskHandler_Cancel(t *testing.T) {
	stack := newTestTaskStack(t, 10)
	router := newTaskRouter(NewTaskHandler(stack.service, testLogger()))
	owner := uuid.New()

	snap, err := stack.service.Submit(context.Background(), owner,
		domain.TaskKindFileProcessing, nil, nil)
	require.NoError(t, err)

	t.Run("stranger cannot cancel", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(http.MethodPost, "/tasks/"+snap.ID.String()+"/cancel", nil, uuid.New(), false))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("owner cancels pending task", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(http.MethodPost, "/tasks/"+snap.ID.String()+"/cancel", nil, owner, false))
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decodeTask(t, rec.Body)
		assert.Equal(t, string(domain.TaskStatusCancelled), resp.Status)
		assert.True(t, resp.CancelRequested)
	})

	t.Run("cancel is idempotent on terminal task", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(http.MethodPost, "/tasks/"+snap.ID.String()+"/cancel", nil, owner, false))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, string(domain.TaskStatusCancelled), decodeTask(t, rec.Body).Status)
	})
}

func TestBotHandler_CoverageTest(t *testing.T) {
	stack := newTestTaskStack(t, 10)
	h := NewBotHandler(stack.service, testLogger())
	r := chi.NewRouter()
	r.Post("/bot/coverage-test", h.CoverageTest)

	userID := uuid.New()
	body, err := json.Marshal(CoverageTestRequest{
		Requirements: "REQ-1 the system shall parse uploads",
		RTM:          "| REQ-1 | TC-1 |",
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authedRequest(http.MethodPost, "/bot/coverage-test", body, userID, false))

	require.Equal(t, http.StatusAccepted, rec.Code)
	resp := decodeTask(t, rec.Body)
	assert.Equal(t, string(domain.TaskKindCoverageAnalysis), resp.Kind)
	assert.Equal(t, string(domain.TaskStatusPending), resp.Status)

	// The queued task carries the documents in its payload.
	stored, err := stack.registry.Get(resp.ID)
	require.NoError(t, err)
	var payload task.CoverageAnalysisPayload
	require.NoError(t, json.Unmarshal(stored.Payload, &payload))
	assert.Equal(t, "| REQ-1 | TC-1 |", payload.RTM)
}

func TestBotHandler_CoverageTest_MissingFields(t *testing.T) {
	stack := newTestTaskStack(t, 10)
	h := NewBotHandler(stack.service, testLogger())
	r := chi.NewRouter()
	r.Post("/bot/coverage-test", h.CoverageTest)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authedRequest(http.MethodPost, "/bot/coverage-test",
		[]byte(`{"requirements":"REQ-1"}`), uuid.New(), false))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
