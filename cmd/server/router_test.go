package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dorem/testassist-api/internal/config"
	"github.com/dorem/testassist-api/internal/domain"
	"github.com/dorem/testassist-api/internal/service/auth"
	"github.com/dorem/testassist-api/internal/store"
	"github.com/dorem/testassist-api/internal/task"
)

// stubUserStore keeps users in memory so routing can be exercised
// without a database.
type stubUserStore struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newStubUserStore() *stubUserStore {
	return &stubUserStore{users: make(map[string]*domain.User)}
}

func (s *stubUserStore) Create(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.Email]; exists {
		return store.ErrEmailExists
	}
	if user.Password != "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.MinCost)
		if err != nil {
			return err
		}
		user.HashedPassword = string(hashed)
		user.Password = ""
	}
	copied := *user
	s.users[user.Email] = &copied
	return nil
}

func (s *stubUserStore) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == id {
			copied := *u
			return &copied, nil
		}
	}
	return nil, store.ErrUserNotFound
}

func (s *stubUserStore) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[email]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *stubUserStore) WithTx(_ *sql.Tx) store.UserStore { return s }

// newTestApplication wires an application around in-memory components.
// The task runner is started and stopped with the test.
func newTestApplication(t *testing.T) *application {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	jwtService, err := auth.NewJWTService(config.AuthConfig{
		JWTSecret:              "test-secret-key-thats-at-least-32-characters",
		TokenLifetimeMinutes:   60,
		RefreshLifetimeMinutes: 10080,
	})
	require.NoError(t, err)

	registry := task.NewRegistry(log)
	queue := task.NewQueue(16, log)
	kinds := task.NewKinds()
	require.NoError(t, kinds.Register(domain.TaskKindFileProcessing, task.NewFileProcessingWorkFunc(log)))

	runner := task.NewRunner(registry, queue, kinds, task.RunnerConfig{WorkerCount: 1, QueueSize: 16}, log)
	runner.Start()
	t.Cleanup(runner.Stop)

	janitor := task.NewJanitor(registry, task.DefaultJanitorConfig(), log)

	return &application{
		config:           &config.Config{},
		logger:           log,
		userStore:        newStubUserStore(),
		jwtService:       jwtService,
		passwordVerifier: auth.NewBcryptVerifier(),
		taskService:      task.NewService(registry, queue, runner, kinds, log),
		runner:           runner,
		janitor:          janitor,
	}
}

func TestRouter_Health(t *testing.T) {
	app := newTestApplication(t)
	router := app.setupRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestRouter_TaskRoutesRequireAuth(t *testing.T) {
	app := newTestApplication(t)
	router := app.setupRouter()

	for _, tc := range []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/tasks"},
		{http.MethodGet, "/api/tasks"},
		{http.MethodGet, "/api/tasks/" + uuid.NewString()},
		{http.MethodPost, "/api/tasks/" + uuid.NewString() + "/cancel"},
		{http.MethodPost, "/api/bot/coverage-test"},
	} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", tc.method, tc.path)
	}
}

func TestRouter_RegisterLoginSubmitRoundTrip(t *testing.T) {
	app := newTestApplication(t)
	router := app.setupRouter()

	// Register
	body, err := json.Marshal(map[string]string{
		"email":    "alice@example.com",
		"password": "a-long-enough-password",
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var authResp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&authResp))
	require.NotEmpty(t, authResp.Token)

	// Submit a task with the issued token
	submit, err := json.Marshal(map[string]any{
		"kind":    string(domain.TaskKindFileProcessing),
		"payload": map[string]string{"file_name": "spec.md", "content": "hello\n"},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/tasks", bytes.NewReader(submit))
	req.Header.Set("Authorization", "Bearer "+authResp.Token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var taskResp struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&taskResp))

	// The task is visible to its owner
	req = httptest.NewRequest(http.MethodGet, "/api/tasks/"+taskResp.ID, nil)
	req.Header.Set("Authorization", "Bearer "+authResp.Token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
