package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dorem/testassist-api/internal/config"
	"github.com/dorem/testassist-api/internal/service/auth"
)

func newJWTService(t *testing.T) auth.JWTService {
	t.Helper()
	svc, err := auth.NewJWTService(config.AuthConfig{
		JWTSecret:              "test-secret-key-thats-at-least-32-characters",
		TokenLifetimeMinutes:   60,
		RefreshLifetimeMinutes: 10080,
	})
	require.NoError(t, err)
	return svc
}

func TestAuthenticate(t *testing.T) {
	jwtService := newJWTService(t)
	middleware := NewAuthMiddleware(jwtService)

	var gotUserID uuid.UUID
	var gotAdmin bool
	var called bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		gotUserID, _ = GetUserID(r)
		gotAdmin = IsAdmin(r)
		w.WriteHeader(http.StatusOK)
	})

	handler := middleware.Authenticate(next)

	t.Run("valid token passes through with identity", func(t *testing.T) {
		called = false
		userID := uuid.New()
		token, err := jwtService.GenerateToken(context.Background(), userID, true)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, called)
		assert.Equal(t, userID, gotUserID)
		assert.True(t, gotAdmin)
	})

	t.Run("missing header", func(t *testing.T) {
		called = false
		req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, called)
	})

	t.Run("malformed header", func(t *testing.T) {
		called = false
		req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
		req.Header.Set("Authorization", "Token abc")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, called)
	})

	t.Run("invalid token", func(t *testing.T) {
		called = false
		req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
		req.Header.Set("Authorization", "Bearer not.a.token")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, called)
	})

	t.Run("refresh token rejected on api routes", func(t *testing.T) {
		called = false
		refresh, err := jwtService.GenerateRefreshToken(context.Background(), uuid.New(), false)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
		req.Header.Set("Authorization", "Bearer "+refresh)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, called)
	})
}
