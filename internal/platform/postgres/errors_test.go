package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/dorem/testassist-api/internal/store"
)

func pgError(code string) *pgconn.PgError {
	return &pgconn.PgError{Code: code, ConstraintName: "users_email_key"}
}

func TestMapError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"nil passes through", nil, nil},
		{"no rows maps to not found", sql.ErrNoRows, store.ErrNotFound},
		{"unique violation maps to duplicate", pgError(uniqueViolationCode), store.ErrDuplicate},
		{"foreign key maps to invalid entity", pgError(foreignKeyViolationCode), store.ErrInvalidEntity},
		{"check constraint maps to invalid entity", pgError(checkViolationCode), store.ErrInvalidEntity},
		{"not null maps to invalid entity", pgError(notNullViolationCode), store.ErrInvalidEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			mapped := MapError(tt.err)
			if tt.target == nil {
				assert.NoError(t, mapped)
				return
			}
			assert.ErrorIs(t, mapped, tt.target)
		})
	}
}

func TestMapError_UnknownErrorPassesThrough(t *testing.T) {
	t.Parallel()

	unknown := errors.New("connection reset")
	assert.Equal(t, unknown, MapError(unknown))
}

func TestViolationPredicates(t *testing.T) {
	t.Parallel()

	unique := fmt.Errorf("insert failed: %w", pgError(uniqueViolationCode))
	fk := fmt.Errorf("insert failed: %w", pgError(foreignKeyViolationCode))

	assert.True(t, IsUniqueViolation(unique))
	assert.False(t, IsUniqueViolation(fk))
	assert.True(t, IsForeignKeyViolation(fk))
	assert.False(t, IsForeignKeyViolation(unique))
	assert.False(t, IsUniqueViolation(errors.New("plain")))
}

func TestIsNotFoundError(t *testing.T) {
	t.Parallel()

	assert.True(t, IsNotFoundError(sql.ErrNoRows))
	assert.True(t, IsNotFoundError(store.ErrUserNotFound))
	assert.True(t, IsNotFoundError(MapError(sql.ErrNoRows)))
	assert.False(t, IsNotFoundError(errors.New("other")))
}
