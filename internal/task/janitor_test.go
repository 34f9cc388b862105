package task

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dorem/testassist-api/internal/domain"
)

// seedTask inserts a task in the given status with the given completion
// time directly into the registry.
func seedTask(
	t *testing.T,
	registry *Registry,
	status domain.TaskStatus,
	completedAt *time.Time,
) domain.Task {
	t.Helper()

	rec := mustNewTask(t, uuid.New(), domain.TaskKindCoverageAnalysis)
	require.NoError(t, registry.Create(rec))

	snap, err := registry.Update(rec.ID, func(rec *domain.Task) error {
		rec.Status = status
		rec.CompletedAt = completedAt
		return nil
	})
	require.NoError(t, err)
	return snap
}

func TestJanitor_Sweep(t *testing.T) {
	t.Parallel()

	registry := NewRegistry(testLogger())
	janitor := NewJanitor(registry, JanitorConfig{
		RetentionWindow: time.Hour,
		SweepInterval:   time.Minute,
	}, testLogger())

	old := time.Now().UTC().Add(-2 * time.Hour)
	recent := time.Now().UTC().Add(-time.Minute)

	expired := seedTask(t, registry, domain.TaskStatusCompleted, &old)
	expiredFailed := seedTask(t, registry, domain.TaskStatusFailed, &old)
	fresh := seedTask(t, registry, domain.TaskStatusCompleted, &recent)
	pending := seedTask(t, registry, domain.TaskStatusPending, nil)
	running := seedTask(t, registry, domain.TaskStatusRunning, nil)

	removed := janitor.Sweep()
	assert.Equal(t, 2, removed)

	_, err := registry.Get(expired.ID)
	assert.ErrorIs(t, err, ErrTaskNotFound)
	_, err = registry.Get(expiredFailed.ID)
	assert.ErrorIs(t, err, ErrTaskNotFound)

	// Within the window: untouched.
	kept, err := registry.Get(fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, kept.Status)

	// Never terminal: untouched regardless of age.
	_, err = registry.Get(pending.ID)
	assert.NoError(t, err)
	_, err = registry.Get(running.ID)
	assert.NoError(t, err)
}

func TestJanitor_ZeroRetentionEvictsOnFirstSweep(t *testing.T) {
	t.Parallel()

	registry := NewRegistry(testLogger())
	janitor := NewJanitor(registry, JanitorConfig{
		RetentionWindow: 0,
		SweepInterval:   time.Minute,
	}, testLogger())

	now := time.Now().UTC()
	done := seedTask(t, registry, domain.TaskStatusCompleted, &now)

	assert.Equal(t, 1, janitor.Sweep())

	_, err := registry.Get(done.ID)
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestJanitor_BackgroundLoop(t *testing.T) {
	t.Parallel()

	registry := NewRegistry(testLogger())
	janitor := NewJanitor(registry, JanitorConfig{
		RetentionWindow: 0,
		SweepInterval:   10 * time.Millisecond,
	}, testLogger())

	now := time.Now().UTC()
	done := seedTask(t, registry, domain.TaskStatusCancelled, &now)

	janitor.Start()
	defer janitor.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := registry.Get(done.ID); err != nil {
			assert.ErrorIs(t, err, ErrTaskNotFound)
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("janitor loop never evicted the terminal task")
}

func TestJanitor_StopTerminatesLoop(t *testing.T) {
	t.Parallel()

	janitor := NewJanitor(NewRegistry(testLogger()), DefaultJanitorConfig(), testLogger())
	janitor.Start()

	stopped := make(chan struct{})
	go func() {
		janitor.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}
