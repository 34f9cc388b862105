package task

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/dorem/testassist-api/internal/domain"
)

// Registry is the authoritative in-memory store of task records.
// All access goes through short critical sections on a single RWMutex;
// no lock is ever held across a blocking call. Callers only ever receive
// snapshots, never pointers into the map.
type Registry struct {
	mu     sync.RWMutex
	tasks  map[uuid.UUID]*domain.Task
	logger *slog.Logger
}

// NewRegistry creates an empty task registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		tasks:  make(map[uuid.UUID]*domain.Task),
		logger: logger,
	}
}

// Create inserts a new task record. The task must already be validated.
func (r *Registry) Create(t *domain.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tasks[t.ID]; exists {
		return fmt.Errorf("task %s already exists", t.ID)
	}

	stored := t.Snapshot()
	r.tasks[t.ID] = &stored

	r.logger.Debug("task created",
		"task_id", t.ID,
		"task_kind", t.Kind,
		"owner_id", t.OwnerID)
	return nil
}

// Get returns a snapshot of the task with the given ID.
func (r *Registry) Get(id uuid.UUID) (domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[id]
	if !ok {
		return domain.Task{}, ErrTaskNotFound
	}
	return t.Snapshot(), nil
}

// List returns snapshots of all tasks owned by the given user, newest
// first, optionally filtered by kind.
func (r *Registry) List(ownerID uuid.UUID, kind *domain.TaskKind) []domain.Task {
	return r.collect(func(t *domain.Task) bool {
		if t.OwnerID != ownerID {
			return false
		}
		return kind == nil || t.Kind == *kind
	})
}

// ListAll returns snapshots of every task regardless of owner, newest
// first, optionally filtered by kind. Intended for admin callers only;
// the access policy lives in the service layer.
func (r *Registry) ListAll(kind *domain.TaskKind) []domain.Task {
	return r.collect(func(t *domain.Task) bool {
		return kind == nil || t.Kind == *kind
	})
}

func (r *Registry) collect(match func(*domain.Task) bool) []domain.Task {
	r.mu.RLock()
	out := make([]domain.Task, 0)
	for _, t := range r.tasks {
		if match(t) {
			out = append(out, t.Snapshot())
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Update applies the mutator to the stored task under the registry lock
// and returns a snapshot of the result. If the mutator returns an error
// the record is left untouched and the error is returned unchanged.
// The mutator must not block.
func (r *Registry) Update(id uuid.UUID, mutate func(*domain.Task) error) (domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return domain.Task{}, ErrTaskNotFound
	}

	// Mutate a copy so a failed mutator cannot half-update the record.
	scratch := t.Snapshot()
	if err := mutate(&scratch); err != nil {
		return domain.Task{}, err
	}

	r.tasks[id] = &scratch
	return scratch.Snapshot(), nil
}

// Delete removes the task with the given ID. Deleting an unknown ID
// returns ErrTaskNotFound.
func (r *Registry) Delete(id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[id]; !ok {
		return ErrTaskNotFound
	}
	delete(r.tasks, id)
	return nil
}

// Sweep deletes every task matching the predicate and returns how many
// were removed. The predicate sees a snapshot and must not block.
func (r *Registry) Sweep(match func(domain.Task) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, t := range r.tasks {
		if match(t.Snapshot()) {
			delete(r.tasks, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored task records.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}
