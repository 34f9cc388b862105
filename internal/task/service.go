package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dorem/testassist-api/internal/domain"
)

// Service is the public contract of the task subsystem. Submit returns
// as soon as the task record exists and is queued; it never runs the
// work inline. GetStatus, List and Cancel apply the owner-or-admin
// access gate before touching anything.
type Service struct {
	registry *Registry
	queue    *Queue
	runner   *Runner
	kinds    *Kinds
	logger   *slog.Logger
}

// NewService creates the task service over its collaborators.
func NewService(registry *Registry, queue *Queue, runner *Runner, kinds *Kinds, logger *slog.Logger) *Service {
	return &Service{
		registry: registry,
		queue:    queue,
		runner:   runner,
		kinds:    kinds,
		logger:   logger,
	}
}

// Submit validates the submission, creates a pending task record and
// queues it for execution, returning a snapshot immediately. The context
// covers only the synchronous registry work, not the eventual execution.
func (s *Service) Submit(
	ctx context.Context,
	ownerID uuid.UUID,
	kind domain.TaskKind,
	projectID *uuid.UUID,
	payload json.RawMessage,
) (domain.Task, error) {
	if _, err := s.kinds.Resolve(kind); err != nil {
		return domain.Task{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	} else if !json.Valid(payload) {
		return domain.Task{}, fmt.Errorf("%w: payload must be valid JSON", domain.ErrValidation)
	}

	t, err := domain.NewTask(ownerID, kind, payload)
	if err != nil {
		return domain.Task{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	t.ProjectID = projectID

	if err := s.registry.Create(t); err != nil {
		return domain.Task{}, fmt.Errorf("failed to create task record: %w", err)
	}

	if err := s.queue.Enqueue(t.ID); err != nil {
		// Don't leave an orphan pending record behind a rejected submit.
		if delErr := s.registry.Delete(t.ID); delErr != nil {
			s.logger.Error("failed to remove rejected task record",
				"task_id", t.ID, "error", delErr)
		}
		return domain.Task{}, fmt.Errorf("failed to enqueue task: %w", err)
	}

	s.logger.Info("task submitted",
		"task_id", t.ID,
		"task_kind", kind,
		"owner_id", ownerID)

	return t.Snapshot(), nil
}

// GetStatus returns a snapshot of the task if the requester may see it.
func (s *Service) GetStatus(ctx context.Context, id uuid.UUID, requester Requester) (domain.Task, error) {
	snap, err := s.registry.Get(id)
	if err != nil {
		return domain.Task{}, err
	}

	if err := Authorize(requester, snap.OwnerID); err != nil {
		return domain.Task{}, err
	}
	return snap, nil
}

// List returns the tasks owned by ownerID, newest first, optionally
// filtered by kind. Non-admin requesters may only list their own tasks.
// An admin passing uuid.Nil as ownerID lists every task in the registry.
func (s *Service) List(
	ctx context.Context,
	ownerID uuid.UUID,
	requester Requester,
	kind *domain.TaskKind,
) ([]domain.Task, error) {
	if requester.IsAdmin && ownerID == uuid.Nil {
		return s.registry.ListAll(kind), nil
	}

	if err := Authorize(requester, ownerID); err != nil {
		return nil, err
	}
	return s.registry.List(ownerID, kind), nil
}

// Cancel requests cancellation of a task. A pending task becomes
// cancelled immediately and its work function never runs. A running task
// only gets its cancel flag set and its context fired; whether it ends
// up cancelled depends on the work function observing the signal before
// finishing. Cancelling an already-terminal task is a no-op that returns
// the existing snapshot.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, requester Requester) (domain.Task, error) {
	current, err := s.registry.Get(id)
	if err != nil {
		return domain.Task{}, err
	}
	if err := Authorize(requester, current.OwnerID); err != nil {
		return domain.Task{}, err
	}

	snap, err := s.registry.Update(id, func(t *domain.Task) error {
		if t.Status.IsTerminal() {
			return nil
		}

		t.CancelRequested = true
		if t.Status == domain.TaskStatusPending {
			return Transition(t, domain.TaskStatusCancelled)
		}
		return nil
	})
	if err != nil {
		return domain.Task{}, err
	}

	if snap.Status == domain.TaskStatusRunning {
		s.runner.Cancel(id)
		s.logger.Info("cancellation requested for running task", "task_id", id)
	}

	return snap, nil
}
