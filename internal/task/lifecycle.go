package task

import (
	"fmt"
	"time"

	"github.com/dorem/testassist-api/internal/domain"
)

// validTransitions is the task lifecycle state machine:
//
//	pending --(executor starts)--> running
//	pending --(cancel called)----> cancelled
//	running --(normal return)----> completed
//	running --(error)------------> failed
//	running --(cancel observed)--> cancelled
//
// The three terminal states have no outgoing edges.
var validTransitions = map[domain.TaskStatus][]domain.TaskStatus{
	domain.TaskStatusPending: {
		domain.TaskStatusRunning,
		domain.TaskStatusCancelled,
	},
	domain.TaskStatusRunning: {
		domain.TaskStatusCompleted,
		domain.TaskStatusFailed,
		domain.TaskStatusCancelled,
	},
}

// CanTransition reports whether moving from one status to another is a
// legal lifecycle transition.
func CanTransition(from, to domain.TaskStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves the task to the given status and stamps the relevant
// timestamp. Returns ErrInvalidTransition if the state machine forbids
// the move; the task is left unchanged in that case.
func Transition(t *domain.Task, to domain.TaskStatus) error {
	if !CanTransition(t.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, to)
	}

	now := time.Now().UTC()
	switch to {
	case domain.TaskStatusRunning:
		t.StartedAt = &now
	case domain.TaskStatusCompleted, domain.TaskStatusFailed, domain.TaskStatusCancelled:
		t.CompletedAt = &now
	}

	t.Status = to
	return nil
}
