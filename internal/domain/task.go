package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of a background task.
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// IsTerminal reports whether the status is one of the three final states.
// A task in a terminal state never transitions again.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// TaskKind identifies which long-running operation a task runs.
// The set is closed: adding a kind means adding a constant here and
// registering a work function for it at startup.
type TaskKind string

// Known task kinds
const (
	TaskKindGenerateTestCases    TaskKind = "generate_test_cases"
	TaskKindCoverageAnalysis     TaskKind = "coverage_analysis"
	TaskKindGenerateRTM          TaskKind = "generate_rtm"
	TaskKindGenerateRequirements TaskKind = "generate_requirements"
	TaskKindFileProcessing       TaskKind = "file_processing"
)

// Common validation errors for Task
var (
	ErrEmptyTaskID      = errors.New("task ID cannot be empty")
	ErrEmptyTaskOwnerID = errors.New("task owner ID cannot be empty")
	ErrEmptyTaskKind    = errors.New("task kind cannot be empty")
	ErrInvalidTaskKind  = errors.New("invalid task kind")
	ErrInvalidTaskState = errors.New("invalid task state")
)

// TaskProgress carries structured progress information reported by a
// running work function.
type TaskProgress struct {
	CurrentStep string `json:"current_step"`
	TotalSteps  int    `json:"total_steps"`
	Percentage  int    `json:"percentage"`
}

// Task represents a unit of trackable long-running work: who submitted it,
// what operation it runs, where it is in its lifecycle, and its outcome.
// Tasks live only in process memory; they are not persisted across restarts.
type Task struct {
	ID        uuid.UUID  `json:"id"`
	OwnerID   uuid.UUID  `json:"owner_id"`
	ProjectID *uuid.UUID `json:"project_id,omitempty"`
	Kind      TaskKind   `json:"kind"`
	Status    TaskStatus `json:"status"`

	// Payload is the opaque input handed to the work function.
	Payload json.RawMessage `json:"-"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Progress is set only while the task is running.
	Progress *TaskProgress `json:"progress,omitempty"`

	// Result is set iff Status == TaskStatusCompleted.
	Result json.RawMessage `json:"result,omitempty"`

	// Error holds a short summary, set iff Status == TaskStatusFailed.
	Error string `json:"error,omitempty"`

	// CancelRequested is set once by a cancel call and never unset.
	// It is a request, not a guarantee: a running task only becomes
	// cancelled if its work function observes the signal in time.
	CancelRequested bool `json:"cancel_requested"`
}

// NewTask creates a new pending Task owned by the given user.
// Returns an error if validation fails.
func NewTask(ownerID uuid.UUID, kind TaskKind, payload json.RawMessage) (*Task, error) {
	task := &Task{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Kind:      kind,
		Status:    TaskStatusPending,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the Task has valid data.
// Returns an error if any field fails validation.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}

	if t.OwnerID == uuid.Nil {
		return ErrEmptyTaskOwnerID
	}

	if t.Kind == "" {
		return ErrEmptyTaskKind
	}

	if !IsValidTaskKind(t.Kind) {
		return ErrInvalidTaskKind
	}

	if !isValidTaskStatus(t.Status) {
		return ErrInvalidTaskState
	}

	// Result and Error are mutually exclusive and tied to terminal states.
	if t.Result != nil && t.Status != TaskStatusCompleted {
		return ErrInvalidTaskState
	}
	if t.Error != "" && t.Status != TaskStatusFailed {
		return ErrInvalidTaskState
	}

	return nil
}

// Snapshot returns a copy of the task safe to hand to callers while the
// original keeps being mutated by the executor. Payload and Result are
// treated as immutable once set, so the byte slices are shared.
func (t *Task) Snapshot() Task {
	snap := *t
	if t.Progress != nil {
		progress := *t.Progress
		snap.Progress = &progress
	}
	if t.ProjectID != nil {
		projectID := *t.ProjectID
		snap.ProjectID = &projectID
	}
	return snap
}

// IsValidTaskKind checks if the given kind is one of the known task kinds.
func IsValidTaskKind(kind TaskKind) bool {
	switch kind {
	case TaskKindGenerateTestCases, TaskKindCoverageAnalysis,
		TaskKindGenerateRTM, TaskKindGenerateRequirements,
		TaskKindFileProcessing:
		return true
	default:
		return false
	}
}

// isValidTaskStatus checks if the given status is a valid TaskStatus.
func isValidTaskStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusPending, TaskStatusRunning, TaskStatusCompleted,
		TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}
