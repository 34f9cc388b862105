package task

import "errors"

// Common errors returned by the task subsystem.
var (
	// ErrTaskNotFound is returned when the requested task does not exist,
	// either because it never did or because the janitor evicted it.
	ErrTaskNotFound = errors.New("task not found")

	// ErrDenied is returned when the requester is neither the task owner
	// nor an admin. Deliberately distinct from ErrTaskNotFound.
	ErrDenied = errors.New("not authorized to access this task")

	// ErrQueueFull is returned by Submit when the bounded submission
	// queue is saturated. The caller may retry later.
	ErrQueueFull = errors.New("task queue is full")

	// ErrQueueClosed is returned when submitting after shutdown began.
	ErrQueueClosed = errors.New("task queue is closed")

	// ErrUnknownKind is returned when no work function is registered for
	// the submitted task kind.
	ErrUnknownKind = errors.New("unknown task kind")

	// ErrKindRegistered is returned when registering a work function for
	// a kind that already has one.
	ErrKindRegistered = errors.New("task kind already registered")

	// ErrInvalidTransition is returned when a status change would violate
	// the task lifecycle state machine.
	ErrInvalidTransition = errors.New("invalid task status transition")
)
