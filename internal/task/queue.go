package task

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Queue is the bounded FIFO buffer between Submit and the worker pool.
// Enqueue never blocks: when the buffer is saturated it rejects with
// ErrQueueFull, keeping the submitting request thread free.
type Queue struct {
	ids    chan uuid.UUID
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewQueue creates a new submission queue with the specified buffer size.
func NewQueue(size int, logger *slog.Logger) *Queue {
	return &Queue{
		ids:    make(chan uuid.UUID, size),
		logger: logger,
	}
}

// Enqueue adds a task ID to the queue for processing.
// Returns an error if the queue is full or closed.
func (q *Queue) Enqueue(id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.ids <- id:
		q.logger.Debug("task enqueued",
			"task_id", id,
			"queue_len", len(q.ids),
			"queue_cap", cap(q.ids))
		return nil
	default:
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, cap(q.ids))
	}
}

// Close closes the queue, preventing further submission. Workers drain
// whatever is already buffered.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.ids)
		q.logger.Info("task queue closed")
	}
}

// Channel returns a read-only channel for consuming queued task IDs.
func (q *Queue) Channel() <-chan uuid.UUID {
	return q.ids
}
