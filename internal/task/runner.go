package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/dorem/testassist-api/internal/domain"
)

// errNotClaimable signals that a dequeued task is no longer runnable,
// typically because it was cancelled while still pending.
var errNotClaimable = errors.New("task not claimable")

// maxErrorSummaryLen caps the error text stored on a failed task.
// Callers get a short, stable summary, never a dump.
const maxErrorSummaryLen = 500

// RunnerConfig holds configuration for the task runner.
type RunnerConfig struct {
	// WorkerCount determines how many concurrent workers process tasks.
	WorkerCount int

	// QueueSize determines the buffer size of the submission queue.
	QueueSize int
}

// DefaultRunnerConfig returns a RunnerConfig with reasonable defaults.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		WorkerCount: 2,
		QueueSize:   100,
	}
}

// Runner executes submitted tasks on a fixed pool of worker goroutines.
// It owns all status mutation of in-flight tasks: workers claim pending
// records, run the registered work function with a per-task cancellation
// context, and write the terminal outcome back into the registry. A
// failure (or panic) in one task never affects the others.
type Runner struct {
	registry *Registry
	queue    *Queue
	kinds    *Kinds

	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	config     RunnerConfig
	logger     *slog.Logger

	// mu guards the per-task cancel functions of running tasks.
	mu      sync.Mutex
	cancels map[uuid.UUID]context.CancelFunc
}

// NewRunner creates a new Runner consuming the given queue.
func NewRunner(registry *Registry, queue *Queue, kinds *Kinds, config RunnerConfig, logger *slog.Logger) *Runner {
	if config.WorkerCount <= 0 {
		logger.Warn("invalid worker count specified, using default",
			"specified_count", config.WorkerCount,
			"default_count", 1)
		config.WorkerCount = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Runner{
		registry:   registry,
		queue:      queue,
		kinds:      kinds,
		ctx:        ctx,
		cancelFunc: cancel,
		config:     config,
		logger:     logger,
		cancels:    make(map[uuid.UUID]context.CancelFunc),
	}
}

// Start launches the worker goroutines.
func (r *Runner) Start() {
	for i := 0; i < r.config.WorkerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
}

// Stop shuts the runner down: the queue stops accepting submissions,
// in-flight work is cancelled, and Stop blocks until all workers exit.
func (r *Runner) Stop() {
	r.queue.Close()
	r.cancelFunc()
	r.wg.Wait()
}

// Cancel fires the cancellation context of a running task. It is a
// no-op for tasks that are not currently executing; cancellation of
// pending tasks is handled synchronously by the service.
func (r *Runner) Cancel(taskID uuid.UUID) {
	r.mu.Lock()
	cancel := r.cancels[taskID]
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// worker consumes task IDs from the queue until shutdown.
func (r *Runner) worker(id int) {
	defer r.wg.Done()

	r.logger.Debug("starting worker", "worker_id", id)

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Debug("stopping worker", "worker_id", id)
			return

		case taskID, ok := <-r.queue.Channel():
			if !ok {
				r.logger.Debug("task queue closed, stopping worker", "worker_id", id)
				return
			}
			r.process(taskID, id)
		}
	}
}

// process handles execution of a single task.
func (r *Runner) process(taskID uuid.UUID, workerID int) {
	logger := r.logger.With(
		"task_id", taskID,
		"worker_id", workerID,
	)

	// Claim the task: pending -> running. A task cancelled while still
	// queued is already terminal and is skipped without ever running.
	snap, err := r.registry.Update(taskID, func(t *domain.Task) error {
		if t.Status != domain.TaskStatusPending {
			return errNotClaimable
		}
		return Transition(t, domain.TaskStatusRunning)
	})
	if err != nil {
		if errors.Is(err, errNotClaimable) || errors.Is(err, ErrTaskNotFound) {
			logger.Debug("skipping task no longer pending", "error", err)
		} else {
			logger.Error("failed to claim task", "error", err)
		}
		return
	}

	logger = logger.With("task_kind", snap.Kind)
	logger.Info("processing task")

	fn, err := r.kinds.Resolve(snap.Kind)
	if err != nil {
		// Submit validates kinds, so this only happens on a wiring bug.
		logger.Error("no work function for task kind", "error", err)
		r.finish(taskID, nil, err, logger)
		return
	}

	taskCtx, cancel := context.WithCancel(r.ctx)
	r.mu.Lock()
	r.cancels[taskID] = cancel
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.cancels, taskID)
		r.mu.Unlock()
		cancel()
	}()

	report := func(p domain.TaskProgress) {
		_, _ = r.registry.Update(taskID, func(t *domain.Task) error {
			if t.Status != domain.TaskStatusRunning {
				return nil
			}
			t.Progress = &p
			return nil
		})
	}

	result, err := r.invoke(taskCtx, fn, snap.Payload, report)
	r.finish(taskID, result, err, logger)
}

// invoke runs the work function, converting a panic into an error so a
// misbehaving task cannot take down the worker.
func (r *Runner) invoke(
	ctx context.Context,
	fn WorkFunc,
	payload []byte,
	report ProgressFunc,
) (result []byte, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("work function panicked", "panic", rec)
			result = nil
			err = fmt.Errorf("work function panicked: %v", rec)
		}
	}()

	return fn(ctx, payload, report)
}

// finish writes the terminal outcome back into the registry.
func (r *Runner) finish(taskID uuid.UUID, result []byte, execErr error, logger *slog.Logger) {
	snap, err := r.registry.Update(taskID, func(t *domain.Task) error {
		if t.Status != domain.TaskStatusRunning {
			// Only the runner moves a task out of running; getting here
			// means the record was tampered with. Leave it alone.
			return fmt.Errorf("%w: task is %s, expected running", ErrInvalidTransition, t.Status)
		}

		switch {
		case execErr == nil:
			if err := Transition(t, domain.TaskStatusCompleted); err != nil {
				return err
			}
			t.Result = result

		case t.CancelRequested && errors.Is(execErr, context.Canceled):
			// The work function observed the cancel signal and exited
			// through the cancellation path.
			if err := Transition(t, domain.TaskStatusCancelled); err != nil {
				return err
			}

		default:
			if err := Transition(t, domain.TaskStatusFailed); err != nil {
				return err
			}
			t.Error = summarizeError(execErr)
		}
		return nil
	})
	if err != nil {
		logger.Error("failed to record task outcome", "error", err)
		return
	}

	switch snap.Status {
	case domain.TaskStatusCompleted:
		logger.Info("task completed successfully")
	case domain.TaskStatusCancelled:
		logger.Info("task cancelled")
	case domain.TaskStatusFailed:
		logger.Error("task execution failed", "error", execErr)
	}
}

// summarizeError flattens an execution error into the short, stable
// summary stored on the task. Newlines (and with them anything
// resembling a trace) are collapsed and the text is length-capped.
func summarizeError(err error) string {
	summary := strings.Join(strings.Fields(err.Error()), " ")
	if len(summary) > maxErrorSummaryLen {
		summary = summary[:maxErrorSummaryLen]
	}
	return summary
}
