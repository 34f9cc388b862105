package task

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dorem/testassist-api/internal/domain"
)

// ProgressFunc lets a running work function report structured progress.
// Reports after the task has left the running state are discarded.
type ProgressFunc func(domain.TaskProgress)

// WorkFunc is the uniform shape of a long-running operation. The context
// is the cancellation handle: it is cancelled when the task's owner (or
// an admin) requests cancellation, and the function is expected to
// observe ctx.Done() at its own pace and return ctx.Err(). Cancellation
// is cooperative; a function that ignores the context simply finishes.
type WorkFunc func(ctx context.Context, payload json.RawMessage, report ProgressFunc) (json.RawMessage, error)

// Kinds maps each task kind to its registered work function. The kind
// set is closed (see domain.TaskKind); registration happens once during
// startup wiring.
type Kinds struct {
	mu  sync.RWMutex
	fns map[domain.TaskKind]WorkFunc
}

// NewKinds creates an empty work-function registry.
func NewKinds() *Kinds {
	return &Kinds{
		fns: make(map[domain.TaskKind]WorkFunc),
	}
}

// Register binds a work function to a kind. Registering an unknown kind
// or registering the same kind twice is a wiring bug and returns an error.
func (k *Kinds) Register(kind domain.TaskKind, fn WorkFunc) error {
	if !domain.IsValidTaskKind(kind) {
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if fn == nil {
		return fmt.Errorf("work function for kind %q cannot be nil", kind)
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if _, exists := k.fns[kind]; exists {
		return fmt.Errorf("%w: %q", ErrKindRegistered, kind)
	}
	k.fns[kind] = fn
	return nil
}

// Resolve returns the work function registered for the kind.
func (k *Kinds) Resolve(kind domain.TaskKind) (WorkFunc, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	fn, ok := k.fns[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return fn, nil
}
