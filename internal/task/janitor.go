package task

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dorem/testassist-api/internal/domain"
)

// JanitorConfig holds configuration for the janitor.
type JanitorConfig struct {
	// RetentionWindow is how long a terminal task stays queryable after
	// completion before it is evicted.
	RetentionWindow time.Duration

	// SweepInterval is how often the janitor scans the registry.
	// If zero, defaults to 10 minutes.
	SweepInterval time.Duration
}

// DefaultJanitorConfig returns a JanitorConfig with reasonable defaults.
func DefaultJanitorConfig() JanitorConfig {
	return JanitorConfig{
		RetentionWindow: 24 * time.Hour,
		SweepInterval:   10 * time.Minute,
	}
}

// Janitor periodically evicts terminal tasks older than the retention
// window, bounding the registry's memory growth. It never touches
// pending or running tasks regardless of age.
type Janitor struct {
	registry   *Registry
	config     JanitorConfig
	logger     *slog.Logger
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// NewJanitor creates a new Janitor over the given registry.
func NewJanitor(registry *Registry, config JanitorConfig, logger *slog.Logger) *Janitor {
	if config.SweepInterval <= 0 {
		config.SweepInterval = 10 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Janitor{
		registry:   registry,
		config:     config,
		logger:     logger,
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Start launches the background sweep loop.
func (j *Janitor) Start() {
	j.wg.Add(1)
	go j.run()
}

// Stop terminates the sweep loop and waits for it to exit.
func (j *Janitor) Stop() {
	j.cancelFunc()
	j.wg.Wait()
}

func (j *Janitor) run() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-j.ctx.Done():
			return
		case <-ticker.C:
			j.Sweep()
		}
	}
}

// Sweep evicts every terminal task whose completion timestamp is older
// than the retention window and returns how many were removed. Eviction
// is best-effort: a record that reappears to a poller as not-found was
// simply collected between their calls.
func (j *Janitor) Sweep() int {
	cutoff := time.Now().UTC().Add(-j.config.RetentionWindow)

	removed := j.registry.Sweep(func(t domain.Task) bool {
		if !t.Status.IsTerminal() || t.CompletedAt == nil {
			return false
		}
		return !t.CompletedAt.After(cutoff)
	})

	if removed > 0 {
		j.logger.Info("evicted expired tasks",
			"count", removed,
			"retention_window", j.config.RetentionWindow)
	}
	return removed
}
