// Package engine wires the Generator and Processor into one
// supervised unit: crash-recovery unlock on startup, both loops
// running concurrently, and a graceful-shutdown sequence that
// snapshots the Locked-Event Registry and returns in-flight events to
// scheduled. This is the reusable analogue of the teacher's
// cmd/scheduler/main.go orchestration, factored out so cmd/triggerd
// stays thin.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/triggerd/engine/internal/domain"
	"github.com/triggerd/engine/internal/eventstore"
	"github.com/triggerd/engine/internal/registry"
)

type loop interface {
	Run(ctx context.Context)
}

type Engine struct {
	store     eventstore.Gateway
	registry  *registry.Registry
	generator loop
	processor loop
	logger    *slog.Logger

	shuttingDown atomic.Bool
	wg           sync.WaitGroup
}

// shutdownFlagSetter is implemented by *processor.Processor; kept as
// an interface here so engine doesn't import processor just for this
// one method.
type shutdownFlagSetter interface {
	SetShutdownFlag(func() bool)
}

func New(store eventstore.Gateway, reg *registry.Registry, generator, processor loop, logger *slog.Logger) *Engine {
	e := &Engine{
		store:     store,
		registry:  reg,
		generator: generator,
		processor: processor,
		logger:    logger.With("component", "engine"),
	}
	if s, ok := processor.(shutdownFlagSetter); ok {
		s.SetShutdownFlag(e.ShuttingDown)
	}
	return e
}

func (e *Engine) ShuttingDown() bool {
	return e.shuttingDown.Load()
}

// Start performs the startup crash-recovery sweep, then launches the
// generator and processor loops in the background. It returns once
// both goroutines have been started; callers should cancel ctx and
// then call Shutdown.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.UnlockAllLocked(ctx); err != nil {
		return fmt.Errorf("unlock all locked on startup: %w", err)
	}
	e.logger.Info("startup recovery: unlocked stale leases")

	e.wg.Add(2)
	go func() { defer e.wg.Done(); e.generator.Run(ctx) }()
	go func() { defer e.wg.Done(); e.processor.Run(ctx) }()
	return nil
}

// Shutdown flips the shutdown flag (so any in-flight delivery attempt
// skips its terminal database write), waits for the current
// generator/processor cycles to finish, then snapshots the
// Locked-Event Registry and returns every in-flight event to
// scheduled. Call it once, after cancelling the context passed to
// Start.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.shuttingDown.Store(true)
	e.wg.Wait()

	cronIDs := e.registry.Snapshot(domain.ClassCron)
	oneoffIDs := e.registry.Snapshot(domain.ClassOneOff)

	var firstErr error
	if n, err := e.store.UnlockCron(ctx, cronIDs); err != nil {
		firstErr = fmt.Errorf("unlock cron on shutdown: %w", err)
	} else if n > 0 {
		e.logger.Info("shutdown: unlocked in-flight cron events", "count", n)
	}
	if n, err := e.store.UnlockOneoff(ctx, oneoffIDs); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("unlock oneoff on shutdown: %w", err)
	} else if n > 0 {
		e.logger.Info("shutdown: unlocked in-flight oneoff events", "count", n)
	}
	return firstErr
}
