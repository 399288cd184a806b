package engine_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/triggerd/engine/internal/domain"
	"github.com/triggerd/engine/internal/engine"
	"github.com/triggerd/engine/internal/eventstore"
	"github.com/triggerd/engine/internal/registry"
)

type fakeGateway struct {
	eventstore.Gateway
	unlockAllCalled bool
	unlockedCron    []string
	unlockedOneoff  []string
}

func (f *fakeGateway) UnlockAllLocked(context.Context) error {
	f.unlockAllCalled = true
	return nil
}

func (f *fakeGateway) UnlockCron(_ context.Context, ids []string) (int, error) {
	f.unlockedCron = ids
	return len(ids), nil
}

func (f *fakeGateway) UnlockOneoff(_ context.Context, ids []string) (int, error) {
	f.unlockedOneoff = ids
	return len(ids), nil
}

type blockingLoop struct {
	started chan struct{}
}

func (l *blockingLoop) Run(ctx context.Context) {
	close(l.started)
	<-ctx.Done()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEngine_StartRunsUnlockAllBeforeLoops(t *testing.T) {
	gw := &fakeGateway{}
	reg := registry.New()
	gen := &blockingLoop{started: make(chan struct{})}
	proc := &blockingLoop{started: make(chan struct{})}

	e := engine.New(gw, reg, gen, proc, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	if err := e.Start(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !gw.unlockAllCalled {
		t.Fatalf("expected UnlockAllLocked to run before loops start")
	}

	<-gen.started
	<-proc.started

	cancel()
	if err := e.Shutdown(context.Background()); err != nil {
		t.Fatalf("unexpected shutdown error: %v", err)
	}
}

func TestEngine_ShutdownUnlocksRegisteredEvents(t *testing.T) {
	gw := &fakeGateway{}
	reg := registry.New()
	reg.InsertMany(domain.ClassCron, []string{"c1", "c2"})
	reg.InsertMany(domain.ClassOneOff, []string{"o1"})

	gen := &blockingLoop{started: make(chan struct{})}
	proc := &blockingLoop{started: make(chan struct{})}
	e := engine.New(gw, reg, gen, proc, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	_ = e.Start(ctx)
	<-gen.started
	<-proc.started
	cancel()

	done := make(chan error, 1)
	go func() { done <- e.Shutdown(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected shutdown error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not complete in time")
	}

	if len(gw.unlockedCron) != 2 {
		t.Fatalf("expected 2 cron ids unlocked, got %v", gw.unlockedCron)
	}
	if len(gw.unlockedOneoff) != 1 {
		t.Fatalf("expected 1 oneoff id unlocked, got %v", gw.unlockedOneoff)
	}
}
