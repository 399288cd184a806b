package processor_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/triggerd/engine/internal/domain"
	"github.com/triggerd/engine/internal/eventstore"
	"github.com/triggerd/engine/internal/processor"
	"github.com/triggerd/engine/internal/registry"
	"github.com/triggerd/engine/internal/webhook"
)

type fakeGateway struct {
	eventstore.Gateway

	cronEvents   []domain.CronEvent
	oneoffEvents []domain.OneOffScheduledEvent

	invocations []domain.Invocation
	statuses    map[string]domain.Status
	retries     map[string]time.Time
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		statuses: map[string]domain.Status{},
		retries:  map[string]time.Time{},
	}
}

func (f *fakeGateway) LockDueCronEvents(_ context.Context, _ int) ([]domain.CronEvent, error) {
	out := f.cronEvents
	f.cronEvents = nil
	return out, nil
}

func (f *fakeGateway) LockDueOneoffEvents(_ context.Context, _ int) ([]domain.OneOffScheduledEvent, error) {
	out := f.oneoffEvents
	f.oneoffEvents = nil
	return out, nil
}

func (f *fakeGateway) InsertInvocation(_ context.Context, inv domain.Invocation, _ domain.Class) error {
	f.invocations = append(f.invocations, inv)
	return nil
}

func (f *fakeGateway) SetStatus(_ context.Context, id string, status domain.Status, _ domain.Class) error {
	f.statuses[id] = status
	return nil
}

func (f *fakeGateway) SetRetry(_ context.Context, id string, retryAt time.Time, _ domain.Class) error {
	f.statuses[id] = domain.StatusScheduled
	f.retries[id] = retryAt
	return nil
}

type fakeCatalog struct {
	defs map[string]domain.CronTriggerDefinition
}

func (f *fakeCatalog) GetSchemaCache() domain.SchemaCache {
	return domain.SchemaCache{CronTriggers: f.defs}
}

type scriptedInvoker struct {
	result webhook.Result
}

func (s *scriptedInvoker) Invoke(_ context.Context, _ string, _ []byte, _ map[string]string, _ time.Duration) webhook.Result {
	return s.result
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func baseRetryConf() domain.RetryConf {
	return domain.RetryConf{NumRetries: 3, RetryIntervalSeconds: 60, TimeoutSeconds: 30, ToleranceSeconds: 120}
}

func TestProcessor_SuccessfulDelivery(t *testing.T) {
	gw := newFakeGateway()
	gw.oneoffEvents = []domain.OneOffScheduledEvent{{
		ID:            "e1",
		ScheduledTime: time.Now().Add(-5 * time.Second),
		Tries:         0,
		RetryConf:     baseRetryConf(),
		WebhookConf:   domain.WebhookConf{Value: "https://example.com/hook"},
	}}

	invoker := &scriptedInvoker{result: webhook.Result{StatusCode: 200, Body: []byte(`"ok"`)}}
	reg := registry.New()
	p := processor.New(gw, &fakeCatalog{}, reg, invoker, nil, testLogger(), time.Second, 10, 5, 30*time.Second)

	p.RunOnce(context.Background())

	if gw.statuses["e1"] != domain.StatusDelivered {
		t.Fatalf("expected delivered, got %v", gw.statuses["e1"])
	}
	if len(gw.invocations) != 1 {
		t.Fatalf("expected exactly one invocation row, got %d", len(gw.invocations))
	}
	if gw.invocations[0].Status != 200 {
		t.Fatalf("expected invocation status 200, got %d", gw.invocations[0].Status)
	}
	if reg.Len(domain.ClassOneOff) != 0 {
		t.Fatalf("expected event unregistered after terminal outcome")
	}
}

func TestProcessor_RetryAfterOverridesTriesExhausted(t *testing.T) {
	gw := newFakeGateway()
	gw.cronEvents = []domain.CronEvent{{
		ID:            "c1",
		TriggerName:   "hourly",
		ScheduledTime: time.Now().Add(-5 * time.Second),
		Tries:         3, // already at num_retries
	}}
	cat := &fakeCatalog{defs: map[string]domain.CronTriggerDefinition{
		"hourly": {Name: "hourly", Webhook: domain.WebhookConf{Value: "https://example.com/hook"}, RetryConf: domain.RetryConf{NumRetries: 3, RetryIntervalSeconds: 60, TimeoutSeconds: 30, ToleranceSeconds: 120}},
	}}

	retryAfter := 30 * time.Second
	invoker := &scriptedInvoker{result: webhook.Result{StatusCode: 503, RetryAfter: &retryAfter}}
	reg := registry.New()
	p := processor.New(gw, cat, reg, invoker, nil, testLogger(), time.Second, 10, 5, 30*time.Second)

	before := time.Now()
	p.RunOnce(context.Background())

	if gw.statuses["c1"] != domain.StatusScheduled {
		t.Fatalf("expected scheduled (retry), got %v", gw.statuses["c1"])
	}
	retryAt, ok := gw.retries["c1"]
	if !ok {
		t.Fatalf("expected a retry time to be recorded")
	}
	if retryAt.Before(before.Add(29*time.Second)) || retryAt.After(before.Add(31*time.Second)) {
		t.Fatalf("expected retry ~30s out, got %v", retryAt.Sub(before))
	}
}

func TestProcessor_ExhaustedRetriesNoRetryAfter(t *testing.T) {
	gw := newFakeGateway()
	gw.oneoffEvents = []domain.OneOffScheduledEvent{{
		ID:            "e2",
		ScheduledTime: time.Now().Add(-5 * time.Second),
		Tries:         3,
		RetryConf:     domain.RetryConf{NumRetries: 3, RetryIntervalSeconds: 60, TimeoutSeconds: 30, ToleranceSeconds: 120},
		WebhookConf:   domain.WebhookConf{Value: "https://example.com/hook"},
	}}

	invoker := &scriptedInvoker{result: webhook.Result{StatusCode: 500}}
	reg := registry.New()
	p := processor.New(gw, &fakeCatalog{}, reg, invoker, nil, testLogger(), time.Second, 10, 5, 30*time.Second)

	p.RunOnce(context.Background())

	if gw.statuses["e2"] != domain.StatusError {
		t.Fatalf("expected error, got %v", gw.statuses["e2"])
	}
	if _, hasRetry := gw.retries["e2"]; hasRetry {
		t.Fatalf("expected no retry time recorded once exhausted")
	}
}

func TestProcessor_DeadEventNoHTTPCall(t *testing.T) {
	gw := newFakeGateway()
	gw.oneoffEvents = []domain.OneOffScheduledEvent{{
		ID:            "e3",
		ScheduledTime: time.Now().Add(-3600 * time.Second),
		Tries:         0,
		RetryConf:     domain.RetryConf{NumRetries: 3, RetryIntervalSeconds: 60, TimeoutSeconds: 30, ToleranceSeconds: 60},
		WebhookConf:   domain.WebhookConf{Value: "https://example.com/hook"},
	}}

	called := false
	invoker := invokerFunc(func() webhook.Result {
		called = true
		return webhook.Result{StatusCode: 200}
	})
	reg := registry.New()
	p := processor.New(gw, &fakeCatalog{}, reg, invoker, nil, testLogger(), time.Second, 10, 5, 30*time.Second)

	p.RunOnce(context.Background())

	if called {
		t.Fatalf("expected no HTTP call for a dead event")
	}
	if gw.statuses["e3"] != domain.StatusDead {
		t.Fatalf("expected dead, got %v", gw.statuses["e3"])
	}
	if len(gw.invocations) != 0 {
		t.Fatalf("expected zero invocation rows for a dead event, got %d", len(gw.invocations))
	}
}

type invokerFunc func() webhook.Result

func (f invokerFunc) Invoke(context.Context, string, []byte, map[string]string, time.Duration) webhook.Result {
	return f()
}
