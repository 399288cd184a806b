// Package processor implements the delivery loop: lock due events,
// resolve their webhook and headers, invoke the webhook, and drive
// the scheduled/locked/delivered/error/dead state machine. Grounded
// on the teacher's worker.go claim-and-run-concurrently shape and
// executor.go's HTTP client use, generalized to both event classes
// and the richer retry/tolerance/dead-classification rules this
// engine requires.
package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/triggerd/engine/internal/domain"
	"github.com/triggerd/engine/internal/eventstore"
	"github.com/triggerd/engine/internal/metrics"
	"github.com/triggerd/engine/internal/notify"
	"github.com/triggerd/engine/internal/registry"
	"github.com/triggerd/engine/internal/resolve"
	"github.com/triggerd/engine/internal/telemetry"
	"github.com/triggerd/engine/internal/webhook"
)

// CatalogSource is the trigger-definition collaborator the cron phase
// resolves definitions against.
type CatalogSource interface {
	GetSchemaCache() domain.SchemaCache
}

// WebhookInvoker is satisfied by *webhook.Client; an interface so
// tests can substitute a scripted fake.
type WebhookInvoker interface {
	Invoke(ctx context.Context, url string, body []byte, headers map[string]string, timeout time.Duration) webhook.Result
}

type Processor struct {
	store          eventstore.Gateway
	catalog        CatalogSource
	registry       *registry.Registry
	client         WebhookInvoker
	notifier       *notify.Notifier
	logger         *slog.Logger
	interval       time.Duration
	batchSize      int
	concurrency    int
	defaultTimeout time.Duration

	shuttingDown func() bool
}

func New(
	store eventstore.Gateway,
	catalog CatalogSource,
	reg *registry.Registry,
	client WebhookInvoker,
	notifier *notify.Notifier,
	logger *slog.Logger,
	interval time.Duration,
	batchSize, concurrency int,
	defaultTimeout time.Duration,
) *Processor {
	return &Processor{
		store:          store,
		catalog:        catalog,
		registry:       reg,
		client:         client,
		notifier:       notifier,
		logger:         logger.With("component", "processor"),
		interval:       interval,
		batchSize:      batchSize,
		concurrency:    concurrency,
		defaultTimeout: defaultTimeout,
		shuttingDown:   func() bool { return false },
	}
}

// SetShutdownFlag installs a predicate consulted before every
// terminal database write, so a supervisor can flip it during
// graceful shutdown and stop in-flight attempts from racing the
// unlock sweep.
func (p *Processor) SetShutdownFlag(f func() bool) {
	p.shuttingDown = f
}

func (p *Processor) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("processor started", "interval", p.interval, "concurrency", p.concurrency)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("processor shut down")
			return
		case <-ticker.C:
			p.RunOnce(ctx)
		}
	}
}

// RunOnce runs both phases sequentially, per the concurrency model:
// cron first, then one-off.
func (p *Processor) RunOnce(ctx context.Context) {
	ctx, end := telemetry.StartSpan(ctx, "processor.cycle")
	defer end()

	start := time.Now()
	defer func() { metrics.ProcessorCycleDuration.Observe(time.Since(start).Seconds()) }()

	p.processCron(ctx)
	p.processOneoff(ctx)
}

func (p *Processor) processCron(ctx context.Context) {
	events, err := p.store.LockDueCronEvents(ctx, p.batchSize)
	if err != nil {
		p.logger.Error("lock due cron events", "error", err)
		return
	}
	if len(events) == 0 {
		return
	}

	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	p.registry.InsertMany(domain.ClassCron, ids)
	metrics.LockedEventsGauge.WithLabelValues(string(domain.ClassCron)).Set(float64(p.registry.Len(domain.ClassCron)))

	cache := p.catalog.GetSchemaCache()

	sem := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup
	for _, e := range events {
		def, ok := cache.Lookup(e.TriggerName)
		if !ok {
			p.logger.Error("cron event references unknown trigger, leaving locked",
				"event_id", e.ID, "trigger_name", e.TriggerName)
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(e domain.CronEvent, def domain.CronTriggerDefinition) {
			defer wg.Done()
			defer func() { <-sem }()
			p.handleCron(ctx, e, def)
		}(e, def)
	}
	wg.Wait()
	metrics.LockedEventsGauge.WithLabelValues(string(domain.ClassCron)).Set(float64(p.registry.Len(domain.ClassCron)))
}

func (p *Processor) processOneoff(ctx context.Context) {
	events, err := p.store.LockDueOneoffEvents(ctx, p.batchSize)
	if err != nil {
		p.logger.Error("lock due oneoff events", "error", err)
		return
	}
	if len(events) == 0 {
		return
	}

	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	p.registry.InsertMany(domain.ClassOneOff, ids)
	metrics.LockedEventsGauge.WithLabelValues(string(domain.ClassOneOff)).Set(float64(p.registry.Len(domain.ClassOneOff)))

	sem := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup
	for _, e := range events {
		wg.Add(1)
		sem <- struct{}{}
		go func(e domain.OneOffScheduledEvent) {
			defer wg.Done()
			defer func() { <-sem }()
			p.handleOneoff(ctx, e)
		}(e)
	}
	wg.Wait()
	metrics.LockedEventsGauge.WithLabelValues(string(domain.ClassOneOff)).Set(float64(p.registry.Len(domain.ClassOneOff)))
}

func (p *Processor) handleCron(ctx context.Context, e domain.CronEvent, def domain.CronTriggerDefinition) {
	full := domain.ScheduledEventFull{
		ID:            e.ID,
		Class:         domain.ClassCron,
		TriggerName:   e.TriggerName,
		ScheduledTime: e.ScheduledTime,
		Tries:         e.Tries,
		CreatedAt:     e.CreatedAt,
		Payload:       def.Payload,
		RetryConf:     def.RetryConf,
		Comment:       def.Comment,
	}

	webhookURL, err := resolve.Webhook(def.Webhook)
	if err != nil {
		p.logger.Error("resolve cron webhook, leaving locked", "event_id", e.ID, "trigger_name", e.TriggerName, "error", err)
		return
	}
	full.WebhookURL = webhookURL

	headers, err := resolve.Headers(def.HeaderConf)
	if err != nil {
		p.logger.Error("resolve cron headers, leaving locked", "event_id", e.ID, "trigger_name", e.TriggerName, "error", err)
		return
	}
	full.Headers = headers

	p.deliver(ctx, full, domain.ClassCron)
}

func (p *Processor) handleOneoff(ctx context.Context, e domain.OneOffScheduledEvent) {
	full := domain.ScheduledEventFull{
		ID:            e.ID,
		Class:         domain.ClassOneOff,
		ScheduledTime: e.ScheduledTime,
		Tries:         e.Tries,
		CreatedAt:     e.CreatedAt,
		Payload:       e.Payload,
		RetryConf:     e.RetryConf,
		Comment:       e.Comment,
	}

	webhookURL, err := resolve.Webhook(e.WebhookConf)
	if err != nil {
		p.logger.Error("resolve oneoff webhook, leaving locked", "event_id", e.ID, "error", err)
		return
	}
	full.WebhookURL = webhookURL

	headers, err := resolve.Headers(e.HeaderConf)
	if err != nil {
		p.logger.Error("resolve oneoff headers, leaving locked", "event_id", e.ID, "error", err)
		return
	}
	full.Headers = headers

	p.deliver(ctx, full, domain.ClassOneOff)
}

// deliver is the webhook invocation subroutine from spec §4.6, shared
// by both classes once they've been reduced to a ScheduledEventFull.
func (p *Processor) deliver(ctx context.Context, e domain.ScheduledEventFull, class domain.Class) {
	// An event abandoned before the HTTP attempt, or cut short by
	// shutdown, stays registered so the shutdown unlock sweep returns it
	// to scheduled.
	release := true
	defer func() {
		if release {
			p.registry.Remove(class, e.ID)
		}
	}()

	ctx, end := telemetry.StartSpan(ctx, "processor.deliver")
	defer end()

	now := time.Now()
	lateness := now.Sub(e.ScheduledTime)
	tolerance := time.Duration(e.RetryConf.ToleranceSeconds) * time.Second

	if lateness > tolerance {
		p.markDead(ctx, e, class, fmt.Sprintf("lateness %s exceeded tolerance %s", lateness, tolerance))
		return
	}

	body, err := buildRequestBody(e)
	if err != nil {
		p.logger.Error("build webhook request body, leaving locked", "event_id", e.ID, "error", err)
		release = false
		return
	}

	timeout := time.Duration(e.RetryConf.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = p.defaultTimeout
	}

	if p.shuttingDown() {
		release = false
		return
	}

	res := p.client.Invoke(ctx, e.WebhookURL, body, e.Headers, timeout)

	if p.shuttingDown() {
		release = false
		return
	}

	p.classify(ctx, e, class, body, res)
}

func (p *Processor) classify(ctx context.Context, e domain.ScheduledEventFull, class domain.Class, reqBody []byte, res webhook.Result) {
	inv := domain.Invocation{
		EventID: e.ID,
		Status:  res.StatusCode,
		Request: domain.InvocationRequest{Body: reqBody, Headers: e.Headers},
	}

	switch {
	case res.StatusCode < 400:
		inv.Response = domain.InvocationResponse{Type: "success", Status: res.StatusCode, Body: res.Body, Headers: res.Headers}
		if err := p.store.InsertInvocation(ctx, inv, class); err != nil {
			p.logger.Error("insert invocation", "event_id", e.ID, "error", err)
			return
		}
		if err := p.store.SetStatus(ctx, e.ID, domain.StatusDelivered, class); err != nil {
			p.logger.Error("set status delivered", "event_id", e.ID, "error", err)
			return
		}
		metrics.WebhookOutcomesTotal.WithLabelValues(string(class), "delivered").Inc()
		metrics.WebhookAttemptDuration.WithLabelValues(string(class)).Observe(res.Duration.Seconds())
		return

	case res.StatusCode >= 400 && res.StatusCode < 500:
		inv.Response = domain.InvocationResponse{Type: "client_error", Status: res.StatusCode, Body: res.Body, Headers: res.Headers}

	default:
		inv.Response = domain.InvocationResponse{Type: "error", Status: res.StatusCode, Body: res.Body, Headers: res.Headers, Detail: res.Detail}
	}

	if err := p.store.InsertInvocation(ctx, inv, class); err != nil {
		p.logger.Error("insert invocation", "event_id", e.ID, "error", err)
		return
	}
	metrics.WebhookAttemptDuration.WithLabelValues(string(class)).Observe(res.Duration.Seconds())

	p.retryOrFail(ctx, e, class, res)
}

func (p *Processor) retryOrFail(ctx context.Context, e domain.ScheduledEventFull, class domain.Class, res webhook.Result) {
	tries := e.Tries + 1 // InsertInvocation already incremented tries in the same transaction

	if res.RetryAfter != nil {
		p.scheduleRetry(ctx, e, class, *res.RetryAfter)
		return
	}

	if tries >= e.RetryConf.NumRetries {
		if err := p.store.SetStatus(ctx, e.ID, domain.StatusError, class); err != nil {
			p.logger.Error("set status error", "event_id", e.ID, "error", err)
			return
		}
		metrics.WebhookOutcomesTotal.WithLabelValues(string(class), "error").Inc()
		return
	}

	delay := time.Duration(e.RetryConf.RetryIntervalSeconds) * time.Second
	p.scheduleRetry(ctx, e, class, delay)
}

func (p *Processor) scheduleRetry(ctx context.Context, e domain.ScheduledEventFull, class domain.Class, delay time.Duration) {
	retryAt := time.Now().Add(delay)
	if err := p.store.SetRetry(ctx, e.ID, retryAt, class); err != nil {
		p.logger.Error("set retry", "event_id", e.ID, "error", err)
		return
	}
	metrics.WebhookOutcomesTotal.WithLabelValues(string(class), "retry").Inc()
}

func (p *Processor) markDead(ctx context.Context, e domain.ScheduledEventFull, class domain.Class, reason string) {
	if err := p.store.SetStatus(ctx, e.ID, domain.StatusDead, class); err != nil {
		p.logger.Error("set status dead", "event_id", e.ID, "error", err)
		return
	}
	metrics.WebhookOutcomesTotal.WithLabelValues(string(class), "dead").Inc()

	label := e.TriggerName
	if class == domain.ClassOneOff {
		label = e.ID
	}
	if p.notifier != nil {
		go p.notifier.DeadEvent(context.Background(), string(class), label, e.ID, reason)
	}
}

type webhookBody struct {
	ID            string          `json:"id"`
	Name          string          `json:"name,omitempty"`
	ScheduledTime time.Time       `json:"scheduled_time"`
	Payload       json.RawMessage `json:"payload"`
	Comment       *string         `json:"comment,omitempty"`
	CreatedAt     *time.Time      `json:"created_at,omitempty"`
}

func buildRequestBody(e domain.ScheduledEventFull) ([]byte, error) {
	b := webhookBody{
		ID:            e.ID,
		ScheduledTime: e.ScheduledTime,
		Payload:       e.Payload,
		Comment:       e.Comment,
	}
	if e.Class == domain.ClassCron {
		b.Name = e.TriggerName
	} else {
		ca := e.CreatedAt
		b.CreatedAt = &ca
	}
	out, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("marshal webhook body: %w", err)
	}
	return out, nil
}
