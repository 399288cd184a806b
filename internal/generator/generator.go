// Package generator implements the hydration loop: on each tick it
// finds cron triggers whose materialized future-event count has
// fallen below the hydration buffer and inserts the next batch of
// occurrences, idempotently, via the Event Store Gateway. Grounded on
// the teacher's dispatcher ticker-loop shape.
package generator

import (
	"context"
	"log/slog"
	"time"

	"github.com/triggerd/engine/internal/domain"
	"github.com/triggerd/engine/internal/eventstore"
	"github.com/triggerd/engine/internal/metrics"
	"github.com/triggerd/engine/internal/telemetry"
	"github.com/triggerd/engine/internal/trigger"
)

// CatalogSource is the trigger-definition collaborator: whatever owns
// hdb_cron_triggers. Only the in-memory snapshot is needed here.
type CatalogSource interface {
	GetSchemaCache() domain.SchemaCache
}

type Generator struct {
	store    eventstore.Gateway
	catalog  CatalogSource
	logger   *slog.Logger
	interval time.Duration
	buffer   int
}

func New(store eventstore.Gateway, catalog CatalogSource, logger *slog.Logger, interval time.Duration, buffer int) *Generator {
	return &Generator{
		store:    store,
		catalog:  catalog,
		logger:   logger.With("component", "generator"),
		interval: interval,
		buffer:   buffer,
	}
}

func (g *Generator) Run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	g.logger.Info("generator started", "interval", g.interval, "buffer", g.buffer)

	for {
		select {
		case <-ctx.Done():
			g.logger.Info("generator shut down")
			return
		case <-ticker.C:
			g.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single hydration cycle. Exported so it can be
// driven directly from tests without waiting on the ticker.
func (g *Generator) RunOnce(ctx context.Context) {
	ctx, end := telemetry.StartSpan(ctx, "generator.cycle")
	defer end()

	start := time.Now()
	defer func() { metrics.GeneratorCycleDuration.Observe(time.Since(start).Seconds()) }()

	stats, err := g.store.FetchDeprivedStats(ctx, g.buffer)
	if err != nil {
		g.logger.Error("fetch deprived stats", "error", err)
		return
	}
	if len(stats) == 0 {
		return
	}

	cache := g.catalog.GetSchemaCache()
	now := time.Now()

	for _, stat := range stats {
		def, ok := cache.Lookup(stat.TriggerName)
		if !ok {
			// The trigger was deleted from the catalog after events were
			// already materialized for it, or the catalog snapshot is
			// stale. Either way there is nothing to hydrate; log and move
			// to the next trigger rather than abort the whole cycle.
			g.logger.Warn("deprived trigger missing from catalog, skipping", "trigger_name", stat.TriggerName)
			continue
		}

		from := now
		if stat.MaxScheduledTime != nil {
			from = *stat.MaxScheduledTime
		}

		occurrences, err := trigger.Upcoming(from, g.buffer, def.Schedule)
		if err != nil {
			g.logger.Error("compute upcoming occurrences", "trigger_name", stat.TriggerName, "error", err)
			continue
		}
		if len(occurrences) == 0 {
			continue
		}

		seeds := make([]eventstore.CronSeed, len(occurrences))
		for i, t := range occurrences {
			seeds[i] = eventstore.CronSeed{TriggerName: stat.TriggerName, ScheduledTime: t}
		}

		if err := g.store.InsertCronSeeds(ctx, seeds); err != nil {
			g.logger.Error("insert cron seeds", "trigger_name", stat.TriggerName, "error", err)
			continue
		}
		metrics.HydrationSeedsInsertedTotal.WithLabelValues(stat.TriggerName).Add(float64(len(seeds)))
	}
}
