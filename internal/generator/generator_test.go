package generator_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/triggerd/engine/internal/domain"
	"github.com/triggerd/engine/internal/eventstore"
	"github.com/triggerd/engine/internal/generator"
)

type fakeGateway struct {
	eventstore.Gateway
	stats         []eventstore.DeprivedStat
	statsErr      error
	insertedSeeds []eventstore.CronSeed
	insertErr     error
}

func (f *fakeGateway) FetchDeprivedStats(_ context.Context, _ int) ([]eventstore.DeprivedStat, error) {
	return f.stats, f.statsErr
}

func (f *fakeGateway) InsertCronSeeds(_ context.Context, seeds []eventstore.CronSeed) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.insertedSeeds = append(f.insertedSeeds, seeds...)
	return nil
}

type fakeCatalog struct {
	defs map[string]domain.CronTriggerDefinition
}

func (f *fakeCatalog) GetSchemaCache() domain.SchemaCache {
	return domain.SchemaCache{CronTriggers: f.defs}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCycle_HydratesDeprivedTrigger(t *testing.T) {
	gw := &fakeGateway{
		stats: []eventstore.DeprivedStat{
			{TriggerName: "daily-report", UpcomingEventsCount: 2},
		},
	}
	cat := &fakeCatalog{defs: map[string]domain.CronTriggerDefinition{
		"daily-report": {Name: "daily-report", Schedule: "0 0 * * *"},
	}}

	g := generator.New(gw, cat, testLogger(), time.Second, 5)
	g.RunOnce(context.Background())

	if len(gw.insertedSeeds) != 5 {
		t.Fatalf("expected 5 seeds inserted (fixed buffer), got %d", len(gw.insertedSeeds))
	}
	for i := 1; i < len(gw.insertedSeeds); i++ {
		if !gw.insertedSeeds[i].ScheduledTime.After(gw.insertedSeeds[i-1].ScheduledTime) {
			t.Fatalf("expected strictly ascending seed times")
		}
	}
}

func TestCycle_SkipsMissingCatalogEntry(t *testing.T) {
	gw := &fakeGateway{
		stats: []eventstore.DeprivedStat{
			{TriggerName: "deleted-trigger", UpcomingEventsCount: 0},
		},
	}
	cat := &fakeCatalog{defs: map[string]domain.CronTriggerDefinition{}}

	g := generator.New(gw, cat, testLogger(), time.Second, 5)
	g.RunOnce(context.Background())

	if len(gw.insertedSeeds) != 0 {
		t.Fatalf("expected no seeds inserted for missing trigger, got %d", len(gw.insertedSeeds))
	}
}

func TestCycle_NoDeprivedTriggers(t *testing.T) {
	gw := &fakeGateway{stats: nil}
	cat := &fakeCatalog{defs: map[string]domain.CronTriggerDefinition{}}

	g := generator.New(gw, cat, testLogger(), time.Second, 5)
	g.RunOnce(context.Background())

	if len(gw.insertedSeeds) != 0 {
		t.Fatalf("expected no inserts with no deprived triggers")
	}
}
