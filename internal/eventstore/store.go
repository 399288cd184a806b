// Package eventstore defines the Event Store Gateway contract: every
// database operation the generator and processor need, grouped by
// call site. The postgres subpackage is the only implementation, but
// the interface boundary exists so the generator/processor tests can
// run against an in-memory fake.
package eventstore

import (
	"context"
	"time"

	"github.com/triggerd/engine/internal/domain"
)

// DeprivedStat is one row of fetch_deprived_stats(): a trigger whose
// future scheduled-event count has fallen below the hydration buffer.
type DeprivedStat struct {
	TriggerName        string
	UpcomingEventsCount int
	MaxScheduledTime    *time.Time // nil when the trigger has no events at all yet
}

// CronSeed is one future occurrence to insert for a trigger.
type CronSeed struct {
	TriggerName   string
	ScheduledTime time.Time
}

// Gateway is the full Event Store Gateway contract from spec §4.2.
// Every method is transactional at read-committed isolation; database
// errors bubble as plain Go errors for the caller to log and continue.
type Gateway interface {
	// Generator-facing.
	FetchDeprivedStats(ctx context.Context, bufferThreshold int) ([]DeprivedStat, error)
	InsertCronSeeds(ctx context.Context, seeds []CronSeed) error

	// Processor-facing.
	LockDueCronEvents(ctx context.Context, limit int) ([]domain.CronEvent, error)
	LockDueOneoffEvents(ctx context.Context, limit int) ([]domain.OneOffScheduledEvent, error)
	InsertInvocation(ctx context.Context, inv domain.Invocation, class domain.Class) error
	SetStatus(ctx context.Context, id string, status domain.Status, class domain.Class) error
	SetRetry(ctx context.Context, id string, retryAt time.Time, class domain.Class) error

	// Startup/shutdown-facing.
	UnlockCron(ctx context.Context, ids []string) (int, error)
	UnlockOneoff(ctx context.Context, ids []string) (int, error)
	UnlockAllLocked(ctx context.Context) error
}
