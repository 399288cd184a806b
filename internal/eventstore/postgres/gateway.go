// Package postgres is the only Event Store Gateway implementation:
// pgxpool-backed, transactional, built directly on the teacher
// pattern used throughout the repo's other repositories — explicit
// tx.Begin/Commit/Rollback, FOR UPDATE SKIP LOCKED for cross-replica
// mutual exclusion, ON CONFLICT DO NOTHING for idempotent inserts.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/triggerd/engine/internal/domain"
	"github.com/triggerd/engine/internal/eventstore"
)

type Gateway struct {
	pool *pgxpool.Pool
}

func NewGateway(pool *pgxpool.Pool) *Gateway {
	return &Gateway{pool: pool}
}

var _ eventstore.Gateway = (*Gateway)(nil)

func (g *Gateway) FetchDeprivedStats(ctx context.Context, bufferThreshold int) ([]eventstore.DeprivedStat, error) {
	rows, err := g.pool.Query(ctx, `
		SELECT name, upcoming_events_count, max_scheduled_time
		FROM hdb_cron_events_stats
		WHERE upcoming_events_count < $1`, bufferThreshold)
	if err != nil {
		return nil, fmt.Errorf("fetch deprived stats: %w", err)
	}
	defer rows.Close()

	var out []eventstore.DeprivedStat
	for rows.Next() {
		var s eventstore.DeprivedStat
		if err := rows.Scan(&s.TriggerName, &s.UpcomingEventsCount, &s.MaxScheduledTime); err != nil {
			return nil, fmt.Errorf("scan deprived stat: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (g *Gateway) InsertCronSeeds(ctx context.Context, seeds []eventstore.CronSeed) error {
	if len(seeds) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, s := range seeds {
		batch.Queue(`
			INSERT INTO hdb_cron_events (id, trigger_name, scheduled_time, tries, status, created_at)
			VALUES ($1, $2, $3, 0, 'scheduled', NOW())
			ON CONFLICT (trigger_name, scheduled_time) DO NOTHING`,
			uuid.NewString(), s.TriggerName, s.ScheduledTime)
	}

	br := g.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range seeds {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert cron seed: %w", err)
		}
	}
	return nil
}

func (g *Gateway) LockDueCronEvents(ctx context.Context, limit int) ([]domain.CronEvent, error) {
	rows, err := g.pool.Query(ctx, `
		UPDATE hdb_cron_events
		SET status = 'locked'
		WHERE id IN (
			SELECT id FROM hdb_cron_events
			WHERE status = 'scheduled'
			  AND COALESCE(next_retry_at, scheduled_time) <= NOW()
			ORDER BY COALESCE(next_retry_at, scheduled_time) ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, trigger_name, scheduled_time, next_retry_at, tries, created_at`, limit)
	if err != nil {
		return nil, fmt.Errorf("lock due cron events: %w", err)
	}
	defer rows.Close()

	var out []domain.CronEvent
	for rows.Next() {
		var e domain.CronEvent
		if err := rows.Scan(&e.ID, &e.TriggerName, &e.ScheduledTime, &e.NextRetryAt, &e.Tries, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan locked cron event: %w", err)
		}
		e.Status = domain.StatusLocked
		out = append(out, e)
	}
	return out, rows.Err()
}

func (g *Gateway) LockDueOneoffEvents(ctx context.Context, limit int) ([]domain.OneOffScheduledEvent, error) {
	rows, err := g.pool.Query(ctx, `
		UPDATE hdb_scheduled_events
		SET status = 'locked'
		WHERE id IN (
			SELECT id FROM hdb_scheduled_events
			WHERE status = 'scheduled'
			  AND COALESCE(next_retry_at, scheduled_time) <= NOW()
			ORDER BY COALESCE(next_retry_at, scheduled_time) ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, scheduled_time, next_retry_at, tries, created_at,
		          webhook_conf, payload, retry_conf, header_conf, comment`, limit)
	if err != nil {
		return nil, fmt.Errorf("lock due oneoff events: %w", err)
	}
	defer rows.Close()

	var out []domain.OneOffScheduledEvent
	for rows.Next() {
		var e domain.OneOffScheduledEvent
		if err := rows.Scan(&e.ID, &e.ScheduledTime, &e.NextRetryAt, &e.Tries, &e.CreatedAt,
			&e.WebhookConf, &e.Payload, &e.RetryConf, &e.HeaderConf, &e.Comment); err != nil {
			return nil, fmt.Errorf("scan locked oneoff event: %w", err)
		}
		e.Status = domain.StatusLocked
		out = append(out, e)
	}
	return out, rows.Err()
}

func (g *Gateway) InsertInvocation(ctx context.Context, inv domain.Invocation, class domain.Class) error {
	eventsTable, logsTable, err := tablesFor(class)
	if err != nil {
		return err
	}

	tx, err := g.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, event_id, status, request, response)
		VALUES ($1, $2, $3, $4, $5)`, logsTable),
		uuid.NewString(), inv.EventID, inv.Status, inv.Request, inv.Response,
	); err != nil {
		return fmt.Errorf("insert invocation: %w", err)
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf(`
		UPDATE %s SET tries = tries + 1 WHERE id = $1`, eventsTable), inv.EventID,
	); err != nil {
		return fmt.Errorf("increment tries: %w", err)
	}

	return tx.Commit(ctx)
}

func (g *Gateway) SetStatus(ctx context.Context, id string, status domain.Status, class domain.Class) error {
	table, _, err := tablesFor(class)
	if err != nil {
		return err
	}
	_, err = g.pool.Exec(ctx, fmt.Sprintf(`UPDATE %s SET status = $2 WHERE id = $1`, table), id, status)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	return nil
}

func (g *Gateway) SetRetry(ctx context.Context, id string, retryTime time.Time, class domain.Class) error {
	table, _, err := tablesFor(class)
	if err != nil {
		return err
	}
	_, err = g.pool.Exec(ctx, fmt.Sprintf(`
		UPDATE %s SET status = 'scheduled', next_retry_at = $2 WHERE id = $1`, table), id, retryTime)
	if err != nil {
		return fmt.Errorf("set retry: %w", err)
	}
	return nil
}

func (g *Gateway) UnlockCron(ctx context.Context, ids []string) (int, error) {
	return g.unlock(ctx, "hdb_cron_events", ids)
}

func (g *Gateway) UnlockOneoff(ctx context.Context, ids []string) (int, error) {
	return g.unlock(ctx, "hdb_scheduled_events", ids)
}

func (g *Gateway) unlock(ctx context.Context, table string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := g.pool.Exec(ctx, fmt.Sprintf(`
		UPDATE %s SET status = 'scheduled' WHERE id = ANY($1) AND status = 'locked'`, table), ids)
	if err != nil {
		return 0, fmt.Errorf("unlock %s: %w", table, err)
	}
	return int(tag.RowsAffected()), nil
}

// UnlockAllLocked is the startup crash-recovery sweep: a blanket
// transition from locked back to scheduled across both tables,
// unfiltered by id, run once before the generator/processor loops
// start (spec §9).
func (g *Gateway) UnlockAllLocked(ctx context.Context) error {
	tx, err := g.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `UPDATE hdb_cron_events SET status = 'scheduled' WHERE status = 'locked'`); err != nil {
		return fmt.Errorf("unlock all cron: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE hdb_scheduled_events SET status = 'scheduled' WHERE status = 'locked'`); err != nil {
		return fmt.Errorf("unlock all oneoff: %w", err)
	}
	return tx.Commit(ctx)
}

var ErrUnknownClass = errors.New("unknown event class")

func tablesFor(class domain.Class) (events, logs string, err error) {
	switch class {
	case domain.ClassCron:
		return "hdb_cron_events", "hdb_cron_event_invocation_logs", nil
	case domain.ClassOneOff:
		return "hdb_scheduled_events", "hdb_scheduled_event_invocation_logs", nil
	default:
		return "", "", fmt.Errorf("%w: %q", ErrUnknownClass, class)
	}
}
