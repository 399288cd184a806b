// Package oneoff is the admin-facing repository for one-off scheduled
// events and their invocation logs: creation, lookup, and cursor-paginated
// listing. The hot path (lock/deliver) goes through eventstore.Gateway;
// this package only serves the admin HTTP API. Grounded on the teacher's
// ScheduleRepository/usecase cursor-pagination pattern.
package oneoff

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/triggerd/engine/internal/domain"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Create(ctx context.Context, e domain.OneOffScheduledEvent) (domain.OneOffScheduledEvent, error) {
	e.ID = uuid.NewString()
	e.CreatedAt = time.Now()
	e.Status = domain.StatusScheduled

	_, err := s.pool.Exec(ctx, `
		INSERT INTO hdb_scheduled_events
			(id, scheduled_time, tries, status, created_at, webhook_conf, payload, retry_conf, header_conf, comment)
		VALUES ($1, $2, 0, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.ScheduledTime, e.Status, e.CreatedAt, e.WebhookConf, e.Payload, e.RetryConf, e.HeaderConf, e.Comment,
	)
	if err != nil {
		return domain.OneOffScheduledEvent{}, fmt.Errorf("create oneoff event: %w", err)
	}
	return e, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (domain.OneOffScheduledEvent, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, scheduled_time, next_retry_at, tries, status, created_at, webhook_conf, payload, retry_conf, header_conf, comment
		FROM hdb_scheduled_events WHERE id = $1`, id)
	e, err := scanEvent(row)
	if err != nil {
		return domain.OneOffScheduledEvent{}, err
	}
	return e, nil
}

type ListInput struct {
	Cursor string
	Limit  int
}

type ListResult struct {
	Events     []domain.OneOffScheduledEvent
	NextCursor *string
}

type eventCursor struct {
	CreatedAt time.Time `json:"c"`
	ID        string    `json:"i"`
}

func decodeCursor(s string) (*time.Time, string, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, "", fmt.Errorf("decode cursor: %w", err)
	}
	var c eventCursor
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, "", fmt.Errorf("unmarshal cursor: %w", err)
	}
	return &c.CreatedAt, c.ID, nil
}

func encodeCursor(createdAt time.Time, id string) string {
	b, _ := json.Marshal(eventCursor{CreatedAt: createdAt, ID: id})
	return base64.RawURLEncoding.EncodeToString(b)
}

func (s *Store) List(ctx context.Context, input ListInput) (ListResult, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	args := []any{}
	where := "TRUE"

	if input.Cursor != "" {
		cursorTime, cursorID, err := decodeCursor(input.Cursor)
		if err != nil {
			return ListResult{}, fmt.Errorf("invalid cursor: %w", err)
		}
		args = append(args, *cursorTime, cursorID)
		where = "(created_at, id) < ($1, $2)"
	}
	args = append(args, limit+1)

	query := fmt.Sprintf(`
		SELECT id, scheduled_time, next_retry_at, tries, status, created_at, webhook_conf, payload, retry_conf, header_conf, comment
		FROM hdb_scheduled_events
		WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d`, where, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return ListResult{}, fmt.Errorf("list oneoff events: %w", err)
	}
	defer rows.Close()

	var events []domain.OneOffScheduledEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return ListResult{}, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return ListResult{}, err
	}

	var nextCursor *string
	if len(events) == limit+1 {
		last := events[limit]
		c := encodeCursor(last.CreatedAt, last.ID)
		nextCursor = &c
		events = events[:limit]
	}

	return ListResult{Events: events, NextCursor: nextCursor}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (domain.OneOffScheduledEvent, error) {
	var e domain.OneOffScheduledEvent
	err := row.Scan(&e.ID, &e.ScheduledTime, &e.NextRetryAt, &e.Tries, &e.Status, &e.CreatedAt,
		&e.WebhookConf, &e.Payload, &e.RetryConf, &e.HeaderConf, &e.Comment)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.OneOffScheduledEvent{}, domain.ErrEventNotFound
		}
		return domain.OneOffScheduledEvent{}, fmt.Errorf("scan oneoff event: %w", err)
	}
	return e, nil
}

// ListInvocations returns invocation log rows for one event, newest
// first. Pagination runs on the bigserial seq column rather than id:
// ids are randomly generated UUIDs and carry no ordering, while seq is
// assigned in insertion order by Postgres itself.
func (s *Store) ListInvocations(ctx context.Context, eventID string, class domain.Class, cursor string, limit int) ([]domain.Invocation, *string, error) {
	table, err := invocationTable(class)
	if err != nil {
		return nil, nil, err
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	args := []any{eventID}
	where := "event_id = $1"
	if cursor != "" {
		seq, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid cursor: %w", err)
		}
		args = append(args, seq)
		where += fmt.Sprintf(" AND seq < $%d", len(args))
	}
	args = append(args, limit+1)

	query := fmt.Sprintf(`
		SELECT id, seq, event_id, status, request, response FROM %s
		WHERE %s ORDER BY seq DESC LIMIT $%d`, table, where, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("list invocations: %w", err)
	}
	defer rows.Close()

	var invs []domain.Invocation
	var seqs []int64
	for rows.Next() {
		var inv domain.Invocation
		var seq int64
		if err := rows.Scan(&inv.ID, &seq, &inv.EventID, &inv.Status, &inv.Request, &inv.Response); err != nil {
			return nil, nil, fmt.Errorf("scan invocation: %w", err)
		}
		invs = append(invs, inv)
		seqs = append(seqs, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var nextCursor *string
	if len(invs) == limit+1 {
		last := strconv.FormatInt(seqs[limit], 10)
		nextCursor = &last
		invs = invs[:limit]
	}
	return invs, nextCursor, nil
}

// ListInvocationsByTrigger returns invocation log rows across every
// cron event belonging to triggerName, newest first. Unlike
// ListInvocations (scoped to one event id) this joins through
// hdb_cron_events, since the admin API exposes invocation history at
// the trigger level.
func (s *Store) ListInvocationsByTrigger(ctx context.Context, triggerName, cursor string, limit int) ([]domain.Invocation, *string, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	args := []any{triggerName}
	where := "e.trigger_name = $1"
	if cursor != "" {
		seq, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid cursor: %w", err)
		}
		args = append(args, seq)
		where += fmt.Sprintf(" AND l.seq < $%d", len(args))
	}
	args = append(args, limit+1)

	query := fmt.Sprintf(`
		SELECT l.id, l.seq, l.event_id, l.status, l.request, l.response
		FROM hdb_cron_event_invocation_logs l
		JOIN hdb_cron_events e ON e.id = l.event_id
		WHERE %s ORDER BY l.seq DESC LIMIT $%d`, where, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("list trigger invocations: %w", err)
	}
	defer rows.Close()

	var invs []domain.Invocation
	var seqs []int64
	for rows.Next() {
		var inv domain.Invocation
		var seq int64
		if err := rows.Scan(&inv.ID, &seq, &inv.EventID, &inv.Status, &inv.Request, &inv.Response); err != nil {
			return nil, nil, fmt.Errorf("scan invocation: %w", err)
		}
		invs = append(invs, inv)
		seqs = append(seqs, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var nextCursor *string
	if len(invs) == limit+1 {
		last := strconv.FormatInt(seqs[limit], 10)
		nextCursor = &last
		invs = invs[:limit]
	}
	return invs, nextCursor, nil
}

func invocationTable(class domain.Class) (string, error) {
	switch class {
	case domain.ClassCron:
		return "hdb_cron_event_invocation_logs", nil
	case domain.ClassOneOff:
		return "hdb_scheduled_event_invocation_logs", nil
	default:
		return "", fmt.Errorf("unknown event class %q", class)
	}
}
