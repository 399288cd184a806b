// Package catalog supplies the trigger-definition catalog collaborator
// spec.md treats as external: get_schema_cache() returning a map of
// trigger name to {cron expression, webhook reference, static
// payload, header set, retry policy, comment}. This package owns the
// Postgres table backing it and a best-effort Redis read-through
// cache in front of it.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/triggerd/engine/internal/domain"
)

const cacheKey = "triggerd:catalog:snapshot"

var ErrNameConflict = fmt.Errorf("trigger with this name already exists")

// Store is the Postgres-backed CRUD surface for hdb_cron_triggers
// (Create/Update/Delete/List/GetByName), grounded on the teacher's
// ScheduleRepository, with the same pgconn.PgError unique-violation
// detection. Create returns the definition it was given, with the
// timestamps it set, rather than a row read back via RETURNING.
type Store struct {
	pool   *pgxpool.Pool
	redis  *redis.Client // nil when REDIS_URL is unset
	logger *slog.Logger

	mu       sync.RWMutex
	snapshot domain.SchemaCache
}

func NewStore(pool *pgxpool.Pool, rdb *redis.Client, logger *slog.Logger) *Store {
	return &Store{
		pool:   pool,
		redis:  rdb,
		logger: logger.With("component", "catalog"),
		snapshot: domain.SchemaCache{CronTriggers: map[string]domain.CronTriggerDefinition{}},
	}
}

func (s *Store) Create(ctx context.Context, def domain.CronTriggerDefinition) (domain.CronTriggerDefinition, error) {
	def.CreatedAt = time.Now()
	def.UpdatedAt = def.CreatedAt

	_, err := s.pool.Exec(ctx, `
		INSERT INTO hdb_cron_triggers (name, schedule, webhook_conf, payload, retry_conf, header_conf, comment, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		def.Name, def.Schedule, def.Webhook, def.Payload, def.RetryConf, def.HeaderConf, def.Comment, def.CreatedAt, def.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.CronTriggerDefinition{}, ErrNameConflict
		}
		return domain.CronTriggerDefinition{}, fmt.Errorf("create trigger: %w", err)
	}
	return def, nil
}

// Update overwrites the mutable fields of an existing trigger
// definition, leaving Name and CreatedAt untouched.
func (s *Store) Update(ctx context.Context, name string, def domain.CronTriggerDefinition) (domain.CronTriggerDefinition, error) {
	def.UpdatedAt = time.Now()

	tag, err := s.pool.Exec(ctx, `
		UPDATE hdb_cron_triggers
		SET schedule = $2, webhook_conf = $3, payload = $4, retry_conf = $5, header_conf = $6, comment = $7, updated_at = $8
		WHERE name = $1`,
		name, def.Schedule, def.Webhook, def.Payload, def.RetryConf, def.HeaderConf, def.Comment, def.UpdatedAt,
	)
	if err != nil {
		return domain.CronTriggerDefinition{}, fmt.Errorf("update trigger: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.CronTriggerDefinition{}, domain.ErrTriggerNotFound
	}

	def.Name = name
	return def, nil
}

func (s *Store) Delete(ctx context.Context, name string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM hdb_cron_triggers WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("delete trigger: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTriggerNotFound
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]domain.CronTriggerDefinition, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT name, schedule, webhook_conf, payload, retry_conf, header_conf, comment, created_at, updated_at
		FROM hdb_cron_triggers ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list triggers: %w", err)
	}
	defer rows.Close()

	var out []domain.CronTriggerDefinition
	for rows.Next() {
		d, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) GetByName(ctx context.Context, name string) (domain.CronTriggerDefinition, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT name, schedule, webhook_conf, payload, retry_conf, header_conf, comment, created_at, updated_at
		FROM hdb_cron_triggers WHERE name = $1`, name)
	return scanDefinition(row)
}

func scanDefinition(row rowScanner) (domain.CronTriggerDefinition, error) {
	var d domain.CronTriggerDefinition
	err := row.Scan(&d.Name, &d.Schedule, &d.Webhook, &d.Payload, &d.RetryConf, &d.HeaderConf, &d.Comment, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.CronTriggerDefinition{}, domain.ErrTriggerNotFound
		}
		return domain.CronTriggerDefinition{}, fmt.Errorf("scan trigger: %w", err)
	}
	return d, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// GetSchemaCache returns the most recently refreshed in-memory
// snapshot. Refresh is driven by RefreshLoop, not by this call, so
// lookups from the generator/processor hot path never block on I/O.
func (s *Store) GetSchemaCache() domain.SchemaCache {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Refresh reloads the snapshot from Redis (if configured) or Postgres,
// and repopulates Redis on a Postgres read so the next refresh (on
// this replica or another) can skip the database.
func (s *Store) Refresh(ctx context.Context) error {
	if s.redis != nil {
		if cached, ok := s.readCache(ctx); ok {
			s.mu.Lock()
			s.snapshot = cached
			s.mu.Unlock()
			return nil
		}
	}

	defs, err := s.List(ctx)
	if err != nil {
		return fmt.Errorf("refresh catalog: %w", err)
	}

	snap := domain.SchemaCache{CronTriggers: make(map[string]domain.CronTriggerDefinition, len(defs))}
	for _, d := range defs {
		snap.CronTriggers[d.Name] = d
	}

	s.mu.Lock()
	s.snapshot = snap
	s.mu.Unlock()

	if s.redis != nil {
		s.writeCache(ctx, snap)
	}
	return nil
}

func (s *Store) readCache(ctx context.Context) (domain.SchemaCache, bool) {
	raw, err := s.redis.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn("catalog cache read failed, falling back to postgres", "error", err)
		}
		return domain.SchemaCache{}, false
	}
	var snap domain.SchemaCache
	if err := json.Unmarshal(raw, &snap); err != nil {
		s.logger.Warn("catalog cache decode failed, falling back to postgres", "error", err)
		return domain.SchemaCache{}, false
	}
	return snap, true
}

func (s *Store) writeCache(ctx context.Context, snap domain.SchemaCache) {
	raw, err := json.Marshal(snap)
	if err != nil {
		s.logger.Warn("catalog cache encode failed", "error", err)
		return
	}
	if err := s.redis.Set(ctx, cacheKey, raw, 2*time.Minute).Err(); err != nil {
		s.logger.Warn("catalog cache write failed", "error", err)
	}
}

// RefreshLoop refreshes the snapshot on a fixed interval until ctx is
// cancelled. Run once at startup (synchronously) before starting this
// loop so the generator's first cycle sees a populated catalog.
func (s *Store) RefreshLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil {
				s.logger.Error("catalog refresh", "error", err)
			}
		}
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
