package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"leadfunnel_backend/platform/apperr"
)

// Deduper records which inbound events already entered the pipeline.
// A claim is released again when the cycle fails so redelivery can retry.
type Deduper interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

type RedisDeduper struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisDeduper(rdb *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{rdb: rdb, ttl: ttl}
}

func (d *RedisDeduper) Claim(ctx context.Context, eventID string) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, "funnel:event:"+eventID, 1, d.ttl).Result()
	if err != nil {
		return false, apperr.Transient("claim event", err)
	}
	return ok, nil
}

func (d *RedisDeduper) Release(ctx context.Context, eventID string) error {
	return d.rdb.Del(ctx, "funnel:event:"+eventID).Err()
}

// PostgresDeduper keeps claims in processed_events; old rows are purged by
// the cleanup task.
type PostgresDeduper struct {
	pool *pgxpool.Pool
}

func NewPostgresDeduper(pool *pgxpool.Pool) *PostgresDeduper {
	return &PostgresDeduper{pool: pool}
}

func (d *PostgresDeduper) Claim(ctx context.Context, eventID string) (bool, error) {
	tag, err := d.pool.Exec(ctx, `
		INSERT INTO processed_events (event_id) VALUES ($1)
		ON CONFLICT (event_id) DO NOTHING`, eventID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (d *PostgresDeduper) Release(ctx context.Context, eventID string) error {
	_, err := d.pool.Exec(ctx, `DELETE FROM processed_events WHERE event_id = $1`, eventID)
	return err
}

// DeleteOlderThan removes claims processed before cutoff.
func (d *PostgresDeduper) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := d.pool.Exec(ctx, `DELETE FROM processed_events WHERE processed_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type MemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	return &MemoryDeduper{seen: make(map[string]time.Time), ttl: ttl, now: time.Now}
}

func (d *MemoryDeduper) Claim(_ context.Context, eventID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	if at, ok := d.seen[eventID]; ok && now.Sub(at) < d.ttl {
		return false, nil
	}
	d.seen[eventID] = now
	return true, nil
}

func (d *MemoryDeduper) Release(_ context.Context, eventID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, eventID)
	return nil
}

var (
	_ Deduper = (*RedisDeduper)(nil)
	_ Deduper = (*PostgresDeduper)(nil)
	_ Deduper = (*MemoryDeduper)(nil)
)
