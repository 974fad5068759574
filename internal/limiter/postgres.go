package limiter

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PG is a PostgreSQL-backed limiter: a counter per key reset when its window expires.
type PG struct {
	pool   pgxQuerier
	window time.Duration
	max    int
	now    func() time.Time
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a PostgreSQL-backed limiter.
func NewPG(pool *pgxpool.Pool, window time.Duration, max int) *PG {
	return NewPGWithQuerier(pool, window, max)
}

// NewPGWithQuerier constructs a PostgreSQL-backed limiter over any querier.
func NewPGWithQuerier(q pgxQuerier, window time.Duration, max int) *PG {
	return &PG{pool: q, window: window, max: max, now: time.Now}
}

// Allow increments the attempt counter for key and reports whether it is within max.
func (l *PG) Allow(ctx context.Context, key []byte) (bool, time.Duration, error) {
	const q = `
INSERT INTO auth_limiter (key_hash, attempts, window_start)
VALUES ($1, 1, $2)
ON CONFLICT (key_hash) DO UPDATE
SET
  attempts = CASE WHEN auth_limiter.window_start <= $2 - $3::interval THEN 1 ELSE auth_limiter.attempts + 1 END,
  window_start = CASE WHEN auth_limiter.window_start <= $2 - $3::interval THEN $2 ELSE auth_limiter.window_start END
RETURNING attempts, window_start`
	now := l.now()
	var (
		attempts int
		start    time.Time
	)
	if err := l.pool.QueryRow(ctx, q, key, now, l.window).Scan(&attempts, &start); err != nil {
		return false, 0, err
	}
	if attempts > l.max {
		retry := start.Add(l.window).Sub(now)
		if retry < 0 {
			retry = 0
		}
		return false, retry, nil
	}
	return true, 0, nil
}

// Prune deletes rows whose window ended before now.
func (l *PG) Prune(ctx context.Context) (int64, error) {
	const q = `DELETE FROM auth_limiter WHERE window_start <= $1 - $2::interval`
	tag, err := l.pool.Exec(ctx, q, l.now(), l.window)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
