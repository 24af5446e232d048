package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGQueue stores jobs in the jobs table. Claims use FOR UPDATE SKIP LOCKED
// so concurrent workers never take the same job; ScheduleOrExtend upserts
// against the partial unique index on pending dedupe keys so create-or-
// extend is one atomic statement.
type PGQueue struct {
	pool            *pgxpool.Pool
	defaultAttempts int
}

// NewPGQueue creates a Postgres-backed queue.
func NewPGQueue(pool *pgxpool.Pool, defaultAttempts int) *PGQueue {
	if defaultAttempts <= 0 {
		defaultAttempts = 3
	}
	return &PGQueue{pool: pool, defaultAttempts: defaultAttempts}
}

func (q *PGQueue) Enqueue(ctx context.Context, queueName string, payload json.RawMessage, opts Options) (Job, error) {
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = q.defaultAttempts
	}
	const stmt = `
INSERT INTO jobs (id, queue, payload, status, max_attempts, run_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, queue, payload, COALESCE(dedupe_key, ''), attempts, max_attempts, run_at`
	row := q.pool.QueryRow(ctx, stmt,
		uuid.NewString(), queueName, payload, statusPending, attempts, time.Now().Add(opts.Delay))
	return scanJob(row)
}

func (q *PGQueue) ScheduleOrExtend(ctx context.Context, queueName, dedupeKey string, delay time.Duration, payload json.RawMessage, opts Options) (Job, bool, error) {
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = q.defaultAttempts
	}
	// xmax = 0 only for freshly inserted rows, so it distinguishes the
	// create branch from the extend branch.
	const stmt = `
INSERT INTO jobs (id, queue, payload, dedupe_key, status, max_attempts, run_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (dedupe_key) WHERE status = 'pending' AND dedupe_key IS NOT NULL
DO UPDATE SET run_at = EXCLUDED.run_at, payload = EXCLUDED.payload, updated_at = now()
RETURNING id, queue, payload, COALESCE(dedupe_key, ''), attempts, max_attempts, run_at, (xmax <> 0)`
	var (
		job      Job
		runAt    pgtype.Timestamptz
		extended bool
	)
	row := q.pool.QueryRow(ctx, stmt,
		uuid.NewString(), queueName, payload, dedupeKey, statusPending, attempts, time.Now().Add(delay))
	err := row.Scan(&job.ID, &job.Queue, &job.Payload, &job.DedupeKey,
		&job.Attempts, &job.MaxAttempts, &runAt, &extended)
	if err != nil {
		return Job{}, false, err
	}
	job.RunAt = runAt.Time
	return job, extended, nil
}

func (q *PGQueue) ChangeDelay(ctx context.Context, jobID string, delay time.Duration) error {
	const stmt = `
UPDATE jobs SET run_at = $2, updated_at = now()
WHERE id = $1 AND status = 'pending'`
	tag, err := q.pool.Exec(ctx, stmt, jobID, time.Now().Add(delay))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (q *PGQueue) Remove(ctx context.Context, jobID string) error {
	const stmt = `DELETE FROM jobs WHERE id = $1 AND status = 'pending'`
	tag, err := q.pool.Exec(ctx, stmt, jobID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (q *PGQueue) Claim(ctx context.Context) (Job, error) {
	const stmt = `
WITH due AS (
	SELECT id FROM jobs
	WHERE status = 'pending' AND run_at <= now()
	ORDER BY run_at
	FOR UPDATE SKIP LOCKED
	LIMIT 1
)
UPDATE jobs j
SET status = 'processing', attempts = j.attempts + 1, updated_at = now()
FROM due
WHERE j.id = due.id
RETURNING j.id, j.queue, j.payload, COALESCE(j.dedupe_key, ''), j.attempts, j.max_attempts, j.run_at`
	job, err := scanJob(q.pool.QueryRow(ctx, stmt))
	if errors.Is(err, pgx.ErrNoRows) {
		return Job{}, ErrNoWork
	}
	return job, err
}

func (q *PGQueue) MarkDone(ctx context.Context, jobID string) error {
	const stmt = `UPDATE jobs SET status = 'done', updated_at = now() WHERE id = $1`
	_, err := q.pool.Exec(ctx, stmt, jobID)
	return err
}

func (q *PGQueue) MarkRetry(ctx context.Context, jobID, lastError string, retryAt time.Time) error {
	const stmt = `
UPDATE jobs SET status = 'pending', last_error = $2, run_at = $3, updated_at = now()
WHERE id = $1`
	_, err := q.pool.Exec(ctx, stmt, jobID, lastError, retryAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		// A newer pending job with the same dedupe key superseded this one
		// while it was processing; terminate instead of retrying.
		return q.MarkDead(ctx, jobID, lastError+" (superseded by newer job)")
	}
	return err
}

func (q *PGQueue) MarkDead(ctx context.Context, jobID, lastError string) error {
	const stmt = `
UPDATE jobs SET status = 'failed', last_error = $2, updated_at = now()
WHERE id = $1`
	_, err := q.pool.Exec(ctx, stmt, jobID, lastError)
	return err
}

func scanJob(row pgx.Row) (Job, error) {
	var (
		job   Job
		runAt pgtype.Timestamptz
	)
	err := row.Scan(&job.ID, &job.Queue, &job.Payload, &job.DedupeKey,
		&job.Attempts, &job.MaxAttempts, &runAt)
	if err != nil {
		return Job{}, err
	}
	job.RunAt = runAt.Time
	return job, nil
}
