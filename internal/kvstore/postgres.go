package kvstore

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres backs the Store interface with the kv_entries table, so buffer
// state is shared across worker processes.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres-backed key-value store.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (s *Postgres) Get(ctx context.Context, key string) ([]byte, bool, error) {
	const q = `
SELECT value FROM kv_entries
WHERE key = $1 AND (expires_at IS NULL OR expires_at > now())`
	var value []byte
	err := s.pool.QueryRow(ctx, q, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *Postgres) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	const q = `
INSERT INTO kv_entries (key, value, expires_at) VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`
	_, err := s.pool.Exec(ctx, q, key, value, expiry(ttl))
	return err
}

// Append is a single upsert statement: concurrent producers serialize on the
// row and neither loses its bytes. An expired remnant is replaced instead of
// extended.
func (s *Postgres) Append(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	const q = `
INSERT INTO kv_entries (key, value, expires_at) VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE SET
	value = CASE
		WHEN kv_entries.expires_at IS NOT NULL AND kv_entries.expires_at <= now()
			THEN EXCLUDED.value
		ELSE kv_entries.value || EXCLUDED.value
	END,
	expires_at = EXCLUDED.expires_at`
	_, err := s.pool.Exec(ctx, q, key, value, expiry(ttl))
	return err
}

func (s *Postgres) Delete(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM kv_entries WHERE key = $1`, key)
	return err
}

func expiry(ttl time.Duration) pgtype.Timestamptz {
	if ttl <= 0 {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: time.Now().Add(ttl), Valid: true}
}
