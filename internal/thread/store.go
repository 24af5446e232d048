package thread

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	dbpkg "github.com/omnirelay/omnirelay/internal/db"
)

// PGStore persists threads in Postgres. Uniqueness is enforced by the
// partial external-id index and the composite natural-key index; create
// races surface as ErrDuplicate for the resolver to retry.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a Postgres-backed thread store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const threadColumns = `id, tenant_id, project_id, sender_id, sender_name, sender_phone,
	channel, provider, implementation, external_id, status, last_message_at, created_at`

func (s *PGStore) FindByExternalID(ctx context.Context, tenantID, externalID string) (Thread, error) {
	const q = `SELECT ` + threadColumns + `
FROM threads WHERE tenant_id = $1 AND external_id = $2`
	return s.findOne(ctx, q, tenantID, externalID)
}

func (s *PGStore) FindByNaturalKey(ctx context.Context, key NaturalKey) (Thread, error) {
	const q = `SELECT ` + threadColumns + `
FROM threads
WHERE tenant_id = $1 AND project_id = $2 AND sender_id = $3 AND channel = $4 AND provider = $5`
	return s.findOne(ctx, q, key.TenantID, key.ProjectID, key.SenderID, key.Channel, key.Provider)
}

func (s *PGStore) Create(ctx context.Context, input ResolveInput) (Thread, error) {
	id := uuid.NewString()
	const q = `
INSERT INTO threads (id, tenant_id, project_id, sender_id, sender_name, sender_phone,
	channel, provider, implementation, external_id, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING ` + threadColumns
	row := s.pool.QueryRow(ctx, q,
		id, input.TenantID, input.ProjectID, input.Sender.ID,
		dbpkg.Text(input.Sender.Name), dbpkg.Text(input.Sender.Phone),
		input.Channel, input.Provider, dbpkg.Text(input.Implementation),
		dbpkg.Text(input.ExternalID), string(StatusOpen))
	thread, err := scanThread(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Thread{}, ErrDuplicate
		}
		return Thread{}, err
	}
	return thread, nil
}

func (s *PGStore) TouchLastMessage(ctx context.Context, id string, at time.Time) error {
	const q = `UPDATE threads SET last_message_at = $2 WHERE id = $1 AND last_message_at < $2`
	_, err := s.pool.Exec(ctx, q, id, at)
	return err
}

func (s *PGStore) findOne(ctx context.Context, query string, args ...any) (Thread, error) {
	thread, err := scanThread(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return Thread{}, ErrNotFound
	}
	return thread, err
}

func scanThread(row pgx.Row) (Thread, error) {
	var (
		t                                    Thread
		senderName, senderPhone, impl, extID pgtype.Text
		status                               string
	)
	err := row.Scan(&t.ID, &t.TenantID, &t.ProjectID, &t.SenderID, &senderName, &senderPhone,
		&t.Channel, &t.Provider, &impl, &extID, &status, &t.LastMessageAt, &t.CreatedAt)
	if err != nil {
		return Thread{}, err
	}
	t.SenderName = dbpkg.TextValue(senderName)
	t.SenderPhone = dbpkg.TextValue(senderPhone)
	t.Implementation = dbpkg.TextValue(impl)
	t.ExternalID = dbpkg.TextValue(extID)
	t.Status = Status(status)
	return t, nil
}
