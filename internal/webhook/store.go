package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	dbpkg "github.com/omnirelay/omnirelay/internal/db"
)

// PGStore persists webhook events in Postgres.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a Postgres-backed event store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const eventColumns = `id, tenant_id, project_id, kind, provider, channel, implementation,
	status, payload, queue_name, error_message, created_at, processing_at, processed_at`

func (s *PGStore) Create(ctx context.Context, input CreateInput) (Event, error) {
	id := uuid.NewString()
	const q = `
INSERT INTO webhook_events (id, tenant_id, project_id, kind, provider, channel, implementation, status, payload, queue_name)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING ` + eventColumns
	row := s.pool.QueryRow(ctx, q,
		id, input.TenantID, dbpkg.Text(input.ProjectID), string(input.Kind), input.Provider,
		dbpkg.Text(input.Channel), dbpkg.Text(input.Implementation), string(StatusPending),
		input.Payload, input.QueueName)
	return scanEvent(row)
}

func (s *PGStore) Get(ctx context.Context, id string) (Event, error) {
	// Ids arrive from URLs; a malformed one cannot match any row and must
	// not surface as a cast error.
	uid, err := dbpkg.ParseUUID(id)
	if err != nil {
		return Event{}, ErrNotFound
	}
	const q = `SELECT ` + eventColumns + ` FROM webhook_events WHERE id = $1`
	event, err := scanEvent(s.pool.QueryRow(ctx, q, uid))
	if errors.Is(err, pgx.ErrNoRows) {
		return Event{}, ErrNotFound
	}
	return event, err
}

func (s *PGStore) ListByTenant(ctx context.Context, tenantID string, limit int32) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `SELECT ` + eventColumns + `
FROM webhook_events WHERE tenant_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := s.pool.Query(ctx, q, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

// MarkProcessing moves PENDING to PROCESSING.
func (s *PGStore) MarkProcessing(ctx context.Context, id string) error {
	const q = `
UPDATE webhook_events SET status = $2, processing_at = now()
WHERE id = $1 AND status = $3`
	return s.transition(ctx, q, id, StatusProcessing, StatusPending)
}

// MarkProcessed moves PROCESSING to the PROCESSED terminal state.
func (s *PGStore) MarkProcessed(ctx context.Context, id string) error {
	const q = `
UPDATE webhook_events SET status = $2, processed_at = now(), error_message = NULL
WHERE id = $1 AND status = $3`
	return s.transition(ctx, q, id, StatusProcessed, StatusProcessing)
}

// MarkFailed moves PROCESSING to the FAILED terminal state with the captured
// error message.
func (s *PGStore) MarkFailed(ctx context.Context, id, errorMessage string) error {
	const q = `
UPDATE webhook_events SET status = $2, processed_at = now(), error_message = $4
WHERE id = $1 AND status = $3`
	tag, err := s.pool.Exec(ctx, q, id, string(StatusFailed), string(StatusProcessing), errorMessage)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return s.transitionMismatch(ctx, id)
	}
	return nil
}

// ResetToPending is the corrective reprocessing path: it is the only
// mutation allowed out of a terminal state.
func (s *PGStore) ResetToPending(ctx context.Context, id string) error {
	uid, err := dbpkg.ParseUUID(id)
	if err != nil {
		return ErrNotFound
	}
	const q = `
UPDATE webhook_events
SET status = $2, error_message = NULL, processing_at = NULL, processed_at = NULL
WHERE id = $1 AND status IN ($3, $4)`
	tag, err := s.pool.Exec(ctx, q, uid, string(StatusPending), string(StatusProcessed), string(StatusFailed))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return s.transitionMismatch(ctx, id)
	}
	return nil
}

// ListStaleProcessing returns events stuck in PROCESSING since before
// olderThan, for the optional reclaim sweep.
func (s *PGStore) ListStaleProcessing(ctx context.Context, olderThan time.Time) ([]Event, error) {
	const q = `SELECT ` + eventColumns + `
FROM webhook_events WHERE status = $1 AND processing_at < $2 ORDER BY processing_at`
	rows, err := s.pool.Query(ctx, q, string(StatusProcessing), olderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

// ListStalePending returns PENDING events created before olderThan. Their
// processing job was lost somewhere between persist and claim, usually an
// enqueue failure right after ingestion.
func (s *PGStore) ListStalePending(ctx context.Context, olderThan time.Time) ([]Event, error) {
	const q = `SELECT ` + eventColumns + `
FROM webhook_events WHERE status = $1 AND created_at < $2 ORDER BY created_at`
	rows, err := s.pool.Query(ctx, q, string(StatusPending), olderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

func (s *PGStore) transition(ctx context.Context, query, id string, to, from Status) error {
	tag, err := s.pool.Exec(ctx, query, id, string(to), string(from))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return s.transitionMismatch(ctx, id)
	}
	return nil
}

// transitionMismatch distinguishes a missing row from a state conflict.
func (s *PGStore) transitionMismatch(ctx context.Context, id string) error {
	event, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: event %s is %s", ErrInvalidTransition, id, event.Status)
}

func scanEvent(row pgx.Row) (Event, error) {
	var (
		e                               Event
		projectID, channel, impl, emsg  pgtype.Text
		kind, status                    string
		processingAt, processedAt       pgtype.Timestamptz
	)
	err := row.Scan(&e.ID, &e.TenantID, &projectID, &kind, &e.Provider, &channel, &impl,
		&status, &e.Payload, &e.QueueName, &emsg, &e.CreatedAt, &processingAt, &processedAt)
	if err != nil {
		return Event{}, err
	}
	e.ProjectID = dbpkg.TextValue(projectID)
	e.Channel = dbpkg.TextValue(channel)
	e.Implementation = dbpkg.TextValue(impl)
	e.ErrorMessage = dbpkg.TextValue(emsg)
	e.Kind = Kind(kind)
	e.Status = Status(status)
	if processingAt.Valid {
		t := processingAt.Time
		e.ProcessingAt = &t
	}
	if processedAt.Valid {
		t := processedAt.Time
		e.ProcessedAt = &t
	}
	return e, nil
}

func collectEvents(rows pgx.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
