package message

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	dbpkg "github.com/omnirelay/omnirelay/internal/db"
	"github.com/omnirelay/omnirelay/internal/protocol"
)

// Record is one persisted normalized message.
type Record struct {
	ID         string                `json:"id"`
	TenantID   string                `json:"tenant_id"`
	ProjectID  string                `json:"project_id,omitempty"`
	ThreadID   string                `json:"thread_id"`
	Type       protocol.MessageType  `json:"type"`
	Direction  protocol.Direction    `json:"direction"`
	Content    protocol.Content      `json:"content"`
	ExternalID string                `json:"external_id,omitempty"`
	SentAt     time.Time             `json:"sent_at"`
	CreatedAt  time.Time             `json:"created_at"`
}

// Store is the normalized-message persistence boundary.
type Store interface {
	Persist(ctx context.Context, tenantID, projectID, threadID string, msg protocol.TypedMessage) (Record, error)
	ListByThread(ctx context.Context, threadID string, limit int32) ([]Record, error)
}

// PGStore persists normalized messages in Postgres.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a Postgres-backed message store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) Persist(ctx context.Context, tenantID, projectID, threadID string, msg protocol.TypedMessage) (Record, error) {
	content, err := json.Marshal(msg.Content)
	if err != nil {
		return Record{}, fmt.Errorf("encode message content: %w", err)
	}
	rec := Record{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		ProjectID:  projectID,
		ThreadID:   threadID,
		Type:       msg.Type,
		Direction:  msg.Direction,
		Content:    msg.Content,
		ExternalID: msg.Metadata.ExternalMessageID,
		SentAt:     msg.Timestamp,
	}
	const q = `
INSERT INTO messages (id, tenant_id, project_id, thread_id, type, direction, content, external_id, sent_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING created_at`
	err = s.pool.QueryRow(ctx, q,
		rec.ID, tenantID, dbpkg.Text(projectID), threadID,
		string(msg.Type), string(msg.Direction), content,
		dbpkg.Text(rec.ExternalID), msg.Timestamp).Scan(&rec.CreatedAt)
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (s *PGStore) ListByThread(ctx context.Context, threadID string, limit int32) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
SELECT id, tenant_id, COALESCE(project_id, ''), thread_id, type, direction, content,
	COALESCE(external_id, ''), sent_at, created_at
FROM messages WHERE thread_id = $1 ORDER BY sent_at DESC LIMIT $2`
	rows, err := s.pool.Query(ctx, q, threadID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec        Record
			typ, dir   string
			contentRaw []byte
		)
		if err := rows.Scan(&rec.ID, &rec.TenantID, &rec.ProjectID, &rec.ThreadID,
			&typ, &dir, &contentRaw, &rec.ExternalID, &rec.SentAt, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Type = protocol.MessageType(typ)
		rec.Direction = protocol.Direction(dir)
		if err := json.Unmarshal(contentRaw, &rec.Content); err != nil {
			return nil, fmt.Errorf("decode message content: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
