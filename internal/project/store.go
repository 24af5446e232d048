package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/omnirelay/omnirelay/internal/ai"
)

// PGStore reads project configuration from Postgres.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a Postgres-backed project store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) GetConfig(ctx context.Context, tenantID, projectID string) (Config, error) {
	const q = `
SELECT project_type, active, buffering_enabled, buffer_timeout_ms, blocked_senders, model_config
FROM projects WHERE tenant_id = $1 AND project_id = $2`
	cfg := Config{TenantID: tenantID, ProjectID: projectID}
	var modelRaw []byte
	err := s.pool.QueryRow(ctx, q, tenantID, projectID).Scan(
		&cfg.Type, &cfg.Active, &cfg.BufferingEnabled, &cfg.BufferTimeoutMs,
		&cfg.BlockedSenders, &modelRaw)
	if errors.Is(err, pgx.ErrNoRows) {
		return Config{}, ErrNotFound
	}
	if err != nil {
		return Config{}, err
	}
	if len(modelRaw) > 0 {
		var model ai.ModelConfig
		if err := json.Unmarshal(modelRaw, &model); err != nil {
			return Config{}, fmt.Errorf("decode model config: %w", err)
		}
		cfg.Model = model
	}
	return cfg, nil
}
