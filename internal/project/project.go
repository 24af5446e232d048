package project

import (
	"context"
	"errors"
	"sync"

	"github.com/omnirelay/omnirelay/internal/ai"
)

// ErrNotFound is returned when no configuration row exists for a project.
var ErrNotFound = errors.New("project config not found")

// DefaultType is the pipeline definition applied to projects without an
// explicit type and to unknown types.
const DefaultType = "default"

// Config is the per-project processing configuration consulted on every
// inbound message.
type Config struct {
	TenantID         string         `json:"tenant_id"`
	ProjectID        string         `json:"project_id"`
	Type             string         `json:"type"`
	Active           bool           `json:"active"`
	BufferingEnabled bool           `json:"buffering_enabled"`
	BufferTimeoutMs  int            `json:"buffer_timeout_ms"`
	BlockedSenders   []string       `json:"blocked_senders,omitempty"`
	Model            ai.ModelConfig `json:"model"`
}

// Store is the project configuration boundary.
type Store interface {
	GetConfig(ctx context.Context, tenantID, projectID string) (Config, error)
}

// Defaults returns the configuration applied to projects with no stored
// row: active, buffering on with the service-wide default timeout.
func Defaults(tenantID, projectID string, timeoutMs int) Config {
	return Config{
		TenantID:         tenantID,
		ProjectID:        projectID,
		Type:             DefaultType,
		Active:           true,
		BufferingEnabled: true,
		BufferTimeoutMs:  timeoutMs,
	}
}

// MemStore is an in-memory Store for tests.
type MemStore struct {
	mu      sync.RWMutex
	configs map[string]Config
}

// NewMemStore creates an empty in-memory project store.
func NewMemStore() *MemStore {
	return &MemStore{configs: map[string]Config{}}
}

// Put stores a configuration.
func (s *MemStore) Put(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[cfg.TenantID+"/"+cfg.ProjectID] = cfg
}

func (s *MemStore) GetConfig(_ context.Context, tenantID, projectID string) (Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[tenantID+"/"+projectID]
	if !ok {
		return Config{}, ErrNotFound
	}
	return cfg, nil
}
