package thread

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Resolver finds or lazily creates the thread a message belongs to.
type Resolver struct {
	store  Store
	logger *slog.Logger
}

// NewResolver creates a thread resolver.
func NewResolver(log *slog.Logger, store Store) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		store:  store,
		logger: log.With(slog.String("service", "thread")),
	}
}

// FindOrCreate resolves a thread in a fixed order: external id first (it is
// authoritative when present, since providers reuse sender ids across
// conversations), then the composite natural key, then create. A create
// that loses a concurrency race re-reads by the same order.
func (r *Resolver) FindOrCreate(ctx context.Context, input ResolveInput) (Thread, error) {
	if strings.TrimSpace(input.TenantID) == "" {
		return Thread{}, fmt.Errorf("tenant id is required")
	}
	if strings.TrimSpace(input.Sender.ID) == "" {
		return Thread{}, fmt.Errorf("sender id is required")
	}

	found, err := r.lookup(ctx, input)
	if err == nil {
		return found, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Thread{}, err
	}

	created, err := r.store.Create(ctx, input)
	if errors.Is(err, ErrDuplicate) {
		// Concurrent create won; the row now exists.
		return r.lookup(ctx, input)
	}
	if err != nil {
		return Thread{}, err
	}
	r.logger.Info("thread created",
		slog.String("thread_id", created.ID),
		slog.String("tenant_id", created.TenantID),
		slog.String("sender_id", created.SenderID),
		slog.String("external_id", created.ExternalID))
	return created, nil
}

// Touch records message activity on the thread.
func (r *Resolver) Touch(ctx context.Context, id string, at time.Time) error {
	if at.IsZero() {
		at = time.Now()
	}
	return r.store.TouchLastMessage(ctx, id, at)
}

func (r *Resolver) lookup(ctx context.Context, input ResolveInput) (Thread, error) {
	if ext := strings.TrimSpace(input.ExternalID); ext != "" {
		found, err := r.store.FindByExternalID(ctx, input.TenantID, ext)
		if err == nil {
			return found, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Thread{}, err
		}
	}
	return r.store.FindByNaturalKey(ctx, NaturalKey{
		TenantID:  input.TenantID,
		ProjectID: input.ProjectID,
		SenderID:  input.Sender.ID,
		Channel:   input.Channel,
		Provider:  input.Provider,
	})
}
