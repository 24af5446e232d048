package webhook_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/omnirelay/omnirelay/internal/webhook"
)

// fakeStore enforces the transition table in memory so the service-level
// lifecycle can be exercised without a database.
type fakeStore struct {
	mu          sync.Mutex
	events      map[string]webhook.Event
	transitions []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{events: map[string]webhook.Event{}}
}

func (s *fakeStore) Create(_ context.Context, input webhook.CreateInput) (webhook.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	event := webhook.Event{
		ID:        uuid.NewString(),
		TenantID:  input.TenantID,
		Kind:      input.Kind,
		Provider:  input.Provider,
		Status:    webhook.StatusPending,
		Payload:   input.Payload,
		QueueName: input.QueueName,
		CreatedAt: time.Now(),
	}
	s.events[event.ID] = event
	return event, nil
}

func (s *fakeStore) Get(_ context.Context, id string) (webhook.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[id]
	if !ok {
		return webhook.Event{}, webhook.ErrNotFound
	}
	return event, nil
}

func (s *fakeStore) ListByTenant(_ context.Context, tenantID string, _ int32) ([]webhook.Event, error) {
	return nil, nil
}

func (s *fakeStore) move(id string, from []webhook.Status, to webhook.Status, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[id]
	if !ok {
		return webhook.ErrNotFound
	}
	for _, status := range from {
		if event.Status == status {
			event.Status = to
			event.ErrorMessage = errMsg
			s.events[id] = event
			s.transitions = append(s.transitions, string(to))
			return nil
		}
	}
	return webhook.ErrInvalidTransition
}

func (s *fakeStore) MarkProcessing(_ context.Context, id string) error {
	return s.move(id, []webhook.Status{webhook.StatusPending}, webhook.StatusProcessing, "")
}

func (s *fakeStore) MarkProcessed(_ context.Context, id string) error {
	return s.move(id, []webhook.Status{webhook.StatusProcessing}, webhook.StatusProcessed, "")
}

func (s *fakeStore) MarkFailed(_ context.Context, id, errorMessage string) error {
	return s.move(id, []webhook.Status{webhook.StatusProcessing}, webhook.StatusFailed, errorMessage)
}

func (s *fakeStore) ResetToPending(_ context.Context, id string) error {
	return s.move(id, []webhook.Status{webhook.StatusProcessed, webhook.StatusFailed}, webhook.StatusPending, "")
}

func (s *fakeStore) ListStaleProcessing(_ context.Context, _ time.Time) ([]webhook.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []webhook.Event
	for _, event := range s.events {
		if event.Status == webhook.StatusProcessing {
			out = append(out, event)
		}
	}
	return out, nil
}

func (s *fakeStore) ListStalePending(context.Context, time.Time) ([]webhook.Event, error) {
	return nil, nil
}

func record(t *testing.T, svc *webhook.Service) webhook.Event {
	t.Helper()
	event, err := svc.Record(context.Background(), webhook.CreateInput{
		TenantID: "t1", Kind: webhook.KindChat, Provider: "whaticket",
		Payload: []byte(`{}`), QueueName: "webhook-whaticket-default",
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	return event
}

func TestLifecycle_HappyPath(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newFakeStore()
	svc := webhook.NewService(nil, store)
	event := record(t, svc)

	if err := svc.BeginProcessing(ctx, event.ID); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := svc.Complete(ctx, event.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	got, _ := svc.Get(ctx, event.ID)
	if got.Status != webhook.StatusProcessed {
		t.Fatalf("status = %s", got.Status)
	}
	if !got.Status.Terminal() {
		t.Fatal("PROCESSED must be terminal")
	}
}

func TestLifecycle_TerminalStatesRejectFurtherTransitions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newFakeStore()
	svc := webhook.NewService(nil, store)
	event := record(t, svc)

	_ = svc.BeginProcessing(ctx, event.ID)
	_ = svc.Complete(ctx, event.ID)

	if err := svc.BeginProcessing(ctx, event.ID); !errors.Is(err, webhook.ErrInvalidTransition) {
		t.Fatalf("begin on terminal: %v", err)
	}
	if err := svc.Complete(ctx, event.ID); !errors.Is(err, webhook.ErrInvalidTransition) {
		t.Fatalf("complete on terminal: %v", err)
	}
	if err := svc.Fail(ctx, event.ID, errors.New("late")); !errors.Is(err, webhook.ErrInvalidTransition) {
		t.Fatalf("fail on terminal: %v", err)
	}
}

func TestReprocess_RequiresTerminalState(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newFakeStore()
	svc := webhook.NewService(nil, store)
	event := record(t, svc)

	if _, err := svc.Reprocess(ctx, event.ID); !errors.Is(err, webhook.ErrInvalidTransition) {
		t.Fatalf("reprocess PENDING: %v", err)
	}

	_ = svc.BeginProcessing(ctx, event.ID)
	_ = svc.Fail(ctx, event.ID, errors.New("boom"))

	got, err := svc.Reprocess(ctx, event.ID)
	if err != nil {
		t.Fatalf("reprocess FAILED: %v", err)
	}
	if got.Status != webhook.StatusPending {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestReclaimStale_KeepsTransitionTableClosed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newFakeStore()
	svc := webhook.NewService(nil, store)
	event := record(t, svc)

	_ = svc.BeginProcessing(ctx, event.ID)

	stale, err := svc.StaleProcessing(ctx, time.Minute)
	if err != nil {
		t.Fatalf("stale list: %v", err)
	}
	if len(stale) != 1 {
		t.Fatalf("stale = %d", len(stale))
	}

	if err := svc.ReclaimStale(ctx, event.ID); err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	got, _ := svc.Get(ctx, event.ID)
	if got.Status != webhook.StatusPending {
		t.Fatalf("status = %s", got.Status)
	}
	// The reclaim must have passed through FAILED, never PROCESSING→PENDING
	// directly.
	want := []string{"PROCESSING", "FAILED", "PENDING"}
	if len(store.transitions) != len(want) {
		t.Fatalf("transitions = %v", store.transitions)
	}
	for i, status := range want {
		if store.transitions[i] != status {
			t.Fatalf("transitions = %v, want %v", store.transitions, want)
		}
	}
}
