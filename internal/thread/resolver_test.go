package thread_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/omnirelay/omnirelay/internal/protocol"
	"github.com/omnirelay/omnirelay/internal/thread"
)

// memStore is an in-memory thread.Store that can simulate create races: a
// queued race winner is inserted at Create time before the duplicate error
// is returned, the way a concurrent writer would.
type memStore struct {
	threads    []thread.Thread
	raceWinner *thread.Thread
	creates    int
}

func (s *memStore) FindByExternalID(_ context.Context, tenantID, externalID string) (thread.Thread, error) {
	for _, t := range s.threads {
		if t.TenantID == tenantID && t.ExternalID == externalID && externalID != "" {
			return t, nil
		}
	}
	return thread.Thread{}, thread.ErrNotFound
}

func (s *memStore) FindByNaturalKey(_ context.Context, key thread.NaturalKey) (thread.Thread, error) {
	for _, t := range s.threads {
		if t.TenantID == key.TenantID && t.ProjectID == key.ProjectID &&
			t.SenderID == key.SenderID && t.Channel == key.Channel && t.Provider == key.Provider {
			return t, nil
		}
	}
	return thread.Thread{}, thread.ErrNotFound
}

func (s *memStore) Create(_ context.Context, input thread.ResolveInput) (thread.Thread, error) {
	s.creates++
	if s.raceWinner != nil {
		s.threads = append(s.threads, *s.raceWinner)
		s.raceWinner = nil
		return thread.Thread{}, thread.ErrDuplicate
	}
	t := thread.Thread{
		ID:             uuid.NewString(),
		TenantID:       input.TenantID,
		ProjectID:      input.ProjectID,
		SenderID:       input.Sender.ID,
		SenderName:     input.Sender.Name,
		Channel:        input.Channel,
		Provider:       input.Provider,
		Implementation: input.Implementation,
		ExternalID:     input.ExternalID,
		Status:         thread.StatusOpen,
		CreatedAt:      time.Now(),
	}
	s.threads = append(s.threads, t)
	return t, nil
}

func (s *memStore) TouchLastMessage(_ context.Context, id string, at time.Time) error {
	for i, t := range s.threads {
		if t.ID == id {
			if at.After(t.LastMessageAt) {
				s.threads[i].LastMessageAt = at
			}
			return nil
		}
	}
	return thread.ErrNotFound
}

func input() thread.ResolveInput {
	return thread.ResolveInput{
		TenantID:  "t1",
		ProjectID: "p1",
		Sender:    protocol.Participant{ID: "5511999990000", Name: "Ana"},
		Channel:   "whatsapp",
		Provider:  "whaticket",
	}
}

func TestFindOrCreate_ValidatesIdentity(t *testing.T) {
	t.Parallel()
	r := thread.NewResolver(nil, &memStore{})
	ctx := context.Background()

	in := input()
	in.TenantID = "  "
	if _, err := r.FindOrCreate(ctx, in); err == nil {
		t.Fatal("want error for blank tenant")
	}

	in = input()
	in.Sender.ID = ""
	if _, err := r.FindOrCreate(ctx, in); err == nil {
		t.Fatal("want error for blank sender")
	}
}

func TestFindOrCreate_CreatesWhenAbsent(t *testing.T) {
	t.Parallel()
	store := &memStore{}
	r := thread.NewResolver(nil, store)

	got, err := r.FindOrCreate(context.Background(), input())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.ID == "" || got.Status != thread.StatusOpen {
		t.Fatalf("thread = %+v", got)
	}
	if store.creates != 1 {
		t.Fatalf("creates = %d", store.creates)
	}

	// Second resolve with the same identity reuses the row.
	again, err := r.FindOrCreate(context.Background(), input())
	if err != nil {
		t.Fatalf("resolve again: %v", err)
	}
	if again.ID != got.ID {
		t.Fatalf("resolved %q, want %q", again.ID, got.ID)
	}
	if store.creates != 1 {
		t.Fatalf("creates = %d after re-resolve", store.creates)
	}
}

func TestFindOrCreate_ExternalIDWinsOverNaturalKey(t *testing.T) {
	t.Parallel()
	store := &memStore{}
	r := thread.NewResolver(nil, store)
	ctx := context.Background()

	// Seed two threads: one matching the natural key, one holding the
	// external id under a different sender.
	byNaturalKey, _ := store.Create(ctx, input())
	external := input()
	external.Sender.ID = "other-sender"
	external.ExternalID = "ticket-42"
	byExternal, _ := store.Create(ctx, external)

	in := input()
	in.ExternalID = "ticket-42"
	got, err := r.FindOrCreate(ctx, in)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.ID != byExternal.ID {
		t.Fatalf("resolved %q, want external-id match %q (natural key was %q)",
			got.ID, byExternal.ID, byNaturalKey.ID)
	}
}

func TestFindOrCreate_UnknownExternalIDFallsBack(t *testing.T) {
	t.Parallel()
	store := &memStore{}
	r := thread.NewResolver(nil, store)
	ctx := context.Background()

	existing, _ := store.Create(ctx, input())

	in := input()
	in.ExternalID = "never-seen"
	got, err := r.FindOrCreate(ctx, in)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.ID != existing.ID {
		t.Fatalf("resolved %q, want natural-key fallback %q", got.ID, existing.ID)
	}
}

func TestFindOrCreate_LostRaceRereads(t *testing.T) {
	t.Parallel()
	winner := thread.Thread{
		ID: uuid.NewString(), TenantID: "t1", ProjectID: "p1",
		SenderID: "5511999990000", Channel: "whatsapp", Provider: "whaticket",
		Status: thread.StatusOpen,
	}
	store := &memStore{raceWinner: &winner}
	r := thread.NewResolver(nil, store)
	ctx := context.Background()

	got, err := r.FindOrCreate(ctx, input())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.ID != winner.ID {
		t.Fatalf("resolved %q, want race winner %q", got.ID, winner.ID)
	}
}

func TestTouch_AdvancesLastMessageAt(t *testing.T) {
	t.Parallel()
	store := &memStore{}
	r := thread.NewResolver(nil, store)
	ctx := context.Background()

	created, _ := store.Create(ctx, input())
	at := time.Now().Add(time.Minute)
	if err := r.Touch(ctx, created.ID, at); err != nil {
		t.Fatalf("touch: %v", err)
	}
	if !store.threads[0].LastMessageAt.Equal(at) {
		t.Fatalf("last_message_at = %v, want %v", store.threads[0].LastMessageAt, at)
	}
}
