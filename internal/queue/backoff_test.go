package queue

import (
	"math/rand"
	"testing"
	"time"
)

func TestNextRetryAt_WithinJitterWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cfg := BackoffConfig{BaseDelay: time.Second, MaxDelay: time.Minute}
	rng := rand.New(rand.NewSource(1))

	for attempt := 1; attempt <= 10; attempt++ {
		ceiling := cfg.BaseDelay << (attempt - 1)
		if ceiling > cfg.MaxDelay {
			ceiling = cfg.MaxDelay
		}
		got := NextRetryAt(now, attempt, cfg, rng)
		if got.Before(now) || got.After(now.Add(ceiling)) {
			t.Fatalf("attempt %d: retry at %v outside [now, now+%v]", attempt, got, ceiling)
		}
	}
}

func TestNextRetryAt_CapsAtMaxDelay(t *testing.T) {
	t.Parallel()

	now := time.Now()
	cfg := BackoffConfig{BaseDelay: time.Second, MaxDelay: 30 * time.Second}
	rng := rand.New(rand.NewSource(1))

	// Attempts past the shift cap must not overflow or exceed MaxDelay.
	for _, attempt := range []int{20, 31, 64, 1000} {
		got := NextRetryAt(now, attempt, cfg, rng)
		if got.After(now.Add(cfg.MaxDelay)) {
			t.Fatalf("attempt %d exceeded max delay: %v", attempt, got.Sub(now))
		}
	}
}

func TestNextRetryAt_DefaultsOnZeroConfig(t *testing.T) {
	t.Parallel()

	now := time.Now()
	got := NextRetryAt(now, 0, BackoffConfig{}, nil)
	if got.Before(now.Add(-time.Second)) || got.After(now.Add(61*time.Second)) {
		t.Fatalf("retry at %v not within default bounds", got)
	}
}
