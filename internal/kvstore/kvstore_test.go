package kvstore_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/omnirelay/omnirelay/internal/kvstore"
)

func TestMemory_SetGetDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := kvstore.NewMemory()

	if err := store.Set(ctx, "k", []byte("v1"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := store.Get(ctx, "k")
	if err != nil || !ok || string(got) != "v1" {
		t.Fatalf("get = %q ok=%v err=%v", got, ok, err)
	}

	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "k"); ok {
		t.Fatal("key should be gone after delete")
	}
}

func TestMemory_Expiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := kvstore.NewMemory()

	if err := store.Set(ctx, "k", []byte("v"), 5*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, ok, _ := store.Get(ctx, "k"); ok {
		t.Fatal("expired key must not be readable")
	}
}

func TestMemory_AppendCreatesAndExtends(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := kvstore.NewMemory()

	if err := store.Append(ctx, "k", []byte("a"), 0); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Append(ctx, "k", []byte("b"), 0); err != nil {
		t.Fatalf("append: %v", err)
	}
	got, _, _ := store.Get(ctx, "k")
	if string(got) != "ab" {
		t.Fatalf("value = %q", got)
	}
}

func TestMemory_ConcurrentAppendsLoseNothing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := kvstore.NewMemory()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Append(ctx, "k", []byte("x"), 0)
		}()
	}
	wg.Wait()

	got, _, _ := store.Get(ctx, "k")
	if len(got) != 50 {
		t.Fatalf("appended %d bytes, want 50", len(got))
	}
}
