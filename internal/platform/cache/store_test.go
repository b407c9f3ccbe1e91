package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/coachdesk/coachdesk/internal/platform/cache"
	_ "github.com/coachdesk/coachdesk/testing"
)

func newStore(t *testing.T) (*cache.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := cache.NewStore(client, nil)
	store.Start(context.Background())
	return store, mr
}

func TestStoreRoundtrip(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	if _, ok := store.Get(ctx, "missing"); ok {
		t.Fatalf("expected miss for unknown key")
	}

	store.Set(ctx, "greeting", []byte("hello"), time.Minute)
	value, ok := store.Get(ctx, "greeting")
	if !ok {
		t.Fatalf("expected hit after set")
	}
	if string(value) != "hello" {
		t.Fatalf("expected hello, got %q", value)
	}
	if store.Status() != cache.StatusAvailable {
		t.Fatalf("expected available status, got %v", store.Status())
	}
}

func TestStoreExpiry(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()

	store.Set(ctx, "ephemeral", []byte("x"), time.Second)
	if _, ok := store.Get(ctx, "ephemeral"); !ok {
		t.Fatalf("expected hit before expiry")
	}

	mr.FastForward(2 * time.Second)
	if _, ok := store.Get(ctx, "ephemeral"); ok {
		t.Fatalf("expected miss after expiry")
	}
}

func TestStoreGetJSONCorruptEntry(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()

	if err := mr.Set("broken", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	var dest map[string]string
	if store.GetJSON(ctx, "broken", &dest) {
		t.Fatalf("expected corrupt entry to read as miss")
	}
	if mr.Exists("broken") {
		t.Fatalf("expected corrupt entry to be deleted")
	}
}

func TestStoreDeleteByPattern(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()

	store.Set(ctx, "agent_metrics:7:2025-01", []byte("a"), time.Minute)
	store.Set(ctx, "agent_metrics:7:2025-02", []byte("b"), time.Minute)
	store.Set(ctx, "agent_metrics:71:2025-01", []byte("c"), time.Minute)
	store.Set(ctx, "quick_notes:7", []byte("d"), time.Minute)

	store.DeleteByPattern(ctx, "agent_metrics:7:*")

	if mr.Exists("agent_metrics:7:2025-01") || mr.Exists("agent_metrics:7:2025-02") {
		t.Fatalf("expected agent 7 metric keys removed")
	}
	if !mr.Exists("agent_metrics:71:2025-01") {
		t.Fatalf("expected agent 71 key untouched")
	}
	if !mr.Exists("quick_notes:7") {
		t.Fatalf("expected other prefix untouched")
	}
}

func TestStoreFailsOpenWhenBackendDown(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()

	store.Set(ctx, "k", []byte("v"), time.Minute)
	mr.Close()

	if _, ok := store.Get(ctx, "k"); ok {
		t.Fatalf("expected miss with backend down")
	}
	if store.Status() != cache.StatusUnavailable {
		t.Fatalf("expected unavailable status, got %v", store.Status())
	}

	// Writes and deletes are silent no-ops; nothing panics or errors.
	store.Set(ctx, "k2", []byte("v2"), time.Minute)
	store.Delete(ctx, "k")
	store.DeleteByPattern(ctx, "k*")
	if _, ok := store.Get(ctx, "k2"); ok {
		t.Fatalf("expected miss for write attempted while down")
	}
}

func TestStoreFetchFallsBackToLoader(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()
	mr.Close()

	calls := 0
	var dest []string
	err := store.Fetch(ctx, "list", time.Minute, &dest, func(ctx context.Context) (any, error) {
		calls++
		return []string{"a", "b"}, nil
	})
	if err != nil {
		t.Fatalf("fetch with backend down: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one loader call, got %d", calls)
	}
	if len(dest) != 2 || dest[0] != "a" {
		t.Fatalf("unexpected loader result %v", dest)
	}
}

func TestStoreFetchServesCachedValue(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	loads := 0
	loader := func(ctx context.Context) (any, error) {
		loads++
		return map[string]int{"n": loads}, nil
	}

	var first map[string]int
	if err := store.Fetch(ctx, "doc", time.Minute, &first, loader); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	var second map[string]int
	if err := store.Fetch(ctx, "doc", time.Minute, &second, loader); err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if loads != 1 {
		t.Fatalf("expected loader to run once, ran %d times", loads)
	}
	if second["n"] != 1 {
		t.Fatalf("expected cached value, got %v", second)
	}
}
