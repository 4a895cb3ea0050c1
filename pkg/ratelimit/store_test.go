package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/observability"
)

func setupRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisStore(client, "ratelimit"), mr
}

func discardLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

func TestRedisStore_IncrCounts(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		w, err := store.Incr(ctx, "user:u1", time.Minute)
		if err != nil {
			t.Fatalf("Incr failed: %v", err)
		}
		if w.TotalHits != i {
			t.Errorf("hit %d: TotalHits = %d", i, w.TotalHits)
		}
		if w.WindowEnd.Before(time.Now()) {
			t.Errorf("hit %d: WindowEnd already passed", i)
		}
	}
}

func TestRedisStore_WindowExpiryResets(t *testing.T) {
	store, mr := setupRedisStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.Incr(ctx, "user:u1", time.Minute); err != nil {
			t.Fatalf("Incr failed: %v", err)
		}
	}

	mr.FastForward(2 * time.Minute)

	w, err := store.Incr(ctx, "user:u1", time.Minute)
	if err != nil {
		t.Fatalf("Incr failed: %v", err)
	}
	if w.TotalHits != 1 {
		t.Errorf("counter should reset after the window, got %d", w.TotalHits)
	}
}

func TestRedisStore_LaterHitsDoNotExtendWindow(t *testing.T) {
	store, mr := setupRedisStore(t)
	ctx := context.Background()

	if _, err := store.Incr(ctx, "user:u1", time.Minute); err != nil {
		t.Fatalf("Incr failed: %v", err)
	}
	mr.FastForward(30 * time.Second)
	if _, err := store.Incr(ctx, "user:u1", time.Minute); err != nil {
		t.Fatalf("Incr failed: %v", err)
	}

	if ttl := mr.TTL("ratelimit:user:u1"); ttl > 30*time.Second {
		t.Errorf("second hit extended the window: ttl = %s", ttl)
	}
}

func TestMemoryStore_IncrAndReset(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		w, err := store.Incr(ctx, "k", 30*time.Millisecond)
		if err != nil {
			t.Fatalf("Incr failed: %v", err)
		}
		if w.TotalHits != i {
			t.Errorf("hit %d: TotalHits = %d", i, w.TotalHits)
		}
	}

	time.Sleep(40 * time.Millisecond)

	w, _ := store.Incr(ctx, "k", 30*time.Millisecond)
	if w.TotalHits != 1 {
		t.Errorf("expired window should start fresh, got %d", w.TotalHits)
	}
}

func TestMemoryStore_KeysAreIndependent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	store.Incr(ctx, "a", time.Minute)
	store.Incr(ctx, "a", time.Minute)
	w, _ := store.Incr(ctx, "b", time.Minute)
	if w.TotalHits != 1 {
		t.Errorf("key b should count independently, got %d", w.TotalHits)
	}
}

func TestMemoryStore_SweepDropsExpiredWindows(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		store.Incr(ctx, fmt.Sprintf("k%d", i), 10*time.Millisecond)
	}
	store.Incr(ctx, "live", time.Minute)

	time.Sleep(20 * time.Millisecond)
	store.Sweep()

	if got := store.Len(); got != 1 {
		t.Errorf("sweep should keep only live windows, got %d", got)
	}
}

func TestHybridStore_FallbackMidSession(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	hybrid := NewHybridStore(NewRedisStore(client, "ratelimit"), NewMemoryStore(), discardLogger(), nil)
	ctx := context.Background()

	for i := int64(1); i <= 2; i++ {
		w, err := hybrid.Incr(ctx, "k", time.Minute)
		if err != nil {
			t.Fatalf("Incr failed while healthy: %v", err)
		}
		if w.TotalHits != i {
			t.Errorf("hit %d: TotalHits = %d", i, w.TotalHits)
		}
	}
	if hybrid.Degraded() {
		t.Fatal("store should not be degraded while the backend is up")
	}

	mr.Close()

	// No dropped requests, no panics: increments continue in process
	for i := int64(1); i <= 3; i++ {
		w, err := hybrid.Incr(ctx, "k", time.Minute)
		if err != nil {
			t.Fatalf("Incr must not fail during outage: %v", err)
		}
		if w.TotalHits != i {
			t.Errorf("fallback hit %d: TotalHits = %d (fallback starts fresh windows)", i, w.TotalHits)
		}
	}
	if !hybrid.Degraded() {
		t.Error("store should report degraded during the outage")
	}
}

// flakyStore fails until healed, for transition testing
type flakyStore struct {
	inner Store
	err   error
}

func (f *flakyStore) Incr(ctx context.Context, key string, window time.Duration) (*Window, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.inner.Incr(ctx, key, window)
}

func TestHybridStore_RecoversWhenPrimaryHeals(t *testing.T) {
	primary := &flakyStore{inner: NewMemoryStore(), err: errors.New("connection refused")}
	hybrid := NewHybridStore(primary, NewMemoryStore(), discardLogger(), nil)
	ctx := context.Background()

	if _, err := hybrid.Incr(ctx, "k", time.Minute); err != nil {
		t.Fatalf("Incr must not fail during outage: %v", err)
	}
	if !hybrid.Degraded() {
		t.Fatal("expected degraded after primary failure")
	}

	primary.err = nil
	if _, err := hybrid.Incr(ctx, "k", time.Minute); err != nil {
		t.Fatalf("Incr failed after recovery: %v", err)
	}
	if hybrid.Degraded() {
		t.Error("store should leave degraded mode once the primary heals")
	}
}
