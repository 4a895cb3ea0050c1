package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/observability"
)

// Window is the state of one rate-limit counter after an increment
type Window struct {
	// TotalHits is the number of requests observed in the current window,
	// including this one
	TotalHits int64
	// WindowEnd is when the counter resets
	WindowEnd time.Time
}

// Store counts requests per key inside fixed windows. Incr creates the window
// on first hit and increments in place until WindowEnd passes, after which the
// key starts a fresh window.
type Store interface {
	Incr(ctx context.Context, key string, window time.Duration) (*Window, error)
}

// RedisStore counts in Redis so limits are shared across instances
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed store. The client is shared with the
// authorization cache and owned by the composition root.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Incr atomically increments the key's counter and reads its TTL in one
// pipeline. The expiry is set only when this hit opened the window, so later
// hits never extend it; a missing expiry (e.g. a crash between INCR and
// EXPIRE) is healed by re-arming the window.
func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (*Window, error) {
	redisKey := fmt.Sprintf("%s:%s", s.prefix, key)

	pipe := s.client.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.TTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis incr failed: %w", err)
	}

	count := incr.Val()
	remaining := ttl.Val()
	if count == 1 || remaining < 0 {
		if err := s.client.Expire(ctx, redisKey, window).Err(); err != nil {
			return nil, fmt.Errorf("redis expire failed: %w", err)
		}
		remaining = window
	}

	return &Window{
		TotalHits: count,
		WindowEnd: time.Now().Add(remaining),
	}, nil
}

// Reset clears the counter for a key
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, fmt.Sprintf("%s:%s", s.prefix, key)).Err()
}

type memoryWindow struct {
	count     int64
	windowEnd time.Time
}

// MemoryStore counts in a mutex-guarded map. It is the per-process fallback
// behind HybridStore and a complete Store on its own for single-instance
// deployments.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
}

// NewMemoryStore creates an empty in-process store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string]*memoryWindow)}
}

// Incr increments the key's window, starting a fresh one when the key is
// absent or its window has passed. It never fails.
func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (*Window, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || now.After(w.windowEnd) {
		w = &memoryWindow{windowEnd: now.Add(window)}
		s.windows[key] = w
	}
	w.count++

	return &Window{TotalHits: w.count, WindowEnd: w.windowEnd}, nil
}

// Sweep deletes windows whose end has passed, bounding memory growth
func (s *MemoryStore) Sweep() {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, w := range s.windows {
		if now.After(w.windowEnd) {
			delete(s.windows, key)
		}
	}
}

// StartSweep runs Sweep on a fixed interval until ctx is cancelled
func (s *MemoryStore) StartSweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Len reports the number of live windows
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// HybridStore serves increments from a networked primary and falls back to an
// in-process store on any primary error. A failover resets the affected keys'
// counts (the fallback starts fresh windows), which is the accepted accuracy
// cost of staying available.
type HybridStore struct {
	primary  Store
	fallback *MemoryStore
	logger   *observability.Logger
	metrics  *observability.Metrics

	mu       sync.Mutex
	degraded bool
}

// NewHybridStore wires a primary store to an in-process fallback. metrics may
// be nil.
func NewHybridStore(primary Store, fallback *MemoryStore, logger *observability.Logger, metrics *observability.Metrics) *HybridStore {
	return &HybridStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		metrics:  metrics,
	}
}

// Incr tries the primary first and transparently falls back on error. It only
// fails when the caller's context is done.
func (s *HybridStore) Incr(ctx context.Context, key string, window time.Duration) (*Window, error) {
	w, err := s.primary.Incr(ctx, key, window)
	if err == nil {
		s.setDegraded(false, nil)
		return w, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	s.setDegraded(true, err)
	if s.metrics != nil {
		s.metrics.RateLimitFallbackTotal.Inc()
	}
	return s.fallback.Incr(ctx, key, window)
}

// Degraded reports whether the last primary call failed
func (s *HybridStore) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// setDegraded tracks fallback state and logs only on transitions, so a long
// outage produces two log lines instead of one per request
func (s *HybridStore) setDegraded(degraded bool, cause error) {
	s.mu.Lock()
	changed := s.degraded != degraded
	s.degraded = degraded
	s.mu.Unlock()

	if !changed {
		return
	}
	if s.metrics != nil {
		if degraded {
			s.metrics.RateLimitFallbackMode.Set(1)
		} else {
			s.metrics.RateLimitFallbackMode.Set(0)
		}
	}
	if degraded {
		s.logger.WithError(cause).Warn("rate limit backend unavailable, counting in process")
	} else {
		s.logger.Info("rate limit backend recovered")
	}
}
