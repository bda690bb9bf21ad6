package ratelimit

import (
	"context"
	"sync"
	"time"

	"autoapply/internal/platform/redis"
)

// RedisStore persists counters in Redis so quotas survive restarts and are
// shared across workers.
type RedisStore struct {
	redis *redis.Service
}

func NewRedisStore(r *redis.Service) *RedisStore {
	return &RedisStore{redis: r}
}

func (s *RedisStore) Incr(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	return s.redis.IncrCounter(ctx, key, expiry)
}

func (s *RedisStore) Get(ctx context.Context, key string) (int64, error) {
	return s.redis.GetCounter(ctx, key)
}

// MemoryStore is a process-local Store for tests and single-node runs.
type MemoryStore struct {
	mu     sync.Mutex
	counts map[string]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counts: make(map[string]int64)}
}

func (s *MemoryStore) Incr(_ context.Context, key string, _ time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[key]++
	return s.counts[key], nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[key], nil
}
