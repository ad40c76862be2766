// Package working implements the Working (Tier 1) memory store: a
// key-value store with per-entry TTL, expected p95 reads under 20ms,
// lossy by design. It also backs the rate-limit counters, which must be
// atomic increments shared across dispatcher instances. Those counters
// are fixed-window buckets (see ratelimit.go), not a sliding window.
package working

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// Store is the capability set every Working tier backend implements:
// Get/Put for TTL key-value, and Incr for atomic rate-limit counters.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	Scan(ctx context.Context, prefix string) ([]string, error)
	// Incr atomically increments key by 1, sets ttl only on first creation,
	// and returns the post-increment value. Used for fixed-window counters.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// RedisStore is the production backend, chosen because rate-limit
// counters must be atomic across replicas — a local mutex cannot provide
// that once ChittyRouter runs more than one process.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to addr (e.g. "localhost:6379").
func NewRedisStore(addr string) *RedisStore {
	return &RedisStore{client: redis.NewClient(&redis.Options{Addr: addr})}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *RedisStore) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Scan(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

func (s *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, err
		}
	}
	return n, nil
}

func (s *RedisStore) Close() error { return s.client.Close() }

// Ping confirms the Redis connection is reachable, used at startup to
// decide whether to fall back to LocalStore.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// LocalStore is an in-process fallback for local dev and unit tests,
// backed by patrickmn/go-cache; it satisfies the same Store contract so
// callers never branch on which backend is active.
type LocalStore struct {
	cache *gocache.Cache
}

// NewLocalStore builds an in-memory TTL store with a 10-minute cleanup
// sweep.
func NewLocalStore() *LocalStore {
	return &LocalStore{cache: gocache.New(gocache.NoExpiration, 10*time.Minute)}
}

func (s *LocalStore) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := s.cache.Get(key)
	if !ok {
		return "", false, nil
	}
	return v.(string), true, nil
}

func (s *LocalStore) Put(_ context.Context, key, value string, ttl time.Duration) error {
	s.cache.Set(key, value, ttl)
	return nil
}

func (s *LocalStore) Scan(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	for k := range s.cache.Items() {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (s *LocalStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	if err := s.cache.Add(key, int64(0), ttl); err != nil {
		// already present; fall through to Increment
	}
	n, err := s.cache.IncrementInt64(key, 1)
	if err != nil {
		// lost the race with expiry between Add and Increment
		s.cache.Set(key, int64(1), ttl)
		return 1, nil
	}
	return n, nil
}
