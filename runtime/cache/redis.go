package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Redis-backed Store for multi-node deployments.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a RedisStore backed by client, namespacing keys
// under prefix (e.g. "genexec:cache:").
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

var _ Store = (*RedisStore)(nil)

// Get returns the cached value for key if present.
func (s *RedisStore) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, s.prefix+string(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return val, true, nil
}

// Set stores value under key with the given TTL.
func (s *RedisStore) Set(ctx context.Context, key Key, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, s.prefix+string(key), value, ttl).Err()
}
