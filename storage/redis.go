package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var _ Storage = (*Redis)(nil)

// DefaultRedisPrefix namespaces keys written by a Redis store.
const DefaultRedisPrefix = "sentinel-mobile:"

// RedisOption configures a Redis store.
type RedisOption func(*Redis)

// WithRedisPrefix sets the key namespace. Clear only removes keys under it.
func WithRedisPrefix(prefix string) RedisOption {
	return func(s *Redis) {
		s.prefix = prefix
	}
}

// WithRedisTTL expires every written value after ttl. Zero keeps values forever.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(s *Redis) {
		s.ttl = ttl
	}
}

// Redis is a Storage backed by a Redis server, useful when several
// processes on one device or test rig share a credential.
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedis wraps an existing Redis client.
//
// Example:
//
//	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{"localhost:6379"}})
//	store := storage.NewRedis(rdb, storage.WithRedisPrefix("myapp:"))
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	s := &Redis{client: client, prefix: DefaultRedisPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Write implements Storage.
func (s *Redis) Write(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.prefix+key, value, s.ttl).Err(); err != nil {
		return NewError(KindWriteFailed, err)
	}
	return nil
}

// Read implements Storage.
func (s *Redis) Read(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, NewError(KindReadValueFailed, err)
	}
	return v, true, nil
}

// Delete implements Storage.
func (s *Redis) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return NewError(KindDeleteFailed, err)
	}
	return nil
}

// Clear implements Storage. It scans and deletes keys under the prefix.
func (s *Redis) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", 100).Result()
		if err != nil {
			return NewError(KindClearFailed, err)
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return NewError(KindClearFailed, err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
