package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisKeyValueStore is a [KeyValueStore] backed by Redis, letting several editor
// instances share one session.
type RedisKeyValueStore struct {
	client *redis.Client
	prefix string
}

// NewRedisKeyValueStore creates a store that namespaces every key with prefix.
func NewRedisKeyValueStore(client *redis.Client, prefix string) *RedisKeyValueStore {
	return &RedisKeyValueStore{client: client, prefix: prefix}
}

// NewRedisClient parses a redis:// URL and verifies the server is reachable.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

// Get returns the value stored under key.
func (s *RedisKeyValueStore) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return value, nil
}

// Set stores value under key without expiry.
func (s *RedisKeyValueStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	return nil
}
