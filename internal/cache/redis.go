package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"zhenghe/internal/core"
)

// DefaultRedisTTL is the default time-to-live for the cached listing.
const DefaultRedisTTL = time.Hour

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379" or "redis://:password@host:6379/0")
	URL string

	// Key is the Redis key to store the listing under (see Key)
	Key string

	// TTL is the time-to-live for cached data (defaults to 1 hour)
	TTL time.Duration
}

// RedisCache implements Cache using Redis for distributed storage.
// Expiry is delegated to Redis.
type RedisCache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisCache creates a new Redis-based cache and verifies the connection.
func NewRedisCache(cfg RedisConfig) (*RedisCache, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newRedisCache(client, cfg), nil
}

func newRedisCache(client *redis.Client, cfg RedisConfig) *RedisCache {
	key := cfg.Key
	if key == "" {
		key = keyPrefix + "default"
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultRedisTTL
	}

	slog.Info("redis cache connected", "key", key, "ttl", ttl)

	return &RedisCache{
		client: client,
		key:    key,
		ttl:    ttl,
	}
}

// Get retrieves the models from Redis.
func (c *RedisCache) Get(ctx context.Context) ([]core.Model, error) {
	data, err := c.client.Get(ctx, c.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // No cache yet, not an error
		}
		return nil, fmt.Errorf("failed to get cache from redis: %w", err)
	}

	var list ModelList
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse cache from redis: %w", err)
	}

	return list.Models, nil
}

// Set stores the models in Redis.
func (c *RedisCache) Set(ctx context.Context, models []core.Model) error {
	data, err := json.Marshal(ModelList{Version: 1, UpdatedAt: time.Now().UTC(), Models: models})
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}

	if err := c.client.Set(ctx, c.key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache in redis: %w", err)
	}

	return nil
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
