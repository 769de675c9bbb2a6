package cache

import (
	"context"
	"errors"
	"time"

	"github.com/joshhsoj1902/deck-achievements/internal/logger"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Cache is a thin key/value layer over Redis. Read misses and Redis failures
// look the same to callers; failures are logged.
type Cache struct {
	client *redis.Client
	prefix string
}

func New(addr string, password string, db int) *Cache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &Cache{
		client: client,
		prefix: "deck:",
	}
}

// NewWithClient wraps an existing client. Used by tests against miniredis.
func NewWithClient(client *redis.Client) *Cache {
	return &Cache{client: client, prefix: "deck:"}
}

// Close the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping checks that Redis is reachable.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Cache) key(k string) string {
	return c.prefix + k
}

// Get retrieves a value from cache by key
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Log.WithFields(logrus.Fields{"key": key, "error": err.Error()}).Warn("Cache read failed")
		}
		return nil, false
	}
	return data, true
}

// Set stores a value with a TTL. A zero ttl keeps the key until deleted.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		logger.Log.WithFields(logrus.Fields{"key": key, "error": err.Error()}).Warn("Cache write failed")
		return err
	}
	return nil
}

// Delete removes a key from cache
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.key(key)).Err()
}

// DeleteByPrefix removes every key starting with prefix and returns how many
// were deleted.
func (c *Cache) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	var (
		cursor  uint64
		deleted int
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, c.key(prefix)+"*", 100).Result()
		if err != nil {
			return deleted, err
		}
		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, err
			}
			deleted += int(n)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return deleted, nil
}

// HGetAll reads a hash. Missing keys return an empty map.
func (c *Cache) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return c.client.HGetAll(ctx, c.key(key)).Result()
}

// HSet writes fields into a hash without expiry.
func (c *Cache) HSet(ctx context.Context, key string, values map[string]string) error {
	args := make([]any, 0, len(values)*2)
	for k, v := range values {
		args = append(args, k, v)
	}
	return c.client.HSet(ctx, c.key(key), args...).Err()
}

// HDel removes fields from a hash.
func (c *Cache) HDel(ctx context.Context, key string, fields ...string) error {
	return c.client.HDel(ctx, c.key(key), fields...).Err()
}
