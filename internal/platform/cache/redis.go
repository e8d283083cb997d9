package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// New creates a new Redis client and checks that it answers.
func New(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("platform/cache: ping: %w", err)
	}

	return client, nil
}

// JSON stores JSON-encoded values under a key prefix with a fixed TTL.
type JSON struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewJSON wraps client. A zero ttl keeps values until evicted.
func NewJSON(client *redis.Client, prefix string, ttl time.Duration) *JSON {
	return &JSON{client: client, prefix: prefix, ttl: ttl}
}

// GetJSON decodes the value at key into dest and reports whether it was present.
func (c *JSON) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	payload, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("platform/cache: get %s: %w", key, err)
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return false, fmt.Errorf("platform/cache: decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it at key.
func (c *JSON) SetJSON(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("platform/cache: encode %s: %w", key, err)
	}
	if err := c.client.Set(ctx, c.prefix+key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("platform/cache: set %s: %w", key, err)
	}
	return nil
}
