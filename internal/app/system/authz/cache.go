// internal/app/system/authz/cache.go
package authz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/stratacomm/internal/domain/models"
	"github.com/redis/go-redis/v9"
)

// RedisCache stores resolved role sets under "stratacomm:roles:<userID>"
// with a TTL. Entries may be stale for up to the TTL if an invalidation is
// missed (for example when another process edits a role definition).
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache creates a cache from an existing Redis client.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client: client,
		prefix: "stratacomm:roles:",
		ttl:    ttl,
	}
}

func (c *RedisCache) key(userID string) string {
	return c.prefix + userID
}

func (c *RedisCache) Get(ctx context.Context, userID string) ([]models.Role, bool, error) {
	data, err := c.client.Get(ctx, c.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read role cache: %w", err)
	}
	var roles []models.Role
	if err := json.Unmarshal(data, &roles); err != nil {
		return nil, false, fmt.Errorf("decode role cache: %w", err)
	}
	return roles, true, nil
}

func (c *RedisCache) Set(ctx context.Context, userID string, roles []models.Role) error {
	if roles == nil {
		roles = []models.Role{}
	}
	data, err := json.Marshal(roles)
	if err != nil {
		return fmt.Errorf("encode role cache: %w", err)
	}
	if err := c.client.Set(ctx, c.key(userID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("write role cache: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, c.key(userID)).Err(); err != nil {
		return fmt.Errorf("invalidate role cache: %w", err)
	}
	return nil
}
