// Package rolecache keeps staff role levels in Redis in front of the staff
// table.
package rolecache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"cmms/internal/domain"
)

// Source is the authoritative lookup the cache sits in front of.
type Source interface {
	RoleLevel(ctx context.Context, staffID string) (domain.RoleLevel, error)
}

// Cache is a read-through role lookup. Misses and Redis failures fall through
// to the source; source errors are never cached.
type Cache struct {
	client *redis.Client
	source Source
	ttl    time.Duration
	prefix string
	Log    zerolog.Logger
}

// New connects to redisURL and checks the connection.
func New(redisURL string, source Source, ttl time.Duration) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewWithClient(client, source, ttl), nil
}

// NewWithClient wraps an existing Redis client.
func NewWithClient(client *redis.Client, source Source, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{
		client: client,
		source: source,
		ttl:    ttl,
		prefix: "cmms:role:",
		Log:    zerolog.Nop(),
	}
}

func (c *Cache) key(staffID string) string {
	return c.prefix + staffID
}

func (c *Cache) RoleLevel(ctx context.Context, staffID string) (domain.RoleLevel, error) {
	val, err := c.client.Get(ctx, c.key(staffID)).Result()
	switch {
	case err == nil:
		if n, convErr := strconv.Atoi(val); convErr == nil && domain.RoleLevel(n).Valid() {
			return domain.RoleLevel(n), nil
		}
	case err != redis.Nil:
		c.Log.Warn().Err(err).Str("staff_id", staffID).Msg("role cache read failed")
	}
	level, err := c.source.RoleLevel(ctx, staffID)
	if err != nil {
		return 0, err
	}
	if err := c.client.Set(ctx, c.key(staffID), strconv.Itoa(int(level)), c.ttl).Err(); err != nil {
		c.Log.Warn().Err(err).Str("staff_id", staffID).Msg("role cache write failed")
	}
	return level, nil
}

// Invalidate drops the cached level for staffID.
func (c *Cache) Invalidate(ctx context.Context, staffID string) error {
	if err := c.client.Del(ctx, c.key(staffID)).Err(); err != nil {
		return fmt.Errorf("invalidate role cache: %w", err)
	}
	return nil
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Cache) Close() error {
	return c.client.Close()
}
