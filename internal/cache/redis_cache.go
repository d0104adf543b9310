package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	rdb *redis.Client
}

var (
	_ Cache     = (*RedisCache)(nil)
	_ Publisher = (*RedisCache)(nil)
)

func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (c *RedisCache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	s, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(s), dst); err != nil {
		// data corrupt: treat as miss by deleting
		_ = c.rdb.Del(ctx, key).Err()
		return false, nil
	}
	return true, nil
}

func (c *RedisCache) SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, b, ttl).Err()
}

// Publish sends payload as JSON unless it is already a string.
func (c *RedisCache) Publish(ctx context.Context, channel string, payload any) error {
	var msg string
	switch v := payload.(type) {
	case string:
		msg = v
	case []byte:
		msg = string(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		msg = string(b)
	}
	return c.rdb.Publish(ctx, channel, msg).Err()
}
