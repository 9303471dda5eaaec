// Package cache holds the Redis-backed audit store shared between processes.
package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/LeventeLantos/whatsapp-broadcast/internal/model"
)

const DefaultAuditKey = "broadcast:audit"

// RedisAuditStore keeps entries in one Redis list, oldest at the head.
type RedisAuditStore struct {
	rdb *redis.Client
	key string
}

func NewRedisAuditStore(rdb *redis.Client, key string) *RedisAuditStore {
	if key == "" {
		key = DefaultAuditKey
	}
	return &RedisAuditStore{rdb: rdb, key: key}
}

func (c *RedisAuditStore) Append(ctx context.Context, e model.LogEntry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return c.rdb.RPush(ctx, c.key, b).Err()
}

func (c *RedisAuditStore) List(ctx context.Context) ([]model.LogEntry, error) {
	raw, err := c.rdb.LRange(ctx, c.key, 0, -1).Result()
	if err != nil {
		return nil, err
	}

	out := make([]model.LogEntry, 0, len(raw))
	for i, r := range raw {
		var e model.LogEntry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			return nil, fmt.Errorf("decode audit entry %d: %w", i, err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (c *RedisAuditStore) Trim(ctx context.Context, max int) error {
	if max <= 0 {
		return c.Clear(ctx)
	}
	return c.rdb.LTrim(ctx, c.key, int64(-max), -1).Err()
}

func (c *RedisAuditStore) Clear(ctx context.Context) error {
	return c.rdb.Del(ctx, c.key).Err()
}
