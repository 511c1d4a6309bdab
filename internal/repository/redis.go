package repository

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the hash that holds every setting.
const DefaultRedisKey = "chime:settings"

type RedisKV struct {
	client *redis.Client
	key    string
}

func NewRedisKV(client *redis.Client, key string) *RedisKV {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisKV{client: client, key: key}
}

func (r *RedisKV) Get(ctx context.Context, keys ...string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	values, err := r.client.HMGet(ctx, r.key, keys...).Result()
	if err != nil {
		return nil, unavailable("get", fmt.Errorf("failed to read hash %s: %w", r.key, err))
	}
	for i, v := range values {
		if s, ok := v.(string); ok {
			result[keys[i]] = s
		}
	}
	return result, nil
}

func (r *RedisKV) Set(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	fields := make(map[string]any, len(values))
	for k, v := range values {
		fields[k] = v
	}
	if err := r.client.HSet(ctx, r.key, fields).Err(); err != nil {
		return unavailable("set", fmt.Errorf("failed to write hash %s: %w", r.key, err))
	}
	return nil
}

var _ KV = (*RedisKV)(nil)
