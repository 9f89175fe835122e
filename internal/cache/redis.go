// Package cache is a small JSON cache over Redis.
package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned by GetJSON when the key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache namespaces every key with prefix.
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{
		client: client,
		prefix: prefix,
	}
}

func (c *RedisCache) key(k string) string {
	return c.prefix + k
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return errors.Wrap(err, "redis get")
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return errors.Wrapf(err, "decode cached %s", key)
	}
	return nil
}

func (c *RedisCache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "encode %s", key)
	}
	if err := c.client.Set(ctx, c.key(key), data, ttl).Err(); err != nil {
		return errors.Wrap(err, "redis set")
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	if err := c.client.Del(ctx, full...).Err(); err != nil {
		return errors.Wrap(err, "redis del")
	}
	return nil
}

func (c *RedisCache) generationKey(k string) string {
	return c.key(k) + ":gen"
}

// setIfGeneration writes KEYS[1] only while the generation counter in
// KEYS[2] still equals ARGV[1].
var setIfGeneration = redis.NewScript(`
local current = redis.call('GET', KEYS[2])
if (current or '0') ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
else
	redis.call('SET', KEYS[1], ARGV[2])
end
return 1
`)

// Generation returns the invalidation counter of key, zero if it was never
// invalidated.
func (c *RedisCache) Generation(ctx context.Context, key string) (int64, error) {
	gen, err := c.client.Get(ctx, c.generationKey(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "redis get generation")
	}
	return gen, nil
}

// SetJSONIfGeneration stores value only if key has not been invalidated
// since gen was read. It reports whether the value was written.
func (c *RedisCache) SetJSONIfGeneration(ctx context.Context, key string, gen int64, value interface{}, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, errors.Wrapf(err, "encode %s", key)
	}
	written, err := setIfGeneration.Run(ctx, c.client,
		[]string{c.key(key), c.generationKey(key)},
		strconv.FormatInt(gen, 10), data, ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, errors.Wrap(err, "redis conditional set")
	}
	return written == 1, nil
}

// Invalidate drops the cached value and bumps the generation so writers
// holding an older generation cannot put it back.
func (c *RedisCache) Invalidate(ctx context.Context, key string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, c.generationKey(key))
		pipe.Del(ctx, c.key(key))
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "redis invalidate")
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
