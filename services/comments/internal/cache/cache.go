// Package cache holds read-through copies of per-thread counts and trees.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "oration:"

// Cache stores JSON values under string keys, plus integer counters
// that never expire.
type Cache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	Counter(ctx context.Context, key string) (int64, error)
	Incr(ctx context.Context, key string) (int64, error)
}

// GenerationKey is the counter bumped on every write to a thread.
func GenerationKey(uri string) string { return keyPrefix + "gen:" + uri }

// CountKey is the key of a thread's comment count at generation gen.
func CountKey(uri string, gen int64) string {
	return keyPrefix + "count:" + strconv.FormatInt(gen, 10) + ":" + uri
}

// TreeKey is the key of a thread's assembled comment tree at generation gen.
func TreeKey(uri string, gen int64) string {
	return keyPrefix + "tree:" + strconv.FormatInt(gen, 10) + ":" + uri
}

// Generation returns the current generation of uri. Readers take it before
// loading rows and store what they loaded under keys of that generation, so
// a fill that races a write lands on a key nobody reads again.
func Generation(ctx context.Context, c Cache, uri string) (int64, error) {
	return c.Counter(ctx, GenerationKey(uri))
}

// InvalidateThread moves uri to a new generation. Entries of older
// generations are left to expire.
func InvalidateThread(ctx context.Context, c Cache, uri string) error {
	_, err := c.Incr(ctx, GenerationKey(uri))
	return err
}

type RedisCache struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisCache(url string, ttl time.Duration) (*RedisCache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opt)
	return &RedisCache{Client: client, TTL: ttl}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	val, err := c.Client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(val, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, key, b, c.TTL).Err()
}

// Counter reads an integer counter; a missing counter is 0.
func (c *RedisCache) Counter(ctx context.Context, key string) (int64, error) {
	n, err := c.Client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func (c *RedisCache) Incr(ctx context.Context, key string) (int64, error) {
	return c.Client.Incr(ctx, key).Result()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.Client.Close()
}

// Noop never stores anything; every Get misses.
type Noop struct{}

func (Noop) Get(context.Context, string, any) (bool, error) { return false, nil }
func (Noop) Set(context.Context, string, any) error         { return nil }
func (Noop) Counter(context.Context, string) (int64, error) { return 0, nil }
func (Noop) Incr(context.Context, string) (int64, error)    { return 0, nil }
