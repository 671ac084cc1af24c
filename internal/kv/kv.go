package kv

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// Store is the small slice of key-value operations the batching layer needs.
// Values are plain UTF-8 strings. Get reports absence via the bool instead of
// an error so callers can treat a missing key as zero/empty state.
type Store interface {
	Incr(ctx context.Context, key string) (int64, error)
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Del(ctx context.Context, key string) error
}

// Redis implements Store on top of a go-redis client.
type Redis struct {
	rdb *redis.Client
}

// Connect parses a redis:// URL and returns a connected client wrapper.
func Connect(url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &Redis{rdb: redis.NewClient(opts)}, nil
}

func (r *Redis) Incr(ctx context.Context, key string) (int64, error) {
	return r.rdb.Incr(ctx, key).Result()
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	return r.rdb.Set(ctx, key, value, 0).Err()
}

func (r *Redis) Del(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, key).Err()
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
