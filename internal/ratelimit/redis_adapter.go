package ratelimit

import (
	"context"
	"errors"

	redis "github.com/redis/go-redis/v9"
)

// NewRedisAdapter оборачивает клиент go-redis под интерфейс RedisClient.
func NewRedisAdapter(client redis.UniversalClient) RedisClient {
	return &redisAdapter{client: client}
}

type redisAdapter struct {
	client redis.UniversalClient
}

func (r *redisAdapter) Eval(ctx context.Context, script string, keys []string, args ...any) (any, error) {
	return r.client.Eval(ctx, script, keys, args...).Result()
}

func (r *redisAdapter) EvalSha(ctx context.Context, sha1 string, keys []string, args ...any) (any, error) {
	return r.client.EvalSha(ctx, sha1, keys, args...).Result()
}

func (r *redisAdapter) ScriptLoad(ctx context.Context, script string) (string, error) {
	return r.client.ScriptLoad(ctx, script).Result()
}

func (r *redisAdapter) Get(ctx context.Context, key string) (string, error) {
	v, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

func (r *redisAdapter) Del(ctx context.Context, keys ...string) (int64, error) {
	return r.client.Del(ctx, keys...).Result()
}

func (r *redisAdapter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
