// Package ratelimit — cooldown по ключу, дневные счётчики и счётчики неудач
// с окном. Бэкенды: LRU в памяти процесса или общий Redis.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"unveil/internal/utils"
)

// Retention — записи старше двух суток не нужны ни одному окну.
const Retention = 48 * time.Hour

// Limiter безопасен для конкурентного использования, но не строго согласован:
// два параллельных запроса могут оба пройти Check до вызова Record.
type Limiter interface {
	// Check возвращает RATE_LIMITED, если последний Record(key) был меньше cooldown назад.
	Check(ctx context.Context, key string, cooldown time.Duration) error
	// Record запоминает текущее время как последнее действие и увеличивает счётчик за сегодня.
	Record(ctx context.Context, key string) error
	DailyCount(ctx context.Context, key string) (int, error)

	// Incr увеличивает счётчик; окно отсчитывается от первого инкремента.
	Incr(ctx context.Context, key string, window time.Duration) (int, error)
	Count(ctx context.Context, key string) (int, error)
	Reset(ctx context.Context, key string) error

	Ping(ctx context.Context) error
	Backend() string
}

type Options struct {
	Local *LocalOptions
	Redis *RedisOptions
	Now   func() time.Time
}

// Factory собирает Limiter для бэкенда "local" или "redis".
func Factory(backend string, opts Options) (Limiter, error) {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	switch backend {
	case "", "local":
		lo := LocalOptions{}
		if opts.Local != nil {
			lo = *opts.Local
		}
		return NewLocal(lo, now), nil
	case "redis":
		if opts.Redis == nil {
			return nil, fmt.Errorf("ratelimit: redis backend requires configuration")
		}
		return NewRedis(*opts.Redis, now)
	default:
		return nil, fmt.Errorf("ratelimit: unsupported backend %s", backend)
	}
}

func dayKey(key string, now time.Time) string {
	return key + ":" + now.UTC().Format("2006-01-02")
}

func cooldownError(retryAfter time.Duration) error {
	secs := int(retryAfter.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return utils.RateLimited(fmt.Sprintf("please wait %d seconds before trying again", secs), retryAfter)
}
