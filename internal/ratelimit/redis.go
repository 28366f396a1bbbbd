package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// recordScript: SET last=now и INCR дневного счётчика, оба с TTL хранения.
const recordScript = `
local last = KEYS[1]
local day = KEYS[2]
local now = ARGV[1]
local ttl = tonumber(ARGV[2])
redis.call('SET', last, now, 'PX', ttl)
local n = redis.call('INCR', day)
redis.call('PEXPIRE', day, ttl)
return n
`

// incrScript: счётчик с окном, TTL ставится только при первом инкременте.
const incrScript = `
local key = KEYS[1]
local window = tonumber(ARGV[1])
local n = redis.call('INCR', key)
if n == 1 then
  redis.call('PEXPIRE', key, window)
end
return n
`

type RedisOptions struct {
	Client    RedisClient
	KeyPrefix string
}

// RedisClient — минимальный набор операций Redis, который нам нужен.
type RedisClient interface {
	Eval(ctx context.Context, script string, keys []string, args ...any) (any, error)
	EvalSha(ctx context.Context, sha1 string, keys []string, args ...any) (any, error)
	ScriptLoad(ctx context.Context, script string) (string, error)
	// Get для отсутствующего ключа возвращает "" без ошибки.
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) (int64, error)
	Ping(ctx context.Context) error
}

type Redis struct {
	client RedisClient
	prefix string
	now    func() time.Time

	shaMu sync.Mutex
	shas  map[string]string
}

func NewRedis(opts RedisOptions, now func() time.Time) (*Redis, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("ratelimit: redis client required")
	}
	if now == nil {
		now = time.Now
	}
	return &Redis{client: opts.Client, prefix: opts.KeyPrefix, now: now, shas: map[string]string{}}, nil
}

func (r *Redis) Backend() string { return "redis" }

func (r *Redis) Ping(ctx context.Context) error { return r.client.Ping(ctx) }

func (r *Redis) key(kind, key string) string {
	return r.prefix + kind + ":" + key
}

func (r *Redis) Check(ctx context.Context, key string, cooldown time.Duration) error {
	if cooldown <= 0 {
		return nil
	}
	raw, err := r.client.Get(ctx, r.key("last", key))
	if err != nil {
		return fmt.Errorf("ratelimit: get last: %w", err)
	}
	if raw == "" {
		return nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	if elapsed := r.now().Sub(time.UnixMilli(ms)); elapsed < cooldown {
		return cooldownError(cooldown - elapsed)
	}
	return nil
}

func (r *Redis) Record(ctx context.Context, key string) error {
	now := r.now()
	keys := []string{r.key("last", key), r.key("day", dayKey(key, now))}
	_, err := r.eval(ctx, recordScript, keys, strconv.FormatInt(now.UnixMilli(), 10), Retention.Milliseconds())
	if err != nil {
		return fmt.Errorf("ratelimit: record: %w", err)
	}
	return nil
}

func (r *Redis) DailyCount(ctx context.Context, key string) (int, error) {
	return r.getInt(ctx, r.key("day", dayKey(key, r.now())))
}

func (r *Redis) Incr(ctx context.Context, key string, window time.Duration) (int, error) {
	res, err := r.eval(ctx, incrScript, []string{r.key("cnt", key)}, window.Milliseconds())
	if err != nil {
		return 0, fmt.Errorf("ratelimit: incr: %w", err)
	}
	n, ok := toInt64(res)
	if !ok {
		return 0, fmt.Errorf("ratelimit: unexpected redis response %v", res)
	}
	return int(n), nil
}

func (r *Redis) Count(ctx context.Context, key string) (int, error) {
	return r.getInt(ctx, r.key("cnt", key))
}

func (r *Redis) Reset(ctx context.Context, key string) error {
	_, err := r.client.Del(ctx, r.key("cnt", key))
	return err
}

func (r *Redis) getInt(ctx context.Context, key string) (int, error) {
	raw, err := r.client.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("ratelimit: get: %w", err)
	}
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("ratelimit: bad counter %q: %w", raw, err)
	}
	return n, nil
}

// eval тянет скрипт по SHA, при NOSCRIPT или ошибке загрузки — обычный EVAL.
func (r *Redis) eval(ctx context.Context, script string, keys []string, args ...any) (any, error) {
	sha := r.loadScript(ctx, script)
	if sha == "" {
		return r.client.Eval(ctx, script, keys, args...)
	}
	res, err := r.client.EvalSha(ctx, sha, keys, args...)
	if err != nil && strings.Contains(err.Error(), "NOSCRIPT") {
		r.shaMu.Lock()
		delete(r.shas, script)
		r.shaMu.Unlock()
		return r.client.Eval(ctx, script, keys, args...)
	}
	return res, err
}

func (r *Redis) loadScript(ctx context.Context, script string) string {
	r.shaMu.Lock()
	defer r.shaMu.Unlock()
	if sha, ok := r.shas[script]; ok {
		return sha
	}
	sha, err := r.client.ScriptLoad(ctx, script)
	if err != nil {
		return ""
	}
	r.shas[script] = sha
	return sha
}

func toInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		return n, err == nil
	}
	return 0, false
}
