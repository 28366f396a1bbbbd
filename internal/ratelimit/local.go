package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type LocalOptions struct {
	Size int
}

type windowCounter struct {
	count   int
	resetAt time.Time
}

// Local хранит всё в памяти процесса. При нескольких инстансах лимиты
// считаются отдельно на каждом.
type Local struct {
	mu       sync.Mutex
	last     *expirable.LRU[string, time.Time]
	daily    *expirable.LRU[string, int]
	counters *expirable.LRU[string, windowCounter]
	now      func() time.Time
}

func NewLocal(opts LocalOptions, now func() time.Time) *Local {
	size := opts.Size
	if size <= 0 {
		size = 100_000
	}
	if now == nil {
		now = time.Now
	}
	return &Local{
		last:     expirable.NewLRU[string, time.Time](size, nil, Retention),
		daily:    expirable.NewLRU[string, int](size, nil, Retention),
		counters: expirable.NewLRU[string, windowCounter](size, nil, Retention),
		now:      now,
	}
}

func (l *Local) Backend() string { return "local" }

func (l *Local) Ping(context.Context) error { return nil }

func (l *Local) Check(_ context.Context, key string, cooldown time.Duration) error {
	if cooldown <= 0 {
		return nil
	}
	last, ok := l.last.Get(key)
	if !ok {
		return nil
	}
	if elapsed := l.now().Sub(last); elapsed < cooldown {
		return cooldownError(cooldown - elapsed)
	}
	return nil
}

func (l *Local) Record(_ context.Context, key string) error {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	l.last.Add(key, now)
	dk := dayKey(key, now)
	n, _ := l.daily.Get(dk)
	l.daily.Add(dk, n+1)
	return nil
}

func (l *Local) DailyCount(_ context.Context, key string) (int, error) {
	n, _ := l.daily.Get(dayKey(key, l.now()))
	return n, nil
}

func (l *Local) Incr(_ context.Context, key string, window time.Duration) (int, error) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	wc, ok := l.counters.Get(key)
	if !ok || !now.Before(wc.resetAt) {
		wc = windowCounter{resetAt: now.Add(window)}
	}
	wc.count++
	l.counters.Add(key, wc)
	return wc.count, nil
}

func (l *Local) Count(_ context.Context, key string) (int, error) {
	wc, ok := l.counters.Get(key)
	if !ok || !l.now().Before(wc.resetAt) {
		return 0, nil
	}
	return wc.count, nil
}

func (l *Local) Reset(_ context.Context, key string) error {
	l.counters.Remove(key)
	return nil
}

// Cleanup удаляет записи старше Retention по часам лимитера и возвращает их
// число. TTL самого LRU делает то же по настенным часам.
func (l *Local) Cleanup() int {
	now := l.now()
	cutoff := now.Add(-Retention)
	removed := 0

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, k := range l.last.Keys() {
		if t, ok := l.last.Peek(k); ok && t.Before(cutoff) {
			l.last.Remove(k)
			removed++
		}
	}
	for _, k := range l.counters.Keys() {
		if wc, ok := l.counters.Peek(k); ok && !now.Before(wc.resetAt) {
			l.counters.Remove(k)
			removed++
		}
	}
	today := now.UTC().Format("2006-01-02")
	yesterday := now.Add(-24 * time.Hour).UTC().Format("2006-01-02")
	for _, k := range l.daily.Keys() {
		if len(k) < 10 {
			continue
		}
		if d := k[len(k)-10:]; d != today && d != yesterday {
			l.daily.Remove(k)
			removed++
		}
	}
	return removed
}
