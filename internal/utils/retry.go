package utils

import (
	"context"
	"time"
)

// Retry вызывает fn до attempts раз, пока retryable(err) истинно, с паузой
// backoff*attempt между попытками. Только для идемпотентных чтений.
func Retry[T any](ctx context.Context, attempts int, backoff time.Duration, retryable func(error) bool, fn func(context.Context) (T, error)) (T, error) {
	var (
		res T
		err error
	)
	if attempts < 1 {
		attempts = 1
	}
	for i := 1; i <= attempts; i++ {
		res, err = fn(ctx)
		if err == nil || !retryable(err) || i == attempts {
			return res, err
		}
		Logger.Debugf("[retry] attempt=%d err=%v", i, err)
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-time.After(backoff * time.Duration(i)):
		}
	}
	return res, err
}
