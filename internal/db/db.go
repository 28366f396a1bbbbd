// Package db открывает пул Postgres и накатывает схему.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"unveil/internal/utils"
)

type Options struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnectAttempts int
}

// Open подключается и пингует с линейной паузой: контейнер базы часто
// поднимается позже сервиса.
func Open(ctx context.Context, opts Options) (*sql.DB, error) {
	conn, err := sql.Open("postgres", opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	conn.SetMaxOpenConns(opts.MaxOpenConns)
	conn.SetMaxIdleConns(opts.MaxIdleConns)
	conn.SetConnMaxLifetime(30 * time.Minute)

	attempts := opts.ConnectAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for i := 1; ; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = conn.PingContext(pingCtx)
		cancel()
		if err == nil {
			return conn, nil
		}
		if i >= attempts {
			conn.Close()
			return nil, fmt.Errorf("ping postgres after %d attempts: %w", i, err)
		}
		utils.Logger.Warnf("[db][open] ping failed attempt=%d err=%v", i, err)
		select {
		case <-ctx.Done():
			conn.Close()
			return nil, ctx.Err()
		case <-time.After(time.Duration(i) * time.Second):
		}
	}
}
