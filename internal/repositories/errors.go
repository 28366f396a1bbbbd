package repositories

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/lib/pq"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
	// ErrAttemptsExhausted: у кода не осталось попыток, новую не выдаём.
	ErrAttemptsExhausted = errors.New("attempts exhausted")
)

const (
	pqUniqueViolation = "23505"
)

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation
}

// IsTransient: таймаут, обрыв соединения, serialization/deadlock — можно повторить.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		return strings.HasPrefix(code, "08") || code == "40001" || code == "40P01" || code == "57P01"
	}
	return false
}

// pg — общая часть postgres-репозиториев: пул и лимит времени на запрос.
type pg struct {
	DB      *sql.DB
	Timeout time.Duration
}

func (p pg) ctx(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.Timeout)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// likePattern экранирует % и _ и оборачивает значение для поиска подстроки.
func likePattern(v string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(v)) + "%"
}
