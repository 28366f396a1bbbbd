package utils

import (
	"errors"
	"fmt"
	"time"
)

// Kind — машиночитаемый тип ошибки, уходит клиенту как errorType.
type Kind string

const (
	KindInvalidInput    Kind = "INVALID_INPUT"
	KindRateLimited     Kind = "RATE_LIMITED"
	KindNotFound        Kind = "NOT_FOUND"
	KindExpired         Kind = "EXPIRED"
	KindInvalidCode     Kind = "INVALID_CODE"
	KindTooManyAttempts Kind = "TOO_MANY_ATTEMPTS"
	KindDuplicateVote   Kind = "DUPLICATE_VOTE"
	KindDuplicateCase   Kind = "DUPLICATE_CASE"
	KindInvalidToken    Kind = "INVALID_TOKEN"
	KindForbidden       Kind = "FORBIDDEN"
	KindUnavailable     Kind = "UNAVAILABLE"
	KindInternal        Kind = "INTERNAL"
)

// AppError — ошибка, которую сервисы отдают хендлерам. Message можно показать
// клиенту, Err только логируется.
type AppError struct {
	Kind       Kind
	Message    string
	RetryAfter time.Duration
	Remaining  int
	Err        error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

func NewError(kind Kind, msg string) *AppError {
	return &AppError{Kind: kind, Message: msg}
}

func WrapError(kind Kind, msg string, err error) *AppError {
	return &AppError{Kind: kind, Message: msg, Err: err}
}

func InvalidInput(msg string) *AppError { return NewError(KindInvalidInput, msg) }

func NotFound(msg string) *AppError { return NewError(KindNotFound, msg) }

func RateLimited(msg string, retryAfter time.Duration) *AppError {
	return &AppError{Kind: KindRateLimited, Message: msg, RetryAfter: retryAfter}
}

func Unavailable(msg string, err error) *AppError { return WrapError(KindUnavailable, msg, err) }

func Internal(err error) *AppError {
	return WrapError(KindInternal, "internal error", err)
}

// KindOf возвращает Kind для любой ошибки; не-AppError считается INTERNAL.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// AsAppError приводит ошибку к *AppError, оборачивая неизвестные как INTERNAL.
func AsAppError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}
