package utils

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCodeFormat(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)
		assert.Len(t, code, 6)
		assert.True(t, IsValidCode(code), code)
	}
}

func TestEmailHelpers(t *testing.T) {
	assert.Equal(t, "a@b.com", NormalizeEmail("  A@B.Com "))
	assert.True(t, IsValidEmail("john.doe+x@mail.example.org"))
	assert.False(t, IsValidEmail("not-an-email"))
	assert.False(t, IsValidEmail("a@b"))
	assert.False(t, IsValidEmail(""))

	assert.Equal(t, HashEmail("a@b.com"), HashEmail(" A@B.COM"))
	assert.Len(t, HashEmail("a@b.com"), 64)
	assert.Equal(t, "j***@example.com", MaskEmail("john@example.com"))
}

func TestIsValidPhone(t *testing.T) {
	assert.True(t, IsValidPhone(""))
	assert.True(t, IsValidPhone("+1 (555) 123-4567"))
	assert.False(t, IsValidPhone("12345"))
	assert.False(t, IsValidPhone("call me maybe"))
}

func TestKindOf(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", RateLimited("slow down", time.Minute))
	assert.Equal(t, KindRateLimited, KindOf(err))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindInternal, AsAppError(errors.New("x")).Kind)
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	transient := errors.New("transient")
	calls := 0
	_, err := Retry(context.Background(), 3, time.Millisecond, func(e error) bool { return errors.Is(e, transient) },
		func(context.Context) (int, error) {
			calls++
			if calls < 3 {
				return 0, transient
			}
			return 42, nil
		})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	fatal := errors.New("fatal")
	_, err = Retry(context.Background(), 3, time.Millisecond, func(e error) bool { return errors.Is(e, transient) },
		func(context.Context) (int, error) {
			calls++
			return 0, fatal
		})
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}
