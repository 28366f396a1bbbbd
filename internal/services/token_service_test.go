package services

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unveil/internal/utils"
)

func TestTokenRoundTripAndExpiry(t *testing.T) {
	clock := newTestClock()
	tokens := NewTokenService("test-secret-test-secret-test-secret", 24*time.Hour)
	tokens.now = clock.Now

	tok, exp, err := tokens.Issue(" A@B.com ")
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(24*time.Hour).Unix(), exp.Unix())

	email, err := tokens.EmailOf(tok)
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", email)
	assert.True(t, tokens.IsValid(tok))

	clock.Advance(24*time.Hour - time.Second)
	assert.True(t, tokens.IsValid(tok))

	clock.Advance(2 * time.Second)
	assert.False(t, tokens.IsValid(tok))
	_, err = tokens.EmailOf(tok)
	assert.Equal(t, utils.KindInvalidToken, utils.KindOf(err))
}

func TestTokenRejectsForeignSignatureAndPurpose(t *testing.T) {
	tokens := NewTokenService("secret-one-secret-one-secret-one!", time.Hour)
	other := NewTokenService("secret-two-secret-two-secret-two!", time.Hour)

	tok, _, err := other.Issue("a@b.com")
	require.NoError(t, err)
	assert.False(t, tokens.IsValid(tok))

	// правильная подпись, но чужое назначение
	claims := Claims{Purpose: "password_reset", RegisteredClaims: jwt.RegisteredClaims{
		Subject: "a@b.com", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	wrong, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret-one-secret-one-secret-one!"))
	require.NoError(t, err)
	assert.False(t, tokens.IsValid(wrong))

	assert.False(t, tokens.IsValid("not.a.jwt"))
	assert.False(t, tokens.IsValid(""))
}
