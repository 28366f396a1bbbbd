package services

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"unveil/internal/utils"
)

const PurposeEmailVerification = "email_verification"

type Claims struct {
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// TokenService выпускает и проверяет токены подтверждения email. Состояния
// нет: валидность определяется подписью, сроком и purpose.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenService(secret string, ttl time.Duration) *TokenService {
	return &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (s *TokenService) TTL() time.Duration { return s.ttl }

func (s *TokenService) Issue(email string) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.ttl)
	claims := Claims{
		Purpose: PurposeEmailVerification,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   utils.NormalizeEmail(email),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (s *TokenService) Parse(tokenStr string) (*Claims, error) {
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return nil, utils.NewError(utils.KindInvalidToken, "missing verification token")
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		// принимаем только HMAC
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		msg := "invalid verification token"
		if errors.Is(err, jwt.ErrTokenExpired) {
			msg = "verification token expired"
		}
		return nil, utils.WrapError(utils.KindInvalidToken, msg, err)
	}
	if claims.Purpose != PurposeEmailVerification || claims.Subject == "" {
		return nil, utils.NewError(utils.KindInvalidToken, "invalid verification token")
	}
	return claims, nil
}

func (s *TokenService) IsValid(tokenStr string) bool {
	_, err := s.Parse(tokenStr)
	return err == nil
}

// EmailOf возвращает подтверждённый адрес или ошибку INVALID_TOKEN.
func (s *TokenService) EmailOf(tokenStr string) (string, error) {
	claims, err := s.Parse(tokenStr)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}
