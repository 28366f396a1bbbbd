package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	CtxVerifiedEmail = "verified_email"
	CtxTokenInvalid  = "token_invalid"
)

// TokenParser достаёт подтверждённый email из токена верификации.
type TokenParser interface {
	EmailOf(token string) (string, error)
}

// BearerToken возвращает токен из Authorization: Bearer <token> или "".
func BearerToken(c *gin.Context) string {
	authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// OptionalVerification не отклоняет запрос: без токена голосуют по IP.
// Валидный токен кладёт email в контекст, невалидный ставит флаг token_invalid.
func OptionalVerification(tokens TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}
		raw := strings.TrimSpace(c.GetHeader("Authorization"))
		if raw == "" {
			c.Next()
			return
		}
		tokenStr := BearerToken(c)
		if tokenStr == "" {
			c.Set(CtxTokenInvalid, true)
			c.Next()
			return
		}
		email, err := tokens.EmailOf(tokenStr)
		if err != nil {
			c.Set(CtxTokenInvalid, true)
			c.Next()
			return
		}
		c.Set(CtxVerifiedEmail, email)
		c.Next()
	}
}

// RequireVerifiedEmail ставится после OptionalVerification.
func RequireVerifiedEmail() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := VerifiedEmail(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":                "Email verification required",
				"errorType":            "INVALID_TOKEN",
				"requiresVerification": true,
			})
			return
		}
		c.Next()
	}
}

func VerifiedEmail(c *gin.Context) (string, bool) {
	v, ok := c.Get(CtxVerifiedEmail)
	if !ok {
		return "", false
	}
	email, _ := v.(string)
	return email, email != ""
}

func TokenInvalid(c *gin.Context) bool {
	return c.GetBool(CtxTokenInvalid)
}
