package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"unveil/internal/utils"
)

const AdminKeyHeader = "X-Admin-Key"

// RequireAdminKey пускает только запросы с правильным X-Admin-Key.
// Пустой ключ в конфиге означает, что админские маршруты закрыты.
func RequireAdminKey(key string) gin.HandlerFunc {
	expected := []byte(strings.TrimSpace(key))
	return func(c *gin.Context) {
		if len(expected) == 0 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access is not configured", "errorType": "FORBIDDEN"})
			return
		}
		got := []byte(strings.TrimSpace(c.GetHeader(AdminKeyHeader)))
		if subtle.ConstantTimeCompare(got, expected) != 1 {
			utils.Logger.Warnf("[admin][deny] path=%s ip=%s", c.FullPath(), c.ClientIP())
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "errorType": "FORBIDDEN"})
			return
		}
		c.Next()
	}
}
