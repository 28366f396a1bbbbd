package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type stubTokens map[string]string

func (s stubTokens) EmailOf(token string) (string, error) {
	if email, ok := s[token]; ok {
		return email, nil
	}
	return "", errors.New("invalid token")
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/t", handlers...)
	return r
}

func serve(r *gin.Engine, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/t", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestOptionalVerification(t *testing.T) {
	var (
		email   string
		ok      bool
		invalid bool
	)
	r := newRouter(OptionalVerification(stubTokens{"good": "alice@example.com"}), func(c *gin.Context) {
		email, ok = VerifiedEmail(c)
		invalid = TokenInvalid(c)
		c.Status(http.StatusOK)
	})

	tests := []struct {
		name        string
		auth        string
		wantEmail   string
		wantInvalid bool
	}{
		{"no header", "", "", false},
		{"valid bearer", "Bearer good", "alice@example.com", false},
		{"lowercase scheme", "bearer good", "alice@example.com", false},
		{"unknown token", "Bearer bad", "", true},
		{"wrong scheme", "Basic good", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := map[string]string{}
			if tt.auth != "" {
				h["Authorization"] = tt.auth
			}
			w := serve(r, h)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.wantEmail, email)
			assert.Equal(t, tt.wantEmail != "", ok)
			assert.Equal(t, tt.wantInvalid, invalid)
		})
	}
}

func TestRequireVerifiedEmail(t *testing.T) {
	r := newRouter(OptionalVerification(stubTokens{"good": "bob@example.com"}), RequireVerifiedEmail(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	assert.Equal(t, http.StatusUnauthorized, serve(r, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, map[string]string{"Authorization": "Bearer bad"}).Code)
	assert.Equal(t, http.StatusOK, serve(r, map[string]string{"Authorization": "Bearer good"}).Code)
}

func TestRequireAdminKey(t *testing.T) {
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }

	r := newRouter(RequireAdminKey("s3cret"), ok)
	assert.Equal(t, http.StatusForbidden, serve(r, nil).Code)
	assert.Equal(t, http.StatusForbidden, serve(r, map[string]string{AdminKeyHeader: "nope"}).Code)
	assert.Equal(t, http.StatusOK, serve(r, map[string]string{AdminKeyHeader: "s3cret"}).Code)

	closed := newRouter(RequireAdminKey(""), ok)
	assert.Equal(t, http.StatusForbidden, serve(closed, map[string]string{AdminKeyHeader: ""}).Code)
}

func TestTimeoutSetsDeadline(t *testing.T) {
	var has bool
	r := newRouter(Timeout(time.Second), func(c *gin.Context) {
		_, has = c.Request.Context().Deadline()
		c.Status(http.StatusOK)
	})
	serve(r, nil)
	assert.True(t, has)
}
