package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unveil/internal/config"
)

const adminKey = "test-admin-key"

type captureMailer struct {
	mu    sync.Mutex
	codes map[string]string
}

func (m *captureMailer) Kind() string { return "capture" }

func (m *captureMailer) SendVerificationCode(_ context.Context, to, code string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[to] = code
	return nil
}

func (m *captureMailer) code(to string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[to]
}

func newTestApp(t *testing.T) (*App, *captureMailer) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  mode: dev
database:
  driver: memory
verification:
  jwt_secret: app-test-secret-app-test-secret-0000
  bcrypt_cost: 4
admin:
  api_key: `+adminKey+`
`), 0o600))
	cfg, err := config.Load(path)
	require.NoError(t, err)

	mailer := &captureMailer{codes: map[string]string{}}
	a, err := New(context.Background(), cfg, WithMailer(mailer))
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a, mailer
}

type call struct {
	method, path string
	body         any
	token        string
	admin        bool
	ip           string
}

func do(t *testing.T, a *App, c call) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if c.body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(c.body))
	}
	req := httptest.NewRequest(c.method, c.path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.admin {
		req.Header.Set("X-Admin-Key", adminKey)
	}
	ip := c.ip
	if ip == "" {
		ip = "192.0.2.10"
	}
	req.RemoteAddr = ip + ":40000"

	w := httptest.NewRecorder()
	a.Router.ServeHTTP(w, req)

	out := map[string]any{}
	if w.Header().Get("Content-Type") != "application/pdf" && w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func verify(t *testing.T, a *App, m *captureMailer, email string) string {
	t.Helper()
	w, _ := do(t, a, call{method: http.MethodPost, path: "/api/v1/verification/request", body: gin.H{"email": email}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, body := do(t, a, call{method: http.MethodPost, path: "/api/v1/verification/verify",
		body: gin.H{"email": email, "code": m.code(email)}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	tok, _ := body["token"].(string)
	require.NotEmpty(t, tok)
	return tok
}

func submit(t *testing.T, a *App, token, name string) int64 {
	t.Helper()
	w, body := do(t, a, call{method: http.MethodPost, path: "/api/v1/case/submit", token: token, body: gin.H{
		"name":        name,
		"actions":     "fake escrow",
		"description": "Took payment through a fake escrow site and disappeared.",
	}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	cs := body["case"].(map[string]any)
	return int64(cs["id"].(float64))
}

func casePath(id int64, suffix string) string {
	return "/api/v1/case/" + strconv.FormatInt(id, 10) + suffix
}

func TestVerifySubmitVoteFlow(t *testing.T) {
	a, m := newTestApp(t)
	token := verify(t, a, m, "alice@example.com")

	w, body := do(t, a, call{method: http.MethodGet, path: "/api/v1/verification/status", token: token})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["verified"])

	id := submit(t, a, token, "Mallory")

	w, body = do(t, a, call{method: http.MethodPost, path: casePath(id, "/vote"), token: token, body: gin.H{"vote": "guilty"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "email", body["verificationMethod"])

	w, body = do(t, a, call{method: http.MethodPost, path: casePath(id, "/vote"), token: token, body: gin.H{"vote": "not_guilty"}})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "DUPLICATE_VOTE", body["errorType"])

	// анонимный голос по IP
	w, body = do(t, a, call{method: http.MethodPost, path: casePath(id, "/vote"), ip: "198.51.100.77", body: gin.H{"vote": "guilty"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "ip", body["verificationMethod"])

	w, body = do(t, a, call{method: http.MethodGet, path: casePath(id, "/verdict")})
	require.Equal(t, http.StatusOK, w.Code)
	verdict := body["verdict"].(map[string]any)
	assert.Equal(t, "Guilty", verdict["status"])
	assert.EqualValues(t, 2, verdict["totalVotes"])
	assert.EqualValues(t, 100, verdict["confidence"])

	w, body = do(t, a, call{method: http.MethodGet, path: casePath(id, "/voted"), token: token})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["hasVoted"])

	w, body = do(t, a, call{method: http.MethodGet, path: "/api/v1/search?filter=name&value=mall"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["found"])

	w, body = do(t, a, call{method: http.MethodGet, path: "/api/v1/search?filter=address&value=x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotEmpty(t, body["supportedFilters"])

	w, body = do(t, a, call{method: http.MethodGet, path: "/api/v1/cases/top-voted"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["results"], 1)
}

func TestVoteRejectsBadTokenAndUnverifiedEmail(t *testing.T) {
	a, m := newTestApp(t)
	token := verify(t, a, m, "bob@example.com")
	id := submit(t, a, token, "Trudy")

	w, body := do(t, a, call{method: http.MethodPost, path: casePath(id, "/vote"), token: "not-a-jwt", body: gin.H{"vote": "guilty"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, true, body["requiresVerification"])

	w, _ = do(t, a, call{method: http.MethodPost, path: casePath(id, "/vote"), body: gin.H{"vote": "guilty", "email": "x@example.com"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = do(t, a, call{method: http.MethodPost, path: casePath(id, "/vote"), token: token, body: gin.H{"vote": "guilty", "email": "other@example.com"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, a, call{method: http.MethodPost, path: casePath(id, "/vote"), body: gin.H{"vote": "maybe"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, a, call{method: http.MethodPost, path: casePath(9999, "/vote"), body: gin.H{"vote": "guilty"}})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = do(t, a, call{method: http.MethodPost, path: "/api/v1/case/submit", body: gin.H{"name": "X"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminRoutesRequireKey(t *testing.T) {
	a, m := newTestApp(t)
	token := verify(t, a, m, "carol@example.com")
	id := submit(t, a, token, "Oscar")

	w, _ := do(t, a, call{method: http.MethodPost, path: casePath(id, "/vote"), body: gin.H{"vote": "guilty"}})
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, a, call{method: http.MethodPost, path: casePath(id, "/reset-votes")})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w, _ = do(t, a, call{method: http.MethodDelete, path: casePath(id, ""), token: token})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, body := do(t, a, call{method: http.MethodPost, path: casePath(id, "/reset-votes"), admin: true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, body["verdict"].(map[string]any)["totalVotes"])

	w, body = do(t, a, call{method: http.MethodPut, path: casePath(id, ""), admin: true, body: gin.H{
		"name":        "Oscar",
		"actions":     "phishing",
		"description": "Sent phishing links posing as a bank.",
	}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "phishing", body["case"].(map[string]any)["actions"])

	w, _ = do(t, a, call{method: http.MethodDelete, path: casePath(id, ""), admin: true})
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = do(t, a, call{method: http.MethodGet, path: casePath(id, "")})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRateLimitedResponsesCarryRetryAfter(t *testing.T) {
	a, m := newTestApp(t)

	w, _ := do(t, a, call{method: http.MethodPost, path: "/api/v1/verification/request", body: gin.H{"email": "dave@example.com"}})
	require.Equal(t, http.StatusOK, w.Code)
	w, body := do(t, a, call{method: http.MethodPost, path: "/api/v1/verification/resend", body: gin.H{"email": "dave@example.com"}})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "RATE_LIMITED", body["errorType"])

	token := verify(t, a, m, "erin@example.com")
	submit(t, a, token, "First Target")
	w, _ = do(t, a, call{method: http.MethodPost, path: "/api/v1/case/submit", token: token, body: gin.H{
		"name":        "Second Target",
		"actions":     "fake escrow",
		"description": "Took payment through a fake escrow site and disappeared.",
	}})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestWrongCodeReportsRemainingAttempts(t *testing.T) {
	a, m := newTestApp(t)
	w, _ := do(t, a, call{method: http.MethodPost, path: "/api/v1/verification/request", body: gin.H{"email": "frank@example.com"}})
	require.Equal(t, http.StatusOK, w.Code)

	wrong := "000000"
	if m.code("frank@example.com") == wrong {
		wrong = "111111"
	}
	w, body := do(t, a, call{method: http.MethodPost, path: "/api/v1/verification/verify", body: gin.H{"email": "frank@example.com", "code": wrong}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_CODE", body["errorType"])
	assert.EqualValues(t, 4, body["remainingAttempts"])

	w, _ = do(t, a, call{method: http.MethodPost, path: "/api/v1/verification/verify", body: gin.H{"email": "frank@example.com", "code": "12"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReportPDFHealthAndMetrics(t *testing.T) {
	a, m := newTestApp(t)
	token := verify(t, a, m, "grace@example.com")
	id := submit(t, a, token, "Peggy")

	w, _ := do(t, a, call{method: http.MethodGet, path: casePath(id, "/report.pdf")})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF-")))

	w, body := do(t, a, call{method: http.MethodGet, path: "/api/v1/health"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "UP", body["status"])

	w, _ = do(t, a, call{method: http.MethodGet, path: "/metrics"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestCORSPreflight(t *testing.T) {
	a, _ := newTestApp(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/case/1/vote", nil)
	req.Header.Set("Origin", "https://example.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	a.Router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
