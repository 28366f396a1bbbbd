package services

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"

	"unveil/internal/metrics"
	"unveil/internal/ratelimit"
	"unveil/internal/repositories"
)

const testSecret = "unit-test-secret-unit-test-secret-0123"

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeMailer запоминает последний отправленный каждому адресу код.
type fakeMailer struct {
	mu    sync.Mutex
	codes map[string]string
	calls int
	fail  error
}

func newFakeMailer() *fakeMailer { return &fakeMailer{codes: map[string]string{}} }

func (m *fakeMailer) Kind() string { return "fake" }

func (m *fakeMailer) SendVerificationCode(_ context.Context, to, code string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.fail != nil {
		return m.fail
	}
	m.codes[to] = code
	return nil
}

func (m *fakeMailer) lastCode(to string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[to]
}

func (m *fakeMailer) setFail(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}

type fixture struct {
	clock   *testClock
	store   *repositories.MemoryStore
	limiter *ratelimit.Local
	mailer  *fakeMailer
	tokens  *TokenService
	metrics *metrics.Recorder

	verification *VerificationService
	votes        *VoteService
	cases        *CaseService
}

func newFixture(t *testing.T, vs VerificationSettings, cs CaseSettings) *fixture {
	t.Helper()
	clock := newTestClock()
	store := repositories.NewMemoryStore()
	limiter := ratelimit.NewLocal(ratelimit.LocalOptions{Size: 1000}, clock.Now)
	mailer := newFakeMailer()
	rec := metrics.NewRecorder(prometheus.NewRegistry())

	tokens := NewTokenService(testSecret, 24*time.Hour)
	tokens.now = clock.Now

	if vs.BcryptCost == 0 {
		vs.BcryptCost = bcrypt.MinCost
	}
	verification := NewVerificationService(store.Codes(), limiter, mailer, tokens, rec, vs)
	verification.now = clock.Now

	votes := NewVoteService(store.Cases(), store.Votes(), rec)
	votes.now = clock.Now

	cases := NewCaseService(store.Cases(), limiter, rec, cs)
	cases.now = clock.Now

	return &fixture{
		clock: clock, store: store, limiter: limiter, mailer: mailer, tokens: tokens, metrics: rec,
		verification: verification, votes: votes, cases: cases,
	}
}

// otherCode возвращает заведомо неверный код той же длины.
func otherCode(code string) string {
	n, _ := strconv.Atoi(code)
	return fmt.Sprintf("%06d", (n+1)%1000000)
}
