//go:build integration

package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unveil/internal/db"
	"unveil/internal/models"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("UNVEIL_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("UNVEIL_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	conn, err := db.Open(ctx, db.Options{DSN: dsn, MaxOpenConns: 20, MaxIdleConns: 5, ConnectAttempts: 3})
	require.NoError(t, err)
	require.NoError(t, db.CreateSchema(ctx, conn))
	_, err = conn.ExecContext(ctx, `TRUNCATE votes, cases, verification_codes RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestPostgresVoteLedger(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	cases := NewCaseRepository(conn, 5*time.Second)
	ledger := NewVoteLedger(conn, 5*time.Second)

	c := &models.Case{Name: "Eve", Actions: "Phishing", Description: "Spoofed the payroll portal login", ReportedBy: "r@x.com"}
	require.NoError(t, cases.Create(ctx, c))

	voter := models.EmailIdentity("a@b.com")
	updated, err := ledger.RecordVote(ctx, c.ID, voter, models.VoteGuilty, time.Now())
	require.NoError(t, err)
	assert.Equal(t, models.VerdictSummary{Status: models.StatusGuilty, Score: 1, TotalVotes: 1, GuiltyVotes: 1, Confidence: 100}, updated.Summary())

	_, err = ledger.RecordVote(ctx, c.ID, voter, models.VoteGuilty, time.Now())
	assert.ErrorIs(t, err, ErrDuplicate)

	_, err = ledger.RecordVote(ctx, c.ID+1000, voter, models.VoteGuilty, time.Now())
	assert.ErrorIs(t, err, ErrNotFound)

	reset, err := ledger.ResetCase(ctx, c.ID)
	require.NoError(t, err)
	assert.Zero(t, reset.TotalVotes)
	assert.Nil(t, reset.LastVotedAt)

	_, err = ledger.RecordVote(ctx, c.ID, voter, models.VoteNotGuilty, time.Now())
	require.NoError(t, err)
}

func TestPostgresVoteLedgerConcurrentSameVoter(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	cases := NewCaseRepository(conn, 5*time.Second)
	ledger := NewVoteLedger(conn, 5*time.Second)

	c := &models.Case{Name: "Mallory", Actions: "Phishing", Description: "Sent fake invoices to accounting", ReportedBy: "r@x.com"}
	require.NoError(t, cases.Create(ctx, c))

	var (
		wg          sync.WaitGroup
		ok, dup     atomic.Int32
		distinctOKs atomic.Int32
	)
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := ledger.RecordVote(ctx, c.ID, models.IPIdentity("10.0.0.1"), models.VoteGuilty, time.Now())
			if err == nil {
				ok.Add(1)
			} else if err == ErrDuplicate {
				dup.Add(1)
			}
		}()
		go func(i int) {
			defer wg.Done()
			if _, err := ledger.RecordVote(ctx, c.ID, models.EmailIdentity(fmt.Sprintf("u%d@x.com", i)), models.VoteNotGuilty, time.Now()); err == nil {
				distinctOKs.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, ok.Load())
	assert.EqualValues(t, 9, dup.Load())
	assert.EqualValues(t, 10, distinctOKs.Load())

	got, err := cases.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 11, got.TotalVotes)
	assert.Equal(t, -9, got.VerdictScore)
}

func TestPostgresVerificationCodes(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	codes := NewVerificationCodeRepository(conn, 5*time.Second)
	now := time.Now().UTC().Truncate(time.Millisecond)

	expired := &models.VerificationCode{EmailHash: "h", CodeHash: "x", CreatedAt: now.Add(-time.Hour), ExpiresAt: now.Add(-time.Minute), MaxAttempts: 5, SourceIP: "1.1.1.1"}
	active := &models.VerificationCode{EmailHash: "h", CodeHash: "y", CreatedAt: now, ExpiresAt: now.Add(10 * time.Minute), MaxAttempts: 5, SourceIP: "1.1.1.1"}
	require.NoError(t, codes.Save(ctx, expired))
	require.NoError(t, codes.Save(ctx, active))

	got, err := codes.FindActive(ctx, "h", now)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, active.ID, got.ID)

	n, err := codes.DeleteExpired(ctx, "h", now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	attempts, err := codes.ReserveAttempt(ctx, active.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)

	cnt, err := codes.CountRecentByIP(ctx, "1.1.1.1", now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, cnt)

	require.NoError(t, codes.MarkVerified(ctx, active.ID, now))
	got, err = codes.FindActive(ctx, "h", now)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = codes.ReserveAttempt(ctx, active.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresReserveAttemptConcurrent(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	codes := NewVerificationCodeRepository(conn, 5*time.Second)
	now := time.Now().UTC()

	v := &models.VerificationCode{EmailHash: "burst", CodeHash: "x", CreatedAt: now, ExpiresAt: now.Add(10 * time.Minute), MaxAttempts: 5}
	require.NoError(t, codes.Save(ctx, v))

	var (
		wg        sync.WaitGroup
		granted   int64
		exhausted int64
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := codes.ReserveAttempt(ctx, v.ID)
			switch {
			case err == nil:
				atomic.AddInt64(&granted, 1)
			case errors.Is(err, ErrAttemptsExhausted):
				atomic.AddInt64(&exhausted, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(5), granted)
	assert.Equal(t, int64(15), exhausted)
	stored, err := codes.FindLatest(ctx, "burst")
	require.NoError(t, err)
	assert.Equal(t, 5, stored.Attempts)
}

func TestPostgresCaseSearch(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	cases := NewCaseRepository(conn, 5*time.Second)

	for i, name := range []string{"Alpha_Corp Guy", "Beta", "alpha"} {
		c := &models.Case{Name: name, Company: "Co", Actions: "Other", Description: "Took the money and ran off", ReportedBy: "r@x.com",
			CreatedAt: time.Now().Add(time.Duration(i) * time.Second)}
		require.NoError(t, cases.Create(ctx, c))
	}
	found, total, err := cases.Search(ctx, models.FilterName, "ALPHA", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, found, 2)

	// "_" экранирован и ищется буквально
	found, _, err = cases.Search(ctx, models.FilterName, "a_c", 10, 0)
	require.NoError(t, err)
	assert.Len(t, found, 1)

	dup, err := cases.FindDuplicate(ctx, "", "", "BETA", "co")
	require.NoError(t, err)
	assert.NotNil(t, dup)
}
