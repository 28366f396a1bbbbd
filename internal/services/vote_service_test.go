package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unveil/internal/models"
	"unveil/internal/utils"
)

func seedCase(t *testing.T, f *fixture, name string) *models.Case {
	t.Helper()
	c := &models.Case{
		Name:        name,
		Actions:     "fake invoices",
		Description: "Sent fake invoices to several small businesses.",
		ReportedBy:  "reporter@example.com",
		CreatedAt:   f.clock.Now(),
	}
	require.NoError(t, f.store.Cases().Create(context.Background(), c))
	f.clock.Advance(time.Second)
	return c
}

func TestCastVoteAndVerdict(t *testing.T) {
	f := newFixture(t, VerificationSettings{}, CaseSettings{})
	ctx := context.Background()
	c := seedCase(t, f, "John Doe")

	alice := models.EmailIdentity("alice@example.com")
	updated, err := f.votes.CastVote(ctx, c.ID, "guilty", alice)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.TotalVotes)
	assert.Equal(t, 1, updated.VerdictScore)
	require.NotNil(t, updated.LastVotedAt)
	assert.True(t, updated.LastVotedAt.Equal(f.clock.Now()))

	_, err = f.votes.CastVote(ctx, c.ID, "not_guilty", alice)
	assert.Equal(t, utils.KindDuplicateVote, utils.KindOf(err))

	_, err = f.votes.CastVote(ctx, c.ID, "not_guilty", models.IPIdentity("192.0.2.1"))
	require.NoError(t, err)

	v, err := f.votes.Verdict(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, v.Status)
	assert.Equal(t, 2, v.TotalVotes)
	assert.Equal(t, 0, v.Score)
	assert.Equal(t, 50.0, v.Confidence)

	voted, err := f.votes.HasVoted(ctx, alice, c.ID)
	require.NoError(t, err)
	assert.True(t, voted)
	voted, err = f.votes.HasVoted(ctx, models.EmailIdentity("bob@example.com"), c.ID)
	require.NoError(t, err)
	assert.False(t, voted)
}

func TestCastVoteErrors(t *testing.T) {
	f := newFixture(t, VerificationSettings{}, CaseSettings{})
	ctx := context.Background()
	c := seedCase(t, f, "Jane Roe")
	id := models.IPIdentity("192.0.2.2")

	_, err := f.votes.CastVote(ctx, c.ID, "maybe", id)
	assert.Equal(t, utils.KindInvalidInput, utils.KindOf(err))

	_, err = f.votes.CastVote(ctx, 9999, "guilty", id)
	assert.Equal(t, utils.KindNotFound, utils.KindOf(err))

	_, err = f.votes.Verdict(ctx, 9999)
	assert.Equal(t, utils.KindNotFound, utils.KindOf(err))

	_, err = f.votes.CastVote(ctx, c.ID, "guilty", id)
	require.NoError(t, err)
	_, err = f.votes.CastVote(ctx, c.ID, "guilty", id)
	app := utils.AsAppError(err)
	require.NotNil(t, app)
	assert.Equal(t, utils.KindDuplicateVote, app.Kind)
	assert.Contains(t, app.Message, "verify your email")
}

func TestConcurrentVotesKeepTallyConsistent(t *testing.T) {
	f := newFixture(t, VerificationSettings{}, CaseSettings{})
	ctx := context.Background()
	c := seedCase(t, f, "Concurrent Target")

	const voters = 40
	var (
		wg       sync.WaitGroup
		accepted int64
		dupes    int64
	)
	for i := 0; i < voters; i++ {
		id := models.EmailIdentity(fmt.Sprintf("v%d@example.com", i))
		choice := "guilty"
		if i%4 == 0 {
			choice = "not_guilty"
		}
		// каждый голосует дважды одновременно
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.votes.CastVote(ctx, c.ID, choice, id)
				switch utils.KindOf(err) {
				case "":
					atomic.AddInt64(&accepted, 1)
				case utils.KindDuplicateVote:
					atomic.AddInt64(&dupes, 1)
				}
			}()
		}
	}
	wg.Wait()

	assert.Equal(t, int64(voters), accepted)
	assert.Equal(t, int64(voters), dupes)

	got, err := f.store.Cases().GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, voters, got.TotalVotes)
	assert.Equal(t, 30, got.GuiltyVotes)
	assert.Equal(t, 10, got.NotGuiltyVotes)
	assert.True(t, got.TallyConsistent())
}

func TestResetVotesAllowsRevote(t *testing.T) {
	f := newFixture(t, VerificationSettings{}, CaseSettings{})
	ctx := context.Background()
	c := seedCase(t, f, "Reset Me")
	id := models.EmailIdentity("alice@example.com")

	_, err := f.votes.CastVote(ctx, c.ID, "guilty", id)
	require.NoError(t, err)

	reset, err := f.votes.ResetVotes(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, reset.TotalVotes)
	assert.Nil(t, reset.LastVotedAt)

	_, err = f.votes.CastVote(ctx, c.ID, "not_guilty", id)
	assert.NoError(t, err)

	_, err = f.votes.ResetVotes(ctx, 4242)
	assert.Equal(t, utils.KindNotFound, utils.KindOf(err))
}

func TestTopVotedAndNeedingVotes(t *testing.T) {
	f := newFixture(t, VerificationSettings{}, CaseSettings{})
	ctx := context.Background()

	a := seedCase(t, f, "A")
	b := seedCase(t, f, "B")
	seedCase(t, f, "C")

	for i := 0; i < 6; i++ {
		_, err := f.votes.CastVote(ctx, a.ID, "guilty", models.IPIdentity(fmt.Sprintf("192.0.2.%d", i+10)))
		require.NoError(t, err)
	}
	_, err := f.votes.CastVote(ctx, b.ID, "guilty", models.IPIdentity("192.0.2.99"))
	require.NoError(t, err)

	top, err := f.votes.TopVoted(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, top.Total)
	assert.Equal(t, 10, top.Size)
	require.Len(t, top.Results, 2)
	assert.Equal(t, a.ID, top.Results[0].ID)

	need, err := f.votes.NeedingVotes(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, need.Total)
	assert.Equal(t, 2, need.TotalPages)
	require.Len(t, need.Results, 1)
	assert.Equal(t, "C", need.Results[0].Name)

	big, err := f.votes.NeedingVotes(ctx, 1, 500)
	require.NoError(t, err)
	assert.Equal(t, 50, big.Size)

	empty, err := f.votes.TopVoted(ctx, 9, 10)
	require.NoError(t, err)
	assert.NotNil(t, empty.Results)
	assert.Len(t, empty.Results, 0)
}
