package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"unveil/internal/metrics"
	"unveil/internal/models"
	"unveil/internal/repositories"
	"unveil/internal/utils"
)

const (
	defaultVoteListSize = 10
	maxVoteListSize     = 50
)

type VoteService struct {
	Cases   repositories.CaseRepository
	Ledger  repositories.VoteLedger
	Metrics *metrics.Recorder

	now func() time.Time
}

func NewVoteService(cases repositories.CaseRepository, ledger repositories.VoteLedger, rec *metrics.Recorder) *VoteService {
	return &VoteService{Cases: cases, Ledger: ledger, Metrics: rec, now: time.Now}
}

// CastVote записывает один голос и возвращает дело с обновлёнными счётчиками.
// Проверка «один голос на личность» и инкремент счётчиков происходят атомарно в хранилище.
func (s *VoteService) CastVote(ctx context.Context, caseID int64, choice string, identity models.VoterIdentity) (*models.Case, error) {
	vc, ok := models.ParseVoteChoice(choice)
	if !ok {
		return nil, utils.InvalidInput("vote must be 'guilty' or 'not_guilty'")
	}
	if caseID <= 0 {
		return nil, utils.InvalidInput("invalid case id")
	}

	c, err := s.Ledger.RecordVote(ctx, caseID, identity, vc, s.now())
	switch {
	case err == nil:
	case errors.Is(err, repositories.ErrNotFound):
		s.Metrics.ObserveVote("not_found", identity.Method())
		return nil, utils.NotFound("case not found")
	case errors.Is(err, repositories.ErrDuplicate):
		s.Metrics.ObserveVote("duplicate", identity.Method())
		if identity.IsEmail() {
			return nil, utils.NewError(utils.KindDuplicateVote, "this email has already voted on this case")
		}
		return nil, utils.NewError(utils.KindDuplicateVote, "a vote has already been cast on this case from your network; verify your email to vote")
	default:
		s.Metrics.ObserveVote("error", identity.Method())
		return nil, storeError("record vote", err)
	}

	s.Metrics.ObserveVote("accepted", identity.Method())
	utils.Logger.Infof("[vote][cast] case_id=%d choice=%s method=%s total=%d score=%d",
		caseID, vc, identity.Method(), c.TotalVotes, c.VerdictScore)
	return c, nil
}

// ResetVotes обнуляет счётчики и удаляет все голоса по делу. Только для админа.
func (s *VoteService) ResetVotes(ctx context.Context, caseID int64) (*models.Case, error) {
	c, err := s.Ledger.ResetCase(ctx, caseID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, utils.NotFound("case not found")
	}
	if err != nil {
		return nil, storeError("reset votes", err)
	}
	utils.Logger.Warnf("[vote][reset] case_id=%d", caseID)
	return c, nil
}

func (s *VoteService) HasVoted(ctx context.Context, identity models.VoterIdentity, caseID int64) (bool, error) {
	voted, err := utils.Retry(ctx, readAttempts, readBackoff, repositories.IsTransient, func(ctx context.Context) (bool, error) {
		return s.Ledger.HasVoted(ctx, identity, caseID)
	})
	if err != nil {
		return false, storeError("has voted", err)
	}
	return voted, nil
}

func (s *VoteService) Verdict(ctx context.Context, caseID int64) (models.VerdictSummary, error) {
	c, err := utils.Retry(ctx, readAttempts, readBackoff, repositories.IsTransient, func(ctx context.Context) (*models.Case, error) {
		return s.Cases.GetByID(ctx, caseID)
	})
	if err != nil {
		return models.VerdictSummary{}, storeError("get case", err)
	}
	if c == nil {
		return models.VerdictSummary{}, utils.NotFound("case not found")
	}
	return c.Summary(), nil
}

func (s *VoteService) TopVoted(ctx context.Context, page, size int) (*Page, error) {
	return s.list(ctx, "top voted", s.Cases.ListTopVoted, page, size)
}

func (s *VoteService) NeedingVotes(ctx context.Context, page, size int) (*Page, error) {
	return s.list(ctx, "needing votes", s.Cases.ListNeedingVotes, page, size)
}

type listFunc func(ctx context.Context, limit, offset int) ([]*models.Case, int, error)

func (s *VoteService) list(ctx context.Context, op string, fn listFunc, page, size int) (*Page, error) {
	page, size = normalizePage(page, size, defaultVoteListSize, maxVoteListSize)
	type result struct {
		items []*models.Case
		total int
	}
	res, err := utils.Retry(ctx, readAttempts, readBackoff, repositories.IsTransient, func(ctx context.Context) (result, error) {
		items, total, err := fn(ctx, size, (page-1)*size)
		return result{items, total}, err
	})
	if err != nil {
		return nil, storeError(fmt.Sprintf("list %s", op), err)
	}
	return newPage(res.items, res.total, page, size), nil
}
