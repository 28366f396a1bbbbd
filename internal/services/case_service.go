package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"unveil/internal/metrics"
	"unveil/internal/models"
	"unveil/internal/ratelimit"
	"unveil/internal/repositories"
	"unveil/internal/utils"
)

const (
	defaultSubmissionCooldown = 5 * time.Minute
	defaultCasesPerEmailDay   = 5
	defaultCasesPerIPDay      = 3

	defaultSearchSize = 20
	maxSearchSize     = 100

	maxNameLen        = 255
	maxCompanyLen     = 255
	maxPhoneLen       = 50
	maxActionsLen     = 300
	minDescriptionLen = 20
	maxDescriptionLen = 2000
)

type CaseSettings struct {
	SubmissionCooldown time.Duration
	MaxPerEmailPerDay  int
	MaxPerIPPerDay     int
}

// CaseInput — описательные поля дела, которые присылает клиент.
type CaseInput struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Company     string `json:"company"`
	Actions     string `json:"actions"`
	Description string `json:"description"`
}

func (in CaseInput) clean() CaseInput {
	return CaseInput{
		Name:        strings.TrimSpace(in.Name),
		Email:       utils.NormalizeEmail(in.Email),
		Phone:       strings.TrimSpace(in.Phone),
		Company:     strings.TrimSpace(in.Company),
		Actions:     strings.TrimSpace(in.Actions),
		Description: strings.TrimSpace(in.Description),
	}
}

func (in CaseInput) validate() error {
	if in.Name == "" && in.Email == "" && in.Phone == "" {
		return utils.InvalidInput("at least one of name, email or phone is required")
	}
	if in.Actions == "" {
		return utils.InvalidInput("actions are required")
	}
	if utf8.RuneCountInString(in.Actions) > maxActionsLen {
		return utils.InvalidInput("actions must be at most 300 characters")
	}
	n := utf8.RuneCountInString(in.Description)
	if n < minDescriptionLen || n > maxDescriptionLen {
		return utils.InvalidInput("description must be between 20 and 2000 characters")
	}
	if utf8.RuneCountInString(in.Name) > maxNameLen {
		return utils.InvalidInput("name must be at most 255 characters")
	}
	if utf8.RuneCountInString(in.Company) > maxCompanyLen {
		return utils.InvalidInput("company must be at most 255 characters")
	}
	if len(in.Phone) > maxPhoneLen || !utils.IsValidPhone(in.Phone) {
		return utils.InvalidInput("invalid phone number format")
	}
	if in.Email != "" && !utils.IsValidEmail(in.Email) {
		return utils.InvalidInput("invalid email format")
	}
	return nil
}

type CaseService struct {
	Repo    repositories.CaseRepository
	Limiter ratelimit.Limiter
	Metrics *metrics.Recorder

	cfg CaseSettings
	now func() time.Time
}

func NewCaseService(repo repositories.CaseRepository, limiter ratelimit.Limiter, rec *metrics.Recorder, cfg CaseSettings) *CaseService {
	if cfg.SubmissionCooldown <= 0 {
		cfg.SubmissionCooldown = defaultSubmissionCooldown
	}
	if cfg.MaxPerEmailPerDay <= 0 {
		cfg.MaxPerEmailPerDay = defaultCasesPerEmailDay
	}
	if cfg.MaxPerIPPerDay <= 0 {
		cfg.MaxPerIPPerDay = defaultCasesPerIPDay
	}
	return &CaseService{Repo: repo, Limiter: limiter, Metrics: rec, cfg: cfg, now: time.Now}
}

func reporterKey(email string) string { return "case:email:" + utils.HashEmail(email) }
func reporterIPKey(ip string) string  { return "case:ip:" + ip }

// Submit создаёт новое дело от имени подтверждённого email.
func (s *CaseService) Submit(ctx context.Context, in CaseInput, reporter, sourceIP string) (*models.Case, error) {
	reporter = utils.NormalizeEmail(reporter)
	if reporter == "" {
		return nil, utils.NewError(utils.KindInvalidToken, "email verification required")
	}
	in = in.clean()
	if err := in.validate(); err != nil {
		s.Metrics.ObserveCaseSubmission("invalid")
		return nil, err
	}

	if err := s.checkLimits(ctx, reporter, sourceIP); err != nil {
		s.Metrics.ObserveCaseSubmission("rate_limited")
		return nil, err
	}

	dup, err := s.Repo.FindDuplicate(ctx, in.Email, in.Phone, in.Name, in.Company)
	if err != nil {
		return nil, storeError("find duplicate", err)
	}
	if dup != nil {
		s.Metrics.ObserveCaseSubmission("duplicate")
		return nil, utils.NewError(utils.KindDuplicateCase, "a similar case has already been reported")
	}

	c := &models.Case{
		Name:        in.Name,
		Email:       in.Email,
		Phone:       in.Phone,
		Company:     in.Company,
		Actions:     in.Actions,
		Description: in.Description,
		ReportedBy:  reporter,
		SourceIP:    sourceIP,
		CreatedAt:   s.now(),
	}
	if err := s.Repo.Create(ctx, c); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			s.Metrics.ObserveCaseSubmission("duplicate")
			return nil, utils.NewError(utils.KindDuplicateCase, "a similar case has already been reported")
		}
		return nil, storeError("create case", err)
	}

	for _, key := range []string{reporterKey(reporter), reporterIPKey(sourceIP)} {
		if err := s.Limiter.Record(ctx, key); err != nil {
			utils.Logger.WithError(err).Warnf("[case][submit] limiter record failed key=%s", key)
		}
	}
	s.Metrics.ObserveCaseSubmission("created")
	utils.Logger.Infof("[case][submit] case_id=%d reporter=%s ip=%s", c.ID, utils.MaskEmail(reporter), sourceIP)
	return c, nil
}

func (s *CaseService) checkLimits(ctx context.Context, reporter, sourceIP string) error {
	if err := s.Limiter.Check(ctx, reporterKey(reporter), s.cfg.SubmissionCooldown); err != nil {
		if utils.IsKind(err, utils.KindRateLimited) {
			s.Metrics.ObserveRateLimited("case")
			return utils.RateLimited("please wait before submitting another case", utils.AsAppError(err).RetryAfter)
		}
		utils.Logger.WithError(err).Warn("[case][limit] limiter check failed")
		return nil
	}

	byEmail, err := s.Limiter.DailyCount(ctx, reporterKey(reporter))
	if err != nil {
		utils.Logger.WithError(err).Warn("[case][limit] daily count failed")
		return nil
	}
	if byEmail >= s.cfg.MaxPerEmailPerDay {
		s.Metrics.ObserveRateLimited("case")
		return utils.RateLimited("daily submission limit reached for this email", untilTomorrow(s.now()))
	}
	byIP, err := s.Limiter.DailyCount(ctx, reporterIPKey(sourceIP))
	if err != nil {
		utils.Logger.WithError(err).Warn("[case][limit] daily count failed")
		return nil
	}
	if byIP >= s.cfg.MaxPerIPPerDay {
		s.Metrics.ObserveRateLimited("case")
		return utils.RateLimited("daily submission limit reached for this address", untilTomorrow(s.now()))
	}
	return nil
}

// дневные корзины лимитера привязаны к UTC-дате
func untilTomorrow(now time.Time) time.Duration {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	return next.Sub(now)
}

func (s *CaseService) Get(ctx context.Context, id int64) (*models.Case, error) {
	c, err := utils.Retry(ctx, readAttempts, readBackoff, repositories.IsTransient, func(ctx context.Context) (*models.Case, error) {
		return s.Repo.GetByID(ctx, id)
	})
	if err != nil {
		return nil, storeError("get case", err)
	}
	if c == nil {
		return nil, utils.NotFound("case not found")
	}
	return c, nil
}

// Update перезаписывает описательные поля. Счётчики голосов не меняются.
func (s *CaseService) Update(ctx context.Context, id int64, in CaseInput) (*models.Case, error) {
	in = in.clean()
	if err := in.validate(); err != nil {
		return nil, err
	}
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Name, c.Email, c.Phone, c.Company = in.Name, in.Email, in.Phone, in.Company
	c.Actions, c.Description = in.Actions, in.Description

	if err := s.Repo.Update(ctx, c); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, utils.NotFound("case not found")
		}
		return nil, storeError("update case", err)
	}
	utils.Logger.Infof("[case][update] case_id=%d", id)
	return c, nil
}

func (s *CaseService) Delete(ctx context.Context, id int64) error {
	ok, err := s.Repo.Delete(ctx, id)
	if err != nil {
		return storeError("delete case", err)
	}
	if !ok {
		return utils.NotFound("case not found")
	}
	utils.Logger.Warnf("[case][delete] case_id=%d", id)
	return nil
}

func (s *CaseService) ListRecent(ctx context.Context, page, size int) (*Page, error) {
	page, size = normalizePage(page, size, defaultVoteListSize, maxVoteListSize)
	type result struct {
		items []*models.Case
		total int
	}
	res, err := utils.Retry(ctx, readAttempts, readBackoff, repositories.IsTransient, func(ctx context.Context) (result, error) {
		items, total, err := s.Repo.ListRecent(ctx, size, (page-1)*size)
		return result{items, total}, err
	})
	if err != nil {
		return nil, storeError("list recent", err)
	}
	return newPage(res.items, res.total, page, size), nil
}

func (s *CaseService) Search(ctx context.Context, filter, value string, page, size int) (*Page, error) {
	f, ok := models.ParseCaseFilter(strings.ToLower(strings.TrimSpace(filter)))
	if !ok {
		return nil, utils.InvalidInput("unsupported filter, use one of: " + strings.Join(models.SupportedFilters(), ", "))
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, utils.InvalidInput("search value is required")
	}
	page, size = normalizePage(page, size, defaultSearchSize, maxSearchSize)

	type result struct {
		items []*models.Case
		total int
	}
	res, err := utils.Retry(ctx, readAttempts, readBackoff, repositories.IsTransient, func(ctx context.Context) (result, error) {
		items, total, err := s.Repo.Search(ctx, f, value, size, (page-1)*size)
		return result{items, total}, err
	})
	if err != nil {
		return nil, storeError("search cases", err)
	}
	return newPage(res.items, res.total, page, size), nil
}
