package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"unveil/internal/metrics"
	"unveil/internal/models"
	"unveil/internal/ratelimit"
	"unveil/internal/repositories"
	"unveil/internal/utils"
)

// Настройки по умолчанию, если конфиг их не задал.
const (
	defaultCodeExpiry      = 10 * time.Minute
	defaultMaxAttempts     = 5
	defaultResendCooldown  = time.Minute
	defaultIPAttemptCap    = 10
	defaultIPAttemptWindow = time.Hour
	defaultIPHourlyIssues  = 20
	defaultMailTimeout     = 10 * time.Second

	readAttempts = 3
	readBackoff  = 50 * time.Millisecond
)

type VerificationSettings struct {
	CodeExpiry       time.Duration
	MaxAttempts      int
	Cooldown         time.Duration
	IPAttemptCap     int
	IPAttemptWindow  time.Duration
	IPHourlyIssueCap int
	BcryptCost       int
	MailTimeout      time.Duration
}

func (s *VerificationSettings) withDefaults() VerificationSettings {
	out := *s
	if out.CodeExpiry <= 0 {
		out.CodeExpiry = defaultCodeExpiry
	}
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = defaultMaxAttempts
	}
	if out.Cooldown <= 0 {
		out.Cooldown = defaultResendCooldown
	}
	if out.IPAttemptCap <= 0 {
		out.IPAttemptCap = defaultIPAttemptCap
	}
	if out.IPAttemptWindow <= 0 {
		out.IPAttemptWindow = defaultIPAttemptWindow
	}
	if out.IPHourlyIssueCap <= 0 {
		out.IPHourlyIssueCap = defaultIPHourlyIssues
	}
	if out.BcryptCost == 0 {
		out.BcryptCost = bcrypt.DefaultCost
	}
	if out.MailTimeout <= 0 {
		out.MailTimeout = defaultMailTimeout
	}
	return out
}

// CodeIssued — ответ на запрос кода. Сам код наружу не отдаётся никогда.
type CodeIssued struct {
	Email     string `json:"email"`
	ExpiresIn int64  `json:"expiresIn"`
}

type VerifiedToken struct {
	Token     string    `json:"token"`
	Email     string    `json:"email"`
	ExpiresIn int64     `json:"expiresIn"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type TokenStatus struct {
	Verified bool   `json:"verified"`
	Email    string `json:"email,omitempty"`
}

// VerificationService выдаёт одноразовые коды на email и обменивает их на токен.
type VerificationService struct {
	Codes   repositories.VerificationCodeRepository
	Limiter ratelimit.Limiter
	Mailer  EmailService
	Tokens  *TokenService
	Metrics *metrics.Recorder

	cfg VerificationSettings
	now func() time.Time
}

func NewVerificationService(
	codes repositories.VerificationCodeRepository,
	limiter ratelimit.Limiter,
	mailer EmailService,
	tokens *TokenService,
	rec *metrics.Recorder,
	cfg VerificationSettings,
) *VerificationService {
	return &VerificationService{
		Codes:   codes,
		Limiter: limiter,
		Mailer:  mailer,
		Tokens:  tokens,
		Metrics: rec,
		cfg:     cfg.withDefaults(),
		now:     time.Now,
	}
}

func emailKey(hash string) string { return "verify:email:" + hash }
func ipKey(ip string) string      { return "verify:ip:" + ip }
func failKey(ip string) string    { return "verify-fail:ip:" + ip }

// RequestCode генерирует новый код, сохраняет его bcrypt-хэш и отправляет письмо.
// Предыдущий активный код для этого адреса перестаёт действовать.
func (s *VerificationService) RequestCode(ctx context.Context, email, sourceIP string) (*CodeIssued, error) {
	email = utils.NormalizeEmail(email)
	if !utils.IsValidEmail(email) {
		return nil, utils.InvalidInput("invalid email format")
	}
	hash := utils.HashEmail(email)
	now := s.now()

	if err := s.checkCooldown(ctx, emailKey(hash), "verification"); err != nil {
		return nil, err
	}
	if err := s.checkCooldown(ctx, ipKey(sourceIP), "verification"); err != nil {
		return nil, err
	}

	// персистентная страховка: лимитер мог перезапуститься вместе с процессом
	recent, err := utils.Retry(ctx, readAttempts, readBackoff, repositories.IsTransient, func(ctx context.Context) (int, error) {
		return s.Codes.CountRecentByEmailHash(ctx, hash, now.Add(-s.cfg.Cooldown))
	})
	if err != nil {
		return nil, storeError("count recent codes", err)
	}
	if recent > 0 {
		s.Metrics.ObserveRateLimited("verification")
		return nil, utils.RateLimited("please wait before requesting another code", s.cfg.Cooldown)
	}
	fromIP, err := utils.Retry(ctx, readAttempts, readBackoff, repositories.IsTransient, func(ctx context.Context) (int, error) {
		return s.Codes.CountRecentByIP(ctx, sourceIP, now.Add(-time.Hour))
	})
	if err != nil {
		return nil, storeError("count codes by ip", err)
	}
	if fromIP >= s.cfg.IPHourlyIssueCap {
		s.Metrics.ObserveRateLimited("verification")
		utils.Logger.Warnf("[verification][request] ip hourly cap reached ip=%s count=%d", sourceIP, fromIP)
		return nil, utils.RateLimited("too many verification requests from this address, try again later", time.Hour)
	}

	if _, err := s.Codes.DeleteExpired(ctx, hash, now); err != nil {
		return nil, storeError("delete expired codes", err)
	}
	if _, err := s.Codes.DeleteByEmailHash(ctx, hash); err != nil {
		return nil, storeError("delete previous codes", err)
	}

	code, err := utils.GenerateCode()
	if err != nil {
		return nil, utils.Internal(fmt.Errorf("generate code: %w", err))
	}
	codeHash, err := bcrypt.GenerateFromPassword([]byte(code), s.cfg.BcryptCost)
	if err != nil {
		return nil, utils.Internal(fmt.Errorf("bcrypt generate: %w", err))
	}

	rec := &models.VerificationCode{
		ID:          uuid.New(),
		EmailHash:   hash,
		CodeHash:    string(codeHash),
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.cfg.CodeExpiry),
		MaxAttempts: s.cfg.MaxAttempts,
		SourceIP:    sourceIP,
	}
	if err := s.Codes.Save(ctx, rec); err != nil {
		return nil, storeError("save code", err)
	}

	mailCtx, cancel := context.WithTimeout(ctx, s.cfg.MailTimeout)
	err = s.Mailer.SendVerificationCode(mailCtx, email, code, s.cfg.CodeExpiry)
	cancel()
	if err != nil {
		// код, который не дошёл, не должен оставаться активным
		if derr := s.Codes.Delete(context.WithoutCancel(ctx), rec.ID); derr != nil {
			utils.Logger.WithError(derr).Errorf("[verification][request] cleanup after mail failure email_hash=%s", hash)
		}
		utils.Logger.WithError(err).Errorf("[verification][request] mail failed provider=%s email=%s", s.Mailer.Kind(), utils.MaskEmail(email))
		return nil, utils.Unavailable("could not send verification email, please try again later", err)
	}

	s.record(ctx, emailKey(hash))
	s.record(ctx, ipKey(sourceIP))
	s.Metrics.ObserveCodeIssued()
	utils.Logger.Infof("[verification][request] code issued email_hash=%s ip=%s", hash, sourceIP)

	return &CodeIssued{Email: email, ExpiresIn: int64(s.cfg.CodeExpiry / time.Second)}, nil
}

// ResendCode — то же самое, что RequestCode, с теми же лимитами.
func (s *VerificationService) ResendCode(ctx context.Context, email, sourceIP string) (*CodeIssued, error) {
	return s.RequestCode(ctx, email, sourceIP)
}

// VerifyCode сверяет код и при успехе выдаёт токен подтверждённого email.
func (s *VerificationService) VerifyCode(ctx context.Context, email, code, sourceIP string) (*VerifiedToken, error) {
	email = utils.NormalizeEmail(email)
	code = strings.TrimSpace(code)
	if !utils.IsValidEmail(email) {
		return nil, utils.InvalidInput("invalid email format")
	}
	if !utils.IsValidCode(code) {
		return nil, utils.InvalidInput("code must be 6 digits")
	}

	// Попытка с адреса засчитывается сразу, до поиска кода: неудачей считается
	// всё, кроме успешной проверки (успех обнуляет счётчик).
	attemptsFromIP, err := s.Limiter.Incr(ctx, failKey(sourceIP), s.cfg.IPAttemptWindow)
	if err != nil {
		utils.Logger.WithError(err).Warnf("[verification][verify] limiter unavailable backend=%s", s.Limiter.Backend())
	} else if attemptsFromIP > s.cfg.IPAttemptCap {
		s.Metrics.ObserveRateLimited("verification")
		s.Metrics.ObserveVerification("ip_blocked")
		return nil, utils.RateLimited("too many failed attempts from this address, try again later", s.cfg.IPAttemptWindow)
	}

	hash := utils.HashEmail(email)
	now := s.now()

	v, err := utils.Retry(ctx, readAttempts, readBackoff, repositories.IsTransient, func(ctx context.Context) (*models.VerificationCode, error) {
		return s.Codes.FindActive(ctx, hash, now)
	})
	if err != nil {
		return nil, storeError("find active code", err)
	}
	if v == nil {
		latest, err := s.Codes.FindLatest(ctx, hash)
		if err != nil {
			return nil, storeError("find latest code", err)
		}
		if latest != nil {
			s.Metrics.ObserveVerification("expired")
			if latest.Verified {
				return nil, utils.NewError(utils.KindExpired, "verification code already used, please request a new one")
			}
			return nil, utils.NewError(utils.KindExpired, "verification code expired, please request a new one")
		}
		s.Metrics.ObserveVerification("not_found")
		return nil, utils.NotFound("no verification code found, please request a new one")
	}

	if v.Exhausted() {
		return nil, s.exhausted(ctx, v)
	}

	// попытка занимается в хранилище до сверки, успешная тоже идёт в счёт
	attempts, err := s.Codes.ReserveAttempt(ctx, v.ID)
	switch {
	case errors.Is(err, repositories.ErrAttemptsExhausted):
		return nil, s.exhausted(ctx, v)
	case errors.Is(err, repositories.ErrNotFound):
		// код успели подтвердить или удалить параллельно
		s.Metrics.ObserveVerification("expired")
		return nil, utils.NewError(utils.KindExpired, "verification code is no longer valid, please request a new one")
	case err != nil:
		return nil, storeError("reserve attempt", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(v.CodeHash), []byte(code)) != nil {
		remaining := v.MaxAttempts - attempts
		if remaining < 0 {
			remaining = 0
		}
		s.Metrics.ObserveVerification("invalid_code")
		utils.Logger.Infof("[verification][verify] invalid code email_hash=%s attempts=%d", hash, attempts)
		return nil, &utils.AppError{
			Kind:      utils.KindInvalidCode,
			Message:   fmt.Sprintf("invalid verification code, %d attempts remaining", remaining),
			Remaining: remaining,
		}
	}

	if err := s.Codes.MarkVerified(ctx, v.ID, now); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			// параллельный запрос успел погасить этот код
			s.Metrics.ObserveVerification("expired")
			return nil, utils.NewError(utils.KindExpired, "verification code already used, please request a new one")
		}
		return nil, storeError("mark verified", err)
	}
	if err := s.Limiter.Reset(ctx, failKey(sourceIP)); err != nil {
		utils.Logger.WithError(err).Warnf("[verification][verify] limiter reset failed ip=%s", sourceIP)
	}

	token, expiresAt, err := s.Tokens.Issue(email)
	if err != nil {
		return nil, utils.Internal(err)
	}
	s.Metrics.ObserveVerification("verified")
	utils.Logger.Infof("[verification][verify] verified email_hash=%s", hash)

	return &VerifiedToken{
		Token:     token,
		Email:     email,
		ExpiresIn: int64(s.Tokens.TTL() / time.Second),
		ExpiresAt: expiresAt,
	}, nil
}

// Status никогда не возвращает ошибку: невалидный токен — это просто verified=false.
func (s *VerificationService) Status(token string) TokenStatus {
	email, err := s.Tokens.EmailOf(token)
	if err != nil {
		return TokenStatus{Verified: false}
	}
	return TokenStatus{Verified: true, Email: email}
}

func (s *VerificationService) IsTokenValid(token string) bool { return s.Tokens.IsValid(token) }

func (s *VerificationService) EmailOf(token string) (string, error) { return s.Tokens.EmailOf(token) }

// checkCooldown пропускает запрос, если сам лимитер недоступен: у кода есть
// вторая линия защиты в хранилище.
func (s *VerificationService) checkCooldown(ctx context.Context, key, flow string) error {
	err := s.Limiter.Check(ctx, key, s.cfg.Cooldown)
	if err == nil {
		return nil
	}
	if utils.IsKind(err, utils.KindRateLimited) {
		s.Metrics.ObserveRateLimited(flow)
		return err
	}
	utils.Logger.WithError(err).Warnf("[%s][limit] limiter check failed backend=%s", flow, s.Limiter.Backend())
	return nil
}

func (s *VerificationService) record(ctx context.Context, key string) {
	if err := s.Limiter.Record(ctx, key); err != nil {
		utils.Logger.WithError(err).Warnf("[verification][limit] record failed key=%s", key)
	}
}

// exhausted удаляет код без попыток и возвращает TooManyAttempts.
func (s *VerificationService) exhausted(ctx context.Context, v *models.VerificationCode) error {
	if err := s.Codes.Delete(ctx, v.ID); err != nil {
		utils.Logger.WithError(err).Errorf("[verification][verify] delete exhausted code id=%s", v.ID)
	}
	s.Metrics.ObserveVerification("too_many_attempts")
	return utils.NewError(utils.KindTooManyAttempts, "too many failed attempts, please request a new code")
}

// storeError переводит ошибку хранилища в AppError: временные сбои — 503, прочее — 500.
func storeError(op string, err error) error {
	if repositories.IsTransient(err) {
		return utils.Unavailable("service temporarily unavailable, please try again", fmt.Errorf("%s: %w", op, err))
	}
	return utils.Internal(fmt.Errorf("%s: %w", op, err))
}
