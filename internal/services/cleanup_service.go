package services

import (
	"context"
	"fmt"
	"time"

	cron "github.com/robfig/cron/v3"

	"unveil/internal/metrics"
	"unveil/internal/ratelimit"
	"unveil/internal/repositories"
	"unveil/internal/utils"
)

// коды храним ещё сутки после истечения, чтобы VerifyCode мог ответить «expired»
const codeRetention = 24 * time.Hour

type CleanupService struct {
	Codes   repositories.VerificationCodeRepository
	Limiter ratelimit.Limiter
	Metrics *metrics.Recorder

	now func() time.Time
}

func NewCleanupService(codes repositories.VerificationCodeRepository, limiter ratelimit.Limiter, rec *metrics.Recorder) *CleanupService {
	return &CleanupService{Codes: codes, Limiter: limiter, Metrics: rec, now: time.Now}
}

// CleanupDaily удаляет давно истёкшие коды и старые записи локального лимитера.
func (s *CleanupService) CleanupDaily(ctx context.Context) error {
	n, err := s.Codes.DeleteAllExpired(ctx, s.now().Add(-codeRetention))
	if err != nil {
		utils.Logger.WithError(err).Error("[cleanup] failed to delete expired verification codes")
		return fmt.Errorf("cleanup codes: %w", err)
	}
	s.Metrics.ObserveCleanup("verification_codes", n)

	// у Redis свои TTL, чистить нужно только локальный бэкенд
	if local, ok := s.Limiter.(*ratelimit.Local); ok {
		removed := local.Cleanup()
		s.Metrics.ObserveCleanup("ratelimit_entries", int64(removed))
		utils.Logger.Infof("[cleanup] ratelimit entries removed=%d", removed)
	}

	utils.Logger.Infof("[cleanup] daily cleanup completed codes_deleted=%d", n)
	return nil
}

// Schedule регистрирует CleanupDaily в cron по выражению spec.
func (s *CleanupService) Schedule(c *cron.Cron, spec string) (cron.EntryID, error) {
	return c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := s.CleanupDaily(ctx); err != nil {
			utils.Logger.WithError(err).Error("[cleanup] scheduled cleanup failed")
		}
	})
}
