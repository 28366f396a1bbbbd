package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"gopkg.in/gomail.v2"

	"unveil/internal/utils"
)

// EmailService доставляет письмо с кодом. Повторов внутри нет: одна попытка,
// ограниченная контекстом.
type EmailService interface {
	SendVerificationCode(ctx context.Context, to, code string, expiresIn time.Duration) error
	Kind() string
}

type smtpEmailService struct {
	dialer   *gomail.Dialer
	from     string
	fromName string
}

func NewSMTPEmailService(smtpHost string, smtpPort int, smtpUser, smtpPassword, fromEmail, fromName string) EmailService {
	dialer := gomail.NewDialer(smtpHost, smtpPort, smtpUser, smtpPassword)
	return &smtpEmailService{dialer: dialer, from: fromEmail, fromName: fromName}
}

func (s *smtpEmailService) Kind() string { return "smtp" }

func (s *smtpEmailService) SendVerificationCode(ctx context.Context, to, code string, expiresIn time.Duration) error {
	subject, text, html := verificationEmail(code, expiresIn)

	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.from, s.fromName)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", text)
	m.AddAlternative("text/html", html)

	// gomail не принимает context — ждём в горутине и отпускаем по дедлайну
	done := make(chan error, 1)
	go func() { done <- s.dialer.DialAndSend(m) }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send verification email: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to send verification email: %w", ctx.Err())
	}
}

type sendGridEmailService struct {
	client   *sendgrid.Client
	from     string
	fromName string
}

func NewSendGridEmailService(apiKey, fromEmail, fromName string) EmailService {
	return &sendGridEmailService{client: sendgrid.NewSendClient(apiKey), from: fromEmail, fromName: fromName}
}

func (s *sendGridEmailService) Kind() string { return "sendgrid" }

func (s *sendGridEmailService) SendVerificationCode(ctx context.Context, to, code string, expiresIn time.Duration) error {
	subject, text, html := verificationEmail(code, expiresIn)
	message := mail.NewSingleEmail(mail.NewEmail(s.fromName, s.from), subject, mail.NewEmail("", to), text, html)

	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid send: status %d", resp.StatusCode)
	}
	return nil
}

// logEmailService — dry-run: письмо не отправляется, код пишется в лог.
type logEmailService struct{}

func NewLogEmailService() EmailService { return logEmailService{} }

func (logEmailService) Kind() string { return "log" }

func (logEmailService) SendVerificationCode(_ context.Context, to, code string, expiresIn time.Duration) error {
	utils.Logger.Infof("[mail][dry-run] to=%s code=%s expires_in=%s", utils.MaskEmail(to), code, expiresIn)
	return nil
}
