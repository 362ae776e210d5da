// Package notify alerts operators about payouts and payments that need a human.
package notify

import (
	"context"
	"fmt"
	"html"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"spotbook-backend/internal/config"
	"spotbook-backend/internal/logger"
)

type Notifier interface {
	NotifyOps(ctx context.Context, subject, body string) error
}

// New returns a SendGrid notifier when an API key is configured and a log-only one otherwise.
func New(cfg config.NotifyConfig) Notifier {
	if cfg.SendGridAPIKey == "" || cfg.OpsEmail == "" {
		return LogNotifier{}
	}
	return NewSendGridNotifier(cfg.SendGridAPIKey, cfg.FromEmail, cfg.FromName, cfg.OpsEmail)
}

type SendGridNotifier struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
	opsEmail  string
}

func NewSendGridNotifier(apiKey, fromEmail, fromName, opsEmail string) *SendGridNotifier {
	return &SendGridNotifier{
		client:    sendgrid.NewSendClient(apiKey),
		fromEmail: fromEmail,
		fromName:  fromName,
		opsEmail:  opsEmail,
	}
}

func (s *SendGridNotifier) NotifyOps(ctx context.Context, subject, body string) error {
	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail("Operations", s.opsEmail)
	message := mail.NewSingleEmail(from, subject, to, body, htmlBody(body))

	logger.ExternalServiceCall("sendgrid", "send", "subject", subject)
	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		logger.ExternalServiceResult("sendgrid", "send", err)
		return fmt.Errorf("failed to send ops email: %w", err)
	}
	if response.StatusCode >= 400 {
		err := fmt.Errorf("sendgrid error: status %d, body: %s", response.StatusCode, response.Body)
		logger.ExternalServiceResult("sendgrid", "send", err)
		return err
	}
	logger.ExternalServiceResult("sendgrid", "send", nil, "status", response.StatusCode)
	return nil
}

// LogNotifier writes the alert to the log instead of mailing it.
type LogNotifier struct{}

func (LogNotifier) NotifyOps(ctx context.Context, subject, body string) error {
	logger.WarnContext(ctx, "Ops notification", "subject", subject, "body", body)
	return nil
}

func htmlBody(body string) string {
	return "<pre>" + html.EscapeString(body) + "</pre>"
}
