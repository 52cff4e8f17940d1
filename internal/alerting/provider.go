package alerting

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/uptix/hub/internal/models"
)

// Transport kinds.
const (
	TransportNone    = "none"
	TransportSMTP    = "smtp"
	TransportWebhook = "webhook"
)

// Sender delivers formatted alerts to an external service.
type Sender interface {
	Send(ctx context.Context, n models.Notification) error
	Validate() error
	Name() string
}

// NewSender returns the configured transport after validating it.
func NewSender(kind string, smtpCfg SMTPSender, webhookCfg WebhookSender, logger *slog.Logger) (Sender, error) {
	var s Sender
	switch kind {
	case "", TransportNone:
		s = &logSender{logger: logger}
	case TransportSMTP:
		c := smtpCfg
		s = &c
	case TransportWebhook:
		c := webhookCfg
		s = &c
	default:
		return nil, fmt.Errorf("unknown alert transport: %s", kind)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s config: %w", s.Name(), err)
	}
	return s, nil
}

// logSender stands in when no transport is configured.
type logSender struct {
	logger *slog.Logger
}

func (l *logSender) Name() string    { return TransportNone }
func (l *logSender) Validate() error { return nil }

func (l *logSender) Send(_ context.Context, n models.Notification) error {
	l.logger.Info("alert transport not configured, skipping", "subject", n.Subject)
	return nil
}
