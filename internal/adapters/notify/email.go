package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"net/textproto"
	"strings"

	"sentinel/internal/adapters/config"
	"sentinel/pkg/errors"
	"sentinel/pkg/logger"
)

// Email sends notifications over SMTP
type Email struct {
	cfg  config.SMTPConfig
	auth smtp.Auth
	log  *logger.Logger
}

// NewEmail creates an email notifier
func NewEmail(cfg config.SMTPConfig) (*Email, error) {
	if cfg.From == "" || len(cfg.To) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidInput, "smtp from and to addresses are required")
	}

	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	return &Email{
		cfg:  cfg,
		auth: auth,
		log:  logger.Get().With("component", "email_notifier"),
	}, nil
}

// Name identifies the channel
func (e *Email) Name() string {
	return "email"
}

// Send delivers the message via SMTP. SendMail dials per message; the
// SMTP session cannot be pooled with net/smtp, but the channel is low
// volume by construction (only threshold-crossing alerts reach it).
func (e *Email) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s",
		e.cfg.From, strings.Join(e.cfg.To, ", "), msg.Subject, msg.Body,
	)

	if err := smtp.SendMail(e.cfg.Addr(), e.auth, e.cfg.From, e.cfg.To, []byte(body)); err != nil {
		// SMTP 5xx replies are permanent; everything else (dial
		// failures, 4xx greylisting) is worth retrying
		var protoErr *textproto.Error
		if errors.As(err, &protoErr) && protoErr.Code >= 500 {
			return errors.Wrapf(errors.ErrNonRetryable, "smtp: %v", err)
		}
		return errors.Wrapf(errors.ErrSourceUnavailable, "smtp: %v", err)
	}

	e.log.Debugf("Email sent: %s", msg.Subject)
	return nil
}
