package notify

import (
	"context"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"sentinel/internal/adapters/config"
	"sentinel/pkg/errors"
	"sentinel/pkg/logger"
)

// Telegram sends notifications through a Telegram bot. Calls go
// through a conservative rate limiter (Telegram allows ~30 msg/sec).
type Telegram struct {
	api     *tgbotapi.BotAPI
	chatID  int64
	limiter *rate.Limiter
	log     *logger.Logger
}

// NewTelegram creates a Telegram notifier
func NewTelegram(cfg config.TelegramConfig) (*Telegram, error) {
	if cfg.BotToken == "" || cfg.ChatID == 0 {
		return nil, errors.Wrap(errors.ErrInvalidInput, "telegram bot token and chat id are required")
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	api, err := tgbotapi.NewBotAPIWithClient(cfg.BotToken, tgbotapi.APIEndpoint, httpClient)
	if err != nil {
		return nil, errors.Wrap(err, "create telegram bot")
	}

	return &Telegram{
		api:     api,
		chatID:  cfg.ChatID,
		limiter: rate.NewLimiter(rate.Limit(20), 30),
		log:     logger.Get().With("component", "telegram_notifier"),
	}, nil
}

// Name identifies the channel
func (t *Telegram) Name() string {
	return "telegram"
}

// Send delivers the message to the configured chat
func (t *Telegram) Send(ctx context.Context, msg Message) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limiter")
	}

	out := tgbotapi.NewMessage(t.chatID, msg.Subject+"\n\n"+msg.Body)
	if _, err := t.api.Send(out); err != nil {
		if tgErr, ok := err.(*tgbotapi.Error); ok {
			if tgErr.Code == http.StatusTooManyRequests {
				return errors.Wrapf(errors.ErrRateLimited, "telegram: %v", err)
			}
			if tgErr.Code >= 400 && tgErr.Code < 500 {
				return errors.Wrapf(errors.ErrNonRetryable, "telegram: %v", err)
			}
		}
		return errors.Wrapf(errors.ErrSourceUnavailable, "telegram: %v", err)
	}

	t.log.Debugf("Telegram message sent: %s", msg.Subject)
	return nil
}
