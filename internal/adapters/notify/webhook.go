package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"sentinel/internal/adapters/config"
	"sentinel/pkg/errors"
	"sentinel/pkg/logger"
)

// Webhook POSTs the structured alert as JSON to a configured endpoint
type Webhook struct {
	url        string
	httpClient *http.Client
	log        *logger.Logger
}

// NewWebhook creates a webhook notifier
func NewWebhook(cfg config.WebhookConfig) (*Webhook, error) {
	if cfg.URL == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "webhook url is required")
	}

	return &Webhook{
		url: cfg.URL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		log: logger.Get().With("component", "webhook_notifier"),
	}, nil
}

// Name identifies the channel
func (w *Webhook) Name() string {
	return "webhook"
}

// Send POSTs the message payload as JSON
func (w *Webhook) Send(ctx context.Context, msg Message) error {
	payload := msg.Payload
	if payload == nil {
		payload = map[string]string{"subject": msg.Subject, "body": msg.Body}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(errors.ErrNonRetryable, err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(data))
	if err != nil {
		return errors.Wrap(errors.ErrNonRetryable, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(errors.ErrSourceUnavailable, "webhook post: %v", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		w.log.Debugf("Webhook delivered: %s", msg.Subject)
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return errors.Wrapf(errors.ErrRateLimited, "status %d", resp.StatusCode)
	case resp.StatusCode >= 500:
		return errors.Wrapf(errors.ErrSourceUnavailable, "status %d", resp.StatusCode)
	default:
		return errors.Wrapf(errors.ErrNonRetryable, "status %d", resp.StatusCode)
	}
}
