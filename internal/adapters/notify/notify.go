// Package notify provides outbound notification channels. Each channel
// is configured independently; a send failure carries a
// retryable/non-retryable classification via the error taxonomy.
package notify

import (
	"context"
)

// Message is a rendered notification ready for one channel
type Message struct {
	Subject string
	Body    string
	// Payload carries the structured alert for channels that deliver
	// JSON (webhooks); text channels ignore it.
	Payload interface{}
}

// Notifier sends a rendered message through one transport
type Notifier interface {
	// Name identifies the channel (email, webhook, telegram)
	Name() string

	// Send delivers the message. Transient failures wrap
	// errors.ErrSourceUnavailable or errors.ErrRateLimited; permanent
	// rejections wrap errors.ErrNonRetryable.
	Send(ctx context.Context, msg Message) error
}
