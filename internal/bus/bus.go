// Package bus defines the pub/sub contract connecting the pipeline
// stages. Delivery is at-least-once: a message may be delivered more
// than once to a subscriber after a reconnect, so consumers must key
// their side effects by deterministic entity identifiers.
package bus

import (
	"context"
)

// Message is a single payload delivered on a topic
type Message struct {
	Topic string
	Key   string
	Value []byte
}

// Subscription is a lazy, restartable stream of messages for one topic
type Subscription interface {
	// Receive blocks until the next message is available or ctx is cancelled
	Receive(ctx context.Context) (Message, error)

	// Close releases the subscription
	Close() error
}

// Bus is the topic-based publish/subscribe transport. The bus performs
// no payload validation; payloads are JSON-serialized as-is.
type Bus interface {
	// Publish sends a payload to a topic. Key controls partition
	// affinity so successive events for one symbol stay ordered.
	// Returns an error wrapping errors.ErrBusUnavailable when the
	// transport cannot accept the message.
	Publish(ctx context.Context, topic, key string, payload interface{}) error

	// Subscribe joins a consumer group on a topic. Distinct groups each
	// receive every message; members of one group share the stream.
	Subscribe(topic, group string) (Subscription, error)

	// Close releases all transport resources
	Close() error
}
