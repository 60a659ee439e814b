package bus

import (
	"context"
	"encoding/json"
	"sync"

	"sentinel/pkg/errors"
)

const memoryBufferSize = 256

// MemoryBus is an in-process Bus used by tests and single-process
// deployments. Each (topic, group) pair gets one buffered channel;
// distinct groups each see every message, mirroring consumer-group
// semantics. Publish to a full buffer fails as bus-unavailable rather
// than blocking the producer.
type MemoryBus struct {
	mu     sync.RWMutex
	groups map[string]map[string]chan Message // topic -> group -> channel
	closed bool
}

// NewMemoryBus creates an in-memory bus
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		groups: make(map[string]map[string]chan Message),
	}
}

// Publish fans the payload out to every group subscribed to the topic
func (b *MemoryBus) Publish(ctx context.Context, topic, key string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal payload")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return errors.Wrap(errors.ErrBusUnavailable, "bus closed")
	}

	msg := Message{Topic: topic, Key: key, Value: data}
	for group, ch := range b.groups[topic] {
		select {
		case ch <- msg:
		default:
			return errors.Wrapf(errors.ErrBusUnavailable, "subscriber buffer full: %s/%s", topic, group)
		}
	}
	return nil
}

// Subscribe joins (or creates) a group stream on a topic
func (b *MemoryBus) Subscribe(topic, group string) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, errors.Wrap(errors.ErrBusUnavailable, "bus closed")
	}

	if b.groups[topic] == nil {
		b.groups[topic] = make(map[string]chan Message)
	}
	ch, ok := b.groups[topic][group]
	if !ok {
		ch = make(chan Message, memoryBufferSize)
		b.groups[topic][group] = ch
	}

	return &memorySubscription{ch: ch}, nil
}

// Close marks the bus closed; pending messages remain receivable
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

type memorySubscription struct {
	ch chan Message
}

func (s *memorySubscription) Receive(ctx context.Context) (Message, error) {
	select {
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case msg := <-s.ch:
		return msg, nil
	}
}

func (s *memorySubscription) Close() error {
	return nil
}
