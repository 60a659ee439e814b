package bus

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/segmentio/kafka-go"

	"sentinel/internal/adapters/config"
	"sentinel/pkg/errors"
	"sentinel/pkg/logger"
)

// KafkaBus implements Bus on top of Kafka. Writers are created lazily
// per topic and reused for the process lifetime; readers join consumer
// groups so redelivery after a reconnect follows committed offsets.
type KafkaBus struct {
	brokers []string
	mu      sync.Mutex
	writers map[string]*kafka.Writer
	log     *logger.Logger
}

// NewKafkaBus creates a Kafka-backed bus
func NewKafkaBus(cfg config.KafkaConfig) *KafkaBus {
	return &KafkaBus{
		brokers: cfg.Brokers,
		writers: make(map[string]*kafka.Writer),
		log:     logger.Get().With("component", "kafka_bus"),
	}
}

// getWriter returns or creates a writer for a topic
func (b *KafkaBus) getWriter(topic string) *kafka.Writer {
	b.mu.Lock()
	defer b.mu.Unlock()

	if w, ok := b.writers[topic]; ok {
		return w
	}

	w := &kafka.Writer{
		Addr:     kafka.TCP(b.brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{}, // key affinity keeps per-symbol order
		Async:    false,         // synchronous for reliability
	}

	b.writers[topic] = w
	return w
}

// Publish sends a message to a topic
func (b *KafkaBus) Publish(ctx context.Context, topic, key string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal payload")
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
	}

	if err := b.getWriter(topic).WriteMessages(ctx, msg); err != nil {
		b.log.Errorf("Failed to publish to %s: %v", topic, err)
		return errors.Wrapf(errors.ErrBusUnavailable, "publish to %s: %v", topic, err)
	}

	b.log.Debugf("Published to %s: %s", topic, key)
	return nil
}

// Subscribe joins a consumer group on a topic
func (b *KafkaBus) Subscribe(topic, group string) (Subscription, error) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     b.brokers,
		GroupID:     group,
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
		StartOffset: kafka.FirstOffset,
	})

	b.log.Info("Subscription created",
		"topic", topic,
		"group", group,
	)

	return &kafkaSubscription{
		reader: reader,
		log:    b.log.With("topic", topic, "group", group),
	}, nil
}

// Close closes all writers
func (b *KafkaBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for topic, w := range b.writers {
		if err := w.Close(); err != nil {
			b.log.Errorf("Failed to close writer for %s: %v", topic, err)
			return err
		}
	}
	return nil
}

type kafkaSubscription struct {
	reader *kafka.Reader
	log    *logger.Logger
}

// Receive reads the next message with an explicit shutdown check before
// blocking, so a consumer loop never blocks on I/O after cancellation.
func (s *kafkaSubscription) Receive(ctx context.Context) (Message, error) {
	select {
	case <-ctx.Done():
		return Message{}, ctx.Err()
	default:
	}

	msg, err := s.reader.ReadMessage(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return Message{}, ctx.Err()
		}
		return Message{}, errors.Wrapf(errors.ErrBusUnavailable, "read: %v", err)
	}

	return Message{
		Topic: msg.Topic,
		Key:   string(msg.Key),
		Value: msg.Value,
	}, nil
}

func (s *kafkaSubscription) Close() error {
	return s.reader.Close()
}
