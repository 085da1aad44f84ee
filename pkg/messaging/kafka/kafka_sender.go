package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/erain9/lobsim/pkg/messaging"
	"github.com/segmentio/kafka-go"
)

const defaultWriteTimeout = 5 * time.Second

// messageWriter is the part of *kafka.Writer the sender uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaMessageSender implements MessageSender using kafka-go
type KafkaMessageSender struct {
	writer  messageWriter
	topic   string
	timeout time.Duration
}

// NewKafkaMessageSender creates a new Kafka message sender. Messages are
// keyed by symbol so one instrument stays on one partition, in order.
func NewKafkaMessageSender(brokerAddr, topic string) (*KafkaMessageSender, error) {
	if brokerAddr == "" || topic == "" {
		return nil, fmt.Errorf("kafka sender needs a broker and a topic")
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokerAddr),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}

	return newKafkaMessageSender(writer, topic), nil
}

func newKafkaMessageSender(writer messageWriter, topic string) *KafkaMessageSender {
	return &KafkaMessageSender{
		writer:  writer,
		topic:   topic,
		timeout: defaultWriteTimeout,
	}
}

// SendEvents writes the batch in one call
func (k *KafkaMessageSender) SendEvents(ctx context.Context, events []messaging.Event) error {
	if len(events) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		data, err := messaging.Encode(e)
		if err != nil {
			return fmt.Errorf("failed to marshal event %d: %w", e.Sequence, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(e.Symbol),
			Value: data,
			Headers: []kafka.Header{
				{Key: "event-type", Value: []byte(e.Type)},
			},
			Time: time.Now(),
		})
	}

	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to send %d events to Kafka topic %s: %w", len(msgs), k.topic, err)
	}
	return nil
}

// Close closes the Kafka writer
func (k *KafkaMessageSender) Close() error {
	return k.writer.Close()
}

var _ messaging.MessageSender = (*KafkaMessageSender)(nil)
