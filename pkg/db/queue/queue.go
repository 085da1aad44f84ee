package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/IBM/sarama"
	"github.com/erain9/lobsim/pkg/messaging"
	"github.com/rs/zerolog"
)

const (
	defaultTopic = "lob-events"
	maxRetry     = 5
)

// newSyncProducer and newConsumer are swapped out in tests
var (
	newSyncProducer = sarama.NewSyncProducer
	newConsumer     = sarama.NewConsumer
)

func producerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = maxRetry
	cfg.Producer.Return.Successes = true
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	return cfg
}

// QueueMessageSender implements the MessageSender interface on a sarama
// sync producer
type QueueMessageSender struct {
	producer sarama.SyncProducer
	topic    string
}

// NewQueueMessageSender connects a sync producer to brokers. An empty topic
// falls back to the default events topic.
func NewQueueMessageSender(brokers []string, topic string) (*QueueMessageSender, error) {
	if topic == "" {
		topic = defaultTopic
	}

	producer, err := newSyncProducer(brokers, producerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return &QueueMessageSender{producer: producer, topic: topic}, nil
}

// SendEvents sends the batch with one SendMessages call. The context is
// checked before sending; sarama's sync producer does not take one.
func (q *QueueMessageSender) SendEvents(ctx context.Context, events []messaging.Event) error {
	if len(events) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msgs := make([]*sarama.ProducerMessage, 0, len(events))
	for _, e := range events {
		data, err := messaging.Encode(e)
		if err != nil {
			return fmt.Errorf("failed to marshal event %d: %w", e.Sequence, err)
		}
		msgs = append(msgs, &sarama.ProducerMessage{
			Topic: q.topic,
			Key:   sarama.StringEncoder(e.Symbol),
			Value: sarama.ByteEncoder(data),
			Headers: []sarama.RecordHeader{
				{Key: []byte("event-type"), Value: []byte(e.Type)},
			},
		})
	}

	if err := q.producer.SendMessages(msgs); err != nil {
		return fmt.Errorf("failed to send message to Kafka: %w", err)
	}
	return nil
}

// Close closes the producer
func (q *QueueMessageSender) Close() error {
	return q.producer.Close()
}

var _ messaging.MessageSender = (*QueueMessageSender)(nil)

// QueueMessageConsumer reads events from partition 0 of the events topic
type QueueMessageConsumer struct {
	consumer sarama.Consumer
	topic    string
	logger   zerolog.Logger
	done     chan struct{}
	once     sync.Once
}

// NewQueueMessageConsumer connects a consumer to brokers
func NewQueueMessageConsumer(brokers []string, topic string, logger zerolog.Logger) (*QueueMessageConsumer, error) {
	if topic == "" {
		topic = defaultTopic
	}

	consumer, err := newConsumer(brokers, sarama.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer: %w", err)
	}

	return &QueueMessageConsumer{
		consumer: consumer,
		topic:    topic,
		logger:   logger,
		done:     make(chan struct{}),
	}, nil
}

// ConsumeEvents blocks handing each decoded event to handle until ctx is
// done, Close is called, or handle fails
func (c *QueueMessageConsumer) ConsumeEvents(ctx context.Context, handle func(messaging.Event) error) error {
	partition, err := c.consumer.ConsumePartition(c.topic, 0, sarama.OffsetOldest)
	if err != nil {
		return fmt.Errorf("failed to consume partition: %w", err)
	}
	defer partition.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.done:
			return nil
		case consumerErr, ok := <-partition.Errors():
			if !ok {
				return nil
			}
			c.logger.Warn().Err(consumerErr.Err).Msg("Kafka consumer error")
		case msg, ok := <-partition.Messages():
			if !ok {
				return nil
			}
			event, err := messaging.Decode(msg.Value)
			if err != nil {
				c.logger.Warn().Err(err).Int64("offset", msg.Offset).Msg("Skipping undecodable event")
				continue
			}
			if err := handle(event); err != nil {
				return errors.Join(fmt.Errorf("handler failed at offset %d", msg.Offset), err)
			}
		}
	}
}

// Close stops ConsumeEvents and closes the consumer
func (c *QueueMessageConsumer) Close() error {
	c.once.Do(func() { close(c.done) })
	return c.consumer.Close()
}
