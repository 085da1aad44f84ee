package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/erain9/lobsim/pkg/messaging"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// messageReader is the part of *kafka.Reader the consumer uses
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// EventConsumer tails the events topic
type EventConsumer struct {
	reader messageReader
	logger zerolog.Logger
}

// ConsumerConfig configures an EventConsumer
type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// NewEventConsumer creates a consumer reading cfg.Topic
func NewEventConsumer(cfg ConsumerConfig, logger zerolog.Logger) (*EventConsumer, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, fmt.Errorf("kafka consumer needs brokers and a topic")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &EventConsumer{reader: reader, logger: logger}, nil
}

// Consume reads events until ctx is done, handing each to handle. Messages
// that fail to decode are logged and skipped.
func (c *EventConsumer) Consume(ctx context.Context, handle func(messaging.Event) error) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("failed to read from Kafka: %w", err)
		}

		event, err := messaging.Decode(msg.Value)
		if err != nil {
			c.logger.Warn().Err(err).Int64("offset", msg.Offset).Msg("Skipping undecodable event")
			continue
		}
		if err := handle(event); err != nil {
			return err
		}
	}
}

// Close closes the underlying reader
func (c *EventConsumer) Close() error {
	return c.reader.Close()
}

// SetupConsumer starts a consumer in the background that logs every event it
// receives. Useful for watching a simulation from another terminal.
func SetupConsumer(ctx context.Context, cfg ConsumerConfig, logger zerolog.Logger) (*EventConsumer, error) {
	consumer, err := NewEventConsumer(cfg, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to create Kafka consumer - continuing without Kafka support")
		return nil, err
	}

	go func() {
		logger.Info().Str("topic", cfg.Topic).Msg("Starting Kafka consumer")
		err := consumer.Consume(ctx, func(e messaging.Event) error {
			entry := logger.Info().
				Str("symbol", e.Symbol).
				Uint64("sequence", e.Sequence).
				Str("type", string(e.Type))
			switch {
			case e.OrderLog != nil:
				entry = entry.
					Uint64("order_id", e.OrderLog.OrderID).
					Str("status", e.OrderLog.Status).
					Str("price", e.OrderLog.Price).
					Uint64("quantity", e.OrderLog.Quantity)
			case e.Trade != nil:
				entry = entry.
					Uint64("trade_id", e.Trade.TradeID).
					Str("price", e.Trade.Price).
					Uint64("quantity", e.Trade.Quantity)
			}
			entry.Msg("Received event")
			return nil
		})
		if err != nil {
			logger.Error().Err(err).Msg("Kafka consumer error")
		}
	}()

	return consumer, nil
}
