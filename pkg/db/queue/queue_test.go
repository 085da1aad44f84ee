package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/erain9/lobsim/pkg/core"
	"github.com/erain9/lobsim/pkg/messaging"
	"github.com/nikolaydubina/fpdecimal"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockProducer implements just enough of sarama.SyncProducer for our tests
type mockProducer struct {
	sentMessages []*sarama.ProducerMessage
	err          error
	closed       bool
}

func (m *mockProducer) SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error) {
	if m.err != nil {
		return 0, 0, m.err
	}
	m.sentMessages = append(m.sentMessages, msg)
	return 0, int64(len(m.sentMessages)), nil
}

func (m *mockProducer) SendMessages(msgs []*sarama.ProducerMessage) error {
	if m.err != nil {
		return m.err
	}
	m.sentMessages = append(m.sentMessages, msgs...)
	return nil
}

func (m *mockProducer) Close() error {
	m.closed = true
	return nil
}

func (m *mockProducer) TxnStatus() sarama.ProducerTxnStatusFlag { return 0 }

func (m *mockProducer) BeginTxn() error { return nil }

func (m *mockProducer) CommitTxn() error { return nil }

func (m *mockProducer) AbortTxn() error { return nil }

func (m *mockProducer) AddMessageToTxn(msg *sarama.ConsumerMessage, groupID string, metadata *string) error {
	return nil
}

func (m *mockProducer) AddOffsetsToTxn(offsets map[string][]*sarama.PartitionOffsetMetadata, groupID string) error {
	return nil
}

func (m *mockProducer) IsTransactional() bool { return false }

type mockConsumer struct {
	messages chan *sarama.ConsumerMessage
	errors   chan *sarama.ConsumerError
}

func (m *mockConsumer) ConsumePartition(topic string, partition int32, offset int64) (sarama.PartitionConsumer, error) {
	return &mockPartitionConsumer{
		messages: m.messages,
		errors:   m.errors,
	}, nil
}

func (m *mockConsumer) Topics() ([]string, error) {
	return []string{}, nil
}

func (m *mockConsumer) Partitions(topic string) ([]int32, error) {
	return []int32{}, nil
}

func (m *mockConsumer) HighWaterMarks() map[string]map[int32]int64 {
	return nil
}

func (m *mockConsumer) Close() error {
	return nil
}

func (m *mockConsumer) Pause(topicPartitions map[string][]int32) {}

func (m *mockConsumer) Resume(topicPartitions map[string][]int32) {}

func (m *mockConsumer) PauseAll() {}

func (m *mockConsumer) ResumeAll() {}

type mockPartitionConsumer struct {
	messages chan *sarama.ConsumerMessage
	errors   chan *sarama.ConsumerError
}

func (m *mockPartitionConsumer) AsyncClose() {}

func (m *mockPartitionConsumer) Close() error {
	return nil
}

func (m *mockPartitionConsumer) Messages() <-chan *sarama.ConsumerMessage {
	return m.messages
}

func (m *mockPartitionConsumer) Errors() <-chan *sarama.ConsumerError {
	return m.errors
}

func (m *mockPartitionConsumer) HighWaterMarkOffset() int64 {
	return 0
}

func (m *mockPartitionConsumer) IsPaused() bool {
	return false
}

func (m *mockPartitionConsumer) Pause() {}

func (m *mockPartitionConsumer) Resume() {}

func testEvents() []messaging.Event {
	return messaging.NewSequencer("SIM").Events(
		[]core.OrderLog{{OrderID: 1, Side: core.Buy, Type: core.TypeMarket, Status: core.StatusUnfilled, Details: "No sell orders available"}},
		[]core.Trade{{TradeID: 1, BuyOrderID: 2, SellOrderID: 1, Price: fpdecimal.FromInt(10), Quantity: 3}},
	)
}

func withMockProducer(t *testing.T, prod *mockProducer) {
	old := newSyncProducer
	t.Cleanup(func() { newSyncProducer = old })
	newSyncProducer = func(addrs []string, config *sarama.Config) (sarama.SyncProducer, error) {
		assert.True(t, config.Producer.Return.Successes)
		return prod, nil
	}
}

func TestQueueMessageSender_SendEvents(t *testing.T) {
	mockProd := &mockProducer{}
	withMockProducer(t, mockProd)

	sender, err := NewQueueMessageSender([]string{"localhost:9092"}, "")
	require.NoError(t, err)

	events := testEvents()
	require.NoError(t, sender.SendEvents(context.Background(), events))
	require.Len(t, mockProd.sentMessages, 2)

	for i, msg := range mockProd.sentMessages {
		assert.Equal(t, defaultTopic, msg.Topic)
		assert.Equal(t, sarama.StringEncoder("SIM"), msg.Key)

		decoded, err := messaging.Decode(msg.Value.(sarama.ByteEncoder))
		require.NoError(t, err)
		assert.Equal(t, events[i], decoded)
	}

	require.NoError(t, sender.Close())
	assert.True(t, mockProd.closed)
}

func TestQueueMessageSender_Errors(t *testing.T) {
	boom := errors.New("not enough replicas")
	withMockProducer(t, &mockProducer{err: boom})

	sender, err := NewQueueMessageSender([]string{"localhost:9092"}, "custom")
	require.NoError(t, err)
	assert.ErrorIs(t, sender.SendEvents(context.Background(), testEvents()), boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sender.SendEvents(ctx, testEvents()), context.Canceled)

	old := newSyncProducer
	defer func() { newSyncProducer = old }()
	newSyncProducer = func([]string, *sarama.Config) (sarama.SyncProducer, error) {
		return nil, sarama.ErrOutOfBrokers
	}
	_, err = NewQueueMessageSender(nil, "")
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
}

func TestQueueMessageConsumer_ConsumeEvents(t *testing.T) {
	mock := &mockConsumer{
		messages: make(chan *sarama.ConsumerMessage, 3),
		errors:   make(chan *sarama.ConsumerError, 1),
	}

	old := newConsumer
	defer func() { newConsumer = old }()
	newConsumer = func([]string, *sarama.Config) (sarama.Consumer, error) {
		return mock, nil
	}

	consumer, err := NewQueueMessageConsumer([]string{"localhost:9092"}, "", zerolog.Nop())
	require.NoError(t, err)

	received := make(chan messaging.Event, 2)
	finished := make(chan error, 1)
	go func() {
		finished <- consumer.ConsumeEvents(context.Background(), func(e messaging.Event) error {
			received <- e
			return nil
		})
	}()

	events := testEvents()
	mock.messages <- &sarama.ConsumerMessage{Value: []byte("garbage")}
	for _, e := range events {
		data, err := messaging.Encode(e)
		require.NoError(t, err)
		mock.messages <- &sarama.ConsumerMessage{Value: data}
	}

	for _, want := range events {
		select {
		case got := <-received:
			assert.Equal(t, want, got)
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for event")
		}
	}

	require.NoError(t, consumer.Close())
	select {
	case err := <-finished:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}
