package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/erain9/lobmatch/pkg/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

type mockPartitionConsumer struct {
	messages chan *sarama.ConsumerMessage
	errors   chan *sarama.ConsumerError
}

func newMockPartitionConsumer() *mockPartitionConsumer {
	return &mockPartitionConsumer{
		messages: make(chan *sarama.ConsumerMessage, 16),
		errors:   make(chan *sarama.ConsumerError, 1),
	}
}

func (m *mockPartitionConsumer) AsyncClose() {}

func (m *mockPartitionConsumer) Close() error {
	close(m.messages)
	close(m.errors)
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

func (m *mockPartitionConsumer) Pause() {}

func (m *mockPartitionConsumer) Resume() {}

func (m *mockPartitionConsumer) IsPaused() bool {
	return false
}

func sampleTrade() messaging.TradeMessage {
	return messaging.TradeMessage{
		Symbol:    "AAPL",
		TakerID:   1 << 40,
		MakerID:   17,
		TakerSide: "sell",
		Price:     1_502_500,
		Size:      300,
		Timestamp: 34_200_000_000_000,
	}
}

func TestEncodeDecodeTrade(t *testing.T) {
	in := sampleTrade()
	out, err := DecodeTrade(EncodeTrade(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodeTradeSkipsUnknownFields(t *testing.T) {
	b := EncodeTrade(sampleTrade())
	b = protowire.AppendTag(b, 99, protowire.BytesType)
	b = protowire.AppendString(b, "venue")

	out, err := DecodeTrade(b)
	require.NoError(t, err)
	assert.Equal(t, sampleTrade(), out)
}

func TestDecodeTradeTruncated(t *testing.T) {
	b := EncodeTrade(sampleTrade())
	_, err := DecodeTrade(b[:len(b)-1])
	assert.Error(t, err)
}

func TestQueueMessageSender(t *testing.T) {
	producer := &mockProducer{}
	sender := NewWithProducer(producer, "trades")

	trades := []messaging.TradeMessage{sampleTrade(), sampleTrade()}
	trades[1].Symbol = "MSFT"

	require.NoError(t, sender.SendTrades(context.Background(), trades))
	require.Len(t, producer.sentMessages, 2)

	for i, msg := range producer.sentMessages {
		assert.Equal(t, "trades", msg.Topic)

		key, err := msg.Key.Encode()
		require.NoError(t, err)
		assert.Equal(t, trades[i].Symbol, string(key))

		value, err := msg.Value.Encode()
		require.NoError(t, err)
		decoded, err := DecodeTrade(value)
		require.NoError(t, err)
		assert.Equal(t, trades[i], decoded)
	}

	require.NoError(t, sender.Close())
	assert.True(t, producer.closed)
}

func TestQueueMessageSenderErrors(t *testing.T) {
	boom := errors.New("not enough replicas")
	sender := NewWithProducer(&mockProducer{err: boom}, "trades")

	err := sender.SendTrades(context.Background(), []messaging.TradeMessage{sampleTrade()})
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ok := NewWithProducer(&mockProducer{}, "trades")
	assert.ErrorIs(t, ok.SendTrades(ctx, []messaging.TradeMessage{sampleTrade()}), context.Canceled)

	assert.NoError(t, ok.SendTrades(context.Background(), nil))
}

func TestConsumeTrades(t *testing.T) {
	pc := newMockPartitionConsumer()
	want := []messaging.TradeMessage{sampleTrade(), sampleTrade()}
	want[1].MakerID = 18

	for i, tr := range want {
		pc.messages <- &sarama.ConsumerMessage{Offset: int64(i), Value: EncodeTrade(tr)}
	}
	require.NoError(t, pc.Close())

	var got []messaging.TradeMessage
	err := ConsumeTrades(context.Background(), pc, func(tr messaging.TradeMessage) error {
		got = append(got, tr)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestConsumeTradesStopsOnFailure(t *testing.T) {
	t.Run("handler error", func(t *testing.T) {
		pc := newMockPartitionConsumer()
		pc.messages <- &sarama.ConsumerMessage{Value: EncodeTrade(sampleTrade())}

		stop := errors.New("stop")
		err := ConsumeTrades(context.Background(), pc, func(messaging.TradeMessage) error { return stop })
		assert.ErrorIs(t, err, stop)
	})

	t.Run("consumer error", func(t *testing.T) {
		pc := newMockPartitionConsumer()
		broker := errors.New("offset out of range")
		pc.errors <- &sarama.ConsumerError{Topic: "trades", Partition: 3, Err: broker}

		err := ConsumeTrades(context.Background(), pc, func(messaging.TradeMessage) error { return nil })
		assert.ErrorIs(t, err, broker)
		assert.Contains(t, err.Error(), "trades/3")
	})

	t.Run("malformed payload", func(t *testing.T) {
		pc := newMockPartitionConsumer()
		pc.messages <- &sarama.ConsumerMessage{Offset: 9, Value: []byte{0xff}}

		err := ConsumeTrades(context.Background(), pc, func(messaging.TradeMessage) error { return nil })
		require.Error(t, err)
		assert.Contains(t, err.Error(), "offset 9")
	})

	t.Run("context canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := ConsumeTrades(ctx, newMockPartitionConsumer(), func(messaging.TradeMessage) error { return nil })
		assert.ErrorIs(t, err, context.Canceled)
	})
}
