package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/erain9/lobmatch/pkg/messaging"
	"github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafka.Writer the sender depends on
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaMessageSender implements MessageSender using Kafka
type KafkaMessageSender struct {
	writer messageWriter
	topic  string
}

// NewKafkaMessageSender creates a new Kafka message sender
func NewKafkaMessageSender(brokers []string, topic string) (*KafkaMessageSender, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka sender: no brokers configured")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka sender: empty topic")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
	}

	return newWithWriter(writer, topic), nil
}

func newWithWriter(w messageWriter, topic string) *KafkaMessageSender {
	return &KafkaMessageSender{writer: w, topic: topic}
}

// SendTrades writes one Kafka message per trade, keyed by symbol so that a
// symbol's trades stay ordered within a partition
func (k *KafkaMessageSender) SendTrades(ctx context.Context, trades []messaging.TradeMessage) error {
	if len(trades) == 0 {
		return nil
	}

	now := time.Now()
	msgs := make([]kafka.Message, 0, len(trades))
	for _, t := range trades {
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("failed to marshal trade: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(t.Symbol),
			Value: data,
			Time:  now,
		})
	}

	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to send trades to Kafka topic %s: %w", k.topic, err)
	}
	return nil
}

// Close closes the Kafka writer
func (k *KafkaMessageSender) Close() error {
	return k.writer.Close()
}

var _ messaging.MessageSender = (*KafkaMessageSender)(nil)
