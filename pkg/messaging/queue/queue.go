package queue

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/erain9/lobmatch/pkg/messaging"
)

const maxRetry = 5

// QueueMessageSender implements the MessageSender interface
// for sending protobuf-encoded trades to Kafka through sarama
type QueueMessageSender struct {
	producer sarama.SyncProducer
	topic    string
}

// NewQueueMessageSender dials the brokers with a synchronous producer
func NewQueueMessageSender(brokers []string, topic string) (*QueueMessageSender, error) {
	if topic == "" {
		return nil, fmt.Errorf("queue sender: empty topic")
	}

	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = maxRetry
	cfg.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return NewWithProducer(producer, topic), nil
}

// NewWithProducer wraps an existing producer
func NewWithProducer(producer sarama.SyncProducer, topic string) *QueueMessageSender {
	return &QueueMessageSender{producer: producer, topic: topic}
}

// SendTrades sends the batch in a single produce call, keyed by symbol
func (q *QueueMessageSender) SendTrades(ctx context.Context, trades []messaging.TradeMessage) error {
	if len(trades) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msgs := make([]*sarama.ProducerMessage, 0, len(trades))
	for _, t := range trades {
		msgs = append(msgs, &sarama.ProducerMessage{
			Topic: q.topic,
			Key:   sarama.StringEncoder(t.Symbol),
			Value: sarama.ByteEncoder(EncodeTrade(t)),
		})
	}

	if err := q.producer.SendMessages(msgs); err != nil {
		return fmt.Errorf("failed to send trades to Kafka: %w", err)
	}
	return nil
}

// Close closes the producer
func (q *QueueMessageSender) Close() error {
	return q.producer.Close()
}

// ConsumeTrades decodes trades from a partition consumer and hands each to
// handle, until ctx is done, the consumer's message channel closes, or handle
// fails.
func ConsumeTrades(ctx context.Context, pc sarama.PartitionConsumer, handle func(messaging.TradeMessage) error) error {
	errs := pc.Errors()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-pc.Messages():
			if !ok {
				return nil
			}
			t, err := DecodeTrade(msg.Value)
			if err != nil {
				return fmt.Errorf("offset %d: %w", msg.Offset, err)
			}
			if err := handle(t); err != nil {
				return err
			}
		case cerr, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			return fmt.Errorf("consume %s/%d: %w", cerr.Topic, cerr.Partition, cerr.Err)
		}
	}
}

var _ messaging.MessageSender = (*QueueMessageSender)(nil)
