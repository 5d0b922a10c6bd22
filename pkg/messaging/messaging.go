package messaging

import "context"

// MessageSender defines an interface for delivering trade executions downstream.
// This decouples the matching core from specific transports like Kafka.
type MessageSender interface {
	SendTrades(ctx context.Context, trades []TradeMessage) error
	Close() error
}

// TradeMessage is the wire form of one execution
type TradeMessage struct {
	Symbol    string `json:"symbol"`
	TakerID   uint64 `json:"takerId"`
	MakerID   uint64 `json:"makerId"`
	TakerSide string `json:"takerSide"`
	Price     uint32 `json:"price"`
	Size      uint32 `json:"size"`
	Timestamp uint64 `json:"timestamp"`
}
