package messaging

import (
	"context"
	"sync"
)

// MockMessageSender records every batch it is given. Safe for concurrent use.
type MockMessageSender struct {
	mu      sync.Mutex
	batches [][]TradeMessage
	closed  bool
	err     error
}

// NewMockMessageSender creates a new MockMessageSender.
func NewMockMessageSender() *MockMessageSender {
	return &MockMessageSender{}
}

// FailWith makes subsequent sends return err.
func (m *MockMessageSender) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SendTrades records the batch.
func (m *MockMessageSender) SendTrades(_ context.Context, trades []TradeMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	batch := make([]TradeMessage, len(trades))
	copy(batch, trades)
	m.batches = append(m.batches, batch)
	return nil
}

// Batches returns the recorded batches.
func (m *MockMessageSender) Batches() [][]TradeMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]TradeMessage(nil), m.batches...)
}

// Trades returns every recorded trade in send order.
func (m *MockMessageSender) Trades() []TradeMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []TradeMessage
	for _, b := range m.batches {
		out = append(out, b...)
	}
	return out
}

// Closed reports whether Close was called.
func (m *MockMessageSender) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Close marks the sender closed.
func (m *MockMessageSender) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Ensure MockMessageSender implements MessageSender
var _ MessageSender = (*MockMessageSender)(nil)
