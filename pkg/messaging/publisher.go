package messaging

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// PublisherConfig tunes the batching behaviour of a Publisher
type PublisherConfig struct {
	// Trades per send
	BatchSize int
	// Maximum time a trade waits in a partial batch
	FlushInterval time.Duration
	// Number of pending Publish calls before new ones are dropped
	BufferSize int
	// Deadline for a single send
	SendTimeout time.Duration
}

// DefaultPublisherConfig returns sane defaults
func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		BatchSize:     256,
		FlushInterval: 50 * time.Millisecond,
		BufferSize:    4096,
		SendTimeout:   5 * time.Second,
	}
}

// Publisher batches trades onto a MessageSender from a background goroutine.
// Publish never blocks the caller; when the buffer is full the batch is dropped
// and counted.
type Publisher struct {
	sender MessageSender
	cfg    PublisherConfig
	logger zerolog.Logger

	mu     sync.RWMutex
	closed bool
	in     chan []TradeMessage
	done   chan struct{}

	sent    atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
}

// NewPublisher starts a publisher draining into sender
func NewPublisher(sender MessageSender, cfg PublisherConfig, logger zerolog.Logger) *Publisher {
	def := DefaultPublisherConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.BufferSize < 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = def.SendTimeout
	}

	p := &Publisher{
		sender: sender,
		cfg:    cfg,
		logger: logger.With().Str("component", "trade_publisher").Logger(),
		in:     make(chan []TradeMessage, cfg.BufferSize),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

// Publish queues trades for delivery
func (p *Publisher) Publish(_ context.Context, trades []TradeMessage) {
	if len(trades) == 0 {
		return
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.dropped.Add(1)
		return
	}

	select {
	case p.in <- trades:
	default:
		p.dropped.Add(1)
		p.logger.Warn().Int("trades", len(trades)).Msg("Publisher buffer full, dropping trades")
	}
}

func (p *Publisher) run() {
	defer close(p.done)

	ticker := time.NewTicker(p.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]TradeMessage, 0, p.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.SendTimeout)
		defer cancel()

		if err := p.sender.SendTrades(ctx, batch); err != nil {
			p.failed.Add(uint64(len(batch)))
			p.logger.Error().Err(err).Int("trades", len(batch)).Msg("Failed to send trades")
		} else {
			p.sent.Add(uint64(len(batch)))
		}
		batch = make([]TradeMessage, 0, p.cfg.BatchSize)
	}

	for {
		select {
		case trades, ok := <-p.in:
			if !ok {
				flush()
				return
			}
			batch = append(batch, trades...)
			if len(batch) >= p.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// Close flushes pending trades and closes the underlying sender
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.in)
	p.mu.Unlock()

	<-p.done
	return p.sender.Close()
}

// Sent returns the number of trades delivered
func (p *Publisher) Sent() uint64 {
	return p.sent.Load()
}

// Failed returns the number of trades the sender rejected
func (p *Publisher) Failed() uint64 {
	return p.failed.Load()
}

// Dropped returns the number of Publish calls lost to a full buffer or a closed publisher
func (p *Publisher) Dropped() uint64 {
	return p.dropped.Load()
}
