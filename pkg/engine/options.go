package engine

import (
	"context"

	"github.com/erain9/lobmatch/pkg/core"
	"github.com/erain9/lobmatch/pkg/messaging"
	"github.com/rs/zerolog"
)

// TradeSink receives the trades produced by each event. Implementations must
// not block the caller.
type TradeSink interface {
	Publish(ctx context.Context, trades []messaging.TradeMessage)
}

// Metrics records engine activity
type Metrics interface {
	RecordEvent(ctx context.Context, kind string)
	RecordTrades(ctx context.Context, count int, volume uint64)
	RecordUnresolved(ctx context.Context, kind string)
}

// BackendFactory creates the price-level storage for a new book
type BackendFactory func(symbol string) core.OrderBookBackend

// Option configures a MatchingEngine
type Option func(*MatchingEngine)

// WithLogger sets the engine logger
func WithLogger(logger zerolog.Logger) Option {
	return func(me *MatchingEngine) {
		me.logger = logger
	}
}

// WithStrictMode reports unresolvable ids, zero sizes and live id reuse as
// errors instead of absorbing them. Book effects are the same in both modes.
func WithStrictMode() Option {
	return func(me *MatchingEngine) {
		me.strict = true
	}
}

// WithTradeSink forwards every trade to sink
func WithTradeSink(sink TradeSink) Option {
	return func(me *MatchingEngine) {
		me.sink = sink
	}
}

// WithMetrics records event, trade and miss counters
func WithMetrics(m Metrics) Option {
	return func(me *MatchingEngine) {
		me.metrics = m
	}
}

// WithBackendFactory overrides the backend used for new books
func WithBackendFactory(f BackendFactory) Option {
	return func(me *MatchingEngine) {
		if f != nil {
			me.newBackend = f
		}
	}
}
