package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// Span names
	SpanHandleEvent = "handle_event"
	SpanReplay      = "replay"

	// Attribute keys
	AttributeEventKind  = "event.kind"
	AttributeOrderID    = "order.id"
	AttributeNewOrderID = "order.new_id"
	AttributeSymbol     = "order.symbol"
	AttributeOrderSide  = "order.side"
	AttributeOrderPrice = "order.price"
	AttributeOrderSize  = "order.size"
	AttributeTradeCount = "trade.count"
	AttributeRunID      = "replay.run_id"
)

// StartEventSpan starts a span around the handling of one engine event
func StartEventSpan(ctx context.Context, kind string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String(AttributeEventKind, kind))
	return GetMatchingEngineTracer().Start(ctx, SpanHandleEvent, trace.WithAttributes(attrs...))
}

// StartReplaySpan starts the root span of a replay run
func StartReplaySpan(ctx context.Context, runID string) (context.Context, trace.Span) {
	return GetMatchingEngineTracer().Start(ctx, SpanReplay,
		trace.WithAttributes(attribute.String(AttributeRunID, runID)))
}

// AddAttributes adds attributes to a span
func AddAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span == nil || !span.IsRecording() {
		return
	}
	span.SetAttributes(attrs...)
}
