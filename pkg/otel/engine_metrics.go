package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// EngineMetrics holds the instruments recorded while applying events
type EngineMetrics struct {
	eventsTotal     metric.Int64Counter
	tradesTotal     metric.Int64Counter
	tradedVolume    metric.Int64Counter
	unresolvedTotal metric.Int64Counter
	eventDuration   metric.Float64Histogram
}

// NewEngineMetrics creates the engine instruments on meter
func NewEngineMetrics(meter metric.Meter) (*EngineMetrics, error) {
	eventsTotal, err := meter.Int64Counter(
		"engine.events.total",
		metric.WithDescription("Total number of events applied, by kind"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	tradesTotal, err := meter.Int64Counter(
		"engine.trades.total",
		metric.WithDescription("Total number of trades executed"),
		metric.WithUnit("{trade}"),
	)
	if err != nil {
		return nil, err
	}

	tradedVolume, err := meter.Int64Counter(
		"engine.traded_volume",
		metric.WithDescription("Total size traded"),
		metric.WithUnit("{share}"),
	)
	if err != nil {
		return nil, err
	}

	unresolvedTotal, err := meter.Int64Counter(
		"engine.unresolved.total",
		metric.WithDescription("Cancel and replace events whose order id was not live"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	eventDuration, err := meter.Float64Histogram(
		"engine.event.duration",
		metric.WithDescription("Time to apply one event"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &EngineMetrics{
		eventsTotal:     eventsTotal,
		tradesTotal:     tradesTotal,
		tradedVolume:    tradedVolume,
		unresolvedTotal: unresolvedTotal,
		eventDuration:   eventDuration,
	}, nil
}

// RecordEvent increments the event counter for kind
func (m *EngineMetrics) RecordEvent(ctx context.Context, kind string) {
	m.eventsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(AttributeEventKind, kind)))
}

// RecordTrades adds executed trades and their volume
func (m *EngineMetrics) RecordTrades(ctx context.Context, count int, volume uint64) {
	if count == 0 {
		return
	}
	m.tradesTotal.Add(ctx, int64(count))
	m.tradedVolume.Add(ctx, int64(volume))
}

// RecordUnresolved counts an event whose order id could not be resolved
func (m *EngineMetrics) RecordUnresolved(ctx context.Context, kind string) {
	m.unresolvedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(AttributeEventKind, kind)))
}

// RecordDuration records how long one event took to apply
func (m *EngineMetrics) RecordDuration(ctx context.Context, kind string, d time.Duration) {
	m.eventDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String(AttributeEventKind, kind)))
}
