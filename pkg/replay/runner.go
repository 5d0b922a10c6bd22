// Package replay drives a matching engine from an event source and reports
// on the run.
package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/erain9/lobmatch/pkg/core"
	"github.com/erain9/lobmatch/pkg/engine"
	"github.com/erain9/lobmatch/pkg/feed"
	"github.com/erain9/lobmatch/pkg/logging"
	"github.com/erain9/lobmatch/pkg/otel"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

// Latency histogram bounds, in nanoseconds
const (
	minLatency     = 1
	maxLatency     = int64(10 * time.Second)
	latencySigFigs = 3
)

// SnapshotPublisher receives top-of-book snapshots during a run
type SnapshotPublisher interface {
	Publish(ctx context.Context, snapshots []engine.TopOfBook) error
}

// DurationRecorder receives the time taken to apply each event
type DurationRecorder interface {
	RecordDuration(ctx context.Context, kind string, d time.Duration)
}

// Option configures a Runner
type Option func(*Runner)

// WithLimiter paces the run. A nil limiter leaves it unpaced; the limiter's
// burst must be at least one.
func WithLimiter(l *rate.Limiter) Option {
	return func(r *Runner) {
		r.limiter = l
	}
}

// WithRate paces the run at eventsPerSecond with the given burst. A rate of
// zero or less leaves it unpaced.
func WithRate(eventsPerSecond float64, burst int) Option {
	return func(r *Runner) {
		if eventsPerSecond <= 0 {
			r.limiter = nil
			return
		}
		r.limiter = rate.NewLimiter(rate.Limit(eventsPerSecond), max(burst, 1))
	}
}

// WithSnapshots publishes top of book for every symbol every n events and
// once more at the end of the run
func WithSnapshots(p SnapshotPublisher, every int) Option {
	return func(r *Runner) {
		r.snapshots = p
		r.every = every
	}
}

// WithDurations records per-event durations
func WithDurations(d DurationRecorder) Option {
	return func(r *Runner) {
		r.durations = d
	}
}

// WithLogger sets the runner's logger
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithRunID overrides the generated run id
func WithRunID(id string) Option {
	return func(r *Runner) {
		r.runID = id
	}
}

// Runner applies every event of a source to an engine, in order
type Runner struct {
	src    feed.Source
	engine *engine.MatchingEngine

	limiter   *rate.Limiter
	snapshots SnapshotPublisher
	every     int
	durations DurationRecorder
	logger    zerolog.Logger
	runID     string
}

// NewRunner creates a runner over src and me
func NewRunner(src feed.Source, me *engine.MatchingEngine, opts ...Option) *Runner {
	r := &Runner{
		src:    src,
		engine: me,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.runID == "" {
		r.runID = uuid.NewString()
	}
	return r
}

// RunID returns the id attached to the run's logs and spans
func (r *Runner) RunID() string {
	return r.runID
}

// Run applies events until the source is exhausted or ctx is done. A
// cancelled run is not an error: the report is marked Interrupted. Source
// errors and events the engine does not know end the run with an error and
// the partial report.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	ctx = logging.WithRunID(ctx, r.runID)
	ctx, span := otel.StartReplaySpan(ctx, r.runID)
	defer span.End()

	logger := r.logger.With().Str("run_id", r.runID).Logger()
	report := &Report{RunID: r.runID}
	hist := hdrhistogram.New(minLatency, maxLatency, latencySigFigs)
	start := time.Now()

	err := r.loop(ctx, logger, report, hist)

	report.Wall = time.Since(start)
	report.Latency = summarize(hist)
	report.Stats = r.engine.Stats()
	report.Symbols = len(r.engine.Symbols())
	report.LiveOrders = r.engine.LiveOrders()
	r.publish(ctx, logger, report)

	otel.AddAttributes(span,
		attribute.Int64("replay.events", int64(report.Events)),
		attribute.Int64(otel.AttributeTradeCount, int64(report.Stats.Trades)),
		attribute.Bool("replay.interrupted", report.Interrupted),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return report, err
	}

	logger.Info().
		Uint64("events", report.Events).
		Uint64("trades", report.Stats.Trades).
		Dur("wall", report.Wall).
		Bool("interrupted", report.Interrupted).
		Msg("Replay finished")
	return report, nil
}

func (r *Runner) loop(ctx context.Context, logger zerolog.Logger, report *Report, hist *hdrhistogram.Histogram) error {
	for {
		if ctx.Err() != nil {
			report.Interrupted = true
			return nil
		}
		if r.limiter != nil {
			// Wait fails early when the next slot falls after the deadline
			if err := r.limiter.Wait(ctx); err != nil {
				logger.Debug().Err(err).Msg("Pacing stopped")
				report.Interrupted = true
				return nil
			}
		}

		t0 := time.Now()
		ev, err := r.src.Next()
		report.Decode += time.Since(t0)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read event %d: %w", report.Events+1, err)
		}

		kind := ev.Kind().String()
		evCtx, span := otel.StartEventSpan(ctx, kind, eventAttributes(ev)...)
		t1 := time.Now()
		err = r.engine.Handle(evCtx, ev)
		d := time.Since(t1)
		span.End()

		report.Match += d
		_ = hist.RecordValue(min(max(d.Nanoseconds(), minLatency), maxLatency))
		if r.durations != nil {
			r.durations.RecordDuration(ctx, kind, d)
		}

		if err != nil {
			if errors.Is(err, core.ErrUnknownEvent) {
				return fmt.Errorf("apply event %d: %w", report.Events+1, err)
			}
			report.Rejected++
			logger.Debug().Err(err).Str("kind", kind).Msg("Event rejected")
		}
		report.Events++

		if r.snapshots != nil && r.every > 0 && report.Events%uint64(r.every) == 0 {
			r.publish(ctx, logger, report)
		}
	}
}

func (r *Runner) publish(ctx context.Context, logger zerolog.Logger, report *Report) {
	if r.snapshots == nil {
		return
	}
	// Snapshots still go out after cancellation
	if err := r.snapshots.Publish(context.WithoutCancel(ctx), r.engine.TopOfBooks()); err != nil {
		report.SnapshotErrors++
		logger.Warn().Err(err).Msg("Failed to publish market data")
		return
	}
	report.Snapshots++
}

// eventAttributes describes an event on its handle_event span
func eventAttributes(ev core.Event) []attribute.KeyValue {
	switch e := ev.(type) {
	case core.NewOrderEvent:
		return []attribute.KeyValue{
			attribute.Int64(otel.AttributeOrderID, int64(e.ID)),
			attribute.String(otel.AttributeSymbol, e.Symbol),
			attribute.String(otel.AttributeOrderSide, e.Side.String()),
			attribute.Int64(otel.AttributeOrderPrice, int64(e.Price)),
			attribute.Int64(otel.AttributeOrderSize, int64(e.Size)),
		}
	case core.CancelEvent:
		return []attribute.KeyValue{
			attribute.Int64(otel.AttributeOrderID, int64(e.ID)),
			attribute.Int64(otel.AttributeOrderSize, int64(e.Size)),
		}
	case core.ReplaceEvent:
		return []attribute.KeyValue{
			attribute.Int64(otel.AttributeOrderID, int64(e.OldID)),
			attribute.Int64(otel.AttributeNewOrderID, int64(e.NewID)),
			attribute.Int64(otel.AttributeOrderPrice, int64(e.Price)),
			attribute.Int64(otel.AttributeOrderSize, int64(e.Size)),
		}
	default:
		return nil
	}
}
