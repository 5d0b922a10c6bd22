// Command replay applies an order-event feed to the matching engine and
// prints a run report.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/erain9/lobmatch/config"
	"github.com/erain9/lobmatch/pkg/engine"
	"github.com/erain9/lobmatch/pkg/feed"
	"github.com/erain9/lobmatch/pkg/feed/itch"
	"github.com/erain9/lobmatch/pkg/feed/scenario"
	"github.com/erain9/lobmatch/pkg/feed/synthetic"
	"github.com/erain9/lobmatch/pkg/logging"
	"github.com/erain9/lobmatch/pkg/marketdata"
	"github.com/erain9/lobmatch/pkg/messaging"
	"github.com/erain9/lobmatch/pkg/messaging/kafka"
	"github.com/erain9/lobmatch/pkg/messaging/queue"
	"github.com/erain9/lobmatch/pkg/otel"
	"github.com/erain9/lobmatch/pkg/replay"
	"github.com/rs/zerolog"
)

const serviceVersion = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	cfg, err := config.Load(args)
	if err != nil {
		return err
	}

	logger := logging.Setup(logging.Config{
		Level:  cfg.Log.Level,
		Pretty: cfg.Log.Pretty,
	})

	cleanup, err := otel.Init(otel.Config{
		ServiceName:      cfg.Telemetry.ServiceName,
		ServiceVersion:   serviceVersion,
		Endpoint:         cfg.Telemetry.Endpoint,
		CollectorEnabled: cfg.Telemetry.Enabled,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	defer cleanup()

	if cfg.Telemetry.Enabled && cfg.Telemetry.RuntimeMetrics {
		if err := otel.StartRuntimeMetrics(0); err != nil {
			logger.Warn().Err(err).Msg("Failed to start runtime metrics")
		}
	}

	metrics, err := otel.NewEngineMetrics(otel.GetMeter())
	if err != nil {
		return fmt.Errorf("failed to create engine metrics: %w", err)
	}

	src, closeSource, err := openSource(cfg, logger)
	if err != nil {
		return err
	}
	defer closeSource()

	opts := []engine.Option{
		engine.WithLogger(logger.With().Str("component", "engine").Logger()),
		engine.WithMetrics(metrics),
	}
	if cfg.Engine.Strict {
		opts = append(opts, engine.WithStrictMode())
	}

	publisher, err := newTradePublisher(cfg, logger)
	if err != nil {
		return err
	}
	if publisher != nil {
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Error().Err(err).Msg("Failed to close trade sink")
			}
			logger.Info().
				Uint64("sent", publisher.Sent()).
				Uint64("failed", publisher.Failed()).
				Uint64("dropped", publisher.Dropped()).
				Msg("Trade sink closed")
		}()
		opts = append(opts, engine.WithTradeSink(publisher))
	}

	runnerOpts := []replay.Option{
		replay.WithLogger(logger),
		replay.WithDurations(metrics),
		replay.WithRate(cfg.Feed.Rate, cfg.Feed.Burst),
	}
	if cfg.MarketData.Enabled {
		md, err := newMarketData(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer md.Close()
		runnerOpts = append(runnerOpts, replay.WithSnapshots(md, cfg.MarketData.Every))
	}

	me := engine.New(opts...)
	runner := replay.NewRunner(feed.Limit(src, cfg.Feed.Limit), me, runnerOpts...)
	logger.Info().
		Str("run_id", runner.RunID()).
		Str("feed", cfg.Feed.Path).
		Str("format", cfg.Feed.Format).
		Bool("strict", cfg.Engine.Strict).
		Msg("Starting replay")

	report, err := runner.Run(ctx)
	if report != nil {
		if perr := report.Print(stdout); perr != nil {
			logger.Error().Err(perr).Msg("Failed to print report")
		}
	}
	return err
}

// openSource opens the configured feed and returns a func releasing it
func openSource(cfg *config.Config, logger zerolog.Logger) (feed.Source, func(), error) {
	switch cfg.Feed.Format {
	case config.FormatScenario:
		s, err := scenario.Load(cfg.Feed.Path)
		if err != nil {
			return nil, nil, err
		}
		src, err := s.Source()
		if err != nil {
			return nil, nil, err
		}
		return src, func() {}, nil
	case config.FormatSynthetic:
		src, err := synthetic.New(cfg.Synthetic)
		if err != nil {
			return nil, nil, err
		}
		return src, func() {}, nil
	default:
		rd, err := itch.Open(cfg.Feed.Path, itch.WithLogger(logger.With().Str("component", "itch").Logger()))
		if err != nil {
			return nil, nil, err
		}
		return rd, func() {
			logger.Debug().
				Uint64("messages", rd.Messages()).
				Uint64("skipped", rd.Skipped()).
				Uint64("malformed", rd.Malformed()).
				Msg("Feed closed")
			_ = rd.Close()
		}, nil
	}
}

func newTradePublisher(cfg *config.Config, logger zerolog.Logger) (*messaging.Publisher, error) {
	var (
		sender messaging.MessageSender
		err    error
	)
	switch cfg.Trades.Sink {
	case config.SinkKafka:
		sender, err = kafka.NewKafkaMessageSender(cfg.Trades.Brokers, cfg.Trades.Topic)
	case config.SinkSarama:
		sender, err = queue.NewQueueMessageSender(cfg.Trades.Brokers, cfg.Trades.Topic)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s trade sink: %w", cfg.Trades.Sink, err)
	}

	logger.Info().
		Str("sink", cfg.Trades.Sink).
		Str("brokers", strings.Join(cfg.Trades.Brokers, ",")).
		Str("topic", cfg.Trades.Topic).
		Msg("Publishing trades")

	pcfg := messaging.DefaultPublisherConfig()
	if cfg.Trades.BatchSize > 0 {
		pcfg.BatchSize = cfg.Trades.BatchSize
	}
	if cfg.Trades.FlushInterval > 0 {
		pcfg.FlushInterval = cfg.Trades.FlushInterval
	}
	if cfg.Trades.BufferSize > 0 {
		pcfg.BufferSize = cfg.Trades.BufferSize
	}
	return messaging.NewPublisher(sender, pcfg, logger), nil
}

func newMarketData(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*marketdata.Publisher, error) {
	client := marketdata.NewClient(cfg.MarketData.Addr, cfg.MarketData.Password, cfg.MarketData.DB)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.MarketData.Addr, err)
	}

	logger.Info().Str("addr", cfg.MarketData.Addr).Int("every", cfg.MarketData.Every).Msg("Publishing market data")
	return marketdata.NewPublisher(client, cfg.MarketData.Prefix, logger), nil
}
