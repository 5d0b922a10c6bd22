package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/erain9/lobmatch/pkg/feed/synthetic"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Feed formats
const (
	FormatITCH      = "itch"
	FormatScenario  = "scenario"
	FormatSynthetic = "synthetic"
)

// Trade sinks
const (
	SinkNone   = "none"
	SinkKafka  = "kafka"
	SinkSarama = "sarama"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "LOBMATCH"

// Config represents the application configuration
type Config struct {
	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`

	Feed struct {
		Format string `yaml:"format"`
		Path   string `yaml:"path"`
		// Maximum number of events to apply, 0 for all
		Limit int `yaml:"limit"`
		// Events per second, 0 for unpaced
		Rate  float64 `yaml:"rate"`
		Burst int     `yaml:"burst"`
	} `yaml:"feed"`

	// Generated market for the synthetic feed format
	Synthetic synthetic.Config `yaml:"synthetic"`

	Engine struct {
		Strict bool `yaml:"strict"`
	} `yaml:"engine"`

	Trades struct {
		Sink          string        `yaml:"sink"`
		Brokers       []string      `yaml:"brokers"`
		Topic         string        `yaml:"topic"`
		BatchSize     int           `yaml:"batch_size"`
		FlushInterval time.Duration `yaml:"flush_interval"`
		BufferSize    int           `yaml:"buffer_size"`
	} `yaml:"trades"`

	MarketData struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
		// Publish a snapshot every N events
		Every int `yaml:"every"`
	} `yaml:"marketdata"`

	Telemetry struct {
		Enabled        bool   `yaml:"enabled"`
		Endpoint       string `yaml:"endpoint"`
		ServiceName    string `yaml:"service_name"`
		RuntimeMetrics bool   `yaml:"runtime_metrics"`
	} `yaml:"telemetry"`
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	cfg := &Config{}
	cfg.Log.Level = "info"
	cfg.Feed.Format = FormatITCH
	cfg.Feed.Limit = 1_000_000
	cfg.Synthetic = synthetic.DefaultConfig()
	cfg.Trades.Sink = SinkNone
	cfg.Trades.Brokers = []string{"localhost:9092"}
	cfg.Trades.Topic = "lobmatch-trades"
	cfg.Trades.BatchSize = 256
	cfg.Trades.FlushInterval = 50 * time.Millisecond
	cfg.Trades.BufferSize = 4096
	cfg.MarketData.Addr = "localhost:6379"
	cfg.MarketData.Prefix = "lobmatch"
	cfg.MarketData.Every = 10_000
	cfg.Telemetry.Endpoint = "localhost:4317"
	cfg.Telemetry.ServiceName = "lobmatch-engine"
	return cfg
}

// Load builds the configuration from defaults, an optional YAML file,
// command-line flags and LOBMATCH_* environment variables, in that order.
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("lobmatch", flag.ContinueOnError)
	configFile := fs.String("config", "", "Path to config file (YAML)")
	feedPath := fs.String("feed", "", "Path to the event feed (ITCH file, .gz allowed, or scenario YAML)")
	format := fs.String("format", "", "Feed format: itch, scenario, synthetic")
	limit := fs.Int("limit", 0, "Maximum number of events to apply (0 for all)")
	rate := fs.Float64("rate", 0, "Events per second (0 for unpaced)")
	strict := fs.Bool("strict", false, "Report unknown ids and invalid orders as errors")
	sink := fs.String("sink", "", "Trade sink: none, kafka, sarama")
	logLevel := fs.String("log_level", "", "Log level: debug, info, warn, error")
	pretty := fs.Bool("pretty", false, "Human readable logs")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := Default()
	if *configFile != "" {
		data, err := os.ReadFile(*configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Only flags given on the command line override the file
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "feed":
			cfg.Feed.Path = *feedPath
		case "format":
			cfg.Feed.Format = *format
		case "limit":
			cfg.Feed.Limit = *limit
		case "rate":
			cfg.Feed.Rate = *rate
		case "strict":
			cfg.Engine.Strict = *strict
		case "sink":
			cfg.Trades.Sink = *sink
		case "log_level":
			cfg.Log.Level = *logLevel
		case "pretty":
			cfg.Log.Pretty = *pretty
		}
	})

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	setString := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	setInt := func(key string, dst *int) {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}
	setBool := func(key string, dst *bool) {
		if v.IsSet(key) {
			*dst = v.GetBool(key)
		}
	}

	setString("LOG_LEVEL", &cfg.Log.Level)
	setBool("LOG_PRETTY", &cfg.Log.Pretty)
	setString("FEED_FORMAT", &cfg.Feed.Format)
	setString("FEED_PATH", &cfg.Feed.Path)
	if v.IsSet("SYNTHETIC_SYMBOLS") {
		cfg.Synthetic.Symbols = splitList(v.GetString("SYNTHETIC_SYMBOLS"))
	}
	setInt("FEED_LIMIT", &cfg.Feed.Limit)
	if v.IsSet("FEED_RATE") {
		cfg.Feed.Rate = v.GetFloat64("FEED_RATE")
	}
	setBool("ENGINE_STRICT", &cfg.Engine.Strict)
	setString("TRADES_SINK", &cfg.Trades.Sink)
	setString("TRADES_TOPIC", &cfg.Trades.Topic)
	if v.IsSet("KAFKA_BROKERS") {
		cfg.Trades.Brokers = splitList(v.GetString("KAFKA_BROKERS"))
	}
	setBool("MARKETDATA_ENABLED", &cfg.MarketData.Enabled)
	setString("MARKETDATA_ADDR", &cfg.MarketData.Addr)
	setString("MARKETDATA_PASSWORD", &cfg.MarketData.Password)
	setInt("MARKETDATA_EVERY", &cfg.MarketData.Every)
	setBool("TELEMETRY_ENABLED", &cfg.Telemetry.Enabled)
	setString("TELEMETRY_ENDPOINT", &cfg.Telemetry.Endpoint)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate reports settings that cannot work together
func (c *Config) Validate() error {
	var errs []error

	switch c.Feed.Format {
	case FormatITCH, FormatScenario:
		if c.Feed.Path == "" {
			errs = append(errs, errors.New("feed.path is required"))
		}
	case FormatSynthetic:
		if c.Feed.Limit == 0 {
			errs = append(errs, errors.New("feed.limit is required for the synthetic feed"))
		}
		if err := c.Synthetic.Validate(); err != nil {
			errs = append(errs, err)
		}
	default:
		errs = append(errs, fmt.Errorf("feed.format %q: want %s, %s or %s", c.Feed.Format, FormatITCH, FormatScenario, FormatSynthetic))
	}
	if c.Feed.Limit < 0 {
		errs = append(errs, errors.New("feed.limit must not be negative"))
	}
	if c.Feed.Rate < 0 {
		errs = append(errs, errors.New("feed.rate must not be negative"))
	}

	switch c.Trades.Sink {
	case SinkNone:
	case SinkKafka, SinkSarama:
		if len(c.Trades.Brokers) == 0 {
			errs = append(errs, errors.New("trades.brokers is required for a kafka sink"))
		}
		if c.Trades.Topic == "" {
			errs = append(errs, errors.New("trades.topic is required for a kafka sink"))
		}
	default:
		errs = append(errs, fmt.Errorf("trades.sink %q: want %s, %s or %s", c.Trades.Sink, SinkNone, SinkKafka, SinkSarama))
	}

	if c.MarketData.Enabled {
		if c.MarketData.Addr == "" {
			errs = append(errs, errors.New("marketdata.addr is required"))
		}
		if c.MarketData.Every <= 0 {
			errs = append(errs, errors.New("marketdata.every must be positive"))
		}
	}

	return errors.Join(errs...)
}
