package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaultsAndFlags(t *testing.T) {
	cfg, err := Load([]string{"-feed", "day.itch.gz", "-limit", "500", "-strict"})
	require.NoError(t, err)

	assert.Equal(t, "day.itch.gz", cfg.Feed.Path)
	assert.Equal(t, FormatITCH, cfg.Feed.Format)
	assert.Equal(t, 500, cfg.Feed.Limit)
	assert.True(t, cfg.Engine.Strict)
	assert.Equal(t, SinkNone, cfg.Trades.Sink)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 50*time.Millisecond, cfg.Trades.FlushInterval)
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
log:
  level: debug
feed:
  format: scenario
  path: walk.yaml
  limit: 0
trades:
  sink: sarama
  brokers: [k1:9092, k2:9092]
  topic: fills
  flush_interval: 250ms
marketdata:
  enabled: true
  every: 100
`)

	cfg, err := Load([]string{"-config", path, "-log_level", "warn"})
	require.NoError(t, err)

	// Explicit flags win over the file
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, FormatScenario, cfg.Feed.Format)
	assert.Equal(t, 0, cfg.Feed.Limit)
	assert.Equal(t, SinkSarama, cfg.Trades.Sink)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Trades.Brokers)
	assert.Equal(t, "fills", cfg.Trades.Topic)
	assert.Equal(t, 250*time.Millisecond, cfg.Trades.FlushInterval)
	assert.True(t, cfg.MarketData.Enabled)
	assert.Equal(t, 100, cfg.MarketData.Every)
	assert.Equal(t, "localhost:6379", cfg.MarketData.Addr)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("LOBMATCH_FEED_PATH", "env.itch")
	t.Setenv("LOBMATCH_TRADES_SINK", "kafka")
	t.Setenv("LOBMATCH_KAFKA_BROKERS", "a:1, b:2")
	t.Setenv("LOBMATCH_ENGINE_STRICT", "true")
	t.Setenv("LOBMATCH_FEED_LIMIT", "42")

	cfg, err := Load([]string{"-feed", "flag.itch"})
	require.NoError(t, err)

	assert.Equal(t, "env.itch", cfg.Feed.Path)
	assert.Equal(t, SinkKafka, cfg.Trades.Sink)
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.Trades.Brokers)
	assert.True(t, cfg.Engine.Strict)
	assert.Equal(t, 42, cfg.Feed.Limit)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load([]string{"-no-such-flag"})
	assert.Error(t, err)

	_, err = Load([]string{"-config", filepath.Join(t.TempDir(), "missing.yaml"), "-feed", "x"})
	assert.Error(t, err)

	_, err = Load([]string{"-config", writeFile(t, "feed: [1, 2"), "-feed", "x"})
	assert.Error(t, err)

	_, err = Load(nil)
	assert.ErrorContains(t, err, "feed.path is required")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Feed.Path = "x"
		return cfg
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"format", func(c *Config) { c.Feed.Format = "csv" }, "feed.format"},
		{"limit", func(c *Config) { c.Feed.Limit = -1 }, "feed.limit"},
		{"rate", func(c *Config) { c.Feed.Rate = -5 }, "feed.rate"},
		{"sink", func(c *Config) { c.Trades.Sink = "nats" }, "trades.sink"},
		{"brokers", func(c *Config) { c.Trades.Sink = SinkKafka; c.Trades.Brokers = nil }, "trades.brokers"},
		{"topic", func(c *Config) { c.Trades.Sink = SinkSarama; c.Trades.Topic = "" }, "trades.topic"},
		{"marketdata", func(c *Config) { c.MarketData.Enabled = true; c.MarketData.Every = 0 }, "marketdata.every"},
		{"synthetic unbounded", func(c *Config) { c.Feed.Format = FormatSynthetic; c.Feed.Limit = 0 }, "feed.limit is required"},
		{"synthetic market", func(c *Config) { c.Feed.Format = FormatSynthetic; c.Synthetic.Levels = 0 }, "levels must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestLoadSynthetic(t *testing.T) {
	path := writeFile(t, `
feed:
  format: synthetic
  limit: 1000
synthetic:
  symbols: [AAA, BBB]
  mid: 5000
  levels: 5
`)
	t.Setenv("LOBMATCH_SYNTHETIC_SYMBOLS", "CCC,DDD,EEE")

	cfg, err := Load([]string{"-config", path})
	require.NoError(t, err)
	assert.Empty(t, cfg.Feed.Path)
	assert.Equal(t, []string{"CCC", "DDD", "EEE"}, cfg.Synthetic.Symbols)
	assert.Equal(t, uint32(5000), cfg.Synthetic.Mid)
	assert.Equal(t, 5, cfg.Synthetic.Levels)
	// Unset keys keep their defaults
	assert.Equal(t, uint32(100), cfg.Synthetic.Size)
}
