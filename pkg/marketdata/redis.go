// Package marketdata publishes top-of-book snapshots to Redis. It is a read
// model for downstream consumers; the engine never reads it back.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/erain9/lobmatch/pkg/engine"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Hash fields of a top-of-book key
const (
	fieldBidPrice = "bid_price"
	fieldBidSize  = "bid_size"
	fieldAskPrice = "ask_price"
	fieldAskSize  = "ask_size"
	fieldHasBid   = "has_bid"
	fieldHasAsk   = "has_ask"
)

// Publisher writes snapshots as hashes and announces them on a channel
type Publisher struct {
	client redis.UniversalClient
	prefix string
	logger zerolog.Logger
}

// NewClient creates a Redis client for addr
func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// NewPublisher creates a publisher writing keys under prefix
func NewPublisher(client redis.UniversalClient, prefix string, logger zerolog.Logger) *Publisher {
	if prefix == "" {
		prefix = "lobmatch"
	}
	return &Publisher{
		client: client,
		prefix: prefix,
		logger: logger.With().Str("component", "marketdata").Logger(),
	}
}

// Key returns the hash key of a symbol's snapshot
func (p *Publisher) Key(symbol string) string {
	return fmt.Sprintf("%s:tob:%s", p.prefix, symbol)
}

// Channel returns the pub/sub channel snapshots are announced on
func (p *Publisher) Channel() string {
	return p.prefix + ":tob"
}

// Publish writes all snapshots in a single pipeline
func (p *Publisher) Publish(ctx context.Context, snapshots []engine.TopOfBook) error {
	if len(snapshots) == 0 {
		return nil
	}

	pipe := p.client.Pipeline()
	for _, s := range snapshots {
		payload, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("marketdata: marshal %s: %w", s.Symbol, err)
		}
		pipe.HSet(ctx, p.Key(s.Symbol), map[string]interface{}{
			fieldBidPrice: strconv.FormatUint(uint64(s.BidPrice), 10),
			fieldBidSize:  strconv.FormatUint(s.BidSize, 10),
			fieldAskPrice: strconv.FormatUint(uint64(s.AskPrice), 10),
			fieldAskSize:  strconv.FormatUint(s.AskSize, 10),
			fieldHasBid:   strconv.FormatBool(s.HasBid),
			fieldHasAsk:   strconv.FormatBool(s.HasAsk),
		})
		pipe.Publish(ctx, p.Channel(), payload)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("marketdata: publish %d snapshots: %w", len(snapshots), err)
	}
	p.logger.Debug().Int("symbols", len(snapshots)).Msg("Top of book published")
	return nil
}

// Latest reads back the last snapshot written for symbol
func (p *Publisher) Latest(ctx context.Context, symbol string) (engine.TopOfBook, bool, error) {
	fields, err := p.client.HGetAll(ctx, p.Key(symbol)).Result()
	if err != nil {
		return engine.TopOfBook{}, false, fmt.Errorf("marketdata: read %s: %w", symbol, err)
	}
	if len(fields) == 0 {
		return engine.TopOfBook{}, false, nil
	}

	tob := engine.TopOfBook{Symbol: symbol}
	var perr error
	parseUint := func(name string, bits int) uint64 {
		v, err := strconv.ParseUint(fields[name], 10, bits)
		if err != nil && perr == nil {
			perr = fmt.Errorf("marketdata: field %s of %s: %w", name, symbol, err)
		}
		return v
	}
	tob.BidPrice = uint32(parseUint(fieldBidPrice, 32))
	tob.BidSize = parseUint(fieldBidSize, 64)
	tob.AskPrice = uint32(parseUint(fieldAskPrice, 32))
	tob.AskSize = parseUint(fieldAskSize, 64)
	tob.HasBid = fields[fieldHasBid] == "true"
	tob.HasAsk = fields[fieldHasAsk] == "true"
	if perr != nil {
		return engine.TopOfBook{}, false, perr
	}
	return tob, true, nil
}

// Close closes the Redis client
func (p *Publisher) Close() error {
	return p.client.Close()
}
