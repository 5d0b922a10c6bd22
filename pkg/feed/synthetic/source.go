package synthetic

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/erain9/lobmatch/pkg/core"
)

// Config describes the generated market
type Config struct {
	Symbols []string `yaml:"symbols"`
	// Starting mid price of every symbol, in ticks
	Mid        uint32 `yaml:"mid"`
	Levels     int    `yaml:"levels"`
	HalfSpread uint32 `yaml:"half_spread"`
	Step       uint32 `yaml:"step"`
	Size       uint32 `yaml:"size"`
	// A taker lifts or hits the top level every TakerEvery requotes, 0 for never
	TakerEvery int    `yaml:"taker_every"`
	Seed       uint64 `yaml:"seed"`
}

// DefaultConfig returns a three-level market on one symbol
func DefaultConfig() Config {
	return Config{
		Symbols:    []string{"SYNTH"},
		Mid:        10_000,
		Levels:     3,
		HalfSpread: 5,
		Step:       2,
		Size:       100,
		TakerEvery: 2,
		Seed:       1,
	}
}

// Validate reports configurations that cannot produce a market
func (c Config) Validate() error {
	var errs []error
	if len(c.Symbols) == 0 {
		errs = append(errs, errors.New("synthetic: at least one symbol is required"))
	}
	if c.Levels <= 0 {
		errs = append(errs, errors.New("synthetic: levels must be positive"))
	}
	if c.HalfSpread == 0 {
		errs = append(errs, errors.New("synthetic: half_spread must be positive"))
	}
	if c.Size < 2 {
		errs = append(errs, errors.New("synthetic: size must be at least 2"))
	}
	if c.TakerEvery < 0 {
		errs = append(errs, errors.New("synthetic: taker_every must not be negative"))
	}
	if w := c.HalfSpread + uint32(max(c.Levels-1, 0))*c.Step; c.Mid <= w {
		errs = append(errs, fmt.Errorf("synthetic: mid %d must exceed the ladder width %d", c.Mid, w))
	}
	return errors.Join(errs...)
}

type market struct {
	symbol string
	mid    uint32
	quotes []Quote
	ids    []uint64
}

// Source is an endless feed.Source. Each round quotes one symbol: the first
// round enters the ladder with New events, later rounds move the mid by at
// most one Step and requote every level with a Replace. Requotes run away
// from the move so the ladder never crosses itself. Takers are sized below
// the quote size, so quote ids stay live.
type Source struct {
	cfg      Config
	strategy LayeredQuoting
	rng      *rand.Rand
	markets  []*market
	pending  []core.Event
	next     int
	rounds   int
	nextID   uint64
	clock    uint64
}

// New creates a source. The same config always yields the same events.
func New(cfg Config) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Source{
		cfg: cfg,
		strategy: LayeredQuoting{
			Levels:     cfg.Levels,
			HalfSpread: cfg.HalfSpread,
			Step:       cfg.Step,
			Size:       cfg.Size,
		},
		rng:    rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		nextID: 1,
	}
	for _, sym := range cfg.Symbols {
		s.markets = append(s.markets, &market{symbol: sym, mid: cfg.Mid})
	}
	return s, nil
}

// Next returns the next event. It never returns io.EOF; wrap the source
// with feed.Limit to bound it.
func (s *Source) Next() (core.Event, error) {
	for len(s.pending) == 0 {
		s.round()
	}
	ev := s.pending[0]
	s.pending = s.pending[1:]
	return ev, nil
}

func (s *Source) tick() uint64 {
	s.clock += 1_000
	return s.clock
}

func (s *Source) id() uint64 {
	id := s.nextID
	s.nextID++
	return id
}

func (s *Source) round() {
	m := s.markets[s.next]
	s.next = (s.next + 1) % len(s.markets)
	s.rounds++

	if m.quotes == nil {
		m.quotes = s.strategy.Quotes(m.mid)
		for _, q := range m.quotes {
			id := s.id()
			m.ids = append(m.ids, id)
			s.pending = append(s.pending, core.NewOrderEvent{
				Timestamp: s.tick(),
				ID:        id,
				Symbol:    m.symbol,
				Side:      q.Side,
				Price:     q.Price,
				Size:      q.Size,
			})
		}
		return
	}

	move := int64(s.rng.IntN(3)-1) * int64(s.cfg.Step)
	mid := int64(m.mid) + move
	if mid <= int64(s.strategy.Width()) {
		mid = int64(m.mid)
		move = 0
	}
	m.mid = uint32(mid)

	// Moving up: asks leave first. Moving down: bids leave first.
	first := core.Buy
	if move > 0 {
		first = core.Sell
	}
	next := s.strategy.Quotes(m.mid)
	for _, side := range []core.Side{first, first.Opposite()} {
		for i, q := range next {
			if q.Side != side || i >= len(m.ids) {
				continue
			}
			id := s.id()
			s.pending = append(s.pending, core.ReplaceEvent{
				Timestamp: s.tick(),
				OldID:     m.ids[i],
				NewID:     id,
				Size:      q.Size,
				Price:     q.Price,
			})
			m.ids[i] = id
			m.quotes[i] = q
		}
	}

	if s.cfg.TakerEvery > 0 && s.rounds%s.cfg.TakerEvery == 0 {
		s.pending = append(s.pending, s.taker(m))
	}
}

// taker crosses the top level of a random side for part of its size
func (s *Source) taker(m *market) core.Event {
	side := core.Buy
	if s.rng.IntN(2) == 0 {
		side = core.Sell
	}
	price := m.mid + s.cfg.HalfSpread
	if side == core.Sell {
		price = m.mid - s.cfg.HalfSpread
	}
	return core.NewOrderEvent{
		Timestamp: s.tick(),
		ID:        s.id(),
		Symbol:    m.symbol,
		Side:      side,
		Price:     price,
		Size:      1 + uint32(s.rng.IntN(int(s.cfg.Size-1))),
	}
}
