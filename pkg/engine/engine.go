package engine

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/erain9/lobmatch/pkg/backend/memory"
	"github.com/erain9/lobmatch/pkg/core"
	"github.com/rs/zerolog"
)

// Stats are the running event and trade counters
type Stats struct {
	New        uint64 `json:"new"`
	Cancel     uint64 `json:"cancel"`
	Replace    uint64 `json:"replace"`
	Trades     uint64 `json:"trades"`
	Volume     uint64 `json:"volume"`
	Unresolved uint64 `json:"unresolved"`
}

// Events returns the total number of events applied
func (s Stats) Events() uint64 {
	return s.New + s.Cancel + s.Replace
}

// Route is where a live order id is booked
type Route struct {
	Symbol string
	Side   core.Side
}

// TopOfBook is the best bid and ask of one symbol
type TopOfBook struct {
	Symbol   string `json:"symbol"`
	BidPrice uint32 `json:"bidPrice"`
	BidSize  uint64 `json:"bidSize"`
	AskPrice uint32 `json:"askPrice"`
	AskSize  uint64 `json:"askSize"`
	HasBid   bool   `json:"hasBid"`
	HasAsk   bool   `json:"hasAsk"`
}

// MatchingEngine applies order-lifecycle events to per-symbol books. Books
// are created on the first New for a symbol. Cancel and Replace carry no
// symbol and are routed through a global id index.
//
// The engine is single-threaded: callers apply events one at a time, in
// arrival order. It is not safe for concurrent use.
type MatchingEngine struct {
	books  map[string]*core.OrderBook
	routes map[uint64]Route
	stats  Stats

	strict     bool
	logger     zerolog.Logger
	sink       TradeSink
	metrics    Metrics
	newBackend BackendFactory
}

// New creates an engine with in-memory books
func New(opts ...Option) *MatchingEngine {
	me := &MatchingEngine{
		books:  make(map[string]*core.OrderBook),
		routes: make(map[uint64]Route),
		logger: zerolog.Nop(),
		newBackend: func(string) core.OrderBookBackend {
			return memory.NewMemoryBackend()
		},
	}
	for _, opt := range opts {
		opt(me)
	}
	return me
}

// Handle applies one event. The event counter is incremented before anything
// else, so misses are counted too. In lenient mode the returned error is
// non-nil only for event types the engine does not know.
func (me *MatchingEngine) Handle(ctx context.Context, ev core.Event) error {
	switch e := ev.(type) {
	case core.NewOrderEvent:
		me.stats.New++
		me.recordEvent(ctx, core.KindNew)
		return me.handleNew(ctx, e)
	case core.CancelEvent:
		me.stats.Cancel++
		me.recordEvent(ctx, core.KindCancel)
		return me.handleCancel(ctx, e)
	case core.ReplaceEvent:
		me.stats.Replace++
		me.recordEvent(ctx, core.KindReplace)
		return me.handleReplace(ctx, e)
	default:
		return fmt.Errorf("%w: %T", core.ErrUnknownEvent, ev)
	}
}

func (me *MatchingEngine) handleNew(ctx context.Context, e core.NewOrderEvent) error {
	if e.Size == 0 && me.strict {
		return fmt.Errorf("new order %d: %w", e.ID, core.ErrInvalidQuantity)
	}
	if _, live := me.routes[e.ID]; live {
		me.logger.Debug().Uint64("order_id", e.ID).Str("symbol", e.Symbol).Msg("New for a live order id ignored")
		if me.strict {
			return fmt.Errorf("new order %d: %w", e.ID, core.ErrOrderExists)
		}
		return nil
	}

	book := me.obtainBook(e.Symbol)
	order := core.NewOrder(e.ID, e.Side, e.Price, e.Size, e.Timestamp)
	me.match(ctx, book, e.Symbol, order)
	return nil
}

func (me *MatchingEngine) handleCancel(ctx context.Context, e core.CancelEvent) error {
	route, ok := me.routes[e.ID]
	if !ok {
		return me.unresolved(ctx, core.KindCancel, e.ID)
	}

	book := me.books[route.Symbol]
	if book.HandleCancel(e.ID, e.Size) {
		delete(me.routes, e.ID)
	}
	return nil
}

func (me *MatchingEngine) handleReplace(ctx context.Context, e core.ReplaceEvent) error {
	route, ok := me.routes[e.OldID]
	if !ok {
		return me.unresolved(ctx, core.KindReplace, e.OldID)
	}

	if me.strict {
		if e.Size == 0 {
			return fmt.Errorf("replace %d -> %d: %w", e.OldID, e.NewID, core.ErrInvalidQuantity)
		}
		if _, live := me.routes[e.NewID]; live && e.NewID != e.OldID {
			return fmt.Errorf("replace %d -> %d: %w", e.OldID, e.NewID, core.ErrOrderExists)
		}
	}

	book := me.books[route.Symbol]
	book.HandleCancel(e.OldID, math.MaxUint32)
	delete(me.routes, e.OldID)

	if _, live := me.routes[e.NewID]; live {
		me.logger.Debug().Uint64("old_id", e.OldID).Uint64("new_id", e.NewID).Msg("Replace onto a live order id, new order dropped")
		return nil
	}

	order := core.NewOrder(e.NewID, route.Side, e.Price, e.Size, e.Timestamp)
	me.match(ctx, book, route.Symbol, order)
	return nil
}

// match crosses the order and keeps the routes in step with the book:
// fully filled makers leave, a remainder that rests is recorded.
func (me *MatchingEngine) match(ctx context.Context, book *core.OrderBook, symbol string, order *core.Order) {
	done := book.MatchLimit(order)

	for _, id := range done.Filled {
		delete(me.routes, id)
	}
	if done.Stored {
		me.routes[order.ID()] = Route{Symbol: symbol, Side: order.Side()}
	}

	if len(done.Trades) == 0 {
		return
	}
	volume := done.Volume()
	me.stats.Trades += uint64(len(done.Trades))
	me.stats.Volume += volume
	if me.metrics != nil {
		me.metrics.RecordTrades(ctx, len(done.Trades), volume)
	}
	if me.sink != nil {
		me.sink.Publish(ctx, done.ToTradeMessages(symbol, order.Timestamp()))
	}
}

func (me *MatchingEngine) obtainBook(symbol string) *core.OrderBook {
	book, ok := me.books[symbol]
	if !ok {
		book = core.NewOrderBook(me.newBackend(symbol))
		me.books[symbol] = book
		me.logger.Debug().Str("symbol", symbol).Int("books", len(me.books)).Msg("Order book created")
	}
	return book
}

func (me *MatchingEngine) unresolved(ctx context.Context, kind core.EventKind, id uint64) error {
	me.stats.Unresolved++
	if me.metrics != nil {
		me.metrics.RecordUnresolved(ctx, kind.String())
	}
	me.logger.Debug().Str("event", kind.String()).Uint64("order_id", id).Msg("Order id not live")
	if me.strict {
		return fmt.Errorf("%s %d: %w", kind, id, core.ErrNonexistentOrder)
	}
	return nil
}

func (me *MatchingEngine) recordEvent(ctx context.Context, kind core.EventKind) {
	if me.metrics != nil {
		me.metrics.RecordEvent(ctx, kind.String())
	}
}

// Stats returns a snapshot of the counters
func (me *MatchingEngine) Stats() Stats {
	return me.stats
}

// Strict reports whether strict mode is on
func (me *MatchingEngine) Strict() bool {
	return me.strict
}

// Symbols returns the symbols that have a book, sorted
func (me *MatchingEngine) Symbols() []string {
	symbols := make([]string, 0, len(me.books))
	for s := range me.books {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

// Book returns the book of a symbol
func (me *MatchingEngine) Book(symbol string) (*core.OrderBook, bool) {
	book, ok := me.books[symbol]
	return book, ok
}

// Route returns where a live order id is booked
func (me *MatchingEngine) Route(orderID uint64) (Route, bool) {
	r, ok := me.routes[orderID]
	return r, ok
}

// LiveOrders returns the number of routed order ids
func (me *MatchingEngine) LiveOrders() int {
	return len(me.routes)
}

// TopOfBook returns the best bid and ask of a symbol
func (me *MatchingEngine) TopOfBook(symbol string) (TopOfBook, bool) {
	book, ok := me.books[symbol]
	if !ok {
		return TopOfBook{}, false
	}

	tob := TopOfBook{Symbol: symbol}
	if bid, ok := book.BestBid(); ok {
		tob.BidPrice, tob.BidSize, tob.HasBid = bid.Price, bid.Size, true
	}
	if ask, ok := book.BestAsk(); ok {
		tob.AskPrice, tob.AskSize, tob.HasAsk = ask.Price, ask.Size, true
	}
	return tob, true
}

// TopOfBooks returns the top of book of every symbol, sorted by symbol
func (me *MatchingEngine) TopOfBooks() []TopOfBook {
	symbols := me.Symbols()
	out := make([]TopOfBook, 0, len(symbols))
	for _, s := range symbols {
		tob, _ := me.TopOfBook(s)
		out = append(out, tob)
	}
	return out
}
