package engine

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/erain9/lobmatch/pkg/core"
	"github.com/erain9/lobmatch/pkg/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrder(id uint64, symbol string, side core.Side, price, size uint32) core.NewOrderEvent {
	return core.NewOrderEvent{Timestamp: id, ID: id, Symbol: symbol, Side: side, Price: price, Size: size}
}

func apply(t *testing.T, me *MatchingEngine, events ...core.Event) {
	t.Helper()
	for _, ev := range events {
		require.NoError(t, me.Handle(context.Background(), ev))
		assertConsistent(t, me)
	}
}

// assertConsistent checks that the global routes and the books agree: every
// routed id rests in exactly its routed book and side, and every resting
// order is routed. It also checks that no empty level or zero-size order
// survives.
func assertConsistent(t *testing.T, me *MatchingEngine) {
	t.Helper()

	resting := 0
	for _, symbol := range me.Symbols() {
		book, ok := me.Book(symbol)
		require.True(t, ok)
		for _, side := range []core.Side{core.Buy, core.Sell} {
			for _, lvl := range book.Depth(side, 0) {
				orders := book.Orders(side, lvl.Price)
				require.NotEmpty(t, orders, "%s: empty level %d on %s", symbol, lvl.Price, side)
				for _, o := range orders {
					resting++
					require.Positive(t, o.Size())
					r, ok := me.Route(o.ID())
					require.True(t, ok, "%s: order %d rests without a route", symbol, o.ID())
					assert.Equal(t, Route{Symbol: symbol, Side: side}, r)
				}
			}
		}
	}
	assert.Equal(t, resting, me.LiveOrders(), "routes and resting orders disagree")
}

type recordingSink struct {
	trades []messaging.TradeMessage
}

func (r *recordingSink) Publish(_ context.Context, trades []messaging.TradeMessage) {
	r.trades = append(r.trades, trades...)
}

type countingMetrics struct {
	events     map[string]int
	trades     int
	volume     uint64
	unresolved map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{events: map[string]int{}, unresolved: map[string]int{}}
}

func (c *countingMetrics) RecordEvent(_ context.Context, kind string) { c.events[kind]++ }

func (c *countingMetrics) RecordTrades(_ context.Context, count int, volume uint64) {
	c.trades += count
	c.volume += volume
}

func (c *countingMetrics) RecordUnresolved(_ context.Context, kind string) { c.unresolved[kind]++ }

func TestWalkthrough(t *testing.T) {
	sink := &recordingSink{}
	me := New(WithTradeSink(sink))

	// 1. Resting bid on an empty book
	apply(t, me, newOrder(1, "X", core.Buy, 100, 10))
	book, ok := me.Book("X")
	require.True(t, ok)
	assert.Equal(t, []core.Level{{Price: 100, Size: 10, Orders: 1}}, book.Depth(core.Buy, 0))
	assert.Empty(t, sink.trades)

	// 2. Crossing sell trades at the resting price
	apply(t, me, newOrder(2, "X", core.Sell, 99, 4))
	assert.Equal(t, uint32(6), book.GetOrder(1).Size())
	assert.Zero(t, book.LevelCount(core.Sell))
	require.Len(t, sink.trades, 1)
	assert.Equal(t, uint32(100), sink.trades[0].Price)
	assert.Equal(t, uint32(4), sink.trades[0].Size)
	assert.Equal(t, "X", sink.trades[0].Symbol)

	// 3. Exact cancel removes order and level
	apply(t, me, core.CancelEvent{ID: 1, Size: 6})
	assert.Zero(t, book.LevelCount(core.Buy))
	_, ok = me.Route(1)
	assert.False(t, ok)

	// 4. Partial cancel keeps queue position
	apply(t, me,
		newOrder(3, "X", core.Buy, 50, 5),
		newOrder(4, "X", core.Buy, 50, 5),
		core.CancelEvent{ID: 3, Size: 2},
	)
	queue := book.Orders(core.Buy, 50)
	require.Len(t, queue, 2)
	assert.Equal(t, uint64(3), queue[0].ID())
	assert.Equal(t, uint32(3), queue[0].Size())
	assert.Equal(t, uint64(4), queue[1].ID())
	assert.Equal(t, uint32(5), queue[1].Size())

	// 5. Sell sweeps level 50 in arrival order and rests the rest
	apply(t, me, newOrder(5, "X", core.Sell, 50, 20))
	require.Len(t, sink.trades, 3)
	assert.Equal(t, uint64(3), sink.trades[1].MakerID)
	assert.Equal(t, uint32(3), sink.trades[1].Size)
	assert.Equal(t, uint64(4), sink.trades[2].MakerID)
	assert.Equal(t, uint32(5), sink.trades[2].Size)
	assert.Zero(t, book.LevelCount(core.Buy))
	assert.Equal(t, []core.Level{{Price: 50, Size: 12, Orders: 1}}, book.Depth(core.Sell, 0))

	// 6. Replace moves the order to a new id and price on the same side
	apply(t, me, core.ReplaceEvent{OldID: 5, NewID: 6, Size: 12, Price: 48})
	assert.Nil(t, book.GetOrder(5))
	assert.Equal(t, []core.Level{{Price: 48, Size: 12, Orders: 1}}, book.Depth(core.Sell, 0))
	r, ok := me.Route(6)
	require.True(t, ok)
	assert.Equal(t, Route{Symbol: "X", Side: core.Sell}, r)

	assert.Equal(t, Stats{New: 5, Cancel: 2, Replace: 1, Trades: 3, Volume: 12}, me.Stats())
	assert.Equal(t, uint64(8), me.Stats().Events())
}

func TestReplaceCrossesOppositeSide(t *testing.T) {
	me := New()
	apply(t, me,
		newOrder(1, "X", core.Buy, 49, 4),
		newOrder(2, "X", core.Sell, 55, 10),
		core.ReplaceEvent{OldID: 2, NewID: 3, Size: 6, Price: 48},
	)

	book, _ := me.Book("X")
	assert.Zero(t, book.LevelCount(core.Buy))
	assert.Equal(t, []core.Level{{Price: 48, Size: 2, Orders: 1}}, book.Depth(core.Sell, 0))
	assert.Equal(t, uint64(1), me.Stats().Trades)
	assert.Equal(t, uint64(4), me.Stats().Volume)
}

func TestReplaceLosesTimePriority(t *testing.T) {
	me := New()
	apply(t, me,
		newOrder(1, "X", core.Buy, 100, 5),
		newOrder(2, "X", core.Buy, 100, 5),
		core.ReplaceEvent{OldID: 1, NewID: 3, Size: 5, Price: 100},
	)

	book, _ := me.Book("X")
	orders := book.Orders(core.Buy, 100)
	require.Len(t, orders, 2)
	assert.Equal(t, uint64(2), orders[0].ID())
	assert.Equal(t, uint64(3), orders[1].ID())
}

func TestReplaceIgnoresRemainingSize(t *testing.T) {
	me := New()
	apply(t, me,
		newOrder(1, "X", core.Sell, 100, 10),
		newOrder(2, "X", core.Buy, 100, 7),
		core.ReplaceEvent{OldID: 1, NewID: 3, Size: 1, Price: 101},
	)

	book, _ := me.Book("X")
	assert.Nil(t, book.GetOrder(1))
	assert.Equal(t, []core.Level{{Price: 101, Size: 1, Orders: 1}}, book.Depth(core.Sell, 0))
}

func TestIdempotentMiss(t *testing.T) {
	metrics := newCountingMetrics()
	me := New(WithMetrics(metrics))
	apply(t, me,
		newOrder(1, "X", core.Buy, 100, 10),
		newOrder(2, "Y", core.Sell, 200, 3),
	)
	x, _ := me.Book("X")
	y, _ := me.Book("Y")
	beforeX, beforeY := x.String(), y.String()

	apply(t, me,
		core.CancelEvent{ID: 99, Size: 1},
		core.ReplaceEvent{OldID: 98, NewID: 97, Size: 5, Price: 100},
		core.CancelEvent{ID: 99, Size: 1},
	)

	assert.Equal(t, beforeX, x.String())
	assert.Equal(t, beforeY, y.String())
	_, ok := me.Route(97)
	assert.False(t, ok)

	stats := me.Stats()
	assert.Equal(t, uint64(2), stats.Cancel)
	assert.Equal(t, uint64(1), stats.Replace)
	assert.Equal(t, uint64(3), stats.Unresolved)
	assert.Equal(t, 2, metrics.unresolved["cancel"])
	assert.Equal(t, 1, metrics.unresolved["replace"])
	assert.Equal(t, 2, metrics.events["cancel"])
}

func TestFilledIdsAreNotRouted(t *testing.T) {
	me := New()
	apply(t, me,
		newOrder(1, "X", core.Sell, 100, 5),
		newOrder(2, "X", core.Buy, 100, 5),
	)

	// Both sides of the trade are gone
	_, ok := me.Route(1)
	assert.False(t, ok)
	_, ok = me.Route(2)
	assert.False(t, ok)
	assert.Zero(t, me.LiveOrders())

	// Cancel and replace of a filled id count but do nothing
	apply(t, me,
		core.CancelEvent{ID: 1, Size: 5},
		core.ReplaceEvent{OldID: 2, NewID: 3, Size: 5, Price: 100},
	)
	book, _ := me.Book("X")
	assert.Zero(t, book.Len())
	assert.Equal(t, uint64(1), me.Stats().Cancel)
	assert.Equal(t, uint64(1), me.Stats().Replace)
	assert.Equal(t, uint64(2), me.Stats().Unresolved)

	// The replacement never enters the book
	_, ok = me.Route(3)
	assert.False(t, ok)
}

func TestSymbolsAreIsolated(t *testing.T) {
	me := New()
	apply(t, me,
		newOrder(1, "AAPL", core.Sell, 100, 5),
		newOrder(2, "MSFT", core.Buy, 100, 5),
	)

	assert.Equal(t, []string{"AAPL", "MSFT"}, me.Symbols())
	assert.Zero(t, me.Stats().Trades)

	// Cancel carries no symbol and is routed by id
	apply(t, me, core.CancelEvent{ID: 2, Size: 1})
	msft, _ := me.Book("MSFT")
	assert.Equal(t, uint32(4), msft.GetOrder(2).Size())

	tob, ok := me.TopOfBook("AAPL")
	require.True(t, ok)
	assert.Equal(t, TopOfBook{Symbol: "AAPL", AskPrice: 100, AskSize: 5, HasAsk: true}, tob)

	_, ok = me.TopOfBook("TSLA")
	assert.False(t, ok)

	all := me.TopOfBooks()
	require.Len(t, all, 2)
	assert.Equal(t, "MSFT", all[1].Symbol)
	assert.True(t, all[1].HasBid)
	assert.Equal(t, uint64(4), all[1].BidSize)
}

func TestPartialFillConservation(t *testing.T) {
	sink := &recordingSink{}
	me := New(WithTradeSink(sink))
	apply(t, me,
		newOrder(1, "X", core.Sell, 100, 3),
		newOrder(2, "X", core.Sell, 101, 4),
		newOrder(3, "X", core.Sell, 103, 4),
	)
	book, _ := me.Book("X")
	askBefore := book.TotalResting(core.Sell)

	apply(t, me, newOrder(4, "X", core.Buy, 102, 10))

	var matched uint64
	for _, tr := range sink.trades {
		matched += uint64(tr.Size)
	}
	resting := uint64(book.GetOrder(4).Size())
	assert.Equal(t, uint64(10), matched+resting)
	assert.Equal(t, askBefore-matched, book.TotalResting(core.Sell))
}

func TestStrictMode(t *testing.T) {
	ctx := context.Background()
	me := New(WithStrictMode())
	require.True(t, me.Strict())
	require.NoError(t, me.Handle(ctx, newOrder(1, "X", core.Buy, 100, 10)))

	err := me.Handle(ctx, core.CancelEvent{ID: 42, Size: 1})
	assert.ErrorIs(t, err, core.ErrNonexistentOrder)

	err = me.Handle(ctx, core.ReplaceEvent{OldID: 42, NewID: 43, Size: 1, Price: 1})
	assert.ErrorIs(t, err, core.ErrNonexistentOrder)

	err = me.Handle(ctx, newOrder(2, "X", core.Buy, 100, 0))
	assert.ErrorIs(t, err, core.ErrInvalidQuantity)

	err = me.Handle(ctx, newOrder(1, "Y", core.Sell, 100, 5))
	assert.ErrorIs(t, err, core.ErrOrderExists)
	_, ok := me.Book("Y")
	assert.False(t, ok)

	require.NoError(t, me.Handle(ctx, newOrder(2, "X", core.Buy, 99, 5)))
	err = me.Handle(ctx, core.ReplaceEvent{OldID: 1, NewID: 2, Size: 5, Price: 100})
	assert.ErrorIs(t, err, core.ErrOrderExists)
	err = me.Handle(ctx, core.ReplaceEvent{OldID: 1, NewID: 3, Size: 0, Price: 100})
	assert.ErrorIs(t, err, core.ErrInvalidQuantity)

	// Rejected events are counted but leave the books alone
	book, _ := me.Book("X")
	assert.Equal(t, uint32(10), book.GetOrder(1).Size())
	assert.Equal(t, 2, book.Len())
	assertConsistent(t, me)

	stats := me.Stats()
	assert.Equal(t, uint64(4), stats.New)
	assert.Equal(t, uint64(1), stats.Cancel)
	assert.Equal(t, uint64(3), stats.Replace)
	assert.Equal(t, uint64(2), stats.Unresolved)
}

func TestLenientIgnoresInvalidNew(t *testing.T) {
	me := New()
	apply(t, me,
		newOrder(1, "X", core.Buy, 100, 10),
		newOrder(1, "X", core.Sell, 90, 10),
		newOrder(2, "X", core.Sell, 90, 0),
	)

	book, _ := me.Book("X")
	assert.Equal(t, 1, book.Len())
	assert.Equal(t, uint32(10), book.GetOrder(1).Size())
	assert.Zero(t, me.Stats().Trades)
	assert.Equal(t, uint64(3), me.Stats().New)
}

type unknownEvent struct{}

func (unknownEvent) Kind() core.EventKind { return core.EventKind(99) }
func (unknownEvent) Time() uint64         { return 0 }

func TestUnknownEvent(t *testing.T) {
	me := New()
	err := me.Handle(context.Background(), unknownEvent{})
	assert.True(t, errors.Is(err, core.ErrUnknownEvent))
	assert.Zero(t, me.Stats().Events())
}

func TestBackendFactory(t *testing.T) {
	var created []string
	me := New(WithBackendFactory(func(symbol string) core.OrderBookBackend {
		created = append(created, symbol)
		return New().newBackend(symbol)
	}))
	apply(t, me,
		newOrder(1, "A", core.Buy, 1, 1),
		newOrder(2, "B", core.Buy, 1, 1),
		newOrder(3, "A", core.Buy, 1, 1),
	)
	assert.Equal(t, []string{"A", "B"}, created)
}

func TestMetricsRecordTrades(t *testing.T) {
	metrics := newCountingMetrics()
	me := New(WithMetrics(metrics))
	apply(t, me,
		newOrder(1, "X", core.Sell, 10, 2),
		newOrder(2, "X", core.Sell, 11, 2),
		newOrder(3, "X", core.Buy, 11, 3),
	)
	assert.Equal(t, 3, metrics.events["new"])
	assert.Equal(t, 2, metrics.trades)
	assert.Equal(t, uint64(3), metrics.volume)
}

// TestRandomStreamKeepsInvariants drives a seeded random stream through the
// engine and checks the book invariants after every event.
func TestRandomStreamKeepsInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	me := New()
	symbols := []string{"A", "B", "C"}

	var live []uint64
	nextID := uint64(1)
	for i := 0; i < 3000; i++ {
		var ev core.Event
		switch r := rng.Intn(10); {
		case r < 6 || len(live) == 0:
			side := core.Side(rng.Intn(2))
			ev = newOrder(nextID, symbols[rng.Intn(len(symbols))], side, uint32(95+rng.Intn(11)), uint32(1+rng.Intn(20)))
			live = append(live, nextID)
			nextID++
		case r < 8:
			id := live[rng.Intn(len(live))]
			ev = core.CancelEvent{ID: id, Size: uint32(rng.Intn(25))}
		default:
			id := live[rng.Intn(len(live))]
			ev = core.ReplaceEvent{OldID: id, NewID: nextID, Size: uint32(1 + rng.Intn(20)), Price: uint32(95 + rng.Intn(11))}
			live = append(live, nextID)
			nextID++
		}
		apply(t, me, ev)

		for _, s := range me.Symbols() {
			book, _ := me.Book(s)
			bid, hasBid := book.BestBid()
			ask, hasAsk := book.BestAsk()
			if hasBid && hasAsk {
				require.Less(t, bid.Price, ask.Price, "crossed book %s after event %d", s, i)
			}
		}
	}
}
