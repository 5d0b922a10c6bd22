package core

import (
	"fmt"
	"strings"
)

// location is where a live order rests
type location struct {
	side  Side
	price uint32
}

// OrderBook implements price-time priority matching for a single instrument
type OrderBook struct {
	backend OrderBookBackend
	index   map[uint64]location
}

// NewOrderBook creates Orderbook object with a backend
func NewOrderBook(backend OrderBookBackend) *OrderBook {
	return &OrderBook{
		backend: backend,
		index:   make(map[uint64]location),
	}
}

// MatchLimit crosses the order against the opposite side, best price first and
// oldest first within a price, trading at the resting price. Whatever is left
// rests at the order's own price behind existing orders at that price.
func (ob *OrderBook) MatchLimit(order *Order) *Done {
	done := newDone(order)
	opposite := order.Side().Opposite()

	for order.Size() > 0 {
		price, ok := ob.backend.BestPrice(opposite)
		if !ok || !order.crosses(price) {
			break
		}

		maker := ob.backend.Front(opposite, price)
		if maker == nil {
			break
		}

		qty := min(order.Size(), maker.Size())
		maker.DecreaseSize(qty)
		order.DecreaseSize(qty)
		done.appendTrade(maker, qty)

		if maker.Size() == 0 {
			ob.backend.RemoveFromSide(opposite, maker)
			delete(ob.index, maker.ID())
		}
	}

	done.Left = order.Size()
	if order.Size() > 0 {
		ob.backend.AppendToSide(order.Side(), order)
		ob.index[order.ID()] = location{side: order.Side(), price: order.Price()}
		done.Stored = true
	}

	return done
}

// HandleCancel removes size from a live order. A size at or above the
// remaining size removes the order entirely; a smaller size shrinks it in
// place without touching its time priority. Returns true iff the order no
// longer rests in the book. Unknown ids are a no-op.
func (ob *OrderBook) HandleCancel(orderID uint64, size uint32) bool {
	loc, ok := ob.index[orderID]
	if !ok {
		return false
	}

	order := ob.backend.GetOrder(loc.side, loc.price, orderID)
	if order == nil {
		delete(ob.index, orderID)
		return true
	}

	if size >= order.Size() {
		ob.backend.RemoveFromSide(loc.side, order)
		delete(ob.index, orderID)
		return true
	}

	order.DecreaseSize(size)
	return false
}

// GetOrder returns a live order by id
func (ob *OrderBook) GetOrder(orderID uint64) *Order {
	loc, ok := ob.index[orderID]
	if !ok {
		return nil
	}
	return ob.backend.GetOrder(loc.side, loc.price, orderID)
}

// Location returns the side and price an order rests at
func (ob *OrderBook) Location(orderID uint64) (Side, uint32, bool) {
	loc, ok := ob.index[orderID]
	return loc.side, loc.price, ok
}

// Len returns the number of live orders
func (ob *OrderBook) Len() int {
	return len(ob.index)
}

// OrderIDs returns the ids of all live orders, in no particular order
func (ob *OrderBook) OrderIDs() []uint64 {
	ids := make([]uint64, 0, len(ob.index))
	for id := range ob.index {
		ids = append(ids, id)
	}
	return ids
}

// BestBid returns the highest bid level
func (ob *OrderBook) BestBid() (Level, bool) {
	return ob.best(Buy)
}

// BestAsk returns the lowest ask level
func (ob *OrderBook) BestAsk() (Level, bool) {
	return ob.best(Sell)
}

func (ob *OrderBook) best(side Side) (Level, bool) {
	levels := ob.backend.Depth(side, 1)
	if len(levels) == 0 {
		return Level{}, false
	}
	return levels[0], true
}

// Depth returns up to limit aggregated levels, best first. A limit of zero or less returns all levels.
func (ob *OrderBook) Depth(side Side, limit int) []Level {
	return ob.backend.Depth(side, limit)
}

// Orders returns the queue at a price, oldest first
func (ob *OrderBook) Orders(side Side, price uint32) []*Order {
	return ob.backend.Orders(side, price)
}

// LevelCount returns the number of price levels on a side
func (ob *OrderBook) LevelCount(side Side) int {
	return ob.backend.LevelCount(side)
}

// TotalResting returns the total size resting on a side
func (ob *OrderBook) TotalResting(side Side) uint64 {
	var total uint64
	for _, lvl := range ob.backend.Depth(side, 0) {
		total += lvl.Size
	}
	return total
}

// String implements fmt.Stringer interface
func (ob *OrderBook) String() string {
	sb := strings.Builder{}

	sb.WriteString("asks:")
	asks := ob.Depth(Sell, 0)
	for i := len(asks) - 1; i >= 0; i-- {
		sb.WriteString(fmt.Sprintf("\n  %d -> size: %d, orders: %d", asks[i].Price, asks[i].Size, asks[i].Orders))
	}

	sb.WriteString("\nbids:")
	for _, lvl := range ob.Depth(Buy, 0) {
		sb.WriteString(fmt.Sprintf("\n  %d -> size: %d, orders: %d", lvl.Price, lvl.Size, lvl.Orders))
	}

	return sb.String()
}
