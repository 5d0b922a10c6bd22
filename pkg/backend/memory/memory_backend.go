package memory

import (
	"container/list"

	"github.com/erain9/lobmatch/pkg/core"
	"github.com/google/btree"
)

// btreeDegree is the branching factor of the per-side price index
const btreeDegree = 32

// OrderQueue represents a price level in the order book: a FIFO queue of
// orders with an id index for removal from the middle of the queue.
type OrderQueue struct {
	price  uint32
	orders *list.List
	byID   map[uint64]*list.Element
}

// NewOrderQueue creates a new OrderQueue with the given price
func NewOrderQueue(price uint32) *OrderQueue {
	return &OrderQueue{
		price:  price,
		orders: list.New(),
		byID:   make(map[uint64]*list.Element),
	}
}

// Price returns the level price
func (q *OrderQueue) Price() uint32 {
	return q.price
}

// Len returns the number of orders at the level
func (q *OrderQueue) Len() int {
	return q.orders.Len()
}

// Front returns the oldest order at the level
func (q *OrderQueue) Front() *core.Order {
	e := q.orders.Front()
	if e == nil {
		return nil
	}
	return e.Value.(*core.Order)
}

// Size returns the total remaining size at the level
func (q *OrderQueue) Size() uint64 {
	var total uint64
	for e := q.orders.Front(); e != nil; e = e.Next() {
		total += uint64(e.Value.(*core.Order).Size())
	}
	return total
}

// Orders returns the queue contents, oldest first
func (q *OrderQueue) Orders() []*core.Order {
	orders := make([]*core.Order, 0, q.orders.Len())
	for e := q.orders.Front(); e != nil; e = e.Next() {
		orders = append(orders, e.Value.(*core.Order))
	}
	return orders
}

func (q *OrderQueue) append(order *core.Order) {
	q.byID[order.ID()] = q.orders.PushBack(order)
}

func (q *OrderQueue) remove(orderID uint64) bool {
	e, ok := q.byID[orderID]
	if !ok {
		return false
	}
	q.orders.Remove(e)
	delete(q.byID, orderID)
	return true
}

func (q *OrderQueue) get(orderID uint64) *core.Order {
	e, ok := q.byID[orderID]
	if !ok {
		return nil
	}
	return e.Value.(*core.Order)
}

func lessQueue(a, b *OrderQueue) bool {
	return a.price < b.price
}

// OrderSide represents one side (bid/ask) of the order book
type OrderSide struct {
	side    core.Side
	prices  *btree.BTreeG[*OrderQueue]
	byPrice map[uint32]*OrderQueue
}

func newOrderSide(side core.Side) *OrderSide {
	return &OrderSide{
		side:    side,
		prices:  btree.NewG[*OrderQueue](btreeDegree, lessQueue),
		byPrice: make(map[uint32]*OrderQueue),
	}
}

// best returns the highest bid or the lowest ask
func (os *OrderSide) best() *OrderQueue {
	var (
		q  *OrderQueue
		ok bool
	)
	if os.side == core.Buy {
		q, ok = os.prices.Max()
	} else {
		q, ok = os.prices.Min()
	}
	if !ok {
		return nil
	}
	return q
}

// walk visits levels best first until fn returns false
func (os *OrderSide) walk(fn func(q *OrderQueue) bool) {
	if os.side == core.Buy {
		os.prices.Descend(fn)
		return
	}
	os.prices.Ascend(fn)
}

func (os *OrderSide) queue(price uint32) *OrderQueue {
	return os.byPrice[price]
}

func (os *OrderSide) append(order *core.Order) {
	q, ok := os.byPrice[order.Price()]
	if !ok {
		q = NewOrderQueue(order.Price())
		os.byPrice[order.Price()] = q
		os.prices.ReplaceOrInsert(q)
	}
	q.append(order)
}

func (os *OrderSide) remove(order *core.Order) bool {
	q, ok := os.byPrice[order.Price()]
	if !ok {
		return false
	}
	if !q.remove(order.ID()) {
		return false
	}

	// Empty levels never linger
	if q.Len() == 0 {
		delete(os.byPrice, q.price)
		os.prices.Delete(q)
	}
	return true
}

// MemoryBackend implements OrderBookBackend interface with in-memory storage.
// It is owned by a single book and is not safe for concurrent use.
type MemoryBackend struct {
	bids *OrderSide
	asks *OrderSide
}

// NewMemoryBackend creates new instance of MemoryBackend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		bids: newOrderSide(core.Buy),
		asks: newOrderSide(core.Sell),
	}
}

func (b *MemoryBackend) orderSide(side core.Side) *OrderSide {
	if side == core.Buy {
		return b.bids
	}
	return b.asks
}

// AppendToSide adds an order to the back of its price level
func (b *MemoryBackend) AppendToSide(side core.Side, order *core.Order) {
	b.orderSide(side).append(order)
}

// RemoveFromSide removes an order from the specified side
func (b *MemoryBackend) RemoveFromSide(side core.Side, order *core.Order) bool {
	return b.orderSide(side).remove(order)
}

// BestPrice returns the best price of a side
func (b *MemoryBackend) BestPrice(side core.Side) (uint32, bool) {
	q := b.orderSide(side).best()
	if q == nil {
		return 0, false
	}
	return q.price, true
}

// Front returns the oldest order at a price
func (b *MemoryBackend) Front(side core.Side, price uint32) *core.Order {
	q := b.orderSide(side).queue(price)
	if q == nil {
		return nil
	}
	return q.Front()
}

// GetOrder retrieves a resting order by side, price and ID
func (b *MemoryBackend) GetOrder(side core.Side, price uint32, orderID uint64) *core.Order {
	q := b.orderSide(side).queue(price)
	if q == nil {
		return nil
	}
	return q.get(orderID)
}

// Orders returns all orders at a given price level, oldest first
func (b *MemoryBackend) Orders(side core.Side, price uint32) []*core.Order {
	q := b.orderSide(side).queue(price)
	if q == nil {
		return []*core.Order{}
	}
	return q.Orders()
}

// Depth returns aggregated levels best first
func (b *MemoryBackend) Depth(side core.Side, limit int) []core.Level {
	os := b.orderSide(side)
	levels := make([]core.Level, 0, min(len(os.byPrice), max(limit, 0)))
	os.walk(func(q *OrderQueue) bool {
		levels = append(levels, core.Level{
			Price:  q.price,
			Size:   q.Size(),
			Orders: q.Len(),
		})
		return limit <= 0 || len(levels) < limit
	})
	return levels
}

// LevelCount returns the number of price levels on a side
func (b *MemoryBackend) LevelCount(side core.Side) int {
	return b.orderSide(side).prices.Len()
}

var _ core.OrderBookBackend = (*MemoryBackend)(nil)
