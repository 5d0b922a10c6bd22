package core

// Level is a read-only view of one price level
type Level struct {
	Price  uint32
	Size   uint64
	Orders int
}

// OrderBookBackend defines the price-level storage behind an OrderBook.
// Implementations keep levels ordered by price and queues in arrival order,
// and must drop a level as soon as its queue becomes empty.
type OrderBookBackend interface {
	// Side operations
	AppendToSide(side Side, order *Order)
	RemoveFromSide(side Side, order *Order) bool

	// Best-price access: highest bid, lowest ask
	BestPrice(side Side) (uint32, bool)
	Front(side Side, price uint32) *Order

	// Lookups for cancel and read accessors
	GetOrder(side Side, price uint32, orderID uint64) *Order
	Orders(side Side, price uint32) []*Order
	Depth(side Side, limit int) []Level
	LevelCount(side Side) int
}
