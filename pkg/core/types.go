package core

import (
	"encoding/json"

	"github.com/erain9/lobmatch/pkg/messaging"
)

// Trade is a single execution between an incoming (taker) order and a resting (maker) order.
// Trades always print at the maker's price.
type Trade struct {
	TakerID   uint64
	MakerID   uint64
	TakerSide Side
	Price     uint32
	Size      uint32
}

// MarshalJSON implements Marshaler interface
func (t Trade) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		TakerID   uint64 `json:"takerId"`
		MakerID   uint64 `json:"makerId"`
		TakerSide string `json:"takerSide"`
		Price     uint32 `json:"price"`
		Size      uint32 `json:"size"`
	}{
		TakerID:   t.TakerID,
		MakerID:   t.MakerID,
		TakerSide: t.TakerSide.String(),
		Price:     t.Price,
		Size:      t.Size,
	})
}

// Done contains information about the order execution result
type Done struct {
	// Incoming order processed
	Order *Order
	// Size the order arrived with
	Quantity uint32
	// Trades executed, in execution order
	Trades []Trade
	// Resting orders that were fully filled and left the book
	Filled []uint64
	// Size matched against the book
	Processed uint32
	// Size left after crossing; rests on the book when Stored
	Left uint32
	// Whether the remainder was stored in the book
	Stored bool
}

// newDone creates a new Done object for the given order
func newDone(order *Order) *Done {
	return &Done{
		Order:    order,
		Quantity: order.Size(),
	}
}

// appendTrade records an execution against a maker
func (d *Done) appendTrade(maker *Order, qty uint32) {
	d.Trades = append(d.Trades, Trade{
		TakerID:   d.Order.ID(),
		MakerID:   maker.ID(),
		TakerSide: d.Order.Side(),
		Price:     maker.Price(),
		Size:      qty,
	})
	d.Processed += qty
	if maker.Size() == 0 {
		d.Filled = append(d.Filled, maker.ID())
	}
}

// Volume returns the total size traded
func (d *Done) Volume() uint64 {
	var v uint64
	for _, t := range d.Trades {
		v += uint64(t.Size)
	}
	return v
}

// ToTradeMessages converts the trades into messages for a trade sink
func (d *Done) ToTradeMessages(symbol string, timestamp uint64) []messaging.TradeMessage {
	if d == nil || len(d.Trades) == 0 {
		return nil
	}

	msgs := make([]messaging.TradeMessage, 0, len(d.Trades))
	for _, t := range d.Trades {
		msgs = append(msgs, messaging.TradeMessage{
			Symbol:    symbol,
			TakerID:   t.TakerID,
			MakerID:   t.MakerID,
			TakerSide: t.TakerSide.String(),
			Price:     t.Price,
			Size:      t.Size,
			Timestamp: timestamp,
		})
	}
	return msgs
}

// MarshalJSON implements json.Marshaler interface for Done
func (d *Done) MarshalJSON() ([]byte, error) {
	trades := d.Trades
	if trades == nil {
		trades = []Trade{}
	}
	filled := d.Filled
	if filled == nil {
		filled = []uint64{}
	}

	return json.Marshal(struct {
		Order     *Order   `json:"order"`
		Trades    []Trade  `json:"trades"`
		Filled    []uint64 `json:"filled"`
		Processed uint32   `json:"processed"`
		Left      uint32   `json:"left"`
		Stored    bool     `json:"stored"`
	}{
		Order:     d.Order,
		Trades:    trades,
		Filled:    filled,
		Processed: d.Processed,
		Left:      d.Left,
		Stored:    d.Stored,
	})
}
