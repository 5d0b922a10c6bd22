package core

import (
	"encoding/json"
	"fmt"
)

// Side represents buy or sell side of the order
type Side int

// Order sides
const (
	Sell Side = iota
	Buy
)

// String returns side as string
func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Opposite returns the side an order of this side trades against
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// ParseSide converts "buy"/"sell" (any case, or B/S) into a Side
func ParseSide(s string) (Side, error) {
	switch s {
	case "buy", "BUY", "Buy", "b", "B":
		return Buy, nil
	case "sell", "SELL", "Sell", "s", "S":
		return Sell, nil
	default:
		return Sell, fmt.Errorf("%w: side %q", ErrInvalidArgument, s)
	}
}

// Order stores information about a resting or incoming limit order.
// Only the remaining size changes after construction.
type Order struct {
	id          uint64
	side        Side
	price       uint32
	size        uint32
	originalQty uint32
	timestamp   uint64
}

// NewOrder creates a limit order. Validation of the event stream is the
// source's concern, so the constructor never fails.
func NewOrder(id uint64, side Side, price, size uint32, timestamp uint64) *Order {
	return &Order{
		id:          id,
		side:        side,
		price:       price,
		size:        size,
		originalQty: size,
		timestamp:   timestamp,
	}
}

// ID returns the order id
func (o *Order) ID() uint64 {
	return o.id
}

// Side returns side of the Order
func (o *Order) Side() Side {
	return o.side
}

// Price returns the limit price in ticks
func (o *Order) Price() uint32 {
	return o.price
}

// Size returns the remaining size
func (o *Order) Size() uint32 {
	return o.size
}

// OriginalQty returns the size the order arrived with
func (o *Order) OriginalQty() uint32 {
	return o.originalQty
}

// Timestamp returns the arrival timestamp
func (o *Order) Timestamp() uint64 {
	return o.timestamp
}

// DecreaseSize reduces the remaining size, never below zero
func (o *Order) DecreaseSize(qty uint32) {
	if qty >= o.size {
		o.size = 0
		return
	}
	o.size -= qty
}

// crosses reports whether the order's limit reaches a resting price on the opposite side
func (o *Order) crosses(price uint32) bool {
	if o.side == Buy {
		return price <= o.price
	}
	return price >= o.price
}

// MarshalJSON implements custom JSON marshaling for Order
func (o *Order) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID          uint64 `json:"id"`
		Side        string `json:"side"`
		Price       uint32 `json:"price"`
		Size        uint32 `json:"size"`
		OriginalQty uint32 `json:"originalQty"`
		Timestamp   uint64 `json:"timestamp"`
	}{
		ID:          o.id,
		Side:        o.side.String(),
		Price:       o.price,
		Size:        o.size,
		OriginalQty: o.originalQty,
		Timestamp:   o.timestamp,
	})
}

// String implements Stringer interface
func (o *Order) String() string {
	j, _ := o.MarshalJSON()
	return string(j)
}
