package core

// EventKind identifies an order-lifecycle event
type EventKind int

// Event kinds
const (
	KindNew EventKind = iota
	KindCancel
	KindReplace
)

// String returns the kind as string
func (k EventKind) String() string {
	switch k {
	case KindNew:
		return "new"
	case KindCancel:
		return "cancel"
	case KindReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// Event is one order-lifecycle event in arrival order
type Event interface {
	Kind() EventKind
	Time() uint64
}

// NewOrderEvent adds a limit order to a symbol's book
type NewOrderEvent struct {
	Timestamp uint64
	ID        uint64
	Symbol    string
	Side      Side
	Price     uint32
	Size      uint32
}

// CancelEvent removes Size from a live order. It carries no symbol.
type CancelEvent struct {
	Timestamp uint64
	ID        uint64
	Size      uint32
}

// ReplaceEvent cancels OldID and enters NewID on the same side.
// Neither symbol nor side are carried; both are inherited from OldID.
type ReplaceEvent struct {
	Timestamp uint64
	OldID     uint64
	NewID     uint64
	Size      uint32
	Price     uint32
}

func (NewOrderEvent) Kind() EventKind { return KindNew }
func (CancelEvent) Kind() EventKind   { return KindCancel }
func (ReplaceEvent) Kind() EventKind  { return KindReplace }

func (e NewOrderEvent) Time() uint64 { return e.Timestamp }
func (e CancelEvent) Time() uint64   { return e.Timestamp }
func (e ReplaceEvent) Time() uint64  { return e.Timestamp }
