package queue

import (
	"fmt"

	"github.com/erain9/lobmatch/pkg/messaging"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the trade record on the wire
const (
	fieldSymbol    protowire.Number = 1
	fieldTakerID   protowire.Number = 2
	fieldMakerID   protowire.Number = 3
	fieldTakerSide protowire.Number = 4
	fieldPrice     protowire.Number = 5
	fieldSize      protowire.Number = 6
	fieldTimestamp protowire.Number = 7
)

// EncodeTrade serializes a trade in protobuf wire format
func EncodeTrade(t messaging.TradeMessage) []byte {
	b := make([]byte, 0, 48+len(t.Symbol))
	b = protowire.AppendTag(b, fieldSymbol, protowire.BytesType)
	b = protowire.AppendString(b, t.Symbol)
	b = protowire.AppendTag(b, fieldTakerID, protowire.VarintType)
	b = protowire.AppendVarint(b, t.TakerID)
	b = protowire.AppendTag(b, fieldMakerID, protowire.VarintType)
	b = protowire.AppendVarint(b, t.MakerID)
	b = protowire.AppendTag(b, fieldTakerSide, protowire.BytesType)
	b = protowire.AppendString(b, t.TakerSide)
	b = protowire.AppendTag(b, fieldPrice, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(t.Price))
	b = protowire.AppendTag(b, fieldSize, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(t.Size))
	b = protowire.AppendTag(b, fieldTimestamp, protowire.VarintType)
	b = protowire.AppendVarint(b, t.Timestamp)
	return b
}

// DecodeTrade parses a trade produced by EncodeTrade. Unknown fields are skipped.
func DecodeTrade(b []byte) (messaging.TradeMessage, error) {
	var t messaging.TradeMessage
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return t, fmt.Errorf("decode trade tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case typ == protowire.BytesType && (num == fieldSymbol || num == fieldTakerSide):
			s, n := protowire.ConsumeString(b)
			if n < 0 {
				return t, fmt.Errorf("decode trade field %d: %w", num, protowire.ParseError(n))
			}
			if num == fieldSymbol {
				t.Symbol = s
			} else {
				t.TakerSide = s
			}
			b = b[n:]
		case typ == protowire.VarintType && num >= fieldTakerID && num <= fieldTimestamp:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return t, fmt.Errorf("decode trade field %d: %w", num, protowire.ParseError(n))
			}
			switch num {
			case fieldTakerID:
				t.TakerID = v
			case fieldMakerID:
				t.MakerID = v
			case fieldPrice:
				t.Price = uint32(v)
			case fieldSize:
				t.Size = uint32(v)
			case fieldTimestamp:
				t.Timestamp = v
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return t, fmt.Errorf("decode trade field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return t, nil
}
