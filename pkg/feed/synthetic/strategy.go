// Package synthetic generates order flow from layered market-maker quotes
// around a randomly walking mid price.
package synthetic

import (
	"github.com/erain9/lobmatch/pkg/core"
)

// Quote is one resting order of a quote ladder
type Quote struct {
	Side  core.Side
	Level int
	Price uint32
	Size  uint32
}

// LayeredQuoting quotes Levels bids and asks symmetrically around the mid:
// the first level sits HalfSpread ticks away and each further level Step
// ticks beyond the previous one.
type LayeredQuoting struct {
	Levels     int
	HalfSpread uint32
	Step       uint32
	Size       uint32
}

// Quotes returns the ladder for mid, bid and ask alternating by level.
// Bids that would fall below one tick are omitted.
func (s LayeredQuoting) Quotes(mid uint32) []Quote {
	quotes := make([]Quote, 0, s.Levels*2)
	for i := 0; i < s.Levels; i++ {
		offset := s.HalfSpread + uint32(i)*s.Step
		if mid > offset {
			quotes = append(quotes, Quote{Side: core.Buy, Level: i, Price: mid - offset, Size: s.Size})
		}
		quotes = append(quotes, Quote{Side: core.Sell, Level: i, Price: mid + offset, Size: s.Size})
	}
	return quotes
}

// Width returns the distance from the mid to the outermost level
func (s LayeredQuoting) Width() uint32 {
	if s.Levels == 0 {
		return 0
	}
	return s.HalfSpread + uint32(s.Levels-1)*s.Step
}
