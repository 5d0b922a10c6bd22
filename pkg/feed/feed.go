// Package feed provides event sources for the matching engine.
package feed

import (
	"io"

	"github.com/erain9/lobmatch/pkg/core"
)

// Source yields events in arrival order. Next returns io.EOF after the last
// event.
type Source interface {
	Next() (core.Event, error)
}

// SliceSource replays a fixed list of events
type SliceSource struct {
	events []core.Event
	pos    int
}

// NewSliceSource creates a source over events
func NewSliceSource(events ...core.Event) *SliceSource {
	return &SliceSource{events: events}
}

// Next returns the next event
func (s *SliceSource) Next() (core.Event, error) {
	if s.pos >= len(s.events) {
		return nil, io.EOF
	}
	ev := s.events[s.pos]
	s.pos++
	return ev, nil
}

type limited struct {
	src  Source
	left int
}

// Limit stops src after n events. A non-positive n means no limit.
func Limit(src Source, n int) Source {
	if n <= 0 {
		return src
	}
	return &limited{src: src, left: n}
}

func (l *limited) Next() (core.Event, error) {
	if l.left <= 0 {
		return nil, io.EOF
	}
	ev, err := l.src.Next()
	if err != nil {
		return nil, err
	}
	l.left--
	return ev, nil
}

// Collect drains src into a slice
func Collect(src Source) ([]core.Event, error) {
	var events []core.Event
	for {
		ev, err := src.Next()
		if err == io.EOF {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
}
