// Package scenario loads scripted event sequences from YAML and checks book
// state against the expectations written next to each step.
package scenario

import (
	"context"
	"embed"
	"fmt"
	"os"
	"reflect"

	"github.com/erain9/lobmatch/pkg/core"
	"github.com/erain9/lobmatch/pkg/engine"
	"github.com/erain9/lobmatch/pkg/feed"
	"gopkg.in/yaml.v3"
)

//go:embed scenarios/*.yaml
var builtin embed.FS

// Scenario is a named list of steps
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	// Symbol is used by new orders that do not name one
	Symbol string `yaml:"symbol"`
	Steps  []Step `yaml:"steps"`
}

// Step is one event with optional expectations checked after it is applied.
// Exactly one of New, Cancel and Replace must be set.
type Step struct {
	Note    string       `yaml:"note"`
	New     *NewOrder    `yaml:"new"`
	Cancel  *Cancel      `yaml:"cancel"`
	Replace *Replace     `yaml:"replace"`
	Expect  *Expectation `yaml:"expect"`
}

type NewOrder struct {
	ID     uint64 `yaml:"id"`
	Symbol string `yaml:"symbol"`
	Side   string `yaml:"side"`
	Price  uint32 `yaml:"price"`
	Size   uint32 `yaml:"size"`
}

type Cancel struct {
	ID   uint64 `yaml:"id"`
	Size uint32 `yaml:"size"`
}

type Replace struct {
	OldID uint64 `yaml:"old_id"`
	NewID uint64 `yaml:"new_id"`
	Size  uint32 `yaml:"size"`
	Price uint32 `yaml:"price"`
}

// Level is an expected aggregated price level
type Level struct {
	Price  uint32 `yaml:"price"`
	Size   uint64 `yaml:"size"`
	Orders int    `yaml:"orders"`
}

// Queue is the expected FIFO order of ids at one level
type Queue struct {
	Side  string   `yaml:"side"`
	Price uint32   `yaml:"price"`
	IDs   []uint64 `yaml:"ids"`
}

// Expectation holds checks against engine state. Nil fields are not checked.
type Expectation struct {
	Symbol     string   `yaml:"symbol"`
	Bids       *[]Level `yaml:"bids"`
	Asks       *[]Level `yaml:"asks"`
	Queue      *Queue   `yaml:"queue"`
	Trades     *uint64  `yaml:"trades"`
	Volume     *uint64  `yaml:"volume"`
	Live       *int     `yaml:"live"`
	Unresolved *uint64  `yaml:"unresolved"`
}

// Parse decodes a scenario and validates its steps
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}
	if _, err := s.Events(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Load reads a scenario file
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}
	return Parse(data)
}

// Builtin returns one of the scenarios shipped with the package
func Builtin(name string) (*Scenario, error) {
	data, err := builtin.ReadFile("scenarios/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("scenario %q: %w", name, err)
	}
	return Parse(data)
}

// Event converts step i into an engine event. Steps are timestamped by
// position.
func (s *Scenario) Event(i int) (core.Event, error) {
	st := s.Steps[i]
	ts := uint64(i + 1)

	set := 0
	for _, ok := range []bool{st.New != nil, st.Cancel != nil, st.Replace != nil} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return nil, fmt.Errorf("scenario %s: step %d: want exactly one of new, cancel, replace, got %d", s.Name, i+1, set)
	}

	switch {
	case st.New != nil:
		side, err := core.ParseSide(st.New.Side)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: step %d: %w", s.Name, i+1, err)
		}
		symbol := st.New.Symbol
		if symbol == "" {
			symbol = s.Symbol
		}
		if symbol == "" {
			return nil, fmt.Errorf("scenario %s: step %d: no symbol", s.Name, i+1)
		}
		return core.NewOrderEvent{
			Timestamp: ts,
			ID:        st.New.ID,
			Symbol:    symbol,
			Side:      side,
			Price:     st.New.Price,
			Size:      st.New.Size,
		}, nil
	case st.Cancel != nil:
		return core.CancelEvent{Timestamp: ts, ID: st.Cancel.ID, Size: st.Cancel.Size}, nil
	default:
		return core.ReplaceEvent{
			Timestamp: ts,
			OldID:     st.Replace.OldID,
			NewID:     st.Replace.NewID,
			Size:      st.Replace.Size,
			Price:     st.Replace.Price,
		}, nil
	}
}

// Events converts every step
func (s *Scenario) Events() ([]core.Event, error) {
	events := make([]core.Event, 0, len(s.Steps))
	for i := range s.Steps {
		ev, err := s.Event(i)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// Source returns the scenario's events as a feed
func (s *Scenario) Source() (feed.Source, error) {
	events, err := s.Events()
	if err != nil {
		return nil, err
	}
	return feed.NewSliceSource(events...), nil
}

// StepFunc is called after each step has been applied and checked
type StepFunc func(i int, st Step, ev core.Event)

// Run applies every step to me and checks its expectations. It stops at the
// first engine error or failed expectation.
func (s *Scenario) Run(ctx context.Context, me *engine.MatchingEngine, after StepFunc) error {
	for i, st := range s.Steps {
		ev, err := s.Event(i)
		if err != nil {
			return err
		}
		if err := me.Handle(ctx, ev); err != nil {
			return fmt.Errorf("scenario %s: step %d: %w", s.Name, i+1, err)
		}
		if st.Expect != nil {
			if err := s.check(me, st.Expect); err != nil {
				return fmt.Errorf("scenario %s: step %d (%s): %w", s.Name, i+1, st.Note, err)
			}
		}
		if after != nil {
			after(i, st, ev)
		}
	}
	return nil
}

func (s *Scenario) check(me *engine.MatchingEngine, exp *Expectation) error {
	symbol := exp.Symbol
	if symbol == "" {
		symbol = s.Symbol
	}

	book, ok := me.Book(symbol)
	if !ok && (exp.Bids != nil || exp.Asks != nil || exp.Queue != nil) {
		return fmt.Errorf("no book for %s", symbol)
	}

	if exp.Bids != nil {
		if err := checkLevels("bids", *exp.Bids, book.Depth(core.Buy, 0)); err != nil {
			return err
		}
	}
	if exp.Asks != nil {
		if err := checkLevels("asks", *exp.Asks, book.Depth(core.Sell, 0)); err != nil {
			return err
		}
	}
	if exp.Queue != nil {
		side, err := core.ParseSide(exp.Queue.Side)
		if err != nil {
			return err
		}
		var got []uint64
		for _, o := range book.Orders(side, exp.Queue.Price) {
			got = append(got, o.ID())
		}
		if !reflect.DeepEqual(got, exp.Queue.IDs) {
			return fmt.Errorf("queue %s@%d: want %v, got %v", side, exp.Queue.Price, exp.Queue.IDs, got)
		}
	}

	stats := me.Stats()
	if exp.Trades != nil && *exp.Trades != stats.Trades {
		return fmt.Errorf("trades: want %d, got %d", *exp.Trades, stats.Trades)
	}
	if exp.Volume != nil && *exp.Volume != stats.Volume {
		return fmt.Errorf("volume: want %d, got %d", *exp.Volume, stats.Volume)
	}
	if exp.Unresolved != nil && *exp.Unresolved != stats.Unresolved {
		return fmt.Errorf("unresolved: want %d, got %d", *exp.Unresolved, stats.Unresolved)
	}
	if exp.Live != nil && *exp.Live != me.LiveOrders() {
		return fmt.Errorf("live orders: want %d, got %d", *exp.Live, me.LiveOrders())
	}
	return nil
}

func checkLevels(name string, want []Level, got []core.Level) error {
	if len(want) != len(got) {
		return fmt.Errorf("%s: want %d levels %v, got %v", name, len(want), want, got)
	}
	for i := range want {
		w, g := want[i], got[i]
		if w.Price != g.Price || w.Size != g.Size || (w.Orders != 0 && w.Orders != g.Orders) {
			return fmt.Errorf("%s level %d: want %+v, got %+v", name, i, w, g)
		}
	}
	return nil
}
