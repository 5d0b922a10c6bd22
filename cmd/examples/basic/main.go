package main

import (
	"context"
	"fmt"
	"os"

	"github.com/erain9/lobmatch/pkg/core"
	"github.com/erain9/lobmatch/pkg/engine"
	"github.com/erain9/lobmatch/pkg/feed/scenario"
	"github.com/fatih/color"
)

func main() {
	s, err := scenario.Builtin("walkthrough")
	if err != nil {
		fmt.Fprintf(os.Stderr, "load scenario: %v\n", err)
		os.Exit(1)
	}

	bold := color.New(color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()

	me := engine.New()
	fmt.Printf("%s: %s\n", bold(s.Name), s.Description)

	err = s.Run(context.Background(), me, func(i int, st scenario.Step, ev core.Event) {
		fmt.Printf("\n%s %s %s\n", bold(fmt.Sprintf("step %d", i+1)), describe(ev), st.Note)

		book, ok := me.Book(s.Symbol)
		if ok {
			fmt.Println(book)
		}
		stats := me.Stats()
		fmt.Printf("trades: %d, volume: %d, live: %d, unresolved: %d\n",
			stats.Trades, stats.Volume, me.LiveOrders(), stats.Unresolved)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\n%s\n", green("all expectations met"))
}

func describe(ev core.Event) string {
	switch e := ev.(type) {
	case core.NewOrderEvent:
		return fmt.Sprintf("new #%d %s %d@%d", e.ID, e.Side, e.Size, e.Price)
	case core.CancelEvent:
		return fmt.Sprintf("cancel #%d size %d", e.ID, e.Size)
	case core.ReplaceEvent:
		return fmt.Sprintf("replace #%d -> #%d %d@%d", e.OldID, e.NewID, e.Size, e.Price)
	default:
		return ev.Kind().String()
	}
}
