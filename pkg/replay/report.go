package replay

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/erain9/lobmatch/pkg/engine"
	"github.com/fatih/color"
	"github.com/nikolaydubina/fpdecimal"
)

// Latency summarizes per-event match latency
type Latency struct {
	P50  time.Duration `json:"p50"`
	P99  time.Duration `json:"p99"`
	P999 time.Duration `json:"p999"`
	Max  time.Duration `json:"max"`
	Mean time.Duration `json:"mean"`
}

func summarize(h *hdrhistogram.Histogram) Latency {
	if h.TotalCount() == 0 {
		return Latency{}
	}
	return Latency{
		P50:  time.Duration(h.ValueAtQuantile(50)),
		P99:  time.Duration(h.ValueAtQuantile(99)),
		P999: time.Duration(h.ValueAtQuantile(99.9)),
		Max:  time.Duration(h.Max()),
		Mean: time.Duration(h.Mean()),
	}
}

// Report describes one replay run
type Report struct {
	RunID string `json:"runId"`
	// Events applied, including rejected ones
	Events uint64 `json:"events"`
	// Events the engine returned an error for in strict mode
	Rejected    uint64 `json:"rejected"`
	Interrupted bool   `json:"interrupted"`

	// Time spent reading events from the source
	Decode time.Duration `json:"decode"`
	// Time spent inside the engine
	Match time.Duration `json:"match"`
	Wall  time.Duration `json:"wall"`

	Latency        Latency      `json:"latency"`
	Stats          engine.Stats `json:"stats"`
	Symbols        int          `json:"symbols"`
	LiveOrders     int          `json:"liveOrders"`
	Snapshots      uint64       `json:"snapshots"`
	SnapshotErrors uint64       `json:"snapshotErrors"`
}

// Throughput returns events per second of match time
func (r *Report) Throughput() float64 {
	if r.Match <= 0 {
		return 0
	}
	return float64(r.Events) / r.Match.Seconds()
}

func seconds(d time.Duration) string {
	return fpdecimal.FromFloat(d.Seconds()).String() + "s"
}

func micros(d time.Duration) string {
	return fpdecimal.FromFloat(float64(d.Nanoseconds())/1e3).String() + "µs"
}

// Print writes the report as a table
func (r *Report) Print(w io.Writer) error {
	cyan := color.New(color.FgCyan).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	row := func(name string, value any) {
		fmt.Fprintf(tw, "%s\t%v\n", cyan(name), value)
	}

	row("run", r.RunID)
	if r.Interrupted {
		row("status", yellow("interrupted"))
	} else {
		row("status", green("complete"))
	}
	row("events", r.Events)
	row("  new", r.Stats.New)
	row("  cancel", r.Stats.Cancel)
	row("  replace", r.Stats.Replace)
	row("rejected", r.Rejected)
	row("unresolved", r.Stats.Unresolved)
	row("trades", r.Stats.Trades)
	row("volume", r.Stats.Volume)
	row("symbols", r.Symbols)
	row("live orders", r.LiveOrders)
	row("decode time", seconds(r.Decode))
	row("match time", seconds(r.Match))
	row("wall time", seconds(r.Wall))
	row("throughput", fpdecimal.FromFloat(r.Throughput()).String()+" events/s")
	row("latency p50", micros(r.Latency.P50))
	row("latency p99", micros(r.Latency.P99))
	row("latency p99.9", micros(r.Latency.P999))
	row("latency max", micros(r.Latency.Max))
	if r.Snapshots > 0 || r.SnapshotErrors > 0 {
		row("snapshots", fmt.Sprintf("%d (%d failed)", r.Snapshots, r.SnapshotErrors))
	}

	return tw.Flush()
}
