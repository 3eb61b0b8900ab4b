package sim

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	gometrics "github.com/rcrowley/go-metrics"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/llxisdsh/weakc"
)

// OpStats summarizes the latency of one timed operation.
type OpStats struct {
	Name  string
	Count int64
	Mean  time.Duration
	P99   time.Duration
	Max   time.Duration
}

// Report is the outcome of a Run.
type Report struct {
	Ticks   int
	Elapsed time.Duration

	Spawned   int
	Destroyed int
	Dropped   int
	Restored  int
	Reclaimed int

	Groups  int
	Blocked int
	Live    int // live members over all groups
	Dead    int // dead members not yet swept
	Weights weakc.MapStats

	Sweeps        int64
	MeanReclaimed float64
	MaxReclaimed  int64

	Ops []OpStats
}

func (w *World) report(ticks int, elapsed time.Duration) Report {
	r := Report{
		Ticks:     ticks,
		Elapsed:   elapsed,
		Spawned:   w.spawned,
		Destroyed: w.destroyed,
		Dropped:   w.dropped,
		Restored:  w.restored,
		Reclaimed: w.reclaimed,
		Groups:    w.groups.Len(),
		Blocked:   len(w.blocked),
		Weights:   w.weights.Stats(),
	}
	for _, s := range w.groups.Stats() {
		r.Live += s.Alive
		r.Dead += s.Dead
	}
	w.metrics.Each(func(name string, i interface{}) {
		switch m := i.(type) {
		case gometrics.Timer:
			s := m.Snapshot()
			r.Ops = append(r.Ops, OpStats{
				Name:  name,
				Count: s.Count(),
				Mean:  time.Duration(s.Mean()),
				P99:   time.Duration(s.Percentile(0.99)),
				Max:   time.Duration(s.Max()),
			})
		case gometrics.Histogram:
			s := m.Snapshot()
			r.Sweeps = s.Count()
			r.MeanReclaimed = s.Mean()
			r.MaxReclaimed = s.Max()
		}
	})
	slices.SortFunc(r.Ops, func(a, b OpStats) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return r
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)
	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB")).
			Width(18)
	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))
	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			MarginTop(1)
)

// Render writes r to out. Numbers are grouped for English. When styled is
// false no ANSI sequences are written.
func (r Report) Render(out io.Writer, styled bool) error {
	p := message.NewPrinter(language.English)
	var b strings.Builder

	style := func(s lipgloss.Style, text string) string {
		if !styled {
			return text
		}
		return s.Render(text)
	}
	row := func(label, value string) {
		if styled {
			b.WriteString(labelStyle.Render(label) + valueStyle.Render(value) + "\n")
			return
		}
		fmt.Fprintf(&b, "%-18s%s\n", label, value)
	}
	section := func(name string) {
		b.WriteString(style(sectionStyle, name) + "\n")
	}

	b.WriteString(style(titleStyle, "weakc simulation") + "\n")
	row("ticks", p.Sprintf("%d", r.Ticks))
	row("elapsed", r.Elapsed.Round(time.Microsecond).String())

	section("objects")
	row("spawned", p.Sprintf("%d", r.Spawned))
	row("destroyed", p.Sprintf("%d", r.Destroyed))
	row("dropped", p.Sprintf("%d", r.Dropped))
	row("live", p.Sprintf("%d", r.Live))
	row("dead unswept", p.Sprintf("%d", r.Dead))

	section("collections")
	row("groups", p.Sprintf("%d (%d blocked)", r.Groups, r.Blocked))
	row("saved weights", p.Sprintf("%d linked, %d dead, cap %d",
		r.Weights.Linked, r.Weights.Dead, r.Weights.Capacity))
	row("restored", p.Sprintf("%d", r.Restored))
	row("reclaimed", p.Sprintf("%d in %d sweeps (mean %.1f, max %d)",
		r.Reclaimed, r.Sweeps, r.MeanReclaimed, r.MaxReclaimed))

	if len(r.Ops) > 0 {
		section("latency")
		for _, op := range r.Ops {
			row(op.Name, p.Sprintf("n=%d mean=%v p99=%v max=%v",
				op.Count, op.Mean, op.P99, op.Max))
		}
	}

	_, err := io.WriteString(out, b.String())
	return err
}
