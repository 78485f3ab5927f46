package batch

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	// barWidth is the fixed width of the progress bar in cells.
	barWidth = 30

	// maxListedFailures caps the failure list in the summary.
	maxListedFailures = 10

	clearLine = "\r\033[K"
)

//nolint:gochecknoglobals // Read-only styles.
var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
	labelStyle   = lipgloss.NewStyle().Faint(true)
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	failureStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

// Reporter renders the live progress line, the completion banner and the final
// summary. Interactive reporters redraw one line in place; others print a new
// line only when the done count changes. A Reporter is used from one goroutine.
type Reporter struct {
	out         io.Writer
	interactive bool
	bar         progress.Model
	printer     *message.Printer

	rendered bool
	lastDone int
}

// NewReporter writes to w. It is interactive when w is a terminal.
func NewReporter(w io.Writer) *Reporter {
	return &Reporter{
		out:         w,
		interactive: isTerminal(w),
		bar:         progress.New(progress.WithDefaultGradient(), progress.WithWidth(barWidth), progress.WithoutPercentage()),
		printer:     message.NewPrinter(language.English),
	}
}

// WithInteractive overrides terminal detection.
func (r *Reporter) WithInteractive(interactive bool) *Reporter {
	r.interactive = interactive
	return r
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// ProgressLine formats s as a single status line.
func (r *Reporter) ProgressLine(s Snapshot, active int) string {
	bar := asciiBar(s.Percent, barWidth)
	if r.interactive {
		bar = r.bar.ViewAs(s.Percent / percentMultiplier)
	}
	return r.printer.Sprintf("%s %5.1f%% | %d/%d done | %d failed | %d active | %.1f/s | ETA %s",
		bar, s.Percent, s.Done, s.Total, s.Failed, active, s.Throughput, formatETA(s))
}

// RenderProgress draws the progress line for one tick.
func (r *Reporter) RenderProgress(s Snapshot, active int) {
	if r.interactive {
		_, _ = fmt.Fprint(r.out, clearLine+r.ProgressLine(s, active))
		r.rendered = true
		return
	}
	if r.rendered && s.Done == r.lastDone {
		return
	}
	r.rendered = true
	r.lastDone = s.Done
	_, _ = fmt.Fprintln(r.out, r.ProgressLine(s, active))
}

// RenderFinal draws the last progress line and terminates it.
func (r *Reporter) RenderFinal(s Snapshot, active int) {
	r.RenderProgress(s, active)
	if r.interactive {
		_, _ = fmt.Fprintln(r.out)
	}
}

// RenderBanner prints the completion banner.
func (r *Reporter) RenderBanner(s Snapshot) {
	var msg string
	switch {
	case s.Total == 0:
		msg = "No report jobs to run"
	case s.Failed == 0:
		msg = r.printer.Sprintf("All %d report jobs finished", s.Total)
	default:
		msg = r.printer.Sprintf("All %d report jobs finished, %d failed", s.Total, s.Failed)
	}

	style := successStyle
	if s.Failed > 0 {
		style = failureStyle
	}
	_, _ = fmt.Fprintln(r.out, r.style(style, msg))
}

// RenderSummary prints the final summary.
func (r *Reporter) RenderSummary(sum *Summary) {
	var b strings.Builder
	p := r.printer

	b.WriteString(r.style(headerStyle, "REPORT SUMMARY"))
	b.WriteString("\n")

	row := func(label, value string) {
		b.WriteString("  ")
		b.WriteString(r.style(labelStyle, fmt.Sprintf("%-13s", label+":")))
		b.WriteString(" ")
		b.WriteString(value)
		b.WriteString("\n")
	}

	failedValue := p.Sprintf("%d", sum.Failed)
	if sum.Failed > 0 {
		failedValue = r.style(failureStyle, failedValue)
	}

	row("Total tasks", p.Sprintf("%d", sum.Total))
	row("Succeeded", r.style(successStyle, p.Sprintf("%d", sum.Succeeded)))
	row("Failed", failedValue)
	row("Workers", p.Sprintf("%d", sum.Workers))
	row("Wall time", formatDuration(sum.WallTime))
	row("Average job", formatDuration(sum.AverageJob))
	row("Speedup", p.Sprintf("%.2fx", sum.Speedup))
	row("Throughput", p.Sprintf("%.2f items/s", sum.Throughput))
	row("Output", sum.OutputDir)
	row("Output size", p.Sprintf("%d bytes (%s)", sum.OutputBytes, humanBytes(sum.OutputBytes)))
	if sum.ForcedShutdown {
		row("Shutdown", r.style(failureStyle, "forced, unfinished jobs abandoned"))
	}

	if failures := sum.Failures(); len(failures) > 0 {
		b.WriteString("\n")
		b.WriteString(r.style(failureStyle, "Failed items"))
		b.WriteString("\n")
		for i, rec := range failures {
			if i == maxListedFailures {
				b.WriteString(p.Sprintf("  ... and %d more\n", len(failures)-maxListedFailures))
				break
			}
			b.WriteString(fmt.Sprintf("  - %s: %s\n", rec.ItemID, rec.Detail))
		}
	}

	_, _ = fmt.Fprint(r.out, b.String())
}

func (r *Reporter) style(s lipgloss.Style, text string) string {
	if !r.interactive {
		return text
	}
	return s.Render(text)
}

// asciiBar renders percent (0-100) as a fixed-width bar such as "[=====>    ]".
func asciiBar(percent float64, width int) string {
	percent = min(max(percent, 0), percentMultiplier)
	filled := int(percent / percentMultiplier * float64(width))

	var b strings.Builder
	b.Grow(width + 2)
	b.WriteByte('[')
	for i := range width {
		switch {
		case i < filled:
			b.WriteByte('=')
		case i == filled:
			b.WriteByte('>')
		default:
			b.WriteByte(' ')
		}
	}
	b.WriteByte(']')
	return b.String()
}

func formatETA(s Snapshot) string {
	if s.Done == 0 && s.Total > 0 {
		return "--"
	}
	return formatDuration(s.EstimatedRemaining)
}

func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Second:
		return d.Round(100 * time.Millisecond).String()
	case d >= time.Millisecond:
		return d.Round(time.Millisecond).String()
	default:
		return d.String()
	}
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// sortedFailures returns failed records ordered by item ID.
func sortedFailures(records map[string]JobRecord) []JobRecord {
	var out []JobRecord
	for _, rec := range records {
		if rec.Status == StatusFailed {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}
