package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-isatty"
	"gopkg.in/yaml.v3"
)

// Output formats accepted by Render
const (
	FormatTable    = "table"
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
	FormatYAML     = "yaml"
)

const highlightStyle = "monokai"

// Formats lists the supported output formats
func Formats() []string {
	return []string{FormatTable, FormatMarkdown, FormatJSON, FormatYAML}
}

// ValidFormat reports whether f is a supported output format
func ValidFormat(f string) bool {
	switch f {
	case FormatTable, FormatMarkdown, FormatJSON, FormatYAML:
		return true
	}
	return false
}

// Render writes reports to w in the given format
func Render(w io.Writer, format string, reports []Report) error {
	switch format {
	case FormatTable:
		return renderTable(w, reports, isTerminal(w))
	case FormatMarkdown:
		return renderMarkdown(w, reports)
	case FormatJSON:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(nonNil(reports)); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		return writeSource(w, buf.String(), "json")
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(nonNil(reports)); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return writeSource(w, buf.String(), "yaml")
	default:
		return fmt.Errorf("unknown report format %q (want one of %s)", format, strings.Join(Formats(), ", "))
	}
}

// writeSource writes an encoded document, syntax highlighted on a terminal
func writeSource(w io.Writer, src, lexer string) error {
	if isTerminal(w) {
		return quick.Highlight(w, src, lexer, "terminal256", highlightStyle)
	}
	_, err := io.WriteString(w, src)
	return err
}

func nonNil(reports []Report) []Report {
	if reports == nil {
		return []Report{}
	}
	return reports
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func hasAlloc(reports []Report) bool {
	for _, r := range reports {
		if r.Alloc != nil {
			return true
		}
	}
	return false
}

func headers(withAlloc bool) []string {
	h := []string{"Workload", "Params", "N", "OK", "Fail", "Mean", "StdDev", "P50", "P95", "P99", "Min", "Max", "Ops/s"}
	if withAlloc {
		h = append(h, "B/op", "Allocs/op")
	}
	return append(h, "Notes")
}

func row(r Report, withAlloc bool) []string {
	cols := []string{
		r.Workload,
		orDash(r.Params),
		strconv.Itoa(r.Count),
		strconv.Itoa(r.Successes),
		strconv.Itoa(r.Failures),
		FormatDuration(r.Mean),
		FormatDuration(r.StdDev),
		FormatDuration(r.P50),
		FormatDuration(r.P95),
		FormatDuration(r.P99),
		FormatDuration(r.Min),
		FormatDuration(r.Max),
		formatRate(r.Throughput),
	}
	if withAlloc {
		if r.Alloc != nil {
			cols = append(cols, formatBytes(uint64(r.Alloc.BytesPerOp)), fmt.Sprintf("%.1f", r.Alloc.AllocsPerOp))
		} else {
			cols = append(cols, "-", "-")
		}
	}
	return append(cols, notes(r))
}

func notes(r Report) string {
	var parts []string
	if r.TimedOut {
		parts = append(parts, "timed out")
	}
	if len(r.Errors) > 0 {
		parts = append(parts, r.Errors[0])
	}
	return strings.Join(parts, "; ")
}

func renderTable(w io.Writer, reports []Report, colour bool) error {
	withAlloc := hasAlloc(reports)

	var (
		header = lipgloss.NewStyle().Bold(true).Padding(0, 1)
		cell   = lipgloss.NewStyle().Padding(0, 1)
		failed = cell
	)
	if colour {
		header = header.Foreground(lipgloss.Color("12"))
		failed = failed.Foreground(lipgloss.Color("9"))
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers(withAlloc)...).
		StyleFunc(func(r, c int) lipgloss.Style {
			if r == table.HeaderRow {
				return header
			}
			if r < len(reports) && (reports[r].Failures > 0 || reports[r].TimedOut) {
				return failed
			}
			return cell
		})

	for _, r := range reports {
		t.Row(row(r, withAlloc)...)
	}

	_, err := fmt.Fprintln(w, t.Render())
	return err
}

func renderMarkdown(w io.Writer, reports []Report) error {
	withAlloc := hasAlloc(reports)
	h := headers(withAlloc)

	fmt.Fprintln(w, "## Benchmark Results")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "| "+strings.Join(h, " | ")+" |")

	sep := make([]string, len(h))
	for i := range sep {
		sep[i] = "---"
	}
	fmt.Fprintln(w, "|"+strings.Join(sep, "|")+"|")

	for _, r := range reports {
		cols := row(r, withAlloc)
		for i, c := range cols {
			cols[i] = strings.ReplaceAll(c, "|", `\|`)
		}
		fmt.Fprintln(w, "| "+strings.Join(cols, " | ")+" |")
	}

	// Full error lists
	for _, r := range reports {
		if len(r.Errors) == 0 {
			continue
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "### Errors: %s\n\n", r.Name())
		for _, e := range r.Errors {
			fmt.Fprintf(w, "- %s\n", e)
		}
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// FormatDuration renders d with a unit suited to its magnitude
func FormatDuration(d time.Duration) string {
	switch {
	case d == 0:
		return "-"
	case d < time.Microsecond:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	case d < time.Millisecond:
		return fmt.Sprintf("%.2fµs", float64(d)/float64(time.Microsecond))
	case d < time.Second:
		return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}

func formatRate(opsPerSec float64) string {
	switch {
	case opsPerSec == 0:
		return "-"
	case opsPerSec >= 1e6:
		return fmt.Sprintf("%.2fM", opsPerSec/1e6)
	case opsPerSec >= 1e3:
		return fmt.Sprintf("%.2fk", opsPerSec/1e3)
	default:
		return fmt.Sprintf("%.2f", opsPerSec)
	}
}

func formatBytes(b uint64) string {
	if b == 0 {
		return "0 B"
	}

	units := []string{"B", "KB", "MB", "GB", "TB"}
	size := float64(b)
	unit := 0

	for size >= 1024 && unit < len(units)-1 {
		size /= 1024
		unit++
	}

	formatted := fmt.Sprintf("%.1f", size)
	formatted = strings.TrimRight(formatted, "0")
	formatted = strings.TrimRight(formatted, ".")

	return formatted + " " + units[unit]
}
