package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/studiowebux/benchkit/internal/workload"
)

// List writes one row per registered workload with its axes and fixtures.
// A non-empty pattern keeps only the names that fuzzy-match it.
func List(w io.Writer, reg *workload.Registry, pattern string) error {
	names := reg.Search(pattern)
	if len(names) == 0 {
		return fmt.Errorf("no workload matches %q", pattern)
	}

	t := newTable("Workload", "Parameters", "Fixtures", "Description")

	for _, name := range names {
		d, err := reg.Resolve(name)
		if err != nil {
			return err
		}
		t.Row(d.Name, formatAxes(d.Axes), orDash(strings.Join(d.Fixtures, ", ")), d.Description)
	}

	_, err := fmt.Fprintln(w, t.Render())
	return err
}

// newTable returns a bordered table with bold headers
func newTable(headers ...string) *table.Table {
	header := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)

	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		StyleFunc(func(r, c int) lipgloss.Style {
			if r == table.HeaderRow {
				return header
			}
			return cell
		})
}

func formatAxes(axes []workload.Axis) string {
	parts := make([]string, len(axes))
	for i, a := range axes {
		values := make([]string, len(a.Values))
		for j, v := range a.Values {
			values[j] = fmt.Sprint(v)
		}
		parts[i] = a.Name + "=" + strings.Join(values, "|")
	}
	return orDash(strings.Join(parts, " "))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
