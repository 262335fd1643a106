package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/studiowebux/benchkit/internal/analytics"
	"github.com/studiowebux/benchkit/internal/report"
)

const historyTimeLayout = "2006-01-02 15:04:05"

// HistoryOptions contains options for the history command
type HistoryOptions struct {
	Store    string
	Workload string // empty means every workload
	Runs     bool   // list individual runs instead of aggregates
	Limit    int
	Clear    bool
}

// History prints stored results, or clears them
func History(w io.Writer, opts HistoryOptions) error {
	store, err := analytics.NewManager(opts.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	if opts.Clear {
		if opts.Workload != "" {
			err = store.ClearForWorkload(opts.Workload)
		} else {
			err = store.Clear()
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "History cleared")
		return nil
	}

	if opts.Runs {
		return printRuns(w, store, opts)
	}
	return printStats(w, store, opts.Workload)
}

func printStats(w io.Writer, store *analytics.Manager, workload string) error {
	stats, err := store.GetStats(workload)
	if err != nil {
		return err
	}
	if len(stats) == 0 {
		fmt.Fprintln(w, "No stored runs")
		return nil
	}

	t := newTable("Workload", "Params", "Runs", "Failures", "Avg Mean", "Best P50", "Worst P99", "Last Run")
	for _, s := range stats {
		t.Row(
			s.Workload,
			orDash(s.Params),
			strconv.Itoa(s.Runs),
			strconv.Itoa(s.TotalFailures),
			report.FormatDuration(s.AvgMean),
			report.FormatDuration(s.BestP50),
			report.FormatDuration(s.WorstP99),
			s.LastRun.Format(historyTimeLayout),
		)
	}

	_, err = fmt.Fprintln(w, t.Render())
	return err
}

func printRuns(w io.Writer, store *analytics.Manager, opts HistoryOptions) error {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	var entries []analytics.Entry
	var err error
	if opts.Workload != "" {
		entries, err = store.LoadForWorkload(opts.Workload, limit)
	} else {
		entries, err = store.LoadAll(limit)
	}
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "No stored runs")
		return nil
	}

	t := newTable("Time", "Benchmark", "N", "Fail", "Mean", "P50", "P99", "Run ID")
	for _, e := range entries {
		r := e.Report
		t.Row(
			e.Timestamp.Format(historyTimeLayout),
			r.Name(),
			strconv.Itoa(r.Count),
			strconv.Itoa(r.Failures),
			report.FormatDuration(r.Mean),
			report.FormatDuration(r.P50),
			report.FormatDuration(r.P99),
			r.RunID,
		)
	}

	_, err = fmt.Fprintln(w, t.Render())
	return err
}
