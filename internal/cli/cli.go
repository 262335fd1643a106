// Package cli implements the benchkit commands on top of the engine, the
// workload catalog and the report renderers.
package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/studiowebux/benchkit/internal/analytics"
	"github.com/studiowebux/benchkit/internal/config"
	"github.com/studiowebux/benchkit/internal/echo"
	"github.com/studiowebux/benchkit/internal/engine"
	"github.com/studiowebux/benchkit/internal/filter"
	"github.com/studiowebux/benchkit/internal/fixture"
	"github.com/studiowebux/benchkit/internal/report"
	"github.com/studiowebux/benchkit/internal/suite"
	"github.com/studiowebux/benchkit/internal/workload"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

// ErrRunFailed is returned when a run errored or a report recorded failures
var ErrRunFailed = errors.New("benchmark run failed")

// Overrides holds command-line values that replace suite file settings.
// A nil field keeps the file's value.
type Overrides struct {
	Warmup           *int
	Iterations       *int
	Timeout          *string
	Format           *string
	TrackAllocations *bool
}

// RunOptions contains options for the run command
type RunOptions struct {
	ConfigPath string
	Names      []string // workload names, or "all"
	Params     []string // name=value pairs from --param
	Overrides  Overrides
	Filter     string // JMESPath filter over the JSON reports
	Query      string // JMESPath query or $(bash command)
	SavePath   string
	Copy       bool   // also copy the output to the clipboard
	Store      string // history database; empty disables persistence
	Verbose    bool
}

// LoadSuite reads the suite file at path, or the defaults when path is
// empty, and applies the overrides
func LoadSuite(path string, o Overrides) (*config.Suite, error) {
	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if o.Warmup != nil {
		cfg.Warmup = *o.Warmup
	}
	if o.Iterations != nil {
		cfg.Iterations = *o.Iterations
	}
	if o.Timeout != nil {
		cfg.Timeout = *o.Timeout
	}
	if o.Format != nil {
		cfg.Format = *o.Format
	}
	if o.TrackAllocations != nil {
		cfg.TrackAllocations = *o.TrackAllocations
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewRegistry returns a registry holding the built-in catalog
func NewRegistry() (*workload.Registry, error) {
	reg := workload.NewRegistry()
	if err := suite.Register(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// Run executes the selected workloads and writes the rendered reports
func Run(ctx context.Context, opts RunOptions, stdout, stderr io.Writer) error {
	cfg, err := LoadSuite(opts.ConfigPath, opts.Overrides)
	if err != nil {
		return err
	}
	timeout, err := cfg.GetTimeout()
	if err != nil {
		return err
	}

	logger := NewLogger(stderr, opts.Verbose)
	defer logger.Sync()

	reg, err := NewRegistry()
	if err != nil {
		return err
	}

	plans, err := buildPlans(cfg, reg, opts.Names, opts.Params)
	if err != nil {
		return err
	}
	query, err := filter.Compile(opts.Filter, opts.Query)
	if err != nil {
		return err
	}

	fixtures := fixture.NewManager(logger)
	if _, err := suite.RegisterFixtures(fixtures, echoOptions(cfg.Server), logger); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := fixtures.Shutdown(shutdownCtx); err != nil {
			logger.Warn("fixture shutdown failed", zap.Error(err))
		}
	}()

	eng := engine.New(fixtures, logger)
	reports, runErr := eng.RunPlans(ctx, reg, plans, engine.Options{
		Warmup:           cfg.Warmup,
		Iterations:       cfg.Iterations,
		Timeout:          timeout,
		TrackAllocations: cfg.TrackAllocations,
	})

	if err := writeReports(ctx, stdout, stderr, cfg.Format, reports, query, opts); err != nil {
		return err
	}
	if opts.Store != "" && len(reports) > 0 {
		if err := storeReports(opts.Store, reports); err != nil {
			return err
		}
		logger.Info("reports stored", zap.String("store", opts.Store), zap.Int("reports", len(reports)))
	}

	if runErr != nil {
		return fmt.Errorf("%w: %w", ErrRunFailed, runErr)
	}
	if failed := failedReports(reports); len(failed) > 0 {
		return fmt.Errorf("%w: failures in %s", ErrRunFailed, strings.Join(failed, ", "))
	}
	return nil
}

// buildPlans picks the workloads to run. Names given on the command line
// win over the suite file; --param constraints apply to every plan and
// replace the file's values for the same axis.
func buildPlans(cfg *config.Suite, reg *workload.Registry, names []string, params []string) ([]engine.Plan, error) {
	sel, err := workload.ParseSelector(params)
	if err != nil {
		return nil, err
	}

	var plans []engine.Plan
	switch {
	case len(names) > 0:
		for _, name := range names {
			if name == engine.AllWorkloads {
				for _, n := range reg.Names() {
					plans = append(plans, engine.Plan{Name: n, Selector: sel})
				}
				continue
			}
			plans = append(plans, engine.Plan{Name: name, Selector: sel})
		}
	case len(cfg.Workloads) > 0:
		for _, w := range cfg.Workloads {
			wsel, err := workload.ParseSelector(w.Selector())
			if err != nil {
				return nil, fmt.Errorf("workload %s: %w", w.Name, err)
			}
			for axis, values := range sel {
				wsel[axis] = values
			}
			plans = append(plans, engine.Plan{Name: w.Name, Selector: wsel})
		}
	default:
		return nil, fmt.Errorf("no workloads selected (name them, list them in a suite file, or use %q)", engine.AllWorkloads)
	}

	return plans, nil
}

func echoOptions(s config.Server) echo.Options {
	return echo.Options{
		Host:           s.Host,
		Port:           s.Port,
		ReadLimit:      s.ReadLimit,
		MaxUploadBytes: s.MaxUploadBytes,
	}
}

// writeReports renders the reports, or the filtered JSON document when a
// filter or query is set, to the save path or stdout
func writeReports(ctx context.Context, stdout, stderr io.Writer, format string, reports []report.Report, query *filter.Query, opts RunOptions) error {
	out := stdout
	var buf bytes.Buffer
	if opts.SavePath != "" {
		out = &buf
	}

	var plain bytes.Buffer
	if !query.Empty() {
		// Filtered output is plain JSON, so the clipboard gets the same text
		result, err := query.Run(ctx, reports)
		if err != nil {
			return err
		}
		fmt.Fprintln(&plain, strings.TrimRight(result, "\n"))
		if _, err := out.Write(plain.Bytes()); err != nil {
			return err
		}
	} else {
		if err := renderReports(out, format, reports); err != nil {
			return err
		}
		if opts.Copy {
			if err := renderReports(&plain, format, reports); err != nil {
				return err
			}
		}
	}

	if opts.Copy {
		if err := clipboard.WriteAll(plain.String()); err != nil {
			fmt.Fprintf(stderr, "Warning: failed to copy to clipboard: %v\n", err)
		}
	}

	if opts.SavePath == "" {
		return nil
	}
	if err := os.WriteFile(opts.SavePath, buf.Bytes(), config.FilePermissions); err != nil {
		return fmt.Errorf("failed to save reports: %w", err)
	}
	fmt.Fprintf(stderr, "Reports saved to %s\n", opts.SavePath)
	return nil
}

func renderReports(w io.Writer, format string, reports []report.Report) error {
	if err := report.Render(w, format, reports); err != nil {
		return fmt.Errorf("failed to render reports: %w", err)
	}
	return nil
}

func storeReports(path string, reports []report.Report) error {
	store, err := analytics.NewManager(path)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Save(reports, time.Now())
}

func failedReports(reports []report.Report) []string {
	var failed []string
	for _, r := range reports {
		if r.Failures > 0 || r.TimedOut {
			failed = append(failed, r.Name())
		}
	}
	return failed
}
