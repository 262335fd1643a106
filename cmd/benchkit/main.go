package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/studiowebux/benchkit/internal/cli"
	"github.com/studiowebux/benchkit/internal/echo"
	"github.com/studiowebux/benchkit/internal/report"
)

var (
	version = "0.1.0"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "benchkit",
	Short: "Benchkit - parameterized micro and macro benchmarks",
	Long: `Benchkit runs parameterized benchmark workloads (CPU, memory, concurrency,
file I/O, JSON, SQLite and HTTP/WebSocket) under a timing engine and reports
latency percentiles, throughput and allocations.

Examples:
  benchkit list                                # Show every workload and its parameters
  benchkit list sha                            # Workloads fuzzy-matching "sha"
  benchkit run cpu.sha256                      # Sweep all parameter combinations
  benchkit run ws.echo -P size=256 -P type=text
  benchkit run all -n 50 -w 5 -f markdown      # Everything, 50 iterations, markdown
  benchkit run -c suite.yaml                   # Workloads listed in a suite file
  benchkit run db.insert --query '[].{name: workload, p99: p99Ns}'
  benchkit run all --store benchkit.db && benchkit history
  benchkit serve --addr 127.0.0.1:8080 --metrics-addr 127.0.0.1:9090`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var listCmd = &cobra.Command{
	Use:   "list [pattern]",
	Short: "List workloads with their parameters and fixtures",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := cli.NewRegistry()
		if err != nil {
			return err
		}
		var pattern string
		if len(args) > 0 {
			pattern = args[0]
		}
		return cli.List(cmd.OutOrStdout(), reg, pattern)
	},
}

var runCmd = &cobra.Command{
	Use:   "run [workload...|all]",
	Short: "Run workloads and report their statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := cli.RunOptions{
			ConfigPath: flagConfig,
			Names:      args,
			Params:     flagParams,
			Filter:     flagFilter,
			Query:      flagQuery,
			SavePath:   flagSave,
			Copy:       flagCopy,
			Store:      flagStore,
			Verbose:    flagVerbose,
		}

		// Only flags given explicitly override the suite file
		flags := cmd.Flags()
		if flags.Changed("warmup") {
			opts.Overrides.Warmup = &flagWarmup
		}
		if flags.Changed("iterations") {
			opts.Overrides.Iterations = &flagIterations
		}
		if flags.Changed("timeout") {
			opts.Overrides.Timeout = &flagTimeout
		}
		if flags.Changed("format") {
			opts.Overrides.Format = &flagFormat
		}
		if flags.Changed("alloc") {
			opts.Overrides.TrackAllocations = &flagAlloc
		}

		return cli.Run(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

var historyCmd = &cobra.Command{
	Use:   "history [workload]",
	Short: "Show results stored with run --store",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := cli.HistoryOptions{
			Store: flagHistoryStore,
			Runs:  flagHistoryRuns,
			Limit: flagHistoryLimit,
			Clear: flagHistoryClear,
		}
		if len(args) > 0 {
			opts.Workload = args[0]
		}
		return cli.History(cmd.OutOrStdout(), opts)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the echo server standalone",
	Long: `Run the HTTP/WebSocket echo server until interrupted.

Endpoints:
  GET  /noop     200 with an empty body
  GET  /echo     WebSocket echo of every message
  POST /upload   multipart upload, responds {"size": <bytes>}`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.Serve(cmd.Context(), cli.ServeOptions{
			Addr:           flagAddr,
			MetricsAddr:    flagMetricsAddr,
			ReadLimit:      flagReadLimit,
			MaxUploadBytes: flagMaxUpload,
			Verbose:        flagVerbose,
		}, cmd.ErrOrStderr())
	},
}

// Flags for run
var (
	flagConfig     string
	flagWarmup     int
	flagIterations int
	flagTimeout    string
	flagParams     []string
	flagFormat     string
	flagAlloc      bool
	flagFilter     string
	flagQuery      string
	flagSave       string
	flagStore      string
	flagCopy       bool
	flagVerbose    bool
)

// Flags for history
var (
	flagHistoryStore string
	flagHistoryRuns  bool
	flagHistoryLimit int
	flagHistoryClear bool
)

// Flags for serve
var (
	flagAddr        string
	flagMetricsAddr string
	flagReadLimit   int64
	flagMaxUpload   int64
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable debug logging")

	runCmd.Flags().StringVarP(&flagConfig, "config", "c", "", "Suite file (.yaml, .yml or .json)")
	runCmd.Flags().IntVarP(&flagWarmup, "warmup", "w", 3, "Unmeasured iterations before measuring")
	runCmd.Flags().IntVarP(&flagIterations, "iterations", "n", 20, "Measured iterations per parameter combination")
	runCmd.Flags().StringVarP(&flagTimeout, "timeout", "t", "2m", "Timeout per run (Go duration, 0 disables)")
	runCmd.Flags().StringArrayVarP(&flagParams, "param", "P", []string{}, "Restrict an axis (name=value), can be repeated")
	runCmd.Flags().StringVarP(&flagFormat, "format", "f", report.FormatTable, "Output format ("+strings.Join(report.Formats(), "/")+")")
	runCmd.Flags().BoolVar(&flagAlloc, "alloc", false, "Track allocations per iteration")
	runCmd.Flags().StringVar(&flagFilter, "filter", "", "JMESPath filter over the JSON reports")
	runCmd.Flags().StringVarP(&flagQuery, "query", "q", "", "JMESPath query or $(command) over the JSON reports")
	runCmd.Flags().StringVarP(&flagSave, "save", "s", "", "Write the output to a file")
	runCmd.Flags().BoolVar(&flagCopy, "copy", false, "Also copy the output to the clipboard")
	runCmd.Flags().StringVar(&flagStore, "store", "", "Append reports to a SQLite history database")

	historyCmd.Flags().StringVar(&flagHistoryStore, "store", "benchkit.db", "SQLite history database")
	historyCmd.Flags().BoolVar(&flagHistoryRuns, "runs", false, "List individual runs instead of aggregates")
	historyCmd.Flags().IntVar(&flagHistoryLimit, "limit", 20, "Maximum runs to list with --runs")
	historyCmd.Flags().BoolVar(&flagHistoryClear, "clear", false, "Delete stored runs (only the named workload's, if given)")

	serveCmd.Flags().StringVar(&flagAddr, "addr", "127.0.0.1:8080", "Listen address for the echo endpoints")
	serveCmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "Listen address for Prometheus metrics (disabled when empty)")
	serveCmd.Flags().Int64Var(&flagReadLimit, "read-limit", echo.DefaultReadLimit, "Largest WebSocket message in bytes")
	serveCmd.Flags().Int64Var(&flagMaxUpload, "max-upload", echo.DefaultMaxUploadBytes, "Largest upload body in bytes")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(serveCmd)
}
