package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/therealutkarshpriyadarshi/logscope/internal/analytics"
	"github.com/therealutkarshpriyadarshi/logscope/internal/analyzer"
	"github.com/therealutkarshpriyadarshi/logscope/internal/apperr"
	"github.com/therealutkarshpriyadarshi/logscope/internal/parser"
	"github.com/therealutkarshpriyadarshi/logscope/internal/profiling"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <source>",
	Short: "Parse and analyze an access log",
	Long: `Parse an access log and print traffic, client and security statistics.

The source may be a local path, an s3://bucket/key location, an http(s) URL,
or the name of a file on the upload server when source.http.base_url is set.`,
	Example: `  logscope analyze /var/log/nginx/access.log
  logscope analyze s3://logs/2024/03/access.log --geo
  logscope analyze access.log --status 5 --start 2024-03-01T00:00:00Z --json
  logscope analyze access.log --parallel 4 --export --history`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	addAnalysisFlags(analyzeCmd)
	analyzeCmd.Flags().String("ip", "", "only count these client IPs (comma separated)")
	analyzeCmd.Flags().String("method", "", "only count this HTTP method")
	analyzeCmd.Flags().String("status", "", "only count this status class, e.g. 4 or 4xx")
	analyzeCmd.Flags().String("user-agent", "", "only count user agents containing this text")
	analyzeCmd.Flags().String("start", "", "only count requests at or after this RFC3339 time")
	analyzeCmd.Flags().String("end", "", "only count requests at or before this RFC3339 time")
	analyzeCmd.Flags().Bool("progress", false, "report parse progress on stderr")
	analyzeCmd.Flags().String("cpuprofile", "", "write a CPU profile of the analysis to this file")
	analyzeCmd.Flags().String("memprofile", "", "write a heap profile after the analysis to this file")

	rootCmd.AddCommand(analyzeCmd)
}

// addAnalysisFlags adds the flags shared by analyze and watch
func addAnalysisFlags(cmd *cobra.Command) {
	cmd.Flags().Int("parallel", 0, "parse with this many workers (default: parser.workers)")
	cmd.Flags().Bool("geo", false, "resolve client countries through the geolocation service")
	cmd.Flags().Bool("export", false, "export records and malformed lines to the configured sink")
	cmd.Flags().Bool("history", false, "record the run in the history database")
	cmd.Flags().Int("ddos-threshold", analytics.DefaultDDoSThreshold, "requests per minute that count as a flood")
	cmd.Flags().Duration("ddos-window", analytics.DefaultDDoSWindow, "flood detection window")
	cmd.Flags().String("ddos-ip", "", "restrict flood detection to one client IP")
}

func analysisOptions(cmd *cobra.Command) (appOptions, analyzer.Options) {
	workers, _ := cmd.Flags().GetInt("parallel")
	useGeo, _ := cmd.Flags().GetBool("geo")
	useExport, _ := cmd.Flags().GetBool("export")
	useHistory, _ := cmd.Flags().GetBool("history")
	threshold, _ := cmd.Flags().GetInt("ddos-threshold")
	window, _ := cmd.Flags().GetDuration("ddos-window")
	target, _ := cmd.Flags().GetString("ddos-ip")

	useHistory = useHistory || cfg.History.Enabled
	useGeo = useGeo || cfg.Geo.Enabled

	return appOptions{
			geo:     useGeo,
			export:  useExport,
			history: useHistory,
			workers: workers,
		}, analyzer.Options{
			DDoS: analytics.DDoSConfig{
				Threshold: threshold,
				Window:    window,
				TargetIP:  target,
			},
			Geo:     useGeo,
			Export:  useExport,
			History: useHistory,
		}
}

func filterFromFlags(cmd *cobra.Command) (parser.Filter, error) {
	var f parser.Filter
	f.IP, _ = cmd.Flags().GetString("ip")
	f.Method, _ = cmd.Flags().GetString("method")
	f.StatusCode, _ = cmd.Flags().GetString("status")
	f.UserAgent, _ = cmd.Flags().GetString("user-agent")

	var err error
	if f.StartTime, err = timeFlag(cmd, "start"); err != nil {
		return f, err
	}
	if f.EndTime, err = timeFlag(cmd, "end"); err != nil {
		return f, err
	}
	return f, nil
}

func timeFlag(cmd *cobra.Command, name string) (time.Time, error) {
	value, _ := cmd.Flags().GetString(name)
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, apperr.New(apperr.Validation, fmt.Sprintf("Invalid --%s time", name), err.Error())
	}
	return t, nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	filter, err := filterFromFlags(cmd)
	if err != nil {
		return err
	}
	appOpts, opts := analysisOptions(cmd)
	opts.Filter = filter

	if progress, _ := cmd.Flags().GetBool("progress"); progress {
		appOpts.progress = func(percent float64) {
			fmt.Fprintf(os.Stderr, "\rParsing... %3.0f%%", percent)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, appOpts)
	if err != nil {
		return err
	}
	defer a.Close()

	cpuProfile, _ := cmd.Flags().GetString("cpuprofile")
	memProfile, _ := cmd.Flags().GetString("memprofile")
	profiler := profiling.New(profiling.Config{CPUProfilePath: cpuProfile, MemProfilePath: memProfile}, logger)
	if err := profiler.Start(); err != nil {
		return apperr.Wrap(err, apperr.File, "Failed to start profiling")
	}

	report, err := a.analyzer.Analyze(ctx, args[0], opts)
	if perr := profiler.Stop(); perr != nil {
		logger.Warn().Err(perr).Msg("Failed to write profile")
	}
	if appOpts.progress != nil {
		fmt.Fprintln(os.Stderr)
	}
	if report != nil {
		if perr := printReport(cmd.OutOrStdout(), report); perr != nil {
			return perr
		}
	}
	return err
}
