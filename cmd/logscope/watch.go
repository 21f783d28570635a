package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/therealutkarshpriyadarshi/logscope/internal/analyzer"
	"github.com/therealutkarshpriyadarshi/logscope/internal/apperr"
	"github.com/therealutkarshpriyadarshi/logscope/internal/checkpoint"
	"github.com/therealutkarshpriyadarshi/logscope/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Analyze log files as they arrive in an upload directory",
	Long: `Watch a directory and analyze every log file that is created or
rewritten in it. Files already present are analyzed on start unless an
earlier run saw them unchanged.

Runs until interrupted. The metrics and health endpoints are served when
enabled in the configuration.`,
	Example: `  logscope watch ./uploads --history
  logscope watch --config logscope.yaml --export`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	addAnalysisFlags(watchCmd)
	rootCmd.AddCommand(watchCmd)
}

// uploadHandler analyzes settled uploads and tracks what has been seen
type uploadHandler struct {
	analyzer    *analyzer.Analyzer
	checkpoints *checkpoint.Manager
	opts        analyzer.Options
	out         io.Writer
	mu          sync.Mutex
}

func (h *uploadHandler) handle(ctx context.Context, ev watcher.Event) {
	if ev.Op == watcher.OpRemoved {
		h.checkpoints.Forget(ev.Path)
		return
	}
	if h.checkpoints.Analyzed(ev.Path, ev.Size, ev.ModTime) {
		logger.Debug().Str("path", ev.Path).Msg("Upload unchanged since last analysis, skipping")
		return
	}

	report, err := h.analyzer.Analyze(ctx, ev.Path, h.opts)
	if report != nil {
		h.checkpoints.MarkAnalyzed(ev.Path, ev.Size, ev.ModTime, report.ID)
		h.mu.Lock()
		if perr := printReport(h.out, report); perr != nil {
			logger.Error().Err(perr).Msg("Failed to print report")
		}
		h.mu.Unlock()
	}
	if err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Str("path", ev.Path).Msg(apperr.Format(err, "Analysis failed"))
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	watchCfg := cfg.Watcher
	if len(args) == 1 {
		watchCfg.Dir = args[0]
	}
	if watchCfg.Dir == "" {
		return apperr.New(apperr.Validation, "No upload directory given", "pass a directory or set watcher.dir")
	}

	appOpts, opts := analysisOptions(cmd)
	a, err := newApp(cmd.Context(), appOpts)
	if err != nil {
		return err
	}

	checkpoints, err := checkpoint.NewManager(watchCfg.StateDir, watchCfg.CheckpointInterval, logger)
	if err != nil {
		a.Close()
		return apperr.Wrap(err, apperr.File, "Could not open watcher state")
	}
	if err := checkpoints.Load(); err != nil {
		logger.Warn().Err(err).Msg("Failed to load watcher state, starting fresh")
	}
	checkpoints.Start()
	a.shutdown.RegisterCloser("checkpoint", checkpoints.Stop)

	w, err := watcher.New(watchCfg, logger, a.metrics)
	if err != nil {
		a.Close()
		return apperr.Wrap(err, apperr.File, "Could not watch "+watchCfg.Dir)
	}

	if _, err := a.startServer(); err != nil {
		a.Close()
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	handler := &uploadHandler{
		analyzer:    a.analyzer,
		checkpoints: checkpoints,
		opts:        opts,
		out:         cmd.OutOrStdout(),
	}

	existing, err := w.Existing()
	if err != nil {
		cancel()
		a.Close()
		return apperr.Wrap(err, apperr.File, "Could not list "+watchCfg.Dir)
	}

	if err := w.Start(); err != nil {
		cancel()
		a.Close()
		return apperr.Wrap(err, apperr.File, "Could not watch "+watchCfg.Dir)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, path := range existing {
			info, err := os.Stat(path)
			if err != nil {
				continue
			}
			handler.handle(ctx, watcher.Event{Path: path, Op: watcher.OpCreated, Size: info.Size(), ModTime: info.ModTime()})
		}
		for ev := range w.Events() {
			handler.handle(ctx, ev)
		}
	}()

	// steps run in reverse: stop watching, drain, then close the rest
	a.shutdown.RegisterFunc("analysis", func(sctx context.Context) error {
		select {
		case <-done:
			return nil
		case <-sctx.Done():
			return sctx.Err()
		}
	})
	a.shutdown.RegisterFunc("watcher", func(context.Context) error {
		cancel()
		w.Stop()
		return nil
	})

	logger.Info().
		Str("dir", watchCfg.Dir).
		Str("extension", watchCfg.Extension).
		Int("existing", len(existing)).
		Msg("Watching for uploads")
	fmt.Fprintf(os.Stderr, "Watching %s for %s files, press Ctrl+C to stop\n", watchCfg.Dir, watchCfg.Extension)

	return a.shutdown.WaitForSignal(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
}
