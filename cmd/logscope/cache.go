package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/therealutkarshpriyadarshi/logscope/internal/apperr"
	"github.com/therealutkarshpriyadarshi/logscope/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the cache statistics",
	Long: `Show or reset the cache counters kept by the configured statistics
backend (cache.stats). The memory backend does not outlive the process, so
these commands are only useful with the file or redis backend.`,
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show hit and miss counters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCacheStore()
		if err != nil {
			return err
		}
		defer store.Stop()

		stats := store.Stats()
		if jsonOut {
			return printJSON(cmd.OutOrStdout(), stats)
		}

		tw := newTable(cmd.OutOrStdout())
		fmt.Fprintf(tw, "Backend:\t%s\n", cfg.Cache.Stats.Backend)
		fmt.Fprintf(tw, "Hits:\t%d\n", stats.Hits)
		fmt.Fprintf(tw, "Misses:\t%d\n", stats.Misses)
		fmt.Fprintf(tw, "Total requests:\t%d\n", stats.TotalRequests)
		fmt.Fprintf(tw, "Hit rate:\t%s\n", stats.HitRate)
		if stats.LastCleanup > 0 {
			fmt.Fprintf(tw, "Last cleanup:\t%s\n", time.UnixMilli(stats.LastCleanup).Format(time.RFC3339))
		}
		return tw.Flush()
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Reset the counters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCacheStore()
		if err != nil {
			return err
		}
		store.Clear()
		if err := store.Stop(); err != nil {
			return apperr.Wrap(err, apperr.Server, "Could not close cache statistics")
		}
		if !jsonOut {
			fmt.Fprintln(cmd.OutOrStdout(), "Cache statistics cleared")
		}
		return nil
	},
}

func openCacheStore() (*cache.Store, error) {
	backend, err := cache.NewStatsBackend(cfg.Cache.Stats)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.Validation, "Could not open cache statistics")
	}
	return cache.New(cache.Config{
		Capacity:      cfg.Cache.Capacity,
		DefaultExpiry: cfg.Cache.DefaultExpiry,
	}, cache.WithBackend(backend), cache.WithLogger(logger)), nil
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
