package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/therealutkarshpriyadarshi/logscope/internal/apperr"
	"github.com/therealutkarshpriyadarshi/logscope/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect recorded analysis runs",
	Long:  "List, show and delete analysis runs kept in the history database (history.path).",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		store, err := openHistory()
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.List(cmd.Context(), limit)
		if err != nil {
			return apperr.Wrap(err, apperr.File, "Could not list runs")
		}
		return printRuns(cmd.OutOrStdout(), runs)
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistory()
		if err != nil {
			return err
		}
		defer store.Close()

		run, err := store.Get(cmd.Context(), args[0])
		if err != nil {
			return runError(err, args[0])
		}
		return printRun(cmd.OutOrStdout(), run)
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete one run",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistory()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Delete(cmd.Context(), args[0]); err != nil {
			return runError(err, args[0])
		}
		if !jsonOut {
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", args[0])
		}
		return nil
	},
}

func runError(err error, id string) error {
	if errors.Is(err, history.ErrNotFound) {
		return apperr.New(apperr.Validation, "No run with id "+id, "")
	}
	return apperr.Wrap(err, apperr.File, "Could not read run history")
}

func init() {
	historyListCmd.Flags().Int("limit", history.DefaultListLimit, "maximum number of runs to list")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyDeleteCmd)
	rootCmd.AddCommand(historyCmd)
}
