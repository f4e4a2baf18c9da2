package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"avatarmap/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent source runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.History.Enabled {
				fmt.Fprintln(cmd.OutOrStdout(), "History is disabled (history.enabled = false)")
				return nil
			}

			store, err := history.Open(cfg.HistoryPath())
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer store.Close()

			entries, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				if entries == nil {
					entries = []history.Entry{}
				}
				return writeJSON(cmd, entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded yet")
				return nil
			}

			spec := tableSpec{
				headers: []string{"Started", "Run", "Source", "Status", "Fetched", "Failed", "Duration", "Error"},
				aligns:  []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
			}
			for _, entry := range entries {
				spec.add(
					entry.StartedAt.Local().Format("2006-01-02 15:04:05"),
					shortRunID(entry.RunID),
					entry.Source,
					entry.Status,
					strconv.Itoa(entry.Fetched),
					strconv.Itoa(entry.Failed),
					entry.Duration().Round(time.Millisecond).String(),
					entry.Error,
				)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, spec.render(isTerminal(out)))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of rows to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print history as JSON")
	return cmd
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
