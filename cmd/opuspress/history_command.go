package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"opuspress/internal/ledger"
	"opuspress/internal/metrics"
)

func newHistoryCommand(cmdCtx *commandContext) *cobra.Command {
	var limit int
	var user string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent encode jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := ledger.Open(cfg)
			if err != nil {
				return fmt.Errorf("open history store: %w", err)
			}
			defer store.Close()

			var entries []ledger.Entry
			if user != "" {
				entries, err = store.ListByUser(cmd.Context(), user, limit)
			} else {
				entries, err = store.List(cmd.Context(), limit)
			}
			if err != nil {
				return fmt.Errorf("list jobs: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No encode jobs recorded yet.")
				return nil
			}

			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				outcome := entry.Outcome
				if entry.Outcome == ledger.OutcomeFailed && entry.FailureKind != "" {
					outcome = fmt.Sprintf("%s (%s)", entry.Outcome, entry.FailureKind)
				}
				rows = append(rows, []string{
					entry.CreatedAt.Local().Format(time.DateTime),
					entry.UserID,
					entry.SourceName,
					entry.Tier,
					outcome,
					metrics.FormatDuration(entry.DurationSeconds),
					metrics.FormatBytes(entry.InputBytes),
					metrics.FormatRatio(entry.CompressionRatio),
				})
			}

			headers := []string{"When", "User", "Source", "Tier", "Outcome", "Duration", "Input", "Saved"}
			aligns := []columnAlignment{
				alignLeft, alignLeft, alignLeft, alignLeft, alignLeft,
				alignRight, alignRight, alignRight,
			}
			fmt.Fprintln(out, renderTable(headers, rows, aligns, isTerminal(out)))

			summary, err := store.Summarize(cmd.Context())
			if err == nil && summary.Total() > 0 {
				fmt.Fprintf(out, "%d jobs recorded: %d completed, %d failed\n",
					summary.Total(), summary.Completed, summary.Failed)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of jobs to show")
	cmd.Flags().StringVarP(&user, "user", "u", "", "Only show jobs for this user")
	return cmd
}
