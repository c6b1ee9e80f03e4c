package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"opuspress/internal/textutil"
)

// statusView mirrors the daemon's status payload.
type statusView struct {
	Running          bool  `json:"running"`
	PID              int   `json:"pid"`
	ConcurrencyLimit int   `json:"concurrency_limit"`
	JobsCompleted    int64 `json:"jobs_completed"`
	JobsFailed       int64 `json:"jobs_failed"`
	Dependencies     []struct {
		Name      string `json:"name"`
		Command   string `json:"command"`
		Available bool   `json:"available"`
		Detail    string `json:"detail"`
	} `json:"dependencies"`
}

func newStatusCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status and dependency health",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := newAPIClient(cfg)
			if err != nil {
				return err
			}
			var view statusView
			if err := client.getJSON(cmd.Context(), "/api/status", &view); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Daemon:       %s (pid %d)\n",
				textutil.Ternary(view.Running, "running", "stopped"), view.PID)
			fmt.Fprintf(out, "Encode slots: %d\n", view.ConcurrencyLimit)
			fmt.Fprintf(out, "Jobs:         %d completed, %d failed\n", view.JobsCompleted, view.JobsFailed)
			fmt.Fprintln(out, "Dependencies:")
			for _, dep := range view.Dependencies {
				mark := textutil.Ternary(dep.Available, "ok", "MISSING")
				fmt.Fprintf(out, "  %-18s %-8s %s\n", dep.Name, mark, dep.Detail)
			}
			return nil
		},
	}
}
