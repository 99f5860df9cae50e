package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/pario-ai/replay/pkg/tracker"
)

func newCostCmd(opts *globalOptions) *cobra.Command {
	var (
		runID string
		since time.Duration
	)

	cmd := &cobra.Command{
		Use:   "cost",
		Short: "Show per-step usage and cost of recorded backend calls",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cfg.DBPath == "" {
				return errors.New("db_path is not configured; usage is not being tracked")
			}

			tr, err := tracker.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer tr.Close()

			out := cmd.OutOrStdout()
			if since > 0 {
				from := time.Now().UTC().Add(-since)
				total, err := tr.TotalCost(cmd.Context(), from)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Total cost since %s: $%.4f\n", from.Format("2006-01-02T15:04:05"), total)
				return nil
			}

			summaries, err := tr.Summary(cmd.Context(), runID)
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Fprintln(out, "No usage data found.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "STEP\tMODEL\tREQUESTS\tPROMPT\tCOMPLETION\tTOTAL\tCOST")
			var total float64
			for _, s := range summaries {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t$%.4f\n",
					s.StepName, s.Model, s.RequestCount, s.TotalPrompt, s.TotalCompletion, s.TotalTokens, s.Cost)
				total += s.Cost
			}
			fmt.Fprintf(w, "\t\t\t\t\tTOTAL\t$%.4f\n", total)
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "only show usage of this run ID")
	cmd.Flags().DurationVar(&since, "since", 0, "print the total cost of calls in this window (e.g. 24h) instead of the step table")
	return cmd
}
