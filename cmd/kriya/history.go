package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rahul/kriya/internal/observability"
	"github.com/spf13/cobra"
)

var historyOpts struct {
	Limit int
	OutputOptions
}

// historyCmd shows recorded runs.
var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List recorded runs, or show one run in detail",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := historyOpts.Validate(); err != nil {
			return err
		}
		history, err := openHistory(cfg)
		if err != nil {
			return err
		}
		defer history.Close()

		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		if len(args) == 1 {
			rec, err := history.GetRun(ctx, args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			return historyOpts.Write(out, rec, func(w io.Writer) error {
				fmt.Fprintf(w, "run:      %s\n", rec.ID)
				fmt.Fprintf(w, "task:     %s\n", rec.Task)
				fmt.Fprintf(w, "state:    %s (pc %d, %d steps)\n", rec.State, rec.PC, rec.Steps)
				fmt.Fprintf(w, "started:  %s\n", rec.StartedAt.Local().Format(time.DateTime))
				if rec.Error != "" {
					fmt.Fprintf(w, "error:    %s [%s]\n", rec.Error, rec.ErrorKind)
				}
				if rec.Value != "" {
					fmt.Fprintf(w, "value:    %s\n", rec.Value)
				}
				for _, c := range rec.Calls {
					status := "ok"
					if c.Failed {
						status = "error: " + c.Error
					}
					fmt.Fprintf(w, "call %3d  %-16s %6dms  %s\n", c.Index, c.Capability, c.DurationMS, status)
				}
				fmt.Fprintf(w, "memory:   %s\n\n", rec.Memory)
				_, err := io.WriteString(w, rec.Scenario)
				return err
			})
		}

		runs, err := history.ListRuns(ctx, historyOpts.Limit)
		if err != nil {
			return err
		}
		return historyOpts.Write(out, runs, func(w io.Writer) error {
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tSTATE\tSTARTED\tDURATION\tTASK")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.State,
					r.StartedAt.Local().Format(time.DateTime),
					r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond),
					observability.Truncate(r.Task, 60))
			}
			return tw.Flush()
		})
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyOpts.Limit, "limit", "n", 20, "number of runs to list")
	historyOpts.RegisterFlags(historyCmd)
	rootCmd.AddCommand(historyCmd)
}
