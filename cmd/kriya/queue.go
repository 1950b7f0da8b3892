package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rahul/kriya/internal/agent"
	"github.com/rahul/kriya/internal/observability"
	"github.com/spf13/cobra"
)

// queueCmd groups the queue subcommands.
var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Manage scenarios queued for the worker",
}

var queueAddTask string

var queueAddCmd = &cobra.Command{
	Use:   "add <plan|scenario>",
	Short: "Queue a plan or scenario for the worker",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		history, err := openHistory(cfg)
		if err != nil {
			return err
		}
		defer history.Close()

		runner := &agent.Runner{Logger: observability.NewLogger()}
		sc, err := loadScenario(runner, args[0])
		if err != nil {
			return err
		}
		task := queueAddTask
		if task == "" {
			task = sc.Task()
		}

		id, err := history.Enqueue(cmd.Context(), task, sc.Text())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "queued scenario %d\n", id)
		return nil
	},
}

var queueListOpts struct {
	Limit int
	OutputOptions
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued scenarios, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := queueListOpts.Validate(); err != nil {
			return err
		}
		history, err := openHistory(cfg)
		if err != nil {
			return err
		}
		defer history.Close()

		entries, err := history.ListQueue(cmd.Context(), queueListOpts.Limit)
		if err != nil {
			return err
		}
		return queueListOpts.Write(cmd.OutOrStdout(), entries, func(w io.Writer) error {
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tSTATE\tENQUEUED\tRUN\tTASK")
			for _, q := range entries {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", q.ID, q.Status, q.State,
					q.EnqueuedAt.Local().Format(time.DateTime), q.RunID,
					observability.Truncate(q.Task, 50))
			}
			return tw.Flush()
		})
	},
}

func init() {
	queueAddCmd.Flags().StringVar(&queueAddTask, "task", "", "label for the queued scenario (defaults to its task line)")
	queueListCmd.Flags().IntVarP(&queueListOpts.Limit, "limit", "n", 50, "number of entries to list")
	queueListOpts.RegisterFlags(queueListCmd)

	queueCmd.AddCommand(queueAddCmd, queueListCmd)
	rootCmd.AddCommand(queueCmd)
}
