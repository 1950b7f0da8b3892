package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rahul/kriya/internal/agent"
	"github.com/rahul/kriya/internal/observability"
	"github.com/rahul/kriya/internal/scenario"
	"github.com/spf13/cobra"
)

var compileOpts struct {
	Output string
	Task   string
	OutputOptions
}

// compileCmd turns a plan file into scenario text.
var compileCmd = &cobra.Command{
	Use:   "compile <plan>",
	Short: "Compile a plan (JSON, JSONC or YAML) into a scenario",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := compileOpts.Validate(); err != nil {
			return err
		}
		plan, err := scenario.LoadPlan(args[0])
		if err != nil {
			return err
		}
		if compileOpts.Task != "" {
			plan.Task = compileOpts.Task
		}

		runner := &agent.Runner{Logger: observability.NewLogger()}
		sc := runner.Compile(plan)

		out := cmd.OutOrStdout()
		if compileOpts.Output != "" {
			f, err := os.Create(compileOpts.Output)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			defer f.Close()
			out = f
		}

		view := map[string]any{
			"task":    sc.Task(),
			"steps":   sc.Steps(),
			"program": sc.Text(),
		}
		return compileOpts.Write(out, view, func(w io.Writer) error {
			_, err := io.WriteString(w, sc.Text())
			return err
		})
	},
}

func init() {
	compileCmd.Flags().StringVarP(&compileOpts.Output, "output", "o", "", "write the scenario to a file instead of stdout")
	compileCmd.Flags().StringVar(&compileOpts.Task, "task", "", "override the plan's task description")
	compileOpts.RegisterFlags(compileCmd)
	rootCmd.AddCommand(compileCmd)
}
