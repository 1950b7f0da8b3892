package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rahul/kriya/internal/agent"
	"github.com/rahul/kriya/internal/scenario"
	"github.com/rahul/kriya/internal/vm"
	"github.com/spf13/cobra"
)

var runOpts struct {
	Vars            []string
	ContinueOnError bool
	MaxSteps        int
	Timeout         time.Duration
	NoHistory       bool
	OutputOptions
}

// runCmd executes plans or scenarios.
var runCmd = &cobra.Command{
	Use:   "run <plan|scenario>...",
	Short: "Run one or more plans or scenarios",
	Long: `Run compiles each plan (or parses each scenario file) and executes it.
Several files run concurrently, up to runner.max_concurrent_runs at a time.
The command fails when any run does not complete.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := runOpts.Validate(); err != nil {
			return err
		}
		vars, err := parseVars(runOpts.Vars)
		if err != nil {
			return err
		}

		env, err := newEnvironment(cfg, !runOpts.NoHistory)
		if err != nil {
			return err
		}
		defer env.Close()

		scenarios := make([]*scenario.Scenario, 0, len(args))
		for _, path := range args {
			sc, err := loadScenario(env.runner, path)
			if err != nil {
				return err
			}
			scenarios = append(scenarios, sc)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if runOpts.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, runOpts.Timeout)
			defer cancel()
		}

		opts := agent.RunOptions{
			Vars:            vars,
			ContinueOnError: runOpts.ContinueOnError || cfg.Runner.ContinueOnError,
			MaxSteps:        runOpts.MaxSteps,
		}
		if opts.MaxSteps == 0 {
			opts.MaxSteps = cfg.Runner.MaxSteps
		}

		reports, runErr := env.runner.RunAll(ctx, scenarios, opts)
		if err := runOpts.Write(cmd.OutOrStdout(), reports, func(w io.Writer) error {
			for i, rep := range reports {
				if rep != nil {
					printReport(w, args[i], rep)
				}
			}
			return nil
		}); err != nil {
			return err
		}
		if runErr != nil {
			return runErr
		}

		for i, rep := range reports {
			if rep != nil && !rep.Succeeded() {
				return fmt.Errorf("%s: run %s ended %s", args[i], rep.RunID, rep.State)
			}
		}
		return nil
	},
}

func printReport(w io.Writer, name string, rep *vm.Report) {
	fmt.Fprintf(w, "%s\n", name)
	fmt.Fprintf(w, "  run:      %s\n", rep.RunID)
	fmt.Fprintf(w, "  state:    %s\n", rep.State)
	fmt.Fprintf(w, "  steps:    %d (%s)\n", rep.Steps, rep.Duration().Round(time.Millisecond))
	if rep.Message != "" {
		fmt.Fprintf(w, "  error:    %s [%s] at instruction %d\n", rep.Message, rep.ErrorKind, rep.PC)
	} else if rep.Value != nil {
		fmt.Fprintf(w, "  value:    %v\n", rep.Value)
	}
	for _, c := range rep.Calls {
		status := "ok"
		if c.Failed {
			status = "error: " + c.Error
		}
		fmt.Fprintf(w, "  call %3d  %-16s %s\n", c.Index, c.Capability, status)
	}
	if len(rep.Memory) > 0 {
		fmt.Fprintln(w, "  memory:")
		for _, e := range rep.Memory {
			fmt.Fprintf(w, "    %s = %v\n", e.Key, e.Value)
		}
	}
}

func init() {
	runCmd.Flags().StringArrayVar(&runOpts.Vars, "var", nil, "seed a memory variable (key=value, value may be JSON)")
	runCmd.Flags().BoolVar(&runOpts.ContinueOnError, "continue-on-error", false, "keep going after a capability returns an error")
	runCmd.Flags().IntVar(&runOpts.MaxSteps, "max-steps", 0, "halt after this many instructions (0 uses the config value)")
	runCmd.Flags().DurationVar(&runOpts.Timeout, "timeout", 0, "abort runs after this duration (0 to disable)")
	runCmd.Flags().BoolVar(&runOpts.NoHistory, "no-history", false, "do not record runs in the history database")
	runOpts.RegisterFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}
