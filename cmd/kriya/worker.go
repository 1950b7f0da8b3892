package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rahul/kriya/internal/agent"
	"github.com/rahul/kriya/internal/observability"
	"github.com/spf13/cobra"
)

var workerQuiet bool

// workerCmd runs queued scenarios until interrupted.
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run queued scenarios as they arrive",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !workerQuiet {
			observability.PrintBanner(cmd.ErrOrStderr())
		}

		env, err := newEnvironment(cfg, true)
		if err != nil {
			return err
		}
		defer env.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		scheduler := agent.NewScheduler(env.runner, env.history, cfg.Runner.PollInterval)
		scheduler.Options = agent.RunOptions{
			ContinueOnError: cfg.Runner.ContinueOnError,
			MaxSteps:        cfg.Runner.MaxSteps,
		}

		slog.Info("worker started",
			"db", cfg.Memory.Path,
			"workspace", cfg.App.Workspace,
			"capabilities", env.registry.Len(),
		)
		scheduler.Start(ctx)
		slog.Info("worker stopped")
		return nil
	},
}

func init() {
	workerCmd.Flags().BoolVarP(&workerQuiet, "quiet", "q", false, "do not print the banner")
	rootCmd.AddCommand(workerCmd)
}
