package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/rahul/kriya/internal/observability"
	"github.com/rahul/kriya/pkg/config"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool

	// cfg is loaded once before any command runs.
	cfg *config.Config
)

// rootCmd is the application entry point.
var rootCmd = &cobra.Command{
	Use:   "kriya",
	Short: "Compile plans into scenarios and run them",
	Long: `Kriya turns a structured plan of steps into a scenario program and
executes it on a small stack machine, dispatching each step to a
registered capability: file edits, structured patches, version control,
builds, tests and reports.`,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		loaded, _, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
		setupLogging(cfg.Log.Level)
		return nil
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./kriya.yaml or $HOME/.kriya.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}

// setupLogging installs the default slog logger: text on a terminal, JSON
// otherwise.
func setupLogging(levelName string) {
	level := parseLevel(levelName)
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if observability.IsTerminal(os.Stderr) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func parseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
