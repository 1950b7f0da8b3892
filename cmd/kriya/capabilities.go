package main

import (
	"fmt"
	"io"
	"slices"
	"text/tabwriter"

	"github.com/rahul/kriya/internal/capability"
	"github.com/spf13/cobra"
)

var capabilitiesOpts struct {
	Functions bool
	OutputOptions
}

// capabilitiesCmd lists the registered capabilities.
var capabilitiesCmd = &cobra.Command{
	Use:     "capabilities",
	Aliases: []string{"caps"},
	Short:   "List the capabilities scenarios can call",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := capabilitiesOpts.Validate(); err != nil {
			return err
		}
		env, err := newEnvironment(cfg, false)
		if err != nil {
			return err
		}
		defer env.Close()

		if capabilitiesOpts.Functions {
			// Function definitions for external planners.
			if capabilitiesOpts.Format == "text" {
				capabilitiesOpts.Format = "json"
			}
			return capabilitiesOpts.Write(cmd.OutOrStdout(), capability.LLMTools(env.registry), nil)
		}

		entries := slices.Collect(env.registry.List())
		return capabilitiesOpts.Write(cmd.OutOrStdout(), entries, func(w io.Writer) error {
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tDESCRIPTION")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\n", e.Name, e.Description)
			}
			return tw.Flush()
		})
	},
}

func init() {
	capabilitiesCmd.Flags().BoolVar(&capabilitiesOpts.Functions, "functions", false, "print function definitions with parameter schemas")
	capabilitiesOpts.RegisterFlags(capabilitiesCmd)
	rootCmd.AddCommand(capabilitiesCmd)
}
