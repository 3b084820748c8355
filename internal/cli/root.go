// Package cli implements the litledger command line: one cobra command per
// file, each a thin layer over the ledger, archive and extraction packages.
package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

// Version is stamped into MCP server info and telemetry resources.
var Version = "dev"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Config   string // campaign file; empty looks for litledger.yaml
	SavePath string // overrides the configured event-log path
	Strict   bool   // overrides the configured mode when set
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the litledger CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "litledger",
		Short: "litledger - an event-sourced ledger for serialized fiction",
		Long: `litledger tracks a story's currency, inventory, stats and buffs as an
append-only event log. State is always derived by replaying the log, so
past events can be edited or deleted and everything downstream follows.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output and debug logging")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "campaign config file (default ./litledger.yaml)")
	cmd.PersistentFlags().StringVar(&opts.SavePath, "save", "", "event-log file (overrides config)")
	cmd.PersistentFlags().BoolVar(&opts.Strict, "strict", false, "strict mode: reject underflows (overrides config)")

	cmd.AddCommand(NewStateCommand(opts))
	cmd.AddCommand(NewEventsCommand(opts))
	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewBatchCommand(opts))
	cmd.AddCommand(NewModifyCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewFormulaCommand(opts))
	cmd.AddCommand(NewRuleCommand(opts))
	cmd.AddCommand(NewSchemaCommand(opts))
	cmd.AddCommand(NewSlotCommand(opts))
	cmd.AddCommand(NewIngestCommand(opts))
	cmd.AddCommand(NewUsageCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}
