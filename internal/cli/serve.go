package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/litledger/internal/ledger"
	"github.com/roach88/litledger/internal/mcpserver"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the ledger over MCP on stdio",
		Long: `Run a Model Context Protocol server on stdin/stdout. Tools cover state,
event listing, batch commits, retcon edits, formulas and value formatting.
Logs go to stderr.

Examples:
  litledger serve --save campaign/events.json --strict`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: withLedger(rootOpts, func(cmd *cobra.Command, s *session, l *ledger.Ledger, args []string) error {
			s.logger.Info("serving MCP on stdio", "path", l.Path(), "events", l.Len())
			if err := mcpserver.New(l, Version, s.logger).RunStdio(cmd.Context()); err != nil {
				return s.out.Fail("serve", err)
			}
			return nil
		}),
	}
}
