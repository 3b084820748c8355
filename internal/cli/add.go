package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/litledger/internal/event"
	"github.com/roach88/litledger/internal/ledger"
)

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <event-json|@file|->",
		Short: "Commit a single event",
		Long: `Commit one event. It is validated, passed through the rule engine and
replayed on top of the log; nothing is written if the replay fails.

Examples:
  litledger add '{"type":"gold","action":"gain","value":"10","unit":"GP"}'
  litledger add @event.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: withLedger(rootOpts, func(cmd *cobra.Command, s *session, l *ledger.Ledger, args []string) error {
			data, err := readArg(args[0], cmd.InOrStdin())
			if err != nil {
				return s.out.Fail("read event", err)
			}
			ev, err := decodeCandidate(data)
			if err != nil {
				return s.out.Fail("invalid event", err)
			}
			committed, err := l.AddEvent(cmd.Context(), ev)
			if committed == nil {
				return s.out.Fail("event rejected", err)
			}
			s.warnUnsaved(err)
			return s.out.Success(EventList{Events: []*event.Event{committed}})
		}),
	}
}
