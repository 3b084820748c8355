package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/litledger/internal/event"
	"github.com/roach88/litledger/internal/ledger"
)

// NewModifyCommand creates the modify command.
func NewModifyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "modify <event-id> <patch-json|@file|->",
		Short: "Edit a past event and replay the log",
		Long: `Overlay fields onto a committed event and replay the whole log. If the
edited history is invalid (in strict mode, for example, a later purchase
can no longer be afforded) the edit is rejected and nothing changes.

Examples:
  litledger modify 3 '{"value":"50"}'
  litledger modify 7 '{"name":"Rotten Core"}'`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: withLedger(rootOpts, func(cmd *cobra.Command, s *session, l *ledger.Ledger, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return s.out.Usage("invalid event id %q", args[0])
			}
			data, err := readArg(args[1], cmd.InOrStdin())
			if err != nil {
				return s.out.Fail("read patch", err)
			}
			patch, err := decodePatch(data)
			if err != nil {
				return s.out.Fail("invalid patch", err)
			}
			modified, err := l.ModifyEvent(cmd.Context(), id, patch)
			if modified == nil {
				return s.out.Fail("", err)
			}
			s.warnUnsaved(err)
			return s.out.Success(EventList{Events: []*event.Event{modified}})
		}),
	}
}
