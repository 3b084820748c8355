package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/litledger/internal/ledger"
)

// DeleteView is the delete command's result.
type DeleteView struct {
	*ledger.DeleteResult
}

// Text returns the summary message.
func (v DeleteView) Text() string { return v.Message }

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <event-id>...",
		Short: "Delete past events and replay the log",
		Long: `Remove events by id and replay once. Unknown ids are ignored. Ids are
never reused.

Examples:
  litledger delete 4
  litledger delete 4 5 9`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: withLedger(rootOpts, func(cmd *cobra.Command, s *session, l *ledger.Ledger, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return s.out.Usage("invalid event id %q", arg)
				}
				ids = append(ids, id)
			}
			res, err := l.DeleteEvents(cmd.Context(), ids)
			if res == nil {
				return s.out.Fail("", err)
			}
			s.warnUnsaved(err)
			return s.out.Success(DeleteView{res})
		}),
	}
}
