package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/litledger/internal/event"
	"github.com/roach88/litledger/internal/ledger"
)

// BatchView is the batch command's result.
type BatchView struct {
	*ledger.BatchResult
}

// Text prints the success lines.
func (v BatchView) Text() string {
	if len(v.Events) == 0 {
		return "Nothing to commit."
	}
	return "Batch " + v.BatchID + "\n" + strings.Join(v.Logs, "\n")
}

// NewBatchCommand creates the batch command.
func NewBatchCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "batch <events-json|@file|->",
		Short: "Commit a batch of events atomically",
		Long: `Screen a JSON array of events and commit it all-or-nothing.

Every event passes the security screen (blocked keywords, gain caps) before
anything is replayed. One rejection rejects the whole batch.

Exit codes:
  0 - Batch committed
  1 - Batch rejected
  2 - Command error

Examples:
  litledger batch @extracted.json
  cat events.json | litledger batch -`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: withLedger(rootOpts, func(cmd *cobra.Command, s *session, l *ledger.Ledger, args []string) error {
			data, err := readArg(args[0], cmd.InOrStdin())
			if err != nil {
				return s.out.Fail("read batch", err)
			}
			txs, err := event.DecodeCandidates(data)
			if err != nil {
				return s.out.Fail("invalid batch", err)
			}
			res, err := l.ProcessBatch(cmd.Context(), txs)
			if res == nil {
				return s.out.Fail("", err)
			}
			s.warnUnsaved(err)
			return s.out.Success(BatchView{res})
		}),
	}
}
