package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/litledger/internal/usage"
)

// UsageView is the usage command's result.
type UsageView struct {
	usage.Summary
}

// MarshalJSON uses the decimal-string rendering.
func (v UsageView) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Map())
}

// Text prints the archive totals.
func (v UsageView) Text() string {
	m := v.Map()
	return fmt.Sprintf("Tokens: %d\nCost:   $%s\nSaved:  $%s", v.TotalTokens, m["cost_usd"], m["saved_usd"])
}

// NewUsageCommand creates the usage command.
func NewUsageCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Show extraction token usage and cost",
		Long: `Sum the usage recorded in the archive by every ingest run. Cache hits
count toward the saved total, not the cost.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()
			archive, err := s.openArchive()
			if err != nil {
				return err
			}
			totals, err := archive.UsageTotals(cmd.Context())
			if err != nil {
				return s.out.Fail("usage", err)
			}
			return s.out.Success(UsageView{totals})
		},
	}
}
