package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/litledger/internal/config"
	"github.com/roach88/litledger/internal/ledger"
	"github.com/roach88/litledger/internal/num"
	"github.com/roach88/litledger/internal/rules"
)

// RuleList is the rule commands' result.
type RuleList struct {
	Rules []rules.Rule `json:"rules"`
}

// Text renders one rule per line.
func (v RuleList) Text() string {
	if len(v.Rules) == 0 {
		return "No rules registered."
	}
	lines := make([]string, 0, len(v.Rules))
	for _, r := range v.Rules {
		line := fmt.Sprintf("%s  %s %s %s", r.ID, r.TargetType, r.Operation, num.String(r.Modifier))
		if r.Condition != "" {
			line += " when " + r.Condition
		}
		if r.Description != "" {
			line += "  # " + r.Description
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// NewRuleCommand creates the rule command group.
func NewRuleCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rule",
		Short: "Manage value rules applied to incoming events",
	}
	cmd.AddCommand(newRuleAddCommand(rootOpts))
	cmd.AddCommand(newRuleListCommand(rootOpts))
	return cmd
}

func newRuleAddCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		spec    rules.Spec
		persist bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a rule",
		Long: `Register a rule that rewrites the value of matching events as they are
committed. Targets are event types (gold, item, stat, buff) or "any".
Operations: multiply, add, set. A rule with a condition is recorded but
not applied.

Rules only touch events committed after they exist, so they are kept in
the campaign config (--persist) to survive between runs.

Examples:
  litledger rule add --target gold --op multiply --modifier 1.1 --description "Merchant guild"
  litledger rule add --target stat --op add --modifier 1 --persist`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: withLedger(rootOpts, func(cmd *cobra.Command, s *session, l *ledger.Ledger, args []string) error {
			id, err := l.AddRule(spec)
			if err != nil {
				return s.out.Fail("add rule", err)
			}
			s.logger.Debug("rule added", "id", id)
			if persist {
				if err := config.AppendRule(configTarget(rootOpts), spec); err != nil {
					return s.out.Fail("update config", err)
				}
			}
			return s.out.Success(RuleList{Rules: l.Rules()})
		}),
	}

	cmd.Flags().StringVar(&spec.Target, "target", "", "event type the rule applies to, or any")
	cmd.Flags().StringVar(&spec.Operation, "op", "", "multiply, add or set")
	cmd.Flags().StringVar(&spec.Modifier, "modifier", "", "decimal operand")
	cmd.Flags().StringVar(&spec.Condition, "condition", "", "optional condition")
	cmd.Flags().StringVar(&spec.Description, "description", "", "free-text description")
	cmd.Flags().BoolVar(&persist, "persist", false, "append the rule to the campaign config")
	_ = cmd.MarkFlagRequired("target")
	_ = cmd.MarkFlagRequired("op")
	_ = cmd.MarkFlagRequired("modifier")
	return cmd
}

func newRuleListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List rules from the campaign config",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: withLedger(rootOpts, func(cmd *cobra.Command, s *session, l *ledger.Ledger, args []string) error {
			return s.out.Success(RuleList{Rules: l.Rules()})
		}),
	}
}
