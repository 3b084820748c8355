package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/litledger/internal/config"
	"github.com/roach88/litledger/internal/formula"
	"github.com/roach88/litledger/internal/ledger"
	"github.com/roach88/litledger/internal/num"
)

// FormulaList is the formula commands' result.
type FormulaList struct {
	Formulas []formula.Formula `json:"formulas"`
	Computed map[string]string `json:"computed_stats,omitempty"`
}

// Text renders one formula per line with its current value when known.
func (v FormulaList) Text() string {
	if len(v.Formulas) == 0 {
		return "No formulas registered."
	}
	var b strings.Builder
	for _, f := range v.Formulas {
		fmt.Fprintf(&b, "%s = %s", f.Name, f.Expression)
		if val, ok := v.Computed[f.Name]; ok {
			fmt.Fprintf(&b, "  -> %s", val)
		}
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// configTarget is the campaign file that --persist edits.
func configTarget(opts *RootOptions) string {
	if opts.Config != "" {
		return opts.Config
	}
	return config.DefaultFile
}

// NewFormulaCommand creates the formula command group.
func NewFormulaCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "formula",
		Short: "Manage computed stats",
	}
	cmd.AddCommand(newFormulaAddCommand(rootOpts))
	cmd.AddCommand(newFormulaListCommand(rootOpts))
	return cmd
}

func newFormulaAddCommand(rootOpts *RootOptions) *cobra.Command {
	var persist bool

	cmd := &cobra.Command{
		Use:   "add <name> <expression>",
		Short: "Register a computed stat",
		Long: `Register a formula over base stats and other formulas. Circular
references are rejected.

Formulas live in the campaign config; without --persist the formula is
evaluated once against the current state and then forgotten.

Examples:
  litledger formula add Attack "Strength * 2 + Level"
  litledger formula add Defense "10 + Agility / 2" --persist`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: withLedger(rootOpts, func(cmd *cobra.Command, s *session, l *ledger.Ledger, args []string) error {
			name, expr := args[0], args[1]
			if err := l.RegisterFormula(name, expr); err != nil {
				return s.out.Fail("register formula", err)
			}
			st, err := l.State(cmd.Context())
			if err != nil {
				return s.out.Fail("evaluate formulas", err)
			}
			if persist {
				target := configTarget(rootOpts)
				if err := config.AppendFormula(target, formula.Formula{Name: name, Expression: expr}); err != nil {
					return s.out.Fail("update config", err)
				}
				s.logger.Debug("formula saved", "config", target, "name", name)
			}
			return s.out.Success(formulaList(l.Formulas(), st))
		}),
	}

	cmd.Flags().BoolVar(&persist, "persist", false, "append the formula to the campaign config")
	return cmd
}

func newFormulaListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List formulas with their current values",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: withLedger(rootOpts, func(cmd *cobra.Command, s *session, l *ledger.Ledger, args []string) error {
			st, err := l.State(cmd.Context())
			if err != nil {
				return s.out.Fail("evaluate formulas", err)
			}
			return s.out.Success(formulaList(l.Formulas(), st))
		}),
	}
}

func formulaList(fs []formula.Formula, st *ledger.State) FormulaList {
	computed := make(map[string]string, len(st.ComputedStats))
	for name, v := range st.ComputedStats {
		computed[name] = num.String(v)
	}
	return FormulaList{Formulas: fs, Computed: computed}
}
