package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/litledger/internal/ledger"
	"github.com/roach88/litledger/internal/schema"
)

// SchemaView wraps a world schema with a sample rendering.
type SchemaView struct {
	Schema  *schema.Schema `json:"schema"`
	Balance string         `json:"balance,omitempty"`
}

// Text summarizes the schema.
func (v SchemaView) Text() string {
	var b strings.Builder
	b.WriteString(v.Schema.CurrencyName + " (base " + v.Schema.BaseUnit + ", " + string(v.Schema.DisplayFormat) + ")\n")
	for _, unit := range v.Schema.UnitsByRate() {
		rate, _ := v.Schema.Rate(unit)
		b.WriteString("  " + unit + " = " + rate.Text('f') + " " + v.Schema.BaseUnit + "\n")
	}
	if v.Balance != "" {
		b.WriteString("Balance: " + v.Balance + "\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// NewSchemaCommand creates the schema command group.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect and author world schemas",
	}
	cmd.AddCommand(newSchemaShowCommand(rootOpts))
	cmd.AddCommand(newSchemaPresetsCommand(rootOpts))
	cmd.AddCommand(newSchemaPresetCommand(rootOpts))
	cmd.AddCommand(newSchemaValidateCommand(rootOpts))
	return cmd
}

func newSchemaShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show",
		Short:         "Show the active world schema and the balance in it",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: withLedger(rootOpts, func(cmd *cobra.Command, s *session, l *ledger.Ledger, args []string) error {
			balance, err := l.FormatBalance(cmd.Context())
			if err != nil {
				return s.out.Fail("replay failed", err)
			}
			return s.out.Success(SchemaView{Schema: l.Schema(), Balance: balance})
		}),
	}
}

func newSchemaPresetsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "presets",
		Short:         "List built-in schema presets",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(cmd, rootOpts)
			if out.Format == "json" {
				return out.Success(schema.PresetNames())
			}
			return out.Success(strings.Join(schema.PresetNames(), "\n"))
		},
	}
}

func newSchemaPresetCommand(rootOpts *RootOptions) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "preset <name>",
		Short: "Print or write a preset as a schema file",
		Long: `Print a built-in preset, or write it with --out as a starting point for
a custom world schema.

Examples:
  litledger schema preset xianxia
  litledger schema preset modern --out world.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(cmd, rootOpts)
			s, err := schema.Preset(args[0])
			if err != nil {
				return out.Fail("", err)
			}
			if outPath != "" {
				if err := s.Save(outPath); err != nil {
					return out.Fail("", err)
				}
				return out.Success("Wrote " + outPath)
			}
			return out.Success(SchemaView{Schema: s})
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write the preset to this file")
	return cmd
}

func newSchemaValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <path>",
		Short: "Validate a world schema file",
		Long: `Check a schema file's structure and its invariants (positive rates, base
unit at rate 1, known display format).

Exit codes:
  0 - Schema is valid
  2 - Schema is invalid or unreadable`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(cmd, rootOpts)
			s, err := schema.Load(args[0])
			if err != nil {
				return out.Fail(args[0], err)
			}
			return out.Success(SchemaView{Schema: s})
		},
	}
}
