package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/litledger/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Filter string // substring of scenario names to run
}

// SuiteView is the test command's result.
type SuiteView struct {
	*harness.SuiteResult
}

// Text renders failures followed by a summary line.
func (v SuiteView) Text() string {
	var b strings.Builder
	for _, f := range v.Failures {
		name := f.Name
		if name == "" {
			name = f.Path
		}
		fmt.Fprintf(&b, "✗ %s\n", name)
		for _, e := range f.Errors {
			fmt.Fprintf(&b, "  %s\n", strings.TrimRight(e, "\n"))
		}
	}
	fmt.Fprintf(&b, "Test Summary: %d passed, %d failed, %d total", v.Passed, v.Failed, v.TotalScenarios)
	if v.Skipped > 0 {
		fmt.Fprintf(&b, ", %d skipped", v.Skipped)
	}
	if v.Failed == 0 {
		b.WriteString("\n✓ All scenarios passed")
	}
	return b.String()
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run ledger conformance scenarios",
		Long: `Run every scenario file in a directory against a fresh in-memory ledger.

Each scenario sets the mode, schema, formulas and rules, runs its steps,
checks each step's expected outcome, replays the final log and evaluates
assertions on the derived state. The campaign config is not consulted.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (missing directory, no scenarios)

Examples:
  litledger test ./scenarios
  litledger test ./scenarios --filter retcon
  litledger test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "run only scenarios whose name contains this text")
	return cmd
}

func runTests(cmd *cobra.Command, opts *TestOptions, dir string) error {
	out := newFormatter(cmd, opts.RootOptions)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return out.Usage("scenarios directory not found: %s", dir)
	}

	res, err := harness.RunSuite(cmd.Context(), dir, opts.Filter)
	if err != nil {
		return out.Usage("%v", err)
	}
	if err := out.Success(SuiteView{res}); err != nil {
		return err
	}
	if res.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", res.Failed))
	}
	return nil
}
