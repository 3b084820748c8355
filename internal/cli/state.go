package cli

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/cockroachdb/apd/v3"
	"github.com/spf13/cobra"

	"github.com/roach88/litledger/internal/ledger"
	"github.com/roach88/litledger/internal/num"
	"github.com/roach88/litledger/internal/temporal"
)

// StateView is the state command's result.
type StateView struct {
	State   *ledger.State `json:"state"`
	Display string        `json:"display"`
	Buffs   []BuffView    `json:"active_buffs"`
}

// BuffView is an active buff as printed.
type BuffView struct {
	ID      string            `json:"id"`
	Name    string            `json:"name"`
	Effects map[string]string `json:"effects"`
	Expiry  string            `json:"expiry"`
}

// Text renders the state for humans.
func (v StateView) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Balance: %s (%s base)\n", v.Display, num.String(v.State.CurrencyBalance))
	fmt.Fprintf(&b, "Chapter: %d  Words: %d\n", v.State.Chapter, v.State.WordCount)

	b.WriteString("Inventory:\n")
	names := v.State.InventoryNames()
	if len(names) == 0 {
		b.WriteString("  (empty)\n")
	}
	for _, name := range names {
		fmt.Fprintf(&b, "  %s x%s\n", name, num.String(v.State.Inventory[name]))
	}

	b.WriteString("Stats:\n")
	writeStats(&b, v.State.BaseStats, "")
	writeStats(&b, v.State.ComputedStats, " (computed)")

	if len(v.Buffs) > 0 {
		b.WriteString("Buffs:\n")
		for _, buff := range v.Buffs {
			fmt.Fprintf(&b, "  [%s] %s %s, expires %s\n", buff.ID, buff.Name, formatEffects(buff.Effects), buff.Expiry)
		}
	}
	for _, alert := range v.State.Alerts {
		fmt.Fprintf(&b, "! %s\n", alert)
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeStats(b *strings.Builder, stats map[string]*apd.Decimal, suffix string) {
	for _, name := range sortedKeys(stats) {
		fmt.Fprintf(b, "  %s: %s%s\n", name, num.String(stats[name]), suffix)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}

func formatEffects(effects map[string]string) string {
	parts := make([]string, 0, len(effects))
	for _, stat := range sortedKeys(effects) {
		parts = append(parts, fmt.Sprintf("%s %s", stat, signed(effects[stat])))
	}
	return strings.Join(parts, ", ")
}

func signed(v string) string {
	if strings.HasPrefix(v, "-") {
		return v
	}
	return "+" + v
}

func buffViews(buffs []*temporal.Buff) []BuffView {
	out := make([]BuffView, 0, len(buffs))
	for _, b := range buffs {
		effects := make(map[string]string, len(b.Effects))
		for stat, v := range b.Effects {
			effects[stat] = num.String(v)
		}
		expiry := b.ExpiryType
		if !b.ExpiryValue.IsZero() {
			expiry = fmt.Sprintf("%s %s", b.ExpiryType, b.ExpiryValue)
		}
		out = append(out, BuffView{ID: b.ID, Name: b.Name, Effects: effects, Expiry: expiry})
	}
	return out
}

func loadStateView(ctx context.Context, l *ledger.Ledger) (*StateView, error) {
	st, err := l.State(ctx)
	if err != nil {
		return nil, err
	}
	display, err := l.FormatBalance(ctx)
	if err != nil {
		return nil, err
	}
	buffs, err := l.ActiveBuffs(ctx)
	if err != nil {
		return nil, err
	}
	return &StateView{State: st, Display: display, Buffs: buffViews(buffs)}, nil
}

// NewStateCommand creates the state command.
func NewStateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show the state derived from the event log",
		Long: `Replay the event log and print balance, inventory, base and computed
stats, active buffs and alerts.

Examples:
  litledger state
  litledger state --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: withLedger(rootOpts, func(cmd *cobra.Command, s *session, l *ledger.Ledger, args []string) error {
			view, err := loadStateView(cmd.Context(), l)
			if err != nil {
				return s.out.Fail("replay failed", err)
			}
			return s.out.Success(view)
		}),
	}
}
