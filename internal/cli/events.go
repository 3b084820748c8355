package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/litledger/internal/event"
	"github.com/roach88/litledger/internal/ledger"
)

// EventList is the events command's result.
type EventList struct {
	Events []*event.Event `json:"events"`
}

// Text renders one line per event.
func (v EventList) Text() string {
	if len(v.Events) == 0 {
		return "No events."
	}
	lines := make([]string, 0, len(v.Events))
	for _, ev := range v.Events {
		lines = append(lines, describeEvent(ev))
	}
	return strings.Join(lines, "\n")
}

func describeEvent(ev *event.Event) string {
	var body string
	switch p := ev.Payload.(type) {
	case *event.Gold:
		body = fmt.Sprintf("%s %s %s", ev.Action, p.Value, p.Unit)
	case *event.Item:
		body = fmt.Sprintf("%s %s x%s", ev.Action, p.Name, p.Qty.Or(event.Int(1)))
	case *event.Stat:
		body = fmt.Sprintf("%s %s %s", ev.Action, p.Name, p.Value)
	case *event.Buff:
		body = fmt.Sprintf("%s buff %s", ev.Action, p.Name)
	case *event.ChapterStart:
		body = "chapter start"
	case *event.WordCount:
		body = fmt.Sprintf("words +%d", p.Delta)
	}
	line := fmt.Sprintf("#%d %-6s %s", ev.ID, ev.Type(), strings.TrimSpace(body))
	if ev.Reason != "" {
		line += fmt.Sprintf(" (%s)", ev.Reason)
	}
	if ev.RequiresManualFix {
		line += " [needs fix]"
	}
	return line
}

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List committed events",
		Long: `List the event log in commit order.

Examples:
  litledger events
  litledger events --limit 5 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: withLedger(rootOpts, func(cmd *cobra.Command, s *session, l *ledger.Ledger, args []string) error {
			events := l.Events()
			if limit > 0 && limit < len(events) {
				events = events[len(events)-limit:]
			}
			return s.out.Success(EventList{Events: events})
		}),
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show only the last N events")
	return cmd
}
