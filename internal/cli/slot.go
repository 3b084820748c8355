package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/litledger/internal/errs"
	"github.com/roach88/litledger/internal/ledger"
	"github.com/roach88/litledger/internal/saveslot"
	"github.com/roach88/litledger/internal/store"
)

// SlotList is the slot list command's result.
type SlotList struct {
	Slots []store.SlotInfo `json:"slots"`
}

// Text renders one slot per line.
func (v SlotList) Text() string {
	if len(v.Slots) == 0 {
		return "No archived slots."
	}
	lines := make([]string, 0, len(v.Slots))
	for _, s := range v.Slots {
		lines = append(lines, fmt.Sprintf("%-20s %3d events  %s  %s", s.Name, s.Events, s.CreatedAt, s.Checksum[:12]))
	}
	return strings.Join(lines, "\n")
}

// NewSlotCommand creates the slot command group.
func NewSlotCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slot",
		Short: "Export, import and archive save slots",
		Long: `Save slots are portable snapshots of the event log and active buffs.

export/import work with files (a .zst suffix selects zstd compression).
save/load/list/delete work with named slots in the SQLite archive.`,
	}
	cmd.AddCommand(newSlotExportCommand(rootOpts))
	cmd.AddCommand(newSlotImportCommand(rootOpts))
	cmd.AddCommand(newSlotSaveCommand(rootOpts))
	cmd.AddCommand(newSlotLoadCommand(rootOpts))
	cmd.AddCommand(newSlotListCommand(rootOpts))
	cmd.AddCommand(newSlotDeleteCommand(rootOpts))
	return cmd
}

func newSlotExportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export <path>",
		Short: "Write the current log to a save-slot file",
		Example: `  litledger slot export backups/chapter12.json
  litledger slot export backups/chapter12.json.zst`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: withLedger(rootOpts, func(cmd *cobra.Command, s *session, l *ledger.Ledger, args []string) error {
			data, err := saveslot.Export(cmd.Context(), l, saveslot.SystemClock{})
			if err != nil {
				return s.out.Fail("export", err)
			}
			if err := saveslot.WriteFile(args[0], data); err != nil {
				return s.out.Fail("export", err)
			}
			return s.out.Success(fmt.Sprintf("Exported %d events to %s", l.Len(), args[0]))
		}),
	}
}

func newSlotImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <path>",
		Short: "Replace the current log with a save-slot file",
		Long: `Replace the event log with the one in a save-slot file. The imported log
is replayed first; if it does not replay (for example, a strict-mode
underflow) nothing changes.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: withLedger(rootOpts, func(cmd *cobra.Command, s *session, l *ledger.Ledger, args []string) error {
			data, err := saveslot.ReadFile(args[0])
			if err != nil {
				return s.out.Fail("import", err)
			}
			return restoreSlot(cmd, s, l, data, args[0])
		}),
	}
}

func newSlotSaveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "save <name>",
		Short:         "Archive the current log as a named slot",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: withLedger(rootOpts, func(cmd *cobra.Command, s *session, l *ledger.Ledger, args []string) error {
			archive, err := s.openArchive()
			if err != nil {
				return err
			}
			data, err := saveslot.Export(cmd.Context(), l, saveslot.SystemClock{})
			if err != nil {
				return s.out.Fail("export", err)
			}
			info, err := archive.SaveSlot(cmd.Context(), args[0], data, time.Now())
			if err != nil {
				return s.out.Fail("archive", err)
			}
			return s.out.Success(SlotList{Slots: []store.SlotInfo{*info}})
		}),
	}
}

func newSlotLoadCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "load <name>",
		Short:         "Replace the current log with an archived slot",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: withLedger(rootOpts, func(cmd *cobra.Command, s *session, l *ledger.Ledger, args []string) error {
			archive, err := s.openArchive()
			if err != nil {
				return err
			}
			data, err := archive.LoadSlot(cmd.Context(), args[0])
			if err != nil {
				return s.out.Fail("load slot", err)
			}
			return restoreSlot(cmd, s, l, data, args[0])
		}),
	}
}

func newSlotListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List archived slots",
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
			slots, err := archive.ListSlots(cmd.Context())
			if err != nil {
				return s.out.Fail("list slots", err)
			}
			return s.out.Success(SlotList{Slots: slots})
		},
	}
}

func newSlotDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <name>",
		Short:         "Remove an archived slot",
		Args:          cobra.ExactArgs(1),
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
			if err := archive.DeleteSlot(cmd.Context(), args[0]); err != nil {
				return s.out.Fail("delete slot", err)
			}
			return s.out.Success("Deleted slot " + args[0])
		},
	}
}

func restoreSlot(cmd *cobra.Command, s *session, l *ledger.Ledger, data []byte, source string) error {
	snap, err := saveslot.Import(data)
	if err != nil {
		return s.out.Fail("import", err)
	}
	if err := l.Restore(cmd.Context(), snap); err != nil {
		if !errs.Is(err, errs.CodePersistence) {
			return s.out.Fail("import", err)
		}
		s.warnUnsaved(err)
	}
	return s.out.Success(fmt.Sprintf("Loaded %d events from %s", l.Len(), source))
}
